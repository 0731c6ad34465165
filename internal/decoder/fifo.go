package decoder

import (
	"sync"

	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
)

// Fifo is the decoder owner's bounded-by-bytes compressed-block queue:
// the independent, short-held "FIFO lock" and its paired condvar from
// §5, used both for the worker's blocking dequeue and the pacing
// producer's backpressure wait.
type Fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*decplugin.Block
	bytes  int64
	closed bool
}

func NewFifo() *Fifo {
	f := &Fifo{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push appends b and wakes every blocked Pop/PushPaced caller. A nil b is never pushed in
// practice (drain is signalled out-of-band by Owner.Drain), but Push
// tolerates it.
func (f *Fifo) Push(b *decplugin.Block) {
	f.mu.Lock()
	f.items = append(f.items, b)
	if b != nil {
		f.bytes += int64(len(b.Data))
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

// PushPaced implements §4.3's paced backpressure policy: block until
// the queue drops below depth items, unless waiting reports the owner
// is in "wait for first frame" mode — blocking here would deadlock the
// producer that's supposed to unblock it, so paced producers must
// never wait while waiting() holds.
func (f *Fifo) PushPaced(block *decplugin.Block, depth int, waiting func() bool) {
	f.mu.Lock()
	for len(f.items) >= depth && !waiting() && !f.closed {
		f.cond.Wait()
	}
	f.items = append(f.items, block)
	if block != nil {
		f.bytes += int64(len(block.Data))
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Pop blocks until an item is queued or the fifo is closed, in which
// case ok is false.
func (f *Fifo) Pop() (b *decplugin.Block, ok bool) {
	return f.pop(nil)
}

// PopOrDrain behaves like Pop, except that while the queue is empty it
// also re-checks drain on every wakeup; once drain reports true it
// returns (nil, true) immediately rather than waiting for an item that
// may never come. Without this, a drain request arriving while the
// worker is already parked in an empty-queue wait would only be
// noticed the next time something is pushed or the fifo is closed,
// since Wake's broadcast alone re-evaluates the same (still false)
// queue-non-empty condition.
func (f *Fifo) PopOrDrain(drain func() bool) (b *decplugin.Block, ok bool) {
	return f.pop(drain)
}

func (f *Fifo) pop(drain func() bool) (b *decplugin.Block, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.items) == 0 && !f.closed {
		if drain != nil && drain() {
			return nil, true
		}
		f.cond.Wait()
	}
	if len(f.items) == 0 {
		return nil, false
	}
	b = f.items[0]
	f.items = f.items[1:]
	if b != nil {
		f.bytes -= int64(len(b.Data))
	}
	f.cond.Broadcast()
	return b, true
}

func (f *Fifo) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *Fifo) Bytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytes
}

func (f *Fifo) Empty() bool { return f.Count() == 0 }

// Clear discards every queued block: used by Flush (discard-on-seek)
// and the non-paced overflow policy (§4.3 "FIFOOverflow").
func (f *Fifo) Clear() {
	f.mu.Lock()
	f.items = nil
	f.bytes = 0
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Wake nudges any blocked Pop/PushPaced caller to re-check its
// condition without changing queue contents — used by Drain to wake a
// worker blocked on an empty queue once draining becomes true, and by
// pause/wait-state changes to re-evaluate a paced producer's wait.
func (f *Fifo) Wake() {
	f.mu.Lock()
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Close permanently unblocks Pop/PushPaced, used at owner teardown.
func (f *Fifo) Close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}
