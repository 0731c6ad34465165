package picture

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrHeapFull is returned by Create when no FREE or reusable DESTROYED
// slot exists. Per the error taxonomy this is non-fatal: the caller
// retries or drops the decoded unit.
var ErrHeapFull = errors.New("picture: heap full")

// DefaultCapacity matches the spec's "capacity ~16 per kind".
const DefaultCapacity = 16

// Heap is the fixed-capacity picture slab. All status/date/refcount
// mutation is serialized through mu, the heap-wide picture_lock of §4.1.
type Heap struct {
	mu    sync.Mutex
	slots []*Picture
}

// NewHeap allocates a heap with the given slot capacity.
func NewHeap(capacity int) *Heap {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Heap{slots: make([]*Picture, capacity)}
	for i := range h.slots {
		h.slots[i] = &Picture{slot: i, status: Free}
	}
	return h
}

func bytesFor(format Format, width, height int) int {
	switch format {
	case FormatYUV420:
		return width*height + 2*((width+1)/2)*((height+1)/2)
	case FormatYUV422:
		return width*height + 2*((width+1)/2)*height
	case FormatYUV444:
		return width * height * 3
	default: // FormatNative: RGBA
		return width * height * 4
	}
}

// Create implements the §4.1 allocation policy:
//  1. scan for a DESTROYED slot with identical (format,width,height) and
//     reuse its pixel memory verbatim — the fast path, never allocates;
//  2. otherwise remember the first FREE and first DESTROYED slot seen;
//  3. if no FREE slot exists but a DESTROYED one does, free its memory
//     and reallocate at the requested size;
//  4. if neither exists, fail with ErrHeapFull.
//
// The returned picture is RESERVED, refcount 0, crop = full frame,
// aspect = square.
func (h *Heap) Create(format Format, width, height int) (*Picture, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstFree, firstDestroyed *Picture

	for _, p := range h.slots {
		switch p.status {
		case Destroyed:
			if firstDestroyed == nil {
				firstDestroyed = p
			}
			if p.format == format && p.width == width && p.height == height {
				h.reserve(p, format, width, height, false)
				return p, nil
			}
		case Free:
			if firstFree == nil {
				firstFree = p
			}
		}
	}

	switch {
	case firstFree != nil:
		h.reserve(firstFree, format, width, height, true)
		return firstFree, nil
	case firstDestroyed != nil:
		h.reserve(firstDestroyed, format, width, height, true)
		return firstDestroyed, nil
	default:
		return nil, fmt.Errorf("%w: capacity %d exhausted", ErrHeapFull, len(h.slots))
	}
}

func (h *Heap) reserve(p *Picture, format Format, width, height int, realloc bool) {
	if realloc {
		p.Pix = make([]byte, bytesFor(format, width, height))
	}
	p.format = format
	p.width = width
	p.height = height
	p.chromaWidth = (width + 1) / 2
	p.crop = Crop{0, 0, width, height}
	p.aspect = AspectSquare
	p.matrixCoeffs = 0
	p.date = 0
	p.dated = false
	p.status = Reserved
	p.refs.Store(0)
}

// Display records the producer's display-request, per the two-phase
// commit table. It is idempotent in the sense the table defines: a
// second call on an already-RESERVED_DISP slot is a caller error.
func (h *Heap) Display(p *Picture) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch p.status {
	case Reserved:
		p.status = ReservedDisp
	case ReservedDated:
		p.status = Ready
	case ReservedDisp:
		return fmt.Errorf("picture: display() called twice on slot %d", p.slot)
	default:
		return fmt.Errorf("picture: display() on slot %d in state %s", p.slot, p.status)
	}
	return nil
}

// SetDate records the producer's date-assignment, per the two-phase
// commit table. Calling it again while RESERVED_DATED simply updates
// the date, matching the table's "(update date)" cell.
func (h *Heap) SetDate(p *Picture, t int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch p.status {
	case Reserved:
		p.status = ReservedDated
	case ReservedDisp:
		p.status = Ready
	case ReservedDated:
		// fallthrough to date update below
	default:
		return fmt.Errorf("picture: date() on slot %d in state %s", p.slot, p.status)
	}
	p.date = t
	p.dated = true
	return nil
}

// Link increments a picture's reference count.
func (h *Heap) Link(p *Picture) {
	p.refs.Add(1)
}

// Unlink decrements a picture's reference count. Crossing zero while
// DISPLAYED transitions the slot to DESTROYED, making its memory
// eligible for same-geometry reuse.
func (h *Heap) Unlink(p *Picture) {
	if p.refs.Add(-1) <= 0 {
		h.mu.Lock()
		if p.refs.Load() <= 0 && p.status == Displayed {
			p.status = Destroyed
		}
		h.mu.Unlock()
	}
}

// MarkDisplayed transitions a picture READY->DISPLAYED, or directly to
// DESTROYED if its refcount is already zero. Called exactly once per
// allocation by the video output worker after presenting (or after
// deciding to drop) a picture — this is Testable Property 2.
func (h *Heap) MarkDisplayed(p *Picture) {
	h.mu.Lock()
	if p.refs.Load() <= 0 {
		p.status = Destroyed
	} else {
		p.status = Displayed
	}
	h.mu.Unlock()
}

// ReadySnapshot is an immutable view of a READY picture's scheduling
// fields, taken under the heap lock but safe to use afterward because
// READY is a stable, single-writer (video-output-worker-only) state.
type ReadySnapshot struct {
	Pic  *Picture
	Date int64
	Slot int
}

// SelectNextReady scans the heap for READY pictures and returns them
// ordered by (date, slot) ascending — non-decreasing date order with
// ties broken by slot index, per §5's ordering guarantee. The scan
// itself takes the lock only long enough to copy status/date pairs;
// it does not hold it across caller logic.
func (h *Heap) SelectNextReady() []ReadySnapshot {
	h.mu.Lock()
	out := make([]ReadySnapshot, 0, len(h.slots))
	for _, p := range h.slots {
		if p.status == Ready {
			date, _ := p.Date()
			out = append(out, ReadySnapshot{Pic: p, Date: date, Slot: p.slot})
		}
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Flush discards every picture not yet DISPLAYED (RESERVED,
// RESERVED_DATED, RESERVED_DISP, or READY), transitioning it straight
// to DESTROYED. Used by the decoder owner to drop now-stale frames on
// a rate change or at preroll exit (§4.3).
func (h *Heap) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.slots {
		switch p.status {
		case Reserved, ReservedDated, ReservedDisp, Ready:
			p.status = Destroyed
		}
	}
}

// Len reports the heap's fixed slot capacity.
func (h *Heap) Len() int { return len(h.slots) }

// Snapshot returns a defensive copy of every slot's current status, for
// diagnostics and tests.
func (h *Heap) Snapshot() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Status, len(h.slots))
	for i, p := range h.slots {
		out[i] = p.status
	}
	return out
}
