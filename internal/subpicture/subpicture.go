// Package subpicture implements the subtitle/overlay unit heap: the
// same fixed-capacity slab/reuse discipline as internal/picture, but
// with a single-phase reservation->ready protocol (no display/date
// split) per §3 "Subpicture Unit".
package subpicture

import (
	"errors"
	"fmt"
	"sync"
)

// Kind tags the payload type of a subpicture unit (text, bitmap, menu...).
type Kind int

const (
	KindText Kind = iota
	KindBitmap
	KindMenu
)

// Status mirrors picture.Status minus the two-phase RESERVED_DATED/
// RESERVED_DISP split: FREE, RESERVED, READY, DESTROYED.
type Status int

const (
	Free Status = iota
	Reserved
	Ready
	Destroyed
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Reserved:
		return "RESERVED"
	case Ready:
		return "READY"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Unit is a single subpicture slot.
type Unit struct {
	slot int

	kind    Kind
	begin   int64
	end     int64
	channel int
	order   int
	status  Status

	// Payload holds the rendered overlay content (text run, bitmap
	// bytes, etc.), owned by the producer while RESERVED.
	Payload []byte
}

func (u *Unit) Slot() int        { return u.slot }
func (u *Unit) Status() Status   { return u.status }
func (u *Unit) Begin() int64     { return u.begin }
func (u *Unit) End() int64       { return u.end }
func (u *Unit) Kind() Kind       { return u.kind }
func (u *Unit) Channel() int     { return u.channel }
func (u *Unit) Order() int       { return u.order }

// ErrHeapFull mirrors picture.ErrHeapFull for the subpicture heap.
var ErrHeapFull = errors.New("subpicture: heap full")

// DefaultCapacity matches the spec's "capacity ~16 per kind".
const DefaultCapacity = 16

// Heap is the fixed-capacity subpicture slab.
type Heap struct {
	mu    sync.Mutex
	slots []*Unit
}

// NewHeap allocates a heap with the given slot capacity.
func NewHeap(capacity int) *Heap {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &Heap{slots: make([]*Unit, capacity)}
	for i := range h.slots {
		h.slots[i] = &Unit{slot: i, status: Free}
	}
	return h
}

// Create allocates a subpicture unit following the same scan/reuse/
// fail policy as picture.Heap.Create, keyed on (kind, channel) rather
// than geometry since subpicture payloads have no fixed size class.
func (h *Heap) Create(kind Kind, channel, order int) (*Unit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstFree, firstDestroyed *Unit
	for _, u := range h.slots {
		switch u.status {
		case Destroyed:
			if firstDestroyed == nil {
				firstDestroyed = u
			}
			if u.kind == kind && u.channel == channel {
				h.reserve(u, kind, channel, order)
				return u, nil
			}
		case Free:
			if firstFree == nil {
				firstFree = u
			}
		}
	}

	switch {
	case firstFree != nil:
		h.reserve(firstFree, kind, channel, order)
		return firstFree, nil
	case firstDestroyed != nil:
		h.reserve(firstDestroyed, kind, channel, order)
		return firstDestroyed, nil
	default:
		return nil, fmt.Errorf("%w: capacity %d exhausted", ErrHeapFull, len(h.slots))
	}
}

func (h *Heap) reserve(u *Unit, kind Kind, channel, order int) {
	u.kind = kind
	u.channel = channel
	u.order = order
	u.begin = 0
	u.end = 0
	u.Payload = nil
	u.status = Reserved
}

// SetTiming records the begin/end presentation window.
func (h *Heap) SetTiming(u *Unit, begin, end int64) {
	h.mu.Lock()
	u.begin = begin
	u.end = end
	h.mu.Unlock()
}

// Ready transitions RESERVED -> READY. There is no two-phase split for
// subpictures: a single commit call is sufficient.
func (h *Heap) Ready(u *Unit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u.status != Reserved {
		return fmt.Errorf("subpicture: ready() on slot %d in state %s", u.slot, u.status)
	}
	u.status = Ready
	return nil
}

// Destroy marks a unit DESTROYED, making it eligible for reuse.
func (h *Heap) Destroy(u *Unit) {
	h.mu.Lock()
	u.status = Destroyed
	h.mu.Unlock()
}

// ReadyInWindow returns READY units whose [begin,end) window covers
// now, in heap slot order; it does not sort by channel or order.
func (h *Heap) ReadyInWindow(now int64) []*Unit {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Unit
	for _, u := range h.slots {
		if u.status == Ready && now >= u.begin && now < u.end {
			out = append(out, u)
		}
	}
	return out
}

// ReclaimExpired transitions every READY unit whose window has closed
// (now >= End) to DESTROYED, freeing its slot for reuse. Without this,
// a unit that has finished airing keeps its slot forever.
func (h *Heap) ReclaimExpired(now int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, u := range h.slots {
		if u.status == Ready && now >= u.end {
			u.status = Destroyed
		}
	}
}

// Len reports the heap's fixed slot capacity.
func (h *Heap) Len() int { return len(h.slots) }
