// Package picture implements the decoded-frame buffer heap: a fixed
// capacity slab of picture slots with a status-based lifecycle and
// reference counting, shared between decoder producers and the video
// output worker.
package picture

import (
	"sync/atomic"
)

// Format identifies a picture's pixel layout.
type Format int

const (
	FormatYUV420 Format = iota
	FormatYUV422
	FormatYUV444
	FormatNative // presenter-native (already RGB/whatever the sink wants)
)

// Aspect is the display aspect-ratio tag carried alongside a picture.
type Aspect int

const (
	AspectSquare Aspect = iota
	Aspect4_3
	Aspect16_9
	Aspect221_1
)

// Status is a picture slot's position in the lifecycle state machine
// described by the buffer-heap invariants. All transitions happen
// under the owning Heap's picture_lock; only Pix (while the slot is
// RESERVED and owned by a single producer) is ever touched without it.
type Status int

const (
	Free Status = iota
	Reserved
	ReservedDated
	ReservedDisp
	Ready
	Displayed
	Destroyed
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Reserved:
		return "RESERVED"
	case ReservedDated:
		return "RESERVED_DATED"
	case ReservedDisp:
		return "RESERVED_DISP"
	case Ready:
		return "READY"
	case Displayed:
		return "DISPLAYED"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Crop is the display-crop rectangle within a picture's plane.
type Crop struct {
	X, Y, Width, Height int
}

// Picture is a single decoded-frame slot. status/date are only ever
// mutated while the owning Heap's mutex is held; refs is an atomic
// counter adjusted by Link/Unlink without that lock; Pix may be
// written lock-free by the producer that currently holds the slot in
// RESERVED state (single-owner invariant from §4.1).
type Picture struct {
	slot int // heap index; breaks scheduling ties (lower index wins)

	format       Format
	width        int
	height       int
	chromaWidth  int
	crop         Crop
	aspect       Aspect
	matrixCoeffs int

	date   int64 // presentation date, monotonic wall-clock microseconds
	dated  bool
	status Status
	refs   atomic.Int32

	// Pix holds the raw pixel planes. Reused verbatim on a same-geometry
	// DESTROYED-slot reallocation; reallocated from scratch otherwise.
	Pix []byte
}

// Slot returns the picture's heap index.
func (p *Picture) Slot() int { return p.slot }

// Format, Width, Height, ChromaWidth are fixed for the slot's current
// allocation and need no locking to read.
func (p *Picture) Format() Format   { return p.format }
func (p *Picture) Width() int       { return p.width }
func (p *Picture) Height() int      { return p.height }
func (p *Picture) ChromaWidth() int { return p.chromaWidth }

// Crop, Aspect and MatrixCoeffs are producer-set metadata; like Pix,
// they're only touched by the producer while the slot is RESERVED, so
// reads from the video output worker after READY are safe without a
// lock (READY is a stable, single-writer state until the worker itself
// transitions it).
func (p *Picture) Crop() Crop            { return p.crop }
func (p *Picture) SetCrop(c Crop)        { p.crop = c }
func (p *Picture) Aspect() Aspect        { return p.aspect }
func (p *Picture) SetAspect(a Aspect)    { p.aspect = a }
func (p *Picture) MatrixCoeffs() int     { return p.matrixCoeffs }
func (p *Picture) SetMatrixCoeffs(m int) { p.matrixCoeffs = m }

// RefCount returns the current reference count. Safe to call without
// the heap lock: refs is only ever adjusted by +/-1 and the
// DISPLAYED->DESTROYED transition it can trigger is re-checked under
// the heap lock by Unlink itself.
func (p *Picture) RefCount() int32 { return p.refs.Load() }

// Status reads the current lifecycle status. Callers outside the heap
// must treat this as a snapshot; only code holding the heap lock (or
// observing a READY/DESTROYED terminal-ish state from the single
// reader side) may rely on it being current.
func (p *Picture) Status() Status { return p.status }

// Date returns the presentation date and whether it has been recorded.
func (p *Picture) Date() (int64, bool) { return p.date, p.dated }
