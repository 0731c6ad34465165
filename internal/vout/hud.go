package vout

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/IntuitionAmiga/coreplay/internal/fontrender"
)

// fpsRingSize is the spec's N=20 window for FPS computation.
const fpsRingSize = 20

// fpsRing is a fixed-size ring of the last N display dates, independent
// of text layout so it's testable on its own (§12 supplement).
type fpsRing struct {
	mu     sync.Mutex
	dates  [fpsRingSize]int64
	count  int
	cursor int
}

func (r *fpsRing) push(dateMicros int64) {
	r.mu.Lock()
	r.dates[r.cursor] = dateMicros
	r.cursor = (r.cursor + 1) % fpsRingSize
	if r.count < fpsRingSize {
		r.count++
	}
	r.mu.Unlock()
}

// fps computes frames-per-second from the span between the oldest and
// newest recorded dates in the ring.
func (r *fpsRing) fps() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < 2 {
		return 0
	}
	newestIdx := (r.cursor - 1 + fpsRingSize) % fpsRingSize
	oldestIdx := r.cursor
	if r.count < fpsRingSize {
		oldestIdx = 0
	}
	span := r.dates[newestIdx] - r.dates[oldestIdx]
	if span <= 0 {
		return 0
	}
	frames := r.count - 1
	return float64(frames) * 1_000_000 / float64(span)
}

// renderHUD composites the info overlay / interface bar text onto dst,
// honouring the change bitmap's toggles. Text is drawn in full-width
// bands along the top and bottom edges of dst and may overlap the
// picture sub-rectangle; every band that reaches outside that
// rectangle is reported via markDirty so the next frame clears it.
func (w *Worker) renderHUD(dst *image.RGBA, pictureRect image.Rectangle, markDirty func(y0, y1 int)) {
	bounds := dst.Bounds()

	if w.changes.Active(ChangeInfoOverlay) {
		text := fmt.Sprintf("FPS %.1f", w.fps.fps())
		top := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+16)
		fontrender.DrawText(dst, top, text, fontrender.Left, fontrender.Top, color.White)
		if top.Min.Y < pictureRect.Min.Y || top.Max.Y > pictureRect.Max.Y {
			markDirty(top.Min.Y, top.Max.Y)
		}
	}

	if w.changes.Active(ChangeInterface) {
		bar := image.Rect(bounds.Min.X, bounds.Max.Y-20, bounds.Max.X, bounds.Max.Y)
		fontrender.DrawText(dst, bar, w.interfaceText(), fontrender.HCenter, fontrender.Bottom, color.White)
		markDirty(bar.Min.Y, bar.Max.Y)
	}
}
