// Package ebitensink implements a sink.Display backed by
// github.com/hajimehoshi/ebiten/v2, grounded on the teacher's
// video_backend_ebiten.go. Unlike the teacher, which drives ebiten's
// own windowed game loop, this sink runs ebiten purely as an
// image/draw compositing surface: ebiten.RunGame is never invoked, so
// the windowing/input transitive dependencies the teacher pulls in for
// its own event loop have no code path here (see DESIGN.md).
package ebitensink

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/IntuitionAmiga/coreplay/internal/sink"
)

// Display is an offscreen ebiten-backed sink.Display: it composites
// into an *ebiten.Image and exposes that image's backing pixels as the
// linear buffer the video output worker renders into.
type Display struct {
	mu     sync.Mutex
	img    *ebiten.Image
	pix    []byte
	width  int
	height int
	closed bool
}

func New() *Display { return &Display{} }

func (d *Display) Init(width, height int) (sink.BufferDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	d.img = ebiten.NewImage(width, height)
	d.pix = make([]byte, width*height*4)
	return sink.BufferDescriptor{
		Width: width, Height: height,
		BytesPerLine:  width * 4,
		BytesPerPixel: 4,
	}, nil
}

func (d *Display) Manage() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Display pushes frame (already-composited RGBA pixels matching the
// geometry returned from Init) into the backing ebiten.Image.
func (d *Display) Display(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.pix, frame)
	d.img.WritePixels(d.pix)
	return nil
}

// Snapshot returns the composited frame as a standard image.Image, for
// callers (such as tests) that want to
// encode or inspect what was presented.
func (d *Display) Snapshot() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.img
}

func (d *Display) Destroy() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
