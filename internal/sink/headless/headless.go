// Package headless provides no-op display and audio sinks, grounded on
// the teacher's audio_backend_headless.go/video_backend_headless.go
// pattern of a build-tag-free stand-in backend usable in CI and unit
// tests without a real display or audio device.
package headless

import (
	"sync"
	"sync/atomic"

	"github.com/IntuitionAmiga/coreplay/internal/sink"
)

// Display is a headless sink.Display: it accepts any geometry, never
// reports fatal, and records every presented frame count for tests.
type Display struct {
	mu            sync.Mutex
	width, height int
	presented     atomic.Int64
	lastFrame     []byte
}

func New() *Display { return &Display{} }

func (d *Display) Init(width, height int) (sink.BufferDescriptor, error) {
	d.mu.Lock()
	d.width, d.height = width, height
	d.mu.Unlock()
	return sink.BufferDescriptor{
		Width: width, Height: height,
		BytesPerLine:  width * 4,
		BytesPerPixel: 4,
	}, nil
}

func (d *Display) Manage() bool { return false }

func (d *Display) Display(frame []byte) error {
	d.mu.Lock()
	d.lastFrame = append(d.lastFrame[:0], frame...)
	d.mu.Unlock()
	d.presented.Add(1)
	return nil
}

func (d *Display) Destroy() {}

// PresentedCount returns how many frames Display() has been called
// with, useful to assert scheduling behaviour in tests.
func (d *Display) PresentedCount() int64 { return d.presented.Load() }

// LastFrame returns a copy of the most recently presented frame.
func (d *Display) LastFrame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.lastFrame))
	copy(out, d.lastFrame)
	return out
}

// Audio is a headless sink.Audio: accepts and discards samples while
// tracking play/flush/pause call counts for test assertions.
type Audio struct {
	mu         sync.Mutex
	played     atomic.Int64
	resetLost  int
	paused     bool
	lastPlayed []byte
}

func NewAudio() *Audio { return &Audio{} }

func (a *Audio) Play(samples []byte, rate int) error {
	a.mu.Lock()
	a.lastPlayed = samples
	a.mu.Unlock()
	a.played.Add(1)
	return nil
}

func (a *Audio) Flush(wait bool) error {
	a.mu.Lock()
	a.resetLost++
	a.mu.Unlock()
	return nil
}

func (a *Audio) ChangePause(paused bool, date int64) error {
	a.mu.Lock()
	a.paused = paused
	a.mu.Unlock()
	return nil
}

func (a *Audio) GetResetLost() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetLost
}

// PlayedCount returns how many Play calls were made.
func (a *Audio) PlayedCount() int64 { return a.played.Load() }
