package vout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntuitionAmiga/coreplay/internal/picture"
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/sink/headless"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
	"github.com/IntuitionAmiga/coreplay/internal/surface"
	"github.com/IntuitionAmiga/coreplay/internal/telemetry"
)

func newTestWorker(t *testing.T, disp sink.Display, cfg Config) (*Worker, *picture.Heap, *telemetry.Metrics) {
	t.Helper()
	surf := surface.New(64, 64, 4)
	heap := picture.NewHeap(4)
	subs := subpicture.NewHeap(2)
	metrics := telemetry.NewMetrics(nil)
	w, err := New(surf, heap, subs, disp, metrics, zerolog.Nop(), cfg)
	require.NoError(t, err)
	return w, heap, metrics
}

// recordingSink captures a copy of every presented frame so tests can
// verify presentation order from each frame's first byte without
// inspecting heap internals.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSink) Init(w, h int) (sink.BufferDescriptor, error) {
	return sink.BufferDescriptor{Width: w, Height: h, BytesPerLine: w * 4, BytesPerPixel: 4}, nil
}
func (s *recordingSink) Manage() bool { return false }
func (s *recordingSink) Display(frame []byte) error {
	cp := append([]byte(nil), frame...)
	s.mu.Lock()
	s.frames = append(s.frames, cp)
	s.mu.Unlock()
	return nil
}
func (s *recordingSink) Destroy() {}

func (s *recordingSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

func makeReady(t *testing.T, heap *picture.Heap, dateOffset time.Duration, marker byte) *picture.Picture {
	t.Helper()
	p, err := heap.Create(picture.FormatNative, 64, 64)
	require.NoError(t, err)
	p.Pix[0] = marker
	require.NoError(t, heap.Display(p))
	require.NoError(t, heap.SetDate(p, time.Now().Add(dateOffset).UnixMicro()))
	require.Equal(t, picture.Ready, p.Status())
	return p
}

func TestOnTimeDisplayS1(t *testing.T) {
	disp := headless.New()
	w, heap, metrics := newTestWorker(t, disp, Config{DisplayDelay: 100 * time.Millisecond, IdleSleep: 5 * time.Millisecond})
	p := makeReady(t, heap, 50*time.Millisecond, 0x7a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return disp.PresentedCount() >= 1
	}, time.Second, 2*time.Millisecond)
	w.Stop()

	assert.Equal(t, picture.Destroyed, p.Status())
	assert.EqualValues(t, 0, p.RefCount())
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.Displayed))
	assert.EqualValues(t, 0, testutil.ToFloat64(metrics.LostPictures))
}

func TestLateDropS2(t *testing.T) {
	disp := headless.New()
	w, heap, metrics := newTestWorker(t, disp, Config{DisplayDelay: 100 * time.Millisecond, IdleSleep: 5 * time.Millisecond})
	p := makeReady(t, heap, -10*time.Millisecond, 0x7a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return p.Status() == picture.Destroyed
	}, time.Second, 2*time.Millisecond)
	w.Stop()

	assert.EqualValues(t, 0, disp.PresentedCount())
	assert.EqualValues(t, 1, testutil.ToFloat64(metrics.LostPictures))
	assert.EqualValues(t, 0, testutil.ToFloat64(metrics.Displayed))
}

func TestPresentationOrderByDateThenSlot(t *testing.T) {
	rec := &recordingSink{}
	w, heap, _ := newTestWorker(t, rec, Config{DisplayDelay: 500 * time.Millisecond, IdleSleep: 2 * time.Millisecond})

	makeReady(t, heap, 30*time.Millisecond, 1) // slot 0, latest date
	makeReady(t, heap, 10*time.Millisecond, 2) // slot 1, earliest date
	makeReady(t, heap, 20*time.Millisecond, 3) // slot 2, middle date

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	w.Stop()

	frames := rec.snapshot()
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, byte(2), frames[0][0], "earliest date (10ms) should present first")
	assert.Equal(t, byte(3), frames[1][0], "middle date (20ms) should present second")
	assert.Equal(t, byte(1), frames[2][0], "latest date (30ms) should present third")
}

func TestUnauthorizedChangeBitIsFatal(t *testing.T) {
	disp := headless.New()
	w, heap, _ := newTestWorker(t, disp, Config{DisplayDelay: 100 * time.Millisecond, IdleSleep: 2 * time.Millisecond})
	makeReady(t, heap, 5*time.Millisecond, 0x01)
	w.RequestChange(ChangeBit(99))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return w.Status() == StatusFatal
	}, time.Second, 2*time.Millisecond)
	w.Stop()
	assert.Equal(t, StatusFatal, w.Status())
}

// TestUnauthorizedChangeBitIsFatalWhileIdle covers the idle path (no
// picture ever ready: stream not started, paused, or an audio/subtitle
// only track), which previously never observed the change bitmap.
func TestUnauthorizedChangeBitIsFatalWhileIdle(t *testing.T) {
	disp := headless.New()
	w, _, _ := newTestWorker(t, disp, Config{DisplayDelay: 100 * time.Millisecond, IdleSleep: 2 * time.Millisecond})
	w.RequestChange(ChangeBit(99))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.Eventually(t, func() bool {
		return w.Status() == StatusFatal
	}, time.Second, 2*time.Millisecond)
	w.Stop()
	assert.Equal(t, StatusFatal, w.Status())
}

// geometryOverrideSink reports a different geometry from Init than was
// requested, exercising the display sink's "may override width/height/
// pixel-format/pitch" contract from §4.2.
type geometryOverrideSink struct {
	headless.Display
	width, height int
}

func (s *geometryOverrideSink) Init(width, height int) (sink.BufferDescriptor, error) {
	return sink.BufferDescriptor{
		Width: s.width, Height: s.height,
		BytesPerLine: s.width * 4, BytesPerPixel: 4,
	}, nil
}

func TestNewNegotiatesDisplayGeometry(t *testing.T) {
	disp := &geometryOverrideSink{width: 32, height: 16}
	surf := surface.New(64, 64, 4)
	heap := picture.NewHeap(2)
	subs := subpicture.NewHeap(2)
	metrics := telemetry.NewMetrics(nil)

	_, err := New(surf, heap, subs, disp, metrics, zerolog.Nop(), Config{})
	require.NoError(t, err)

	assert.Equal(t, 32, surf.Width())
	assert.Equal(t, 16, surf.Height())
}

func TestFPSRingReportsZeroBeforeTwoSamples(t *testing.T) {
	r := &fpsRing{}
	assert.Equal(t, 0.0, r.fps())
	r.push(1_000_000)
	assert.Equal(t, 0.0, r.fps())
	r.push(1_050_000)
	assert.InDelta(t, 20.0, r.fps(), 0.01)
}
