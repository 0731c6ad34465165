package decoder

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntuitionAmiga/coreplay/internal/clock"
	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/picture"
	"github.com/IntuitionAmiga/coreplay/internal/sink/headless"
	"github.com/IntuitionAmiga/coreplay/internal/telemetry"
)

// fakeVideoDecoder emits one picture per ordinary block via the shared
// heap; sentinel and preroll-marker blocks carry no content of their
// own, matching how a real codec treats out-of-band markers.
type fakeVideoDecoder struct {
	heap *picture.Heap
	fmt  decplugin.FormatDescriptor

	mu     sync.Mutex
	closed bool
}

func (d *fakeVideoDecoder) Category() decplugin.Category         { return decplugin.CategoryVideo }
func (d *fakeVideoDecoder) FormatIn() decplugin.FormatDescriptor  { return d.fmt }
func (d *fakeVideoDecoder) FormatOut() decplugin.FormatDescriptor { return d.fmt }

func (d *fakeVideoDecoder) DecodeVideo(block *decplugin.Block, emit func(pts int64, alloc func() (any, error))) error {
	if block == nil || block.IsFlushSentinel() || block.Flags.Has(decplugin.FlagPreroll) {
		return nil
	}
	emit(block.PTS, func() (any, error) {
		return d.heap.Create(picture.FormatNative, 16, 16)
	})
	return nil
}
func (d *fakeVideoDecoder) DecodeAudio(*decplugin.Block, func(decplugin.AudioOutputUnit)) error { return nil }
func (d *fakeVideoDecoder) DecodeSub(*decplugin.Block, func(decplugin.SubpictureOutputUnit)) error {
	return nil
}
func (d *fakeVideoDecoder) GetCC(present [4]bool) [4]*decplugin.Block { return [4]*decplugin.Block{} }
func (d *fakeVideoDecoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
func (d *fakeVideoDecoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// fakeAudioDecoder emits one PCM unit per ordinary block; a nil block
// (drain synthesis) carries nothing, matching fakeVideoDecoder's
// treatment of out-of-band markers.
type fakeAudioDecoder struct {
	fmt decplugin.FormatDescriptor
}

func (d *fakeAudioDecoder) Category() decplugin.Category         { return decplugin.CategoryAudio }
func (d *fakeAudioDecoder) FormatIn() decplugin.FormatDescriptor  { return d.fmt }
func (d *fakeAudioDecoder) FormatOut() decplugin.FormatDescriptor { return d.fmt }
func (d *fakeAudioDecoder) DecodeVideo(*decplugin.Block, func(int64, func() (any, error))) error {
	return nil
}
func (d *fakeAudioDecoder) DecodeAudio(block *decplugin.Block, emit func(decplugin.AudioOutputUnit)) error {
	if block == nil || block.IsFlushSentinel() {
		return nil
	}
	emit(decplugin.AudioOutputUnit{PTS: block.PTS, Rate: 48000, Samples: make([]byte, 64)})
	return nil
}
func (d *fakeAudioDecoder) DecodeSub(*decplugin.Block, func(decplugin.SubpictureOutputUnit)) error {
	return nil
}
func (d *fakeAudioDecoder) GetCC(present [4]bool) [4]*decplugin.Block { return [4]*decplugin.Block{} }
func (d *fakeAudioDecoder) Close() error                              { return nil }

// fakePacketizer passes every block through unchanged; its declared
// output format is mutable so tests can trigger a reload mid-stream.
type fakePacketizer struct {
	mu  sync.Mutex
	out decplugin.FormatDescriptor
}

func (p *fakePacketizer) Packetize(b *decplugin.Block) (*decplugin.Block, error) { return b, nil }
func (p *fakePacketizer) FormatOut() decplugin.FormatDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}
func (p *fakePacketizer) Close() error { return nil }
func (p *fakePacketizer) setFormat(f decplugin.FormatDescriptor) {
	p.mu.Lock()
	p.out = f
	p.mu.Unlock()
}

func newTestOwner(t *testing.T, dec decplugin.Decoder, pkt decplugin.Packetizer, factory DecoderFactory) (*Owner, *picture.Heap, *telemetry.Metrics) {
	t.Helper()
	heap := picture.NewHeap(8)
	adapter := clock.NewLinear()
	adapter.SetAnchor(0, 0)
	metrics := telemetry.NewMetrics(nil)
	o := New(dec, pkt, adapter, Sinks{Video: heap}, factory, metrics, zerolog.Nop(), Config{PaceDepth: 10, MaxFIFOBytes: 1 << 20})
	return o, heap, metrics
}

// TestFlushDuringPauseS4 covers scenario S4: pausing freezes the
// worker mid-unit, and Flush drops everything still queued, round-
// trips exactly one sentinel, and leaves nothing decoded past it.
func TestFlushDuringPauseS4(t *testing.T) {
	dec := &fakeVideoDecoder{fmt: decplugin.FormatDescriptor{Category: decplugin.CategoryVideo}}
	o, heap, metrics := newTestOwner(t, dec, nil, nil)
	dec.heap = heap
	o.Start()
	o.SetPaused(true)

	for i := 0; i < 5; i++ {
		o.InputDecode(&decplugin.Block{PTS: int64(1000 + i)}, false)
	}

	require.Eventually(t, func() bool { return o.fifo.Count() < 5 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond) // let the worker settle into waitUnblock

	o.Flush()

	require.Eventually(t, func() bool { return o.fifo.Empty() }, time.Second, time.Millisecond)
	o.mu.Lock()
	flushing := o.flushing
	o.mu.Unlock()
	assert.False(t, flushing)
	assert.EqualValues(t, 0, testutil.ToFloat64(metrics.Decoded), "nothing should have been decoded across the flush")
	require.NoError(t, o.Delete())
}

// TestFormatChangeRestartS5 covers scenario S5: a packetizer output
// format change triggers a decoder drain+close+reload, and the block
// stream is never reordered around the restart.
func TestFormatChangeRestartS5(t *testing.T) {
	initialFmt := decplugin.FormatDescriptor{Category: decplugin.CategoryVideo, Width: 64, Height: 64}
	newFmt := decplugin.FormatDescriptor{Category: decplugin.CategoryVideo, Width: 128, Height: 128}

	dec1 := &fakeVideoDecoder{fmt: initialFmt}
	pkt := &fakePacketizer{out: initialFmt}

	var reloads int32
	var sharedHeap *picture.Heap
	o, heap, metrics := newTestOwner(t, dec1, pkt, func(fmt decplugin.FormatDescriptor) (decplugin.Decoder, error) {
		atomic.AddInt32(&reloads, 1)
		return &fakeVideoDecoder{fmt: fmt, heap: sharedHeap}, nil
	})
	dec1.heap = heap
	sharedHeap = heap
	o.Start()

	o.InputDecode(&decplugin.Block{PTS: 1000}, false)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.Decoded) >= 1 }, time.Second, time.Millisecond)

	pkt.setFormat(newFmt)
	o.InputDecode(&decplugin.Block{PTS: 2000}, false)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&reloads) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.Decoded) >= 2 }, time.Second, time.Millisecond)

	assert.True(t, dec1.Closed(), "superseded decoder should be closed on reload")
	require.NoError(t, o.Delete())
}

// TestBackpressureS6 covers scenario S6: a paced producer blocks once
// the queue reaches its configured depth, and unblocks on the next
// dequeue.
func TestBackpressureS6(t *testing.T) {
	dec := &fakeVideoDecoder{fmt: decplugin.FormatDescriptor{Category: decplugin.CategoryVideo}}
	o, heap, _ := newTestOwner(t, dec, nil, nil)
	dec.heap = heap

	for i := 0; i < 10; i++ {
		o.InputDecode(&decplugin.Block{PTS: int64(i)}, true)
	}
	require.Equal(t, 10, o.fifo.Count())

	unblocked := make(chan struct{})
	go func() {
		o.InputDecode(&decplugin.Block{PTS: 99}, true)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("11th paced push should have blocked while the queue is at depth")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := o.fifo.Pop()
	require.True(t, ok)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("push should unblock once a slot frees up")
	}
}

// TestPrerollWatermarkDropsStalePictures exercises §4.3's preroll
// behaviour: pictures timestamped before the last preroll marker are
// dropped, and the marker itself clears once a picture past it arrives.
func TestPrerollWatermarkDropsStalePictures(t *testing.T) {
	dec := &fakeVideoDecoder{fmt: decplugin.FormatDescriptor{Category: decplugin.CategoryVideo}}
	o, heap, metrics := newTestOwner(t, dec, nil, nil)
	dec.heap = heap
	o.Start()

	o.InputDecode(&decplugin.Block{PTS: 5000, Flags: decplugin.FlagPreroll}, false)
	o.InputDecode(&decplugin.Block{PTS: 1000}, false) // before the watermark
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.LostPictures) >= 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 0, testutil.ToFloat64(metrics.Decoded))

	o.InputDecode(&decplugin.Block{PTS: 6000}, false) // past the watermark
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.Decoded) >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, o.Delete())
}

// TestFlushIsIdempotent covers property 5: calling Flush twice in a
// row never deadlocks and leaves the owner in a non-flushing state.
func TestFlushIsIdempotent(t *testing.T) {
	dec := &fakeVideoDecoder{fmt: decplugin.FormatDescriptor{Category: decplugin.CategoryVideo}}
	o, heap, _ := newTestOwner(t, dec, nil, nil)
	dec.heap = heap
	o.Start()

	done := make(chan struct{})
	go func() {
		o.Flush()
		o.Flush()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("back-to-back Flush calls should not deadlock")
	}

	o.mu.Lock()
	flushing := o.flushing
	o.mu.Unlock()
	assert.False(t, flushing)
	require.NoError(t, o.Delete())
}

// TestDrainCompletesAndFlushesAudio covers Testable Property 6 (drain
// completeness): once the FIFO empties after Drain, the owner
// synthesizes a drain pass, flushes the audio sink, and reports
// Drained() true.
func TestDrainCompletesAndFlushesAudio(t *testing.T) {
	dec := &fakeAudioDecoder{fmt: decplugin.FormatDescriptor{Category: decplugin.CategoryAudio}}
	audio := headless.NewAudio()
	adapter := clock.NewLinear()
	adapter.SetAnchor(0, 0)
	metrics := telemetry.NewMetrics(nil)
	o := New(dec, nil, adapter, Sinks{Audio: audio}, nil, metrics, zerolog.Nop(), Config{PaceDepth: 10, MaxFIFOBytes: 1 << 20})
	o.Start()

	o.InputDecode(&decplugin.Block{PTS: 1000}, false)
	o.InputDecode(&decplugin.Block{PTS: 2000}, false)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.PlayedABuffers) >= 2 }, time.Second, time.Millisecond)

	o.Drain()

	require.Eventually(t, func() bool { return o.Drained() }, time.Second, time.Millisecond)
	assert.True(t, o.fifo.Empty())
	assert.GreaterOrEqual(t, audio.GetResetLost(), 1, "drain should flush the audio sink")
	require.NoError(t, o.Delete())
}
