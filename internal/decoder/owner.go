// Package decoder implements the decoder owner: the per-stream
// producer/consumer bridge between a compressed input queue and a
// video/audio/subpicture sink, per §4.3. Its worker goroutine lifecycle
// (a done channel closed on exit) is grounded on the teacher's
// coproc_worker_6502.go pattern; its three rendezvous points (request,
// acknowledge, fifo) are implemented with sync.Cond pairs rather than
// channels because §9 itself frames them as interchangeable and the
// pause/wait/ignore barrier logic needs Cond's broadcast-to-all-waiters
// semantics, which a channel can't express without extra bookkeeping.
package decoder

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/IntuitionAmiga/coreplay/internal/clock"
	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/picture"
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
	"github.com/IntuitionAmiga/coreplay/internal/telemetry"
)

// ErrDecoderLoad is the DecoderLoadFailure taxonomy entry (§7): fatal
// to the stream, the owner enters a permanent error state but its
// worker keeps draining (discarding) its FIFO rather than wedging.
var ErrDecoderLoad = errors.New("decoder: load failed")

// Config bundles the owner's host-configurable knobs (see
// internal/config.FIFOConfig/AudioConfig/SubtitleConfig/CCConfig for
// where these come from at the process level).
type Config struct {
	MaxFIFOBytes        int64
	PaceDepth           int
	AudioMaxPrepareTime time.Duration
	AudioMaxInputRate   int
	SubMaxPrepareTime   time.Duration
	CCEnabled           [4]bool
	TSDelay             int64
}

// DecoderFactory builds a replacement decoder instance for a newly
// negotiated format, used on packetizer format-change reload (§4.3).
// CC sub-decoders are built by the per-channel factory given to
// EnableCC instead.
type DecoderFactory func(fmt decplugin.FormatDescriptor) (decplugin.Decoder, error)

// Owner is the per-stream decoder owner.
type Owner struct {
	fifo *Fifo

	mu          sync.Mutex
	requestCond *sync.Cond
	ackCond     *sync.Cond

	dec            decplugin.Decoder
	pkt            decplugin.Packetizer
	decoderFactory DecoderFactory
	lastPktFmt     decplugin.FormatDescriptor

	clock clock.Adapter

	video *picture.Heap
	audio sink.Audio
	subs  *subpicture.Heap

	cc *ccFanout

	cfg     Config
	metrics *telemetry.Metrics
	log     zerolog.Logger

	prerollEnd int64
	lastRate   int

	paused     bool
	waiting    bool
	hasData    bool
	first      bool
	flushing   bool
	draining   bool
	drained    bool
	ignore     int
	errorState bool

	status   Status
	statusMu sync.Mutex

	done chan struct{}
}

// Sinks bundles the external collaborators an Owner routes decoded
// units to, borrowed (not owned) per §9's ownership-by-resource-manager
// note.
type Sinks struct {
	Video *picture.Heap
	Audio sink.Audio
	Subs  *subpicture.Heap
}

// New constructs an Owner around dec (and optionally pkt), wired to
// the given sinks and clock adapter. The worker goroutine is started
// separately via Start.
func New(dec decplugin.Decoder, pkt decplugin.Packetizer, adapter clock.Adapter, sinks Sinks, factory DecoderFactory, metrics *telemetry.Metrics, log zerolog.Logger, cfg Config) *Owner {
	if cfg.PaceDepth <= 0 {
		cfg.PaceDepth = 10
	}
	if cfg.MaxFIFOBytes <= 0 {
		cfg.MaxFIFOBytes = 400 * 1024 * 1024
	}
	o := &Owner{
		fifo:           NewFifo(),
		dec:            dec,
		pkt:            pkt,
		decoderFactory: factory,
		clock:          adapter,
		video:          sinks.Video,
		audio:          sinks.Audio,
		subs:           sinks.Subs,
		cfg:            cfg,
		metrics:        metrics,
		log:            log,
		first:          true,
		done:           make(chan struct{}),
	}
	o.requestCond = sync.NewCond(&o.mu)
	o.ackCond = sync.NewCond(&o.mu)
	o.setStatus(StatusCreate)
	if pkt != nil {
		o.lastPktFmt = pkt.FormatOut()
	}
	return o
}

// EnableCC spawns the fan-out of up to four closed-caption
// sub-decoders, built via factory for each enabled channel.
func (o *Owner) EnableCC(factory func(channel int) (decplugin.Decoder, error)) error {
	fo, err := newCCFanout(o.cfg.CCEnabled, factory, o.subs, o.log)
	if err != nil {
		return err
	}
	o.cc = fo
	return nil
}

func (o *Owner) setStatus(s Status) {
	o.statusMu.Lock()
	o.status = s
	o.statusMu.Unlock()
}

// Status reports the owner's current thread-status.
func (o *Owner) Status() Status {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.status
}

// Start launches the worker goroutine.
func (o *Owner) Start() {
	o.setStatus(StatusStart)
	go func() {
		defer close(o.done)
		o.setStatus(StatusReady)
		o.runLoop()
		if o.Status() != StatusFatal && o.Status() != StatusError {
			o.setStatus(StatusEnd)
		}
	}()
}

// Delete cancels the worker, per §5's cancellation sequence: clear
// paused/waiting, set flushing, signal request, join, then tear down.
func (o *Owner) Delete() error {
	o.mu.Lock()
	o.paused = false
	o.waiting = false
	o.flushing = true
	o.mu.Unlock()
	o.requestCond.Broadcast()
	o.fifo.Close()
	<-o.done
	var ccErr error
	if o.cc != nil {
		ccErr = o.cc.Close()
	}
	if o.pkt != nil {
		_ = o.pkt.Close()
	}
	_ = o.dec.Close()
	if o.Status() != StatusFatal {
		o.setStatus(StatusOver)
	}
	return ccErr
}

func nowMicros() int64 { return time.Now().UnixMicro() }

// runLoop is the worker's main loop (§4.3): block on the FIFO, decode,
// route; when draining and the FIFO is empty, synthesize a drain pass.
// PopOrDrain re-checks the draining condition on every wakeup so a
// Drain() call lands even if the worker is already parked waiting on
// an empty queue, not only when a new block arrives.
func (o *Owner) runLoop() {
	isDraining := func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.draining
	}

	for {
		block, ok := o.fifo.PopOrDrain(isDraining)
		if !ok {
			return
		}
		if block == nil {
			o.handleBlock(nil)
			if o.audio != nil {
				_ = o.audio.Flush(true)
			}
			o.mu.Lock()
			o.draining = false
			o.drained = true
			o.mu.Unlock()
			continue
		}
		o.metrics.FIFOBytes.Set(float64(o.fifo.Bytes()))
		o.handleBlock(block)
	}
}

// handleBlock routes one dequeued block (nil means drain) through the
// packetizer pre-stage (if any) and then the decoder, per §4.3.
func (o *Owner) handleBlock(block *decplugin.Block) {
	o.mu.Lock()
	inErr := o.errorState
	o.mu.Unlock()
	if inErr {
		// DecoderLoadFailure: drains (discards) rather than wedging, but
		// still acknowledges a flush sentinel so Flush can return.
		if block.IsFlushSentinel() {
			o.mu.Lock()
			o.flushing = false
			o.mu.Unlock()
			o.ackCond.Broadcast()
		}
		return
	}

	in := block
	if o.pkt != nil && block != nil {
		pb, err := o.pkt.Packetize(block)
		if err != nil {
			o.log.Warn().Err(err).Msg("packetizer error, block dropped")
			return
		}
		in = pb
		if newFmt := o.pkt.FormatOut(); !newFmt.Equal(o.lastPktFmt) {
			o.lastPktFmt = newFmt
			o.reloadDecoder(newFmt)
		}
		if in == nil {
			return
		}
	}

	switch o.dec.Category() {
	case decplugin.CategoryVideo:
		o.decodeVideo(in)
	case decplugin.CategoryAudio:
		o.decodeAudio(in)
	case decplugin.CategorySubpicture:
		o.decodeSub(in)
	}

	if in != nil && in.IsFlushSentinel() {
		o.mu.Lock()
		o.flushing = false
		o.mu.Unlock()
		o.ackCond.Broadcast()
	}

	o.deriveCC(in)
}

// reloadDecoder implements §4.3's format-change restart (S5): drain
// the old decoder with a None block, close it, and build a replacement
// for the new format via the configured factory.
func (o *Owner) reloadDecoder(fmt decplugin.FormatDescriptor) {
	switch o.dec.Category() {
	case decplugin.CategoryVideo:
		o.decodeVideo(nil)
	case decplugin.CategoryAudio:
		o.decodeAudio(nil)
	case decplugin.CategorySubpicture:
		o.decodeSub(nil)
	}
	if err := o.dec.Close(); err != nil {
		o.log.Warn().Err(err).Msg("error closing decoder during format-change reload")
	}
	if o.decoderFactory == nil {
		o.enterErrorState()
		return
	}
	nd, err := o.decoderFactory(fmt)
	if err != nil {
		o.enterErrorState()
		return
	}
	o.dec = nd
}

func (o *Owner) enterErrorState() {
	o.mu.Lock()
	o.errorState = true
	o.mu.Unlock()
	o.setStatus(StatusError)
	o.log.Error().Msg("decoder load failure, stream entering permanent error state")
}

// deriveCC forwards block to every enabled CC sub-decoder via GetCC,
// per §4.3 "Closed captions".
func (o *Owner) deriveCC(block *decplugin.Block) {
	if o.cc == nil || block == nil || o.dec.Category() != decplugin.CategoryVideo {
		return
	}
	blocks := o.dec.GetCC(o.cfg.CCEnabled)
	o.cc.FeedPerChannel(blocks)
}

// waitUnblock is the producer-side barrier of §4.3, honouring pause
// and wait-for-first-frame simultaneously. Returns true if the caller
// should abandon the unit (flushing).
func (o *Owner) waitUnblock() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		if o.flushing {
			return true
		}
		if o.paused {
			if o.waiting && !o.hasData {
				return false
			}
			if o.ignore > 0 {
				o.ignore--
				return false
			}
		} else {
			if !o.waiting || !o.hasData {
				return false
			}
		}
		o.requestCond.Wait()
	}
}

// markHasData flips hasData (and clears the initial "first" flag),
// broadcasting the acknowledge condvar for anyone waiting on either.
func (o *Owner) markHasData() {
	o.mu.Lock()
	o.hasData = true
	o.first = false
	o.mu.Unlock()
	o.ackCond.Broadcast()
}

// SetPaused toggles pause, propagating it to the audio sink and waking
// any producer blocked in waitUnblock.
func (o *Owner) SetPaused(paused bool) {
	o.mu.Lock()
	o.paused = paused
	o.mu.Unlock()
	if o.audio != nil {
		_ = o.audio.ChangePause(paused, nowMicros())
	}
	o.requestCond.Broadcast()
}

// SetWaiting toggles "wait for first frame" mode. Entering it clears
// hasData so the next unit releases exactly one frame.
func (o *Owner) SetWaiting(waiting bool) {
	o.mu.Lock()
	o.waiting = waiting
	if waiting {
		o.hasData = false
	}
	o.mu.Unlock()
	o.requestCond.Broadcast()
	o.fifo.Wake()
}

// StepIgnore lets n additional frames through while paused (frame
// stepping).
func (o *Owner) StepIgnore(n int) {
	o.mu.Lock()
	o.ignore += n
	o.mu.Unlock()
	o.requestCond.Broadcast()
}

// Flush implements §4.3's flush protocol: empty the FIFO, cancel any
// pending drain, submit the sentinel block, and wait for the worker's
// acknowledgement. Calling Flush twice in a row is idempotent (property
// 5): the second call finds an empty FIFO and no pending drain, and
// still round-trips a sentinel cleanly.
func (o *Owner) Flush() {
	o.mu.Lock()
	o.draining = false
	o.flushing = true
	o.mu.Unlock()

	o.fifo.Clear()
	o.requestCond.Broadcast()

	sentinel := &decplugin.Block{Flags: decplugin.FlagCoreFlush | decplugin.FlagDiscontinuity | decplugin.FlagCorrupted}
	o.fifo.Push(sentinel)
	o.metrics.FIFOBytes.Set(float64(o.fifo.Bytes()))

	o.mu.Lock()
	for o.flushing {
		o.ackCond.Wait()
	}
	o.mu.Unlock()
}

// Drain implements §4.3's drain: a one-shot flag consumed exactly once
// when the FIFO next empties (property 6).
func (o *Owner) Drain() {
	o.mu.Lock()
	o.draining = true
	o.drained = false
	o.mu.Unlock()
	o.fifo.Wake()
}

// Drained reports whether the most recent Drain has completed.
func (o *Owner) Drained() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drained
}

// InputDecode is the backpressure entry point (§4.3). pace=false drops
// the entire queue on a 400 MiB (by default) overflow; pace=true
// blocks while the queue holds >= PaceDepth items, except while
// waiting is set (that would deadlock the synchronizer upstream).
func (o *Owner) InputDecode(block *decplugin.Block, pace bool) {
	if !pace {
		if o.fifo.Bytes()+int64(len(block.Data)) > o.cfg.MaxFIFOBytes {
			o.fifo.Clear()
			o.log.Warn().Msg("fifo overflow: queue dropped")
		}
		o.fifo.Push(block)
		o.metrics.FIFOBytes.Set(float64(o.fifo.Bytes()))
		return
	}
	o.fifo.PushPaced(block, o.cfg.PaceDepth, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.waiting
	})
	o.metrics.FIFOBytes.Set(float64(o.fifo.Bytes()))
}

// decodeVideo and its emit callback implement §4.3's video routing.
func (o *Owner) decodeVideo(block *decplugin.Block) {
	if block != nil && block.Flags.Has(decplugin.FlagPreroll) {
		if wallTS, _, err := o.convertTS(block.PTS); err == nil {
			o.mu.Lock()
			if wallTS > o.prerollEnd {
				o.prerollEnd = wallTS
			}
			o.mu.Unlock()
		}
	}
	err := o.dec.DecodeVideo(block, o.emitVideo)
	if err != nil {
		o.log.Warn().Err(err).Msg("video decode error")
	}
}

func (o *Owner) convertTS(pts int64) (int64, int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clock.Convert(pts+o.cfg.TSDelay, 0)
}

func (o *Owner) emitVideo(pts int64, alloc func() (any, error)) {
	wallTS, rate, convErr := o.convertTS(pts)
	if convErr != nil {
		o.metrics.LostPictures.Inc()
		o.log.Warn().Err(convErr).Msg("clock conversion failed, picture dropped")
		return
	}

	o.mu.Lock()
	rateChanged := o.lastRate != 0 && o.lastRate != rate
	o.lastRate = rate
	preroll := o.prerollEnd
	o.mu.Unlock()

	if preroll != 0 && wallTS < preroll {
		o.metrics.LostPictures.Inc()
		return
	}
	if preroll != 0 {
		o.video.Flush()
		o.mu.Lock()
		o.prerollEnd = 0
		o.mu.Unlock()
	}

	if o.waitUnblock() {
		return
	}
	if rateChanged {
		o.video.Flush()
	}

	slot, err := alloc()
	if err != nil {
		o.metrics.LostPictures.Inc()
		return
	}
	pic, ok := slot.(*picture.Picture)
	if !ok || pic == nil {
		return
	}
	if err := o.video.Display(pic); err != nil {
		o.log.Warn().Err(err).Msg("display() rejected")
		return
	}
	if err := o.video.SetDate(pic, wallTS); err != nil {
		o.log.Warn().Err(err).Msg("date() rejected")
		return
	}
	o.metrics.Decoded.Inc()
	o.markHasData()
}

// decodeAudio and its emit callback implement §4.3's audio routing.
func (o *Owner) decodeAudio(block *decplugin.Block) {
	err := o.dec.DecodeAudio(block, o.emitAudio)
	if err != nil {
		o.log.Warn().Err(err).Msg("audio decode error")
	}
}

func (o *Owner) emitAudio(u decplugin.AudioOutputUnit) {
	wallTS, rate, convErr := o.convertTS(u.PTS)
	if convErr != nil {
		o.metrics.LostABuffers.Inc()
		return
	}

	o.mu.Lock()
	preroll := o.prerollEnd
	o.mu.Unlock()
	if preroll != 0 && wallTS < preroll {
		o.metrics.LostABuffers.Inc()
		return
	}

	if n := o.cfg.AudioMaxInputRate; n > 0 {
		if rate*n < clock.DefaultRate || rate > clock.DefaultRate*n {
			o.metrics.LostABuffers.Inc()
			return
		}
	}

	if o.waitUnblock() {
		return
	}

	if wait := wallTS - o.cfg.AudioMaxPrepareTime.Microseconds() - nowMicros(); wait > 0 {
		time.Sleep(time.Duration(wait) * time.Microsecond)
	}

	if o.audio == nil {
		return
	}
	if err := o.audio.Play(u.Samples, u.Rate); err != nil {
		o.log.Warn().Err(err).Msg("audio sink rejected buffer")
		o.metrics.LostABuffers.Inc()
		return
	}
	o.metrics.PlayedABuffers.Inc()
	o.markHasData()
}

// decodeSub and its emit callback implement §4.3's subpicture routing.
func (o *Owner) decodeSub(block *decplugin.Block) {
	err := o.dec.DecodeSub(block, o.emitSub)
	if err != nil {
		o.log.Warn().Err(err).Msg("subpicture decode error")
	}
}

func (o *Owner) emitSub(u decplugin.SubpictureOutputUnit) {
	o.mu.Lock()
	start, _, errStart := o.clock.Convert(u.Start+o.cfg.TSDelay, 0)
	stop, _, errStop := o.clock.Convert(u.Stop+o.cfg.TSDelay, 0)
	o.mu.Unlock()
	if errStart != nil || errStop != nil {
		return
	}

	if wait := start - o.cfg.SubMaxPrepareTime.Microseconds() - nowMicros(); wait > 0 {
		time.Sleep(time.Duration(wait) * time.Microsecond)
	}

	adjusted := u
	adjusted.Start, adjusted.Stop = start, stop
	submitSubpicture(o.subs, u.Channel, adjusted, o.log)
	o.markHasData()
}
