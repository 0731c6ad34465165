// Package vout implements the video output worker: a goroutine that
// pulls READY pictures from a picture.Heap in presentation order,
// letterbox-fits and color-converts them onto a surface.Surface, and
// presents the result to a sink.Display, per §4.2. The goroutine
// lifecycle (a done channel closed on exit, a stop channel requesting
// exit) is grounded on the teacher's coproc_worker_6502.go pattern.
package vout

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/IntuitionAmiga/coreplay/internal/picture"
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
	"github.com/IntuitionAmiga/coreplay/internal/surface"
	"github.com/IntuitionAmiga/coreplay/internal/telemetry"
)

// Config bundles the worker's host-configurable knobs (see
// internal/config.VideoConfig for where these come from).
type Config struct {
	DisplayDelay time.Duration
	IdleSleep    time.Duration
}

// Worker is the video output worker. One Worker serves one stream's
// picture heap; a player composes several for video+subpicture tracks.
type Worker struct {
	surf *surface.Surface
	heap *picture.Heap
	subs *subpicture.Heap
	disp sink.Display

	metrics *telemetry.Metrics
	log     zerolog.Logger

	converter ColorConverter
	changes   *ChangeBitmap
	fps       *fpsRing

	cfg Config

	// changeLock is held across most of a loop iteration (everything
	// but the sleep-until-date wait), per §4.2 step 6: reconfiguration
	// requests arriving mid-iteration are safe to apply but must not be
	// read half-applied.
	changeLock sync.Mutex

	status atomic.Int32

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New builds a Worker and negotiates display geometry: it asks disp for
// its actual buffer geometry via Init, which may override width/height/
// pixel-format/pitch from what surf was created with (§4.2), and
// resizes surf to match before any loop iteration can render into it.
func New(surf *surface.Surface, heap *picture.Heap, subs *subpicture.Heap, disp sink.Display, metrics *telemetry.Metrics, log zerolog.Logger, cfg Config) (*Worker, error) {
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = 100 * time.Millisecond
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 20 * time.Millisecond
	}

	desc, err := disp.Init(surf.Width(), surf.Height())
	if err != nil {
		return nil, err
	}
	bpp := desc.BytesPerPixel
	if bpp <= 0 {
		bpp = surf.BytesPerPixel()
	}
	if desc.Width != surf.Width() || desc.Height != surf.Height() || bpp != surf.BytesPerPixel() {
		surf.Resize(desc.Width, desc.Height, bpp)
	}

	w := &Worker{
		surf:      surf,
		heap:      heap,
		subs:      subs,
		disp:      disp,
		metrics:   metrics,
		log:       log,
		converter: DefaultConverter{},
		changes:   NewChangeBitmap(),
		fps:       &fpsRing{},
		cfg:       cfg,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.status.Store(int32(StatusCreate))
	return w, nil
}

// Status reports the worker's current thread-status (§6's CREATE/
// START/READY/END/OVER/ERROR/FATAL contract).
func (w *Worker) Status() Status { return Status(w.status.Load()) }

// RequestChange raises a reconfiguration bit for the loop to pick up on
// its next iteration.
func (w *Worker) RequestChange(bit ChangeBit) { w.changes.Request(bit) }

// FPS reports the current frames-per-second estimate over the last
// fpsRingSize presented dates.
func (w *Worker) FPS() float64 { return w.fps.fps() }

// Start launches the worker goroutine. Display geometry negotiation
// already happened in New; Start only brings the scheduling loop up.
func (w *Worker) Start(ctx context.Context) {
	w.status.Store(int32(StatusStart))
	go func() {
		defer close(w.done)
		w.status.Store(int32(StatusReady))
		for {
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			default:
			}
			if w.Status().Terminal() {
				return
			}
			w.loopOnce(nowMicros())
		}
		// status is finalized by whoever requested the exit: Stop()
		// sets END/OVER, applyPendingChanges sets FATAL on an
		// unauthorized bit.
	}()
}

// Stop requests the loop exit on its next iteration, waits for it,
// releases the sink, and marks the worker OVER (unless it already
// reached a FATAL/ERROR terminal state on its own).
func (w *Worker) Stop() {
	if s := w.Status(); !s.Terminal() {
		w.status.CompareAndSwap(int32(s), int32(StatusEnd))
	}
	w.stopInternal()
	<-w.done
	w.disp.Destroy()
	if !w.Status().Terminal() {
		w.status.Store(int32(StatusOver))
	}
}

func (w *Worker) stopInternal() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func nowMicros() int64 { return time.Now().UnixMicro() }

// loopOnce runs one iteration of §4.2's main loop:
//  1. sample now
//  2. select the next READY picture (lowest date, ties by slot)
//  3. late (date < now): mark displayed/destroyed, no sleep, re-loop
//  4. early (date > now+DisplayDelay): act as if nothing was selected
//  5. otherwise: fit, clear dirty, convert, render overlays
//  6. release change-lock, sleep until date, reacquire, present
//  7. hand the front buffer to the sink
func (w *Worker) loopOnce(now int64) {
	w.changeLock.Lock()

	ready := w.heap.SelectNextReady()
	if len(ready) == 0 {
		w.changeLock.Unlock()
		w.idle()
		return
	}

	sel := ready[0]
	pic := sel.Pic

	if sel.Date < now {
		w.heap.MarkDisplayed(pic)
		w.metrics.LostPictures.Inc()
		w.log.Warn().Int("slot", pic.Slot()).Int64("date", sel.Date).Int64("now", now).Msg("late picture dropped")
		w.changeLock.Unlock()
		return
	}

	if sel.Date > now+w.cfg.DisplayDelay.Microseconds() {
		w.changeLock.Unlock()
		w.idle()
		return
	}

	w.applyPendingChanges()
	if w.Status() == StatusFatal {
		w.changeLock.Unlock()
		return
	}

	rect := surface.Fit(pic.Width(), pic.Height(), int(pic.Aspect()), w.surf.Width(), w.surf.Height())
	w.surf.SetBackRect(rect)
	w.surf.ClearDirty()
	if top, bottom, ok := surface.LetterboxSpans(rect.Y, rect.H, w.surf.Height()); ok {
		w.surf.MarkDirty(top.Y0, top.Y1)
		w.surf.MarkDirty(bottom.Y0, bottom.Y1)
	}

	if !w.changes.Active(ChangeNoDisplay) {
		pix, _, bpl := w.surf.BackBuffer()
		bpp := w.surf.BytesPerPixel()
		if err := w.converter.Convert(pic, pix, bpl, bpp, rect); err != nil {
			w.log.Error().Err(err).Int("slot", pic.Slot()).Msg("colorspace conversion failed")
		}
		w.compositeSubpictures(pix, bpl, bpp, now)
		w.renderHUDOnBuffer(pix, bpl, bpp, rect)
	}

	w.changeLock.Unlock()

	if wait := sel.Date - now; wait > 0 {
		time.Sleep(time.Duration(wait) * time.Microsecond)
	}

	w.changeLock.Lock()
	w.heap.MarkDisplayed(pic)
	w.surf.Present()
	w.changeLock.Unlock()

	if err := w.disp.Display(w.surf.FrontBuffer()); err != nil {
		w.log.Error().Err(err).Msg("display sink rejected frame")
	}
	w.metrics.Displayed.Inc()
	w.metrics.PresentationSkew.Observe(float64(nowMicros()-sel.Date) / 1e6)
	w.fps.push(sel.Date)
}

// idle pumps the sink's event queue, acks any pending change bitmap
// request, and sleeps the idle interval, for iterations where nothing
// was ready to present. Without this, a change bit raised while the
// heap is empty (stream not yet started, paused, or audio/subtitle
// only) would never be observed, including an unauthorized bit that
// must be treated as fatal (§7).
func (w *Worker) idle() {
	if w.disp.Manage() {
		w.status.Store(int32(StatusFatal))
		w.stopInternal()
		return
	}
	w.changeLock.Lock()
	w.applyPendingChanges()
	w.changeLock.Unlock()
	if w.Status() == StatusFatal {
		return
	}
	time.Sleep(w.cfg.IdleSleep)
}

// applyPendingChanges acks every pending, recognised change bit. An
// unrecognised bit is a fatal UnauthorizedChange condition (§7): the
// loop stops rather than risk acting on a request it can't interpret.
func (w *Worker) applyPendingChanges() {
	for _, bit := range w.changes.Pending() {
		if !known(bit) {
			w.log.Error().Int("bit", int(bit)).Msg("unauthorized change bitmap bit")
			w.status.Store(int32(StatusFatal))
			w.stopInternal()
			return
		}
		w.changes.Ack(bit)
	}
}

// renderHUDOnBuffer wraps the back buffer's raw pixels as an
// *image.RGBA (only meaningful for 4-byte-per-pixel surfaces) and
// composites the info overlay / interface bar onto it.
func (w *Worker) renderHUDOnBuffer(pix []byte, bytesPerLine, bytesPerPixel int, pictureRect surface.Rect) {
	if bytesPerPixel != 4 || bytesPerLine == 0 {
		return
	}
	img := &image.RGBA{
		Pix:    pix,
		Stride: bytesPerLine,
		Rect:   image.Rect(0, 0, bytesPerLine/4, len(pix)/bytesPerLine),
	}
	pr := image.Rect(pictureRect.X, pictureRect.Y, pictureRect.X+pictureRect.W, pictureRect.Y+pictureRect.H)
	w.renderHUD(img, pr, w.surf.MarkDirty)
}

func (w *Worker) interfaceText() string { return w.Status().String() }
