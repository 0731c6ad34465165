package decoder

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
)

// ccChannelBase offsets CC sub-decoder channels away from the primary
// subtitle track's channel numbering, so both land in the same
// subpicture heap without colliding.
const ccChannelBase = 100

// ccWorker feeds one closed-caption sub-decoder and routes its
// subpicture output into the shared heap, per §4.3 "Closed captions".
type ccWorker struct {
	index int
	fifo  *Fifo
	dec   decplugin.Decoder
	subs  *subpicture.Heap
	log   zerolog.Logger
}

func (w *ccWorker) run(ctx context.Context) error {
	for {
		block, ok := w.fifo.Pop()
		if !ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		err := w.dec.DecodeSub(block, func(u decplugin.SubpictureOutputUnit) {
			submitSubpicture(w.subs, ccChannelBase+w.index, u, w.log)
		})
		if err != nil {
			w.log.Warn().Err(err).Int("cc_channel", w.index).Msg("cc sub-decoder error")
		}
	}
}

// ccFanout owns up to four CC sub-decoders and supervises their
// goroutines with an errgroup, so teardown joins deterministically.
// A sub-decoder's DecodeSub error is logged and its worker keeps
// running; no worker returns an error, so Close() reports none and the
// owner's error state is not touched.
type ccFanout struct {
	mu      sync.Mutex
	g       *errgroup.Group
	cancel  context.CancelFunc
	workers []*ccWorker
}

// newCCFanout spawns one sub-decoder per enabled channel in present,
// built via newDecoder(channel).
func newCCFanout(present [4]bool, newDecoder func(channel int) (decplugin.Decoder, error), subs *subpicture.Heap, log zerolog.Logger) (*ccFanout, error) {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	fo := &ccFanout{g: g, cancel: cancel}

	for i, enabled := range present {
		if !enabled {
			continue
		}
		dec, err := newDecoder(i)
		if err != nil {
			cancel()
			return nil, err
		}
		w := &ccWorker{index: i, fifo: NewFifo(), dec: dec, subs: subs, log: log}
		fo.workers = append(fo.workers, w)
		g.Go(func() error { return w.run(gctx) })
	}
	return fo, nil
}

// FeedPerChannel routes GetCC's per-channel blocks to the matching
// sub-decoder's fifo, duplicating nothing itself: a decoder that wants
// the same block consumed by two channels returns it twice in blocks.
func (fo *ccFanout) FeedPerChannel(blocks [4]*decplugin.Block) {
	if fo == nil {
		return
	}
	fo.mu.Lock()
	defer fo.mu.Unlock()
	for _, w := range fo.workers {
		if b := blocks[w.index]; b != nil {
			w.fifo.Push(b)
		}
	}
}

// Close tears every sub-decoder's fifo down and joins the fan-out.
func (fo *ccFanout) Close() error {
	if fo == nil {
		return nil
	}
	fo.mu.Lock()
	for _, w := range fo.workers {
		w.fifo.Close()
	}
	fo.mu.Unlock()
	fo.cancel()
	return fo.g.Wait()
}
