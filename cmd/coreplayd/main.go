// Command coreplayd drives the core pipeline with synthetic audio,
// video and subtitle sources, for exercising and demonstrating the
// decoder owner / video output worker contract without a real media
// file or codec.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IntuitionAmiga/coreplay/internal/clock"
	"github.com/IntuitionAmiga/coreplay/internal/config"
	"github.com/IntuitionAmiga/coreplay/internal/decoder"
	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/picture"
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/sink/ebitensink"
	"github.com/IntuitionAmiga/coreplay/internal/sink/headless"
	"github.com/IntuitionAmiga/coreplay/internal/sink/termsink"
	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
	"github.com/IntuitionAmiga/coreplay/internal/surface"
	"github.com/IntuitionAmiga/coreplay/internal/telemetry"
	"github.com/IntuitionAmiga/coreplay/internal/vout"
)

type flags struct {
	configPath string
	logLevel   string
	display    string
	duration   time.Duration
	metricsAddr string
}

func main() {
	f := &flags{}
	root := &cobra.Command{
		Use:   "coreplayd",
		Short: "Synthetic demo harness for the decoder owner / video output worker pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	root.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file (optional)")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "override the configured log level")
	root.Flags().StringVar(&f.display, "display", "headless", "display sink: headless, ebiten, or term")
	root.Flags().DurationVar(&f.duration, "duration", 10*time.Second, "how long to run the synthetic stream")
	root.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables it)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	log := telemetry.New(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	if f.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: f.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	disp, err := newDisplaySink(f.display)
	if err != nil {
		return err
	}

	surf := surface.New(cfg.Surface.Width, cfg.Surface.Height, 4)
	videoHeap := picture.NewHeap(cfg.Heap.Pictures)
	subsHeap := subpicture.NewHeap(cfg.Heap.Subpictures)

	voutLog := streamLogger(ctx, log, "vout")
	voutWorker, err := vout.New(surf, videoHeap, subsHeap, disp, metrics, voutLog, vout.Config{
		DisplayDelay: cfg.Video.DisplayDelay,
		IdleSleep:    cfg.Video.IdleSleep,
	})
	if err != nil {
		return fmt.Errorf("video output worker: %w", err)
	}

	audioSink, err := newAudioSink(48000)
	if err != nil {
		log.Warn().Err(err).Msg("audio sink unavailable, continuing video-only")
		audioSink = headless.NewAudio()
	}

	videoClock := clock.NewLinear()
	videoClock.SetAnchor(0, nowMicros())
	audioClock := clock.NewLinear()
	audioClock.SetAnchor(0, nowMicros())
	subClock := clock.NewLinear()
	subClock.SetAnchor(0, nowMicros())

	ownerCfg := decoder.Config{
		MaxFIFOBytes:        cfg.FIFO.MaxBytes,
		PaceDepth:           cfg.FIFO.PaceDepth,
		AudioMaxPrepareTime: cfg.Audio.MaxPrepareTime,
		AudioMaxInputRate:   cfg.Audio.MaxInputRate,
		SubMaxPrepareTime:   cfg.Subtitle.MaxPrepareTime,
		CCEnabled:           cfg.CC.Enabled,
	}

	// Each owner gets its own correlation ID so its log lines can be
	// grepped out of an interleaved multi-stream run (§4.3 composition).
	videoLog := streamLogger(ctx, log, "video")
	audioLog := streamLogger(ctx, log, "audio")
	subLog := streamLogger(ctx, log, "subtitle")

	videoOwner := decoder.New(newSynthVideoDecoder(videoHeap, cfg.Surface.Width, cfg.Surface.Height),
		nil, videoClock, decoder.Sinks{Video: videoHeap}, nil, metrics, videoLog, ownerCfg)
	audioOwner := decoder.New(newSynthAudioDecoder(48000, 2),
		nil, audioClock, decoder.Sinks{Audio: audioSink}, nil, metrics, audioLog, ownerCfg)
	subOwner := decoder.New(&synthSubDecoder{},
		nil, subClock, decoder.Sinks{Subs: subsHeap}, nil, metrics, subLog, ownerCfg)

	runCtx, cancel := context.WithTimeout(ctx, f.duration)
	defer cancel()
	sigCtx, stopSig := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stopSig()

	videoOwner.Start()
	audioOwner.Start()
	subOwner.Start()
	voutWorker.Start(sigCtx)

	feedSynthetic(sigCtx, videoOwner, audioOwner, subOwner)

	voutWorker.Stop()
	if err := videoOwner.Delete(); err != nil {
		log.Warn().Err(err).Msg("video owner teardown error")
	}
	if err := audioOwner.Delete(); err != nil {
		log.Warn().Err(err).Msg("audio owner teardown error")
	}
	if err := subOwner.Delete(); err != nil {
		log.Warn().Err(err).Msg("subtitle owner teardown error")
	}
	if closer, ok := audioSink.(interface{ Close() }); ok {
		closer.Close()
	}
	disp.Destroy()

	log.Info().Float64("fps", voutWorker.FPS()).Msg("coreplayd demo run finished")
	return nil
}

func nowMicros() int64 { return time.Now().UnixMicro() }

// streamLogger tags logger with a fresh correlation ID via
// telemetry.WithStream/LoggerWithStream, plus a component name, so one
// component's log lines can be grepped out of an interleaved run.
func streamLogger(ctx context.Context, logger zerolog.Logger, component string) zerolog.Logger {
	streamCtx := telemetry.WithStream(ctx, uuid.New())
	return telemetry.LoggerWithStream(streamCtx, logger).With().Str("component", component).Logger()
}

func newDisplaySink(kind string) (sink.Display, error) {
	switch kind {
	case "", "headless":
		return headless.New(), nil
	case "ebiten":
		return ebitensink.New(), nil
	case "term":
		return termsink.New(int(os.Stdout.Fd())), nil
	default:
		return nil, fmt.Errorf("unknown display sink %q (want headless, ebiten, or term)", kind)
	}
}

// feedSynthetic runs three ticker-driven producer loops, paced close
// to real playback rates, pushing blocks into each owner's FIFO until
// ctx is cancelled.
func feedSynthetic(ctx context.Context, videoOwner, audioOwner, subOwner *decoder.Owner) {
	videoTicker := time.NewTicker(33 * time.Millisecond)
	audioTicker := time.NewTicker(20 * time.Millisecond)
	subTicker := time.NewTicker(33 * time.Millisecond)
	defer videoTicker.Stop()
	defer audioTicker.Stop()
	defer subTicker.Stop()

	var videoPTS, audioPTS, subPTS int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-videoTicker.C:
			videoOwner.InputDecode(&decplugin.Block{PTS: videoPTS}, true)
			videoPTS += 33_000
		case <-audioTicker.C:
			audioOwner.InputDecode(&decplugin.Block{PTS: audioPTS}, true)
			audioPTS += 20_000
		case <-subTicker.C:
			subOwner.InputDecode(&decplugin.Block{PTS: subPTS}, true)
			subPTS += 33_000
		}
	}
}
