package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters §7 names as the layer's user-visible
// surface ("decoded, lost_pictures, displayed, lost_abuffers,
// played_abuffers") plus a couple of gauges/histograms useful for
// verifying the scheduling properties of §8.
type Metrics struct {
	Decoded        prometheus.Counter
	LostPictures   prometheus.Counter
	Displayed      prometheus.Counter
	LostABuffers   prometheus.Counter
	PlayedABuffers prometheus.Counter

	FIFOBytes        prometheus.Gauge
	PresentationSkew prometheus.Histogram
}

// NewMetrics registers and returns a fresh counter/gauge set on reg; a
// nil reg returns the set unregistered, as the tests do. cmd/coreplayd
// registers one set on a single registry and shares it between every
// decoder owner and the video output worker.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Decoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreplay_decoded_total",
			Help: "Units successfully decoded.",
		}),
		LostPictures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreplay_lost_pictures_total",
			Help: "Pictures dropped late, non-dated, or during preroll.",
		}),
		Displayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreplay_displayed_total",
			Help: "Pictures presented to the display sink.",
		}),
		LostABuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreplay_lost_abuffers_total",
			Help: "Audio buffers dropped (rate-out-of-bounds, preroll).",
		}),
		PlayedABuffers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreplay_played_abuffers_total",
			Help: "Audio buffers submitted to the audio sink.",
		}),
		FIFOBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreplay_fifo_bytes",
			Help: "Current decoder-owner input FIFO occupancy in bytes.",
		}),
		PresentationSkew: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coreplay_presentation_skew_seconds",
			Help:    "now-date at the moment a picture is presented.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Decoded, m.LostPictures, m.Displayed,
			m.LostABuffers, m.PlayedABuffers, m.FIFOBytes, m.PresentationSkew)
	}
	return m
}
