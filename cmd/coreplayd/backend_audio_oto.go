//go:build !headless

package main

import (
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/sink/otosink"
)

// newAudioSink opens the oto-backed audio sink, mirroring the
// teacher's audio_backend_oto.go/audio_backend_headless.go split: the
// build tag picks the real backend outside headless (CI/test) builds.
func newAudioSink(sampleRate int) (sink.Audio, error) {
	return otosink.New(sampleRate)
}
