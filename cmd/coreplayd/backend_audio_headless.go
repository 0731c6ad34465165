//go:build headless

package main

import (
	"github.com/IntuitionAmiga/coreplay/internal/sink"
	"github.com/IntuitionAmiga/coreplay/internal/sink/headless"
)

// newAudioSink returns the headless audio stand-in, used for headless
// (CI/test) builds where no real output device is available.
func newAudioSink(sampleRate int) (sink.Audio, error) {
	return headless.NewAudio(), nil
}
