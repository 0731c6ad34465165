package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/picture"
)

func TestPaintBarsFillsOpaquePixels(t *testing.T) {
	pix := make([]byte, 16*8*4)
	paintBars(pix, 16, 8, 0)
	for i := 0; i < 16*8; i++ {
		assert.Equal(t, byte(255), pix[i*4+3], "every pixel should be fully opaque")
	}
}

func TestPaintBarsShiftsWithFrame(t *testing.T) {
	a := make([]byte, 16*8*4)
	b := make([]byte, 16*8*4)
	paintBars(a, 16, 8, 0)
	paintBars(b, 16, 8, 8)
	assert.NotEqual(t, a, b, "advancing the frame counter should shift the bar pattern")
}

func TestSynthVideoDecoderEmitsPictures(t *testing.T) {
	heap := picture.NewHeap(2)
	dec := newSynthVideoDecoder(heap, 16, 8)

	var got []*picture.Picture
	err := dec.DecodeVideo(&decplugin.Block{PTS: 1000}, func(pts int64, alloc func() (any, error)) {
		assert.EqualValues(t, 1000, pts)
		slot, aerr := alloc()
		require.NoError(t, aerr)
		got = append(got, slot.(*picture.Picture))
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, picture.Reserved, got[0].Status())
}

func TestSynthVideoDecoderSkipsFlushSentinel(t *testing.T) {
	heap := picture.NewHeap(2)
	dec := newSynthVideoDecoder(heap, 16, 8)

	called := false
	sentinel := &decplugin.Block{Flags: decplugin.FlagCoreFlush | decplugin.FlagDiscontinuity | decplugin.FlagCorrupted}
	err := dec.DecodeVideo(sentinel, func(int64, func() (any, error)) { called = true })
	require.NoError(t, err)
	assert.False(t, called, "a flush sentinel should never be treated as decodable content")
}

func TestSynthAudioDecoderEmitsPCM(t *testing.T) {
	dec := newSynthAudioDecoder(48000, 2)

	var got decplugin.AudioOutputUnit
	err := dec.DecodeAudio(&decplugin.Block{PTS: 2000}, func(u decplugin.AudioOutputUnit) { got = u })
	require.NoError(t, err)
	assert.EqualValues(t, 2000, got.PTS)
	assert.Equal(t, 48000, got.Rate)
	assert.NotEmpty(t, got.Samples)
}

func TestSynthSubDecoderEmitsPeriodically(t *testing.T) {
	dec := &synthSubDecoder{}

	var emitted int
	for i := 0; i < 30; i++ {
		err := dec.DecodeSub(&decplugin.Block{PTS: int64(i * 1000)}, func(decplugin.SubpictureOutputUnit) { emitted++ })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, emitted, "captions should only be emitted every 25th block")
}

func TestNewDisplaySinkRejectsUnknownKind(t *testing.T) {
	_, err := newDisplaySink("nonsense")
	assert.Error(t, err)
}

func TestNewDisplaySinkDefaultsToHeadless(t *testing.T) {
	d, err := newDisplaySink("")
	require.NoError(t, err)
	require.NotNil(t, d)
}
