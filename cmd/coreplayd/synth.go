package main

import (
	"math"
	"sync"

	"github.com/IntuitionAmiga/coreplay/internal/decplugin"
	"github.com/IntuitionAmiga/coreplay/internal/picture"
)

// synthVideoDecoder is a decplugin.Decoder that ignores its input
// blocks' payload entirely and instead paints a moving colour-bar test
// pattern on each call, standing in for a real codec so the pipeline
// can be exercised end-to-end without a media file.
type synthVideoDecoder struct {
	heap          *picture.Heap
	width, height int

	mu     sync.Mutex
	frame  int
	closed bool
}

func newSynthVideoDecoder(heap *picture.Heap, width, height int) *synthVideoDecoder {
	return &synthVideoDecoder{heap: heap, width: width, height: height}
}

func (d *synthVideoDecoder) Category() decplugin.Category { return decplugin.CategoryVideo }
func (d *synthVideoDecoder) FormatIn() decplugin.FormatDescriptor {
	return decplugin.FormatDescriptor{Category: decplugin.CategoryVideo, Fourcc: "SYNV", Width: d.width, Height: d.height}
}
func (d *synthVideoDecoder) FormatOut() decplugin.FormatDescriptor { return d.FormatIn() }

func (d *synthVideoDecoder) DecodeVideo(block *decplugin.Block, emit func(pts int64, alloc func() (any, error))) error {
	if block == nil || block.IsFlushSentinel() {
		return nil
	}
	d.mu.Lock()
	n := d.frame
	d.frame++
	d.mu.Unlock()

	emit(block.PTS, func() (any, error) {
		p, err := d.heap.Create(picture.FormatNative, d.width, d.height)
		if err != nil {
			return nil, err
		}
		paintBars(p.Pix, d.width, d.height, n)
		return p, nil
	})
	return nil
}

func (d *synthVideoDecoder) DecodeAudio(*decplugin.Block, func(decplugin.AudioOutputUnit)) error {
	return nil
}
func (d *synthVideoDecoder) DecodeSub(*decplugin.Block, func(decplugin.SubpictureOutputUnit)) error {
	return nil
}
func (d *synthVideoDecoder) GetCC(present [4]bool) [4]*decplugin.Block {
	return [4]*decplugin.Block{}
}
func (d *synthVideoDecoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// paintBars fills an RGBA buffer with eight vertical colour bars that
// scroll sideways one pixel per frame.
func paintBars(pix []byte, w, h, frame int) {
	colours := [8][3]byte{
		{255, 255, 255}, {255, 255, 0}, {0, 255, 255}, {0, 255, 0},
		{255, 0, 255}, {255, 0, 0}, {0, 0, 255}, {0, 0, 0},
	}
	barWidth := w / len(colours)
	if barWidth <= 0 {
		barWidth = 1
	}
	shift := frame % w
	for y := 0; y < h; y++ {
		row := pix[y*w*4 : (y+1)*w*4]
		for x := 0; x < w; x++ {
			bar := ((x + shift) / barWidth) % len(colours)
			c := colours[bar]
			off := x * 4
			row[off], row[off+1], row[off+2], row[off+3] = c[0], c[1], c[2], 255
		}
	}
}

// synthAudioDecoder generates a continuous sine tone as 16-bit PCM,
// standing in for a real audio codec.
type synthAudioDecoder struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	phase  float64
	closed bool
}

func newSynthAudioDecoder(sampleRate, channels int) *synthAudioDecoder {
	return &synthAudioDecoder{sampleRate: sampleRate, channels: channels}
}

func (d *synthAudioDecoder) Category() decplugin.Category { return decplugin.CategoryAudio }
func (d *synthAudioDecoder) FormatIn() decplugin.FormatDescriptor {
	return decplugin.FormatDescriptor{Category: decplugin.CategoryAudio, Fourcc: "SYNA", SampleRate: d.sampleRate, Channels: d.channels}
}
func (d *synthAudioDecoder) FormatOut() decplugin.FormatDescriptor { return d.FormatIn() }

const toneHz = 440.0

func (d *synthAudioDecoder) DecodeAudio(block *decplugin.Block, emit func(decplugin.AudioOutputUnit)) error {
	if block == nil || block.IsFlushSentinel() {
		return nil
	}
	const samples = 960 // 20ms at 48kHz
	buf := make([]byte, samples*2*d.channels)

	d.mu.Lock()
	phase := d.phase
	step := 2 * math.Pi * toneHz / float64(d.sampleRate)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(phase) * 8000)
		phase += step
		for c := 0; c < d.channels; c++ {
			off := (i*d.channels + c) * 2
			buf[off] = byte(v)
			buf[off+1] = byte(v >> 8)
		}
	}
	d.phase = math.Mod(phase, 2*math.Pi)
	d.mu.Unlock()

	emit(decplugin.AudioOutputUnit{PTS: block.PTS, Samples: buf, Rate: d.sampleRate})
	return nil
}

func (d *synthAudioDecoder) DecodeVideo(*decplugin.Block, func(int64, func() (any, error))) error {
	return nil
}
func (d *synthAudioDecoder) DecodeSub(*decplugin.Block, func(decplugin.SubpictureOutputUnit)) error {
	return nil
}
func (d *synthAudioDecoder) GetCC(present [4]bool) [4]*decplugin.Block {
	return [4]*decplugin.Block{}
}
func (d *synthAudioDecoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// synthSubDecoder emits a short caption every few blocks, standing in
// for a real subtitle/CC decoder.
type synthSubDecoder struct {
	mu    sync.Mutex
	count int
}

func (d *synthSubDecoder) Category() decplugin.Category { return decplugin.CategorySubpicture }
func (d *synthSubDecoder) FormatIn() decplugin.FormatDescriptor {
	return decplugin.FormatDescriptor{Category: decplugin.CategorySubpicture, Fourcc: "SYNS"}
}
func (d *synthSubDecoder) FormatOut() decplugin.FormatDescriptor { return d.FormatIn() }

func (d *synthSubDecoder) DecodeSub(block *decplugin.Block, emit func(decplugin.SubpictureOutputUnit)) error {
	if block == nil || block.IsFlushSentinel() {
		return nil
	}
	d.mu.Lock()
	n := d.count
	d.count++
	d.mu.Unlock()

	if n%25 != 0 {
		return nil
	}
	emit(decplugin.SubpictureOutputUnit{
		Start:   block.PTS,
		Stop:    block.PTS + 2_000_000,
		Payload: []byte("coreplayd demo stream"),
		Channel: 0,
	})
	return nil
}

func (d *synthSubDecoder) DecodeVideo(*decplugin.Block, func(int64, func() (any, error))) error {
	return nil
}
func (d *synthSubDecoder) DecodeAudio(*decplugin.Block, func(decplugin.AudioOutputUnit)) error {
	return nil
}
func (d *synthSubDecoder) GetCC(present [4]bool) [4]*decplugin.Block {
	return [4]*decplugin.Block{}
}
func (d *synthSubDecoder) Close() error { return nil }
