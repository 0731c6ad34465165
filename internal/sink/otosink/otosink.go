//go:build !headless

// Package otosink implements a sink.Audio backed by
// github.com/ebitengine/oto/v3, adapted from the teacher's OtoPlayer in
// audio_backend_oto.go. Where the teacher swaps an atomic *SoundChip
// pointer for a lock-free Read() hot path, this sink's Read() drains a
// mutex-guarded PCM ring buffer fed by Play calls.
package otosink

import (
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

type ring struct {
	buf  []byte
	head int
	tail int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) push(data []byte) (lost int) {
	for _, b := range data {
		if r.size == len(r.buf) {
			// Drop the oldest byte to make room; GetResetLost tracks this.
			r.head = (r.head + 1) % len(r.buf)
			r.size--
			lost++
		}
		r.buf[r.tail] = b
		r.tail = (r.tail + 1) % len(r.buf)
		r.size++
	}
	return lost
}

func (r *ring) pop(n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if r.size == 0 {
			break
		}
		out[i] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.size--
	}
	return out
}

// Audio is an oto-backed sink.Audio.
type Audio struct {
	ctx    *oto.Context
	player *oto.Player

	mu         sync.Mutex
	ring       *ring
	paused     atomic.Bool
	resetLost  atomic.Int64
	started    bool
}

// New opens an oto playback context at the given sample rate
// (interleaved signed 16-bit little-endian PCM, two channels; this
// sink plays pre-decoded audio buffers rather than synthesizing them).
func New(sampleRate int) (*Audio, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	a := &Audio{ctx: ctx, ring: newRing(1 << 20)}
	a.player = ctx.NewPlayer(a)
	return a, nil
}

// Read implements io.Reader for the oto player's pull model: it drains
// the ring buffer, zero-filling any underrun so playback stays glitch-
// free rather than stalling.
func (a *Audio) Read(p []byte) (int, error) {
	a.mu.Lock()
	data := a.ring.pop(len(p))
	a.mu.Unlock()
	n := copy(p, data)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

func (a *Audio) Play(samples []byte, rate int) error {
	a.mu.Lock()
	lost := a.ring.push(samples)
	a.mu.Unlock()
	if lost > 0 {
		a.resetLost.Add(int64(lost))
	}
	a.mu.Lock()
	if !a.started {
		a.started = true
		a.mu.Unlock()
		a.player.Play()
		return nil
	}
	a.mu.Unlock()
	return nil
}

func (a *Audio) Flush(wait bool) error {
	a.mu.Lock()
	a.ring.head, a.ring.tail, a.ring.size = 0, 0, 0
	a.mu.Unlock()
	return nil
}

func (a *Audio) ChangePause(paused bool, date int64) error {
	a.paused.Store(paused)
	return nil
}

func (a *Audio) GetResetLost() int {
	return int(a.resetLost.Swap(0))
}

func (a *Audio) Close() {
	if a.player != nil {
		a.player.Close()
	}
}
