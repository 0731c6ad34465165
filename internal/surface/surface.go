// Package surface implements the double-buffered render target the
// video output worker presents to: two pixel buffers with a picture
// sub-rectangle and a dirty-area list each, grounded on the teacher's
// video_chip.go double-buffer/dirty-region tracking but reimplemented
// to the spec's vertical-span discipline (sorted, merged, capped).
package surface

import "sync"

// MaxDirtySpans bounds the dirty-area list; overflow merges into the
// last span rather than growing unbounded.
const MaxDirtySpans = 64

// Span is a vertical dirty region [Y0,Y1) spanning the full buffer
// width (horizontal clears are cheap and not tracked separately).
type Span struct {
	Y0, Y1 int
}

// Rect is a picture sub-rectangle placed on the surface.
type Rect struct {
	X, Y, W, H int
}

// buffer is one half of the double buffer.
type buffer struct {
	pix   []byte // BGRA/RGBA, BytesPerPixel bytes per pixel
	rect  Rect   // current picture sub-rectangle
	dirty []Span // sorted, non-overlapping (except merged), capped
}

// Surface is the double-buffered pixel target.
type Surface struct {
	mu             sync.Mutex
	width, height  int
	bytesPerLine   int
	bytesPerPixel  int
	bufs           [2]*buffer
	active         int // index of the buffer currently being rendered into
}

// New creates a surface of the given geometry. bytesPerPixel defaults
// to 4 (RGBA) when 0 is passed.
func New(width, height, bytesPerPixel int) *Surface {
	if bytesPerPixel <= 0 {
		bytesPerPixel = 4
	}
	s := &Surface{
		width:         width,
		height:        height,
		bytesPerPixel: bytesPerPixel,
		bytesPerLine:  width * bytesPerPixel,
	}
	for i := range s.bufs {
		s.bufs[i] = &buffer{pix: make([]byte, width*height*bytesPerPixel)}
	}
	return s
}

func (s *Surface) Width() int         { return s.width }
func (s *Surface) Height() int        { return s.height }
func (s *Surface) BytesPerLine() int  { return s.bytesPerLine }
func (s *Surface) BytesPerPixel() int { return s.bytesPerPixel }

// Resize reallocates both buffers to a new geometry, as requested by a
// display sink's geometry-override response (§4.2 "the sink may
// override width/height/pixel-format/pitch").
func (s *Surface) Resize(width, height, bytesPerPixel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytesPerPixel <= 0 {
		bytesPerPixel = s.bytesPerPixel
	}
	s.width, s.height, s.bytesPerPixel = width, height, bytesPerPixel
	s.bytesPerLine = width * bytesPerPixel
	for i := range s.bufs {
		s.bufs[i] = &buffer{pix: make([]byte, width*height*bytesPerPixel)}
	}
}

// BackBuffer returns the pixel slice, current picture rectangle, and
// bytes-per-line of the buffer not currently presented, for the video
// output worker to render into.
func (s *Surface) BackBuffer() (pix []byte, rect Rect, bytesPerLine int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.bufs[1-s.active]
	return back.pix, back.rect, s.bytesPerLine
}

// SetBackRect records the back buffer's current picture sub-rectangle,
// set by the worker after computing the letterbox fit.
func (s *Surface) SetBackRect(r Rect) {
	s.mu.Lock()
	s.bufs[1-s.active].rect = r
	s.mu.Unlock()
}

// Present swaps the active buffer index, making the previously-back
// buffer the one a display sink should read via FrontBuffer.
func (s *Surface) Present() {
	s.mu.Lock()
	s.active = 1 - s.active
	s.mu.Unlock()
}

// FrontBuffer returns the pixel slice of the currently-presented buffer.
func (s *Surface) FrontBuffer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufs[s.active].pix
}

// MarkDirty inserts a vertical span into the back buffer's dirty list,
// keeping it sorted by Y0 and merging overlapping/adjacent spans. Past
// MaxDirtySpans, the new span is merged into the last one instead of
// growing the list (the overflow policy from §4.2).
func (s *Surface) MarkDirty(y0, y1 int) {
	if y1 <= y0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.bufs[1-s.active]
	back.dirty = insertMerge(back.dirty, Span{y0, y1})
}

func insertMerge(spans []Span, add Span) []Span {
	if len(spans) >= MaxDirtySpans {
		last := &spans[len(spans)-1]
		if add.Y0 < last.Y0 {
			last.Y0 = add.Y0
		}
		if add.Y1 > last.Y1 {
			last.Y1 = add.Y1
		}
		return spans
	}

	// Insertion-sort by Y0, then merge any now-overlapping neighbours.
	i := 0
	for i < len(spans) && spans[i].Y0 < add.Y0 {
		i++
	}
	spans = append(spans, Span{})
	copy(spans[i+1:], spans[i:])
	spans[i] = add

	merged := spans[:0]
	for _, sp := range spans {
		if len(merged) > 0 && sp.Y0 <= merged[len(merged)-1].Y1 {
			if sp.Y1 > merged[len(merged)-1].Y1 {
				merged[len(merged)-1].Y1 = sp.Y1
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// DirtySpans returns the back buffer's current dirty list (a copy).
func (s *Surface) DirtySpans() []Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.bufs[1-s.active]
	out := make([]Span, len(back.dirty))
	copy(out, back.dirty)
	return out
}

// ClearDirty zeroes every pixel row covered by the back buffer's dirty
// spans (256-byte chunks, 4-byte tail, per §4.2's clear discipline) and
// resets the dirty list.
func (s *Surface) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.bufs[1-s.active]
	for _, sp := range back.dirty {
		y0, y1 := sp.Y0, sp.Y1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > s.height {
			y1 = s.height
		}
		if y0 >= y1 {
			continue
		}
		start := y0 * s.bytesPerLine
		end := y1 * s.bytesPerLine
		zeroChunked(back.pix[start:end])
	}
	back.dirty = back.dirty[:0]
}

// zeroChunked clears buf in 256-byte chunks with a 4-byte tail, as the
// spec's dirty-area discipline specifies.
func zeroChunked(buf []byte) {
	const chunk = 256
	i := 0
	for ; i+chunk <= len(buf); i += chunk {
		b := buf[i : i+chunk]
		for j := range b {
			b[j] = 0
		}
	}
	for ; i+4 <= len(buf); i += 4 {
		b := buf[i : i+4]
		b[0], b[1], b[2], b[3] = 0, 0, 0, 0
	}
	for ; i < len(buf); i++ {
		buf[i] = 0
	}
}
