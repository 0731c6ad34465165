// Package fontrender rasterizes HUD text (info overlay, interface bar)
// directly onto a surface buffer at runtime. Grounded on the teacher's
// tools/font2rgba.go build-time PNG-to-RGBA font converter, generalized
// from a one-shot asset-prep tool into a runtime glyph blitter built on
// golang.org/x/image/font + basicfont: the bitmap glyph mask itself
// carries per-pixel coverage, so (as in the teacher's alpha-keyed font
// atlas) glyph backgrounds never stomp the picture content underneath.
package fontrender

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// HAlign and VAlign are the HUD text printing alignment hints from §4.2.
type HAlign int
type VAlign int

const (
	Left HAlign = iota
	HCenter
	Right
)

const (
	Top VAlign = iota
	VCenter
	Bottom
)

// Face is the glyph face used for all HUD text; basicfont.Face7x13 is
// a fixed-width bitmap face bundled with x/image/font, needing no
// external font file.
var Face = basicfont.Face7x13

// MeasureString returns the pixel width a string would occupy when
// drawn with Face.
func MeasureString(s string) int {
	d := &font.Drawer{Face: Face}
	return d.MeasureString(s).Round()
}

// DrawText blits s onto dst (an RGBA image backed by a surface
// buffer's pixel slice) at a position derived from the alignment hints
// and clipped against bounds, per §4.2's "clips against surface
// bounds".
func DrawText(dst *image.RGBA, bounds image.Rectangle, s string, h HAlign, v VAlign, col color.Color) {
	w := MeasureString(s)
	ascent := Face.Metrics().Ascent.Round()
	height := Face.Metrics().Height.Round()

	var x int
	switch h {
	case HCenter:
		x = bounds.Min.X + (bounds.Dx()-w)/2
	case Right:
		x = bounds.Max.X - w
	default:
		x = bounds.Min.X
	}

	var y int
	switch v {
	case VCenter:
		y = bounds.Min.Y + (bounds.Dy()-height)/2 + ascent
	case Bottom:
		y = bounds.Max.Y - (height - ascent)
	default:
		y = bounds.Min.Y + ascent
	}

	clip := dst.Bounds().Intersect(bounds)
	if clip.Empty() {
		return
	}

	d := &font.Drawer{
		Dst:  &clippedRGBA{img: dst, clip: clip},
		Src:  image.NewUniform(col),
		Face: Face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// clippedRGBA wraps an *image.RGBA so draws outside clip are discarded,
// implementing the "clips against surface bounds" requirement without
// a separate sub-image allocation per call.
type clippedRGBA struct {
	img  *image.RGBA
	clip image.Rectangle
}

func (c *clippedRGBA) ColorModel() color.Model { return c.img.ColorModel() }
func (c *clippedRGBA) Bounds() image.Rectangle { return c.clip }
func (c *clippedRGBA) At(x, y int) color.Color { return c.img.At(x, y) }

func (c *clippedRGBA) Set(x, y int, col color.Color) {
	if (image.Point{x, y}).In(c.clip) {
		c.img.Set(x, y, col)
	}
}

var _ draw.Image = (*clippedRGBA)(nil)
