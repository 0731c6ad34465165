package fontrender

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrawTextClipsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	// Bounds much narrower than the surface: text drawn right-aligned
	// must not touch pixels outside [0,5).
	DrawText(img, image.Rect(0, 0, 5, 13), "HELLO WORLD", Right, Top, color.White)

	for y := 0; y < 20; y++ {
		for x := 5; x < 20; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			assert.Zero(t, r+g+b+a, "pixel (%d,%d) outside clip must be untouched", x, y)
		}
	}
}

func TestMeasureStringNonZeroForNonEmpty(t *testing.T) {
	assert.Greater(t, MeasureString("FPS"), 0)
	assert.Equal(t, 0, MeasureString(""))
}
