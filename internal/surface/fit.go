package surface

// roundDownTo16 rounds w down to the nearest multiple of 16. The
// constraint is preserved verbatim per §9's open-question decision
// even though nothing downstream of this Go port needs SIMD alignment.
func roundDownTo16(w int) int {
	return (w / 16) * 16
}

// aspectRatio returns width:height for a picture aspect tag.
func aspectRatio(aspect int) (num, den int) {
	switch aspect {
	case 1: // 4:3
		return 4, 3
	case 2: // 16:9
		return 16, 9
	case 3: // 2.21:1
		return 221, 100
	default: // square
		return 1, 1
	}
}

// Fit computes the on-surface sub-rectangle for a picture of size
// pw x ph with the given aspect tag (0=square,1=4:3,2=16:9,3=2.21:1)
// inside a surface sw x sh, per §4.2's "Surface layout" algorithm:
// try horizontal fit first, width rounded down to a multiple of 16;
// fall back to vertical fit if that overflows the surface height; then
// center the result.
func Fit(pw, ph, aspect, sw, sh int) Rect {
	num, den := aspectRatio(aspect)

	dw := sw
	if pw < dw {
		dw = pw
	}
	dw = roundDownTo16(dw)
	if dw <= 0 {
		dw = 16
	}
	dh := dw * den / num

	if dh > sh {
		dh = sh
		if ph < dh {
			dh = ph
		}
		dw = dh * num / den
		dw = roundDownTo16(dw)
		if dw <= 0 {
			dw = 16
		}
	}

	x := (sw - dw) / 2
	y := (sh - dh) / 2
	return Rect{X: x, Y: y, W: dw, H: dh}
}

// LetterboxSpans returns the top and bottom vertical spans that must be
// cleared as dirty areas around a centered sub-rectangle of height h at
// offset y within a surface of height sh. Returns ok=false if there is
// no letterboxing (the rectangle fills the surface height).
func LetterboxSpans(y, h, sh int) (top, bottom Span, ok bool) {
	if y <= 0 && y+h >= sh {
		return Span{}, Span{}, false
	}
	return Span{0, y}, Span{y + h, sh}, true
}
