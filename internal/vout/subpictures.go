package vout

import (
	"sort"

	"github.com/IntuitionAmiga/coreplay/internal/subpicture"
)

// compositeSubpictures renders every READY subpicture whose window
// covers now as a flat-filled horizontal bar stacked above the bottom
// edge, ordered by (channel, order). Per the open-question decision
// recorded for idle/overlay content, this intentionally stays a flat
// fill rather than rasterizing real glyph/bitmap payloads: the unit
// lifecycle (reservation, timing, reuse) is the part under test here,
// not a rendering path.
func (w *Worker) compositeSubpictures(pix []byte, bytesPerLine, bytesPerPixel int, now int64) {
	w.subs.ReclaimExpired(now)
	units := w.subs.ReadyInWindow(now)
	if len(units) == 0 {
		return
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Channel() != units[j].Channel() {
			return units[i].Channel() < units[j].Channel()
		}
		return units[i].Order() < units[j].Order()
	})

	const barHeight = 14
	height := len(pix) / bytesPerLine
	for i, u := range units {
		y1 := height - barHeight*i
		y0 := y1 - barHeight
		if y0 < 0 {
			break
		}
		col := subpictureColor(u.Kind())
		for y := y0; y < y1; y++ {
			row := y * bytesPerLine
			if row+bytesPerLine > len(pix) {
				continue
			}
			fillFlat(pix[row:row+bytesPerLine], bytesPerPixel, col)
		}
		w.surf.MarkDirty(y0, y1)
	}
}

func fillFlat(row []byte, bpp int, rgba [4]byte) {
	for i := 0; i+bpp <= len(row); i += bpp {
		copy(row[i:i+bpp], rgba[:bpp])
	}
}

func subpictureColor(k subpicture.Kind) [4]byte {
	switch k {
	case subpicture.KindText:
		return [4]byte{0x00, 0x00, 0x00, 0xc0}
	case subpicture.KindMenu:
		return [4]byte{0x20, 0x20, 0x40, 0xff}
	default: // KindBitmap
		return [4]byte{0x40, 0x40, 0x40, 0xff}
	}
}
