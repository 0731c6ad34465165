// Package termsink implements a text-mode sink.Display over a real
// terminal, grounded on the teacher's video_terminal.go and using
// golang.org/x/term to query actual terminal geometry. That geometry
// only sizes the character grid a frame is downsampled into; Init
// reports the requested pixel width/height unchanged, so this sink does
// not override the display geometry.
package termsink

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/IntuitionAmiga/coreplay/internal/sink"
)

// rampChars is an ASCII luminance ramp used to approximate grayscale
// pixel intensity as a printable character, dark to light.
const rampChars = " .:-=+*#%@"

// Display renders frames as ASCII-art luminance to a terminal.
type Display struct {
	mu            sync.Mutex
	cols, rows    int
	bytesPerLine  int
	bytesPerPixel int
	fd            int
}

// New creates a termsink.Display reading terminal geometry from fd
// (os.Stdout.Fd() in the common case).
func New(fd int) *Display {
	return &Display{fd: fd}
}

func (d *Display) Init(width, height int) (sink.BufferDescriptor, error) {
	cols, rows, err := term.GetSize(d.fd)
	if err != nil || cols <= 0 || rows <= 0 {
		// Not a real terminal (piped output, CI): fall back to the
		// requested geometry scaled down to a sane character grid.
		cols, rows = width/8, height/16
		if cols <= 0 {
			cols = 80
		}
		if rows <= 0 {
			rows = 24
		}
	}

	d.mu.Lock()
	d.cols, d.rows = cols, rows
	d.bytesPerPixel = 4
	d.bytesPerLine = width * d.bytesPerPixel
	d.mu.Unlock()

	return sink.BufferDescriptor{
		Width:         width,
		Height:        height,
		BytesPerLine:  d.bytesPerLine,
		BytesPerPixel: d.bytesPerPixel,
	}, nil
}

func (d *Display) Manage() bool { return false }

// Display renders frame (RGBA, geometry from the last Init call) by
// downsampling into a cols x rows character grid written to stdout.
func (d *Display) Display(frame []byte) error {
	d.mu.Lock()
	cols, rows, bpl, bpp := d.cols, d.rows, d.bytesPerLine, d.bytesPerPixel
	d.mu.Unlock()
	if bpl == 0 || bpp == 0 || cols == 0 || rows == 0 {
		return fmt.Errorf("termsink: Display called before Init")
	}

	width := bpl / bpp
	height := len(frame) / bpl
	var b strings.Builder
	for row := 0; row < rows; row++ {
		srcY := row * height / rows
		for col := 0; col < cols; col++ {
			srcX := col * width / cols
			off := srcY*bpl + srcX*bpp
			if off+3 >= len(frame) {
				b.WriteByte(' ')
				continue
			}
			lum := (int(frame[off]) + int(frame[off+1]) + int(frame[off+2])) / 3
			idx := lum * (len(rampChars) - 1) / 255
			b.WriteByte(rampChars[idx])
		}
		b.WriteByte('\n')
	}
	_, err := os.Stdout.WriteString(b.String())
	return err
}

func (d *Display) Destroy() {}
