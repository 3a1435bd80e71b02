package display

import (
	"bytes"
	"fmt"
	"io"
)

// VGA colour order differs from the ANSI one.
var vgaToANSI = [8]int{0, 4, 2, 6, 1, 5, 3, 7}

// Terminal draws frames on an ANSI terminal, repainting only when the
// frame changed since the last refresh.
type Terminal struct {
	w     io.Writer
	last  Frame
	drawn bool
	buf   bytes.Buffer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func sgr(attr byte) string {
	fg := int(attr & 0x0F)
	bg := int(attr>>4) & 0x07

	fgCode := 30 + vgaToANSI[fg&7]
	if fg >= 8 {
		fgCode = 90 + vgaToANSI[fg&7]
	}

	return fmt.Sprintf("\x1b[%d;%dm", fgCode, 40+vgaToANSI[bg])
}

func (t *Terminal) Refresh(f *Frame) error {
	if t.drawn && t.last == *f {
		return nil
	}

	t.buf.Reset()
	t.buf.WriteString("\x1b[H")

	for r := 0; r < Rows; r++ {
		attr := -1

		for _, cell := range f.Row(r) {
			if int(cell.Attr()) != attr {
				attr = int(cell.Attr())
				t.buf.WriteString(sgr(cell.Attr()))
			}

			t.buf.WriteByte(printable(cell.Char()))
		}

		t.buf.WriteString("\x1b[0m\r\n")
	}

	if _, err := t.w.Write(t.buf.Bytes()); err != nil {
		return err
	}

	t.last = *f
	t.drawn = true

	return nil
}
