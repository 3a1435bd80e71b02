package display

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"strings"
)

const (
	Cols = 80
	Rows = 25

	// TextBase is the guest-physical address of the colour text buffer.
	TextBase = 0xB8000

	// TextSize is the size of one page of 80x25 character+attribute cells.
	TextSize = Cols * Rows * 2
)

var errFrameSize = errors.New("text buffer size mismatch")

// Cell is one character cell: the code point in the low byte and the
// attribute (background<<4 | foreground) in the high byte.
type Cell uint16

func (c Cell) Char() byte {
	return byte(c)
}

func (c Cell) Attr() byte {
	return byte(c >> 8)
}

func (c Cell) Fg() int {
	return int(c.Attr() & 0x0F)
}

// Bg ignores the blink bit.
func (c Cell) Bg() int {
	return int(c.Attr()>>4) & 0x07
}

// Frame is a snapshot of the text buffer.
type Frame struct {
	Cells [Rows * Cols]Cell
}

// FrameFromBytes decodes a TextSize-byte little-endian cell buffer.
func FrameFromBytes(b []byte) (*Frame, error) {
	if len(b) != TextSize {
		return nil, fmt.Errorf("%w: %d bytes", errFrameSize, len(b))
	}

	f := &Frame{}
	for i := range f.Cells {
		f.Cells[i] = Cell(binary.LittleEndian.Uint16(b[2*i:]))
	}

	return f, nil
}

func (f *Frame) At(row, col int) Cell {
	return f.Cells[row*Cols+col]
}

func (f *Frame) Row(row int) []Cell {
	return f.Cells[row*Cols : (row+1)*Cols]
}

// Text renders the frame as plain text, one line per row with trailing
// blanks removed. Non-printable characters become spaces.
func (f *Frame) Text() string {
	var sb strings.Builder

	line := make([]byte, Cols)

	for r := 0; r < Rows; r++ {
		for c, cell := range f.Row(r) {
			line[c] = printable(cell.Char())
		}

		sb.WriteString(strings.TrimRight(string(line), " "))

		if r < Rows-1 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func printable(ch byte) byte {
	if ch < 0x20 || ch >= 0x7F {
		return ' '
	}

	return ch
}

// Sink receives refreshed frames. Refresh errors are reported but a
// refresh that fails is simply skipped by the machine.
type Sink interface {
	Refresh(f *Frame) error
}

// Palette is the 16-colour text mode palette.
var Palette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xFF},
	{0x00, 0x00, 0xAA, 0xFF},
	{0x00, 0xAA, 0x00, 0xFF},
	{0x00, 0xAA, 0xAA, 0xFF},
	{0xAA, 0x00, 0x00, 0xFF},
	{0xAA, 0x00, 0xAA, 0xFF},
	{0xAA, 0x55, 0x00, 0xFF},
	{0xAA, 0xAA, 0xAA, 0xFF},
	{0x55, 0x55, 0x55, 0xFF},
	{0x55, 0x55, 0xFF, 0xFF},
	{0x55, 0xFF, 0x55, 0xFF},
	{0x55, 0xFF, 0xFF, 0xFF},
	{0xFF, 0x55, 0x55, 0xFF},
	{0xFF, 0x55, 0xFF, 0xFF},
	{0xFF, 0xFF, 0x55, 0xFF},
	{0xFF, 0xFF, 0xFF, 0xFF},
}
