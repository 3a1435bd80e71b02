//go:build !headless

package display

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"
)

const (
	cellW = 7
	cellH = 13
	// basicfont.Face7x13 ascent; text.Draw takes the baseline.
	cellAscent = 11
)

// Window shows frames in a desktop window and turns key presses into
// set 1 scancodes. Run must be called from the main goroutine.
type Window struct {
	mu     sync.Mutex
	frame  Frame
	scale  int
	onKey  func(sc byte)
	closed bool

	keys []ebiten.Key
}

// NewWindow returns a window scaled by scale. onKey receives make codes on
// press and break codes (make|0x80) on release; it may be nil.
func NewWindow(scale int, onKey func(sc byte)) *Window {
	if scale <= 0 {
		scale = 2
	}

	return &Window{scale: scale, onKey: onKey}
}

func (w *Window) Refresh(f *Frame) error {
	w.mu.Lock()
	w.frame = *f
	w.mu.Unlock()

	return nil
}

// Close makes Run return at the next update.
func (w *Window) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Run opens the window and blocks until it is closed.
func (w *Window) Run() error {
	ebiten.SetWindowTitle("Flinstone VM")
	ebiten.SetWindowSize(Cols*cellW*w.scale, Rows*cellH*w.scale)
	ebiten.SetWindowClosingHandled(true)

	return ebiten.RunGame(w)
}

func (w *Window) Update() error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()

	if closed || ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}

	if w.onKey == nil {
		return nil
	}

	w.keys = inpututil.AppendJustPressedKeys(w.keys[:0])
	for _, k := range w.keys {
		if sc, ok := scancodes[k]; ok {
			w.onKey(sc)
		}
	}

	w.keys = inpututil.AppendJustReleasedKeys(w.keys[:0])
	for _, k := range w.keys {
		if sc, ok := scancodes[k]; ok {
			w.onKey(sc | 0x80)
		}
	}

	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	w.mu.Lock()
	f := w.frame
	w.mu.Unlock()

	screen.Fill(Palette[0])

	for r := 0; r < Rows; r++ {
		for c, cell := range f.Row(r) {
			x, y := c*cellW, r*cellH

			if bg := cell.Bg(); bg != 0 {
				rect := image.Rect(x, y, x+cellW, y+cellH)
				screen.SubImage(rect).(*ebiten.Image).Fill(Palette[bg])
			}

			if ch := printable(cell.Char()); ch != ' ' {
				text.Draw(screen, string(rune(ch)), basicfont.Face7x13, x, y+cellAscent, Palette[cell.Fg()])
			}
		}
	}
}

func (w *Window) Layout(_, _ int) (int, int) {
	return Cols * cellW, Rows * cellH
}

var scancodes = map[ebiten.Key]byte{
	ebiten.KeyEscape:       0x01,
	ebiten.KeyDigit1:       0x02,
	ebiten.KeyDigit2:       0x03,
	ebiten.KeyDigit3:       0x04,
	ebiten.KeyDigit4:       0x05,
	ebiten.KeyDigit5:       0x06,
	ebiten.KeyDigit6:       0x07,
	ebiten.KeyDigit7:       0x08,
	ebiten.KeyDigit8:       0x09,
	ebiten.KeyDigit9:       0x0A,
	ebiten.KeyDigit0:       0x0B,
	ebiten.KeyMinus:        0x0C,
	ebiten.KeyEqual:        0x0D,
	ebiten.KeyBackspace:    0x0E,
	ebiten.KeyTab:          0x0F,
	ebiten.KeyQ:            0x10,
	ebiten.KeyW:            0x11,
	ebiten.KeyE:            0x12,
	ebiten.KeyR:            0x13,
	ebiten.KeyT:            0x14,
	ebiten.KeyY:            0x15,
	ebiten.KeyU:            0x16,
	ebiten.KeyI:            0x17,
	ebiten.KeyO:            0x18,
	ebiten.KeyP:            0x19,
	ebiten.KeyBracketLeft:  0x1A,
	ebiten.KeyBracketRight: 0x1B,
	ebiten.KeyEnter:        0x1C,
	ebiten.KeyControlLeft:  0x1D,
	ebiten.KeyA:            0x1E,
	ebiten.KeyS:            0x1F,
	ebiten.KeyD:            0x20,
	ebiten.KeyF:            0x21,
	ebiten.KeyG:            0x22,
	ebiten.KeyH:            0x23,
	ebiten.KeyJ:            0x24,
	ebiten.KeyK:            0x25,
	ebiten.KeyL:            0x26,
	ebiten.KeySemicolon:    0x27,
	ebiten.KeyQuote:        0x28,
	ebiten.KeyBackquote:    0x29,
	ebiten.KeyShiftLeft:    0x2A,
	ebiten.KeyBackslash:    0x2B,
	ebiten.KeyZ:            0x2C,
	ebiten.KeyX:            0x2D,
	ebiten.KeyC:            0x2E,
	ebiten.KeyV:            0x2F,
	ebiten.KeyB:            0x30,
	ebiten.KeyN:            0x31,
	ebiten.KeyM:            0x32,
	ebiten.KeyComma:        0x33,
	ebiten.KeyPeriod:       0x34,
	ebiten.KeySlash:        0x35,
	ebiten.KeyShiftRight:   0x36,
	ebiten.KeyAltLeft:      0x38,
	ebiten.KeySpace:        0x39,
	ebiten.KeyCapsLock:     0x3A,
	ebiten.KeyF1:           0x3B,
	ebiten.KeyF2:           0x3C,
	ebiten.KeyF3:           0x3D,
	ebiten.KeyF4:           0x3E,
	ebiten.KeyF5:           0x3F,
	ebiten.KeyF6:           0x40,
	ebiten.KeyF7:           0x41,
	ebiten.KeyF8:           0x42,
	ebiten.KeyF9:           0x43,
	ebiten.KeyF10:          0x44,
}
