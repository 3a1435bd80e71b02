package term

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdin is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// SetRawMode puts stdin into raw mode. The returned function restores the
// previous mode and is safe to call more than once.
func SetRawMode() (func(), error) {
	fd := int(os.Stdin.Fd())

	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}

	restored := false

	return func() {
		if restored {
			return
		}

		restored = true
		_ = term.Restore(fd, old)
	}, nil
}
