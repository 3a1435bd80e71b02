//go:build headless

package display

import "errors"

var errNoWindow = errors.New("built without window support (headless)")

// Window is unavailable in headless builds; Run always fails.
type Window struct{}

func NewWindow(int, func(sc byte)) *Window {
	return &Window{}
}

func (w *Window) Refresh(*Frame) error {
	return nil
}

func (w *Window) Close() {}

func (w *Window) Run() error {
	return errNoWindow
}
