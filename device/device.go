package device

import (
	"errors"
	"fmt"
	"io"
)

var errDataLenInvalid = errors.New("invalid data size on port")

// IODevice describes the interface a IO-Port device must implement regardless of the
// bus it is attached to. A device claims [IOPort(), IOPort()+Size()).
//
// Read is handed a buffer already filled with 0xFF; a device that leaves it
// alone reads as an unconnected port.
type IODevice interface {
	Read(uint64, []byte) error
	Write(uint64, []byte) error
	IOPort() uint64
	Size() uint64
}

type flusher interface {
	Flush() error
}

// WriteFlush writes p to w and flushes w if it buffers. An *os.File is
// unbuffered and needs nothing more.
func WriteFlush(w io.Writer, p []byte) error {
	if w == nil {
		return nil
	}

	if _, err := w.Write(p); err != nil {
		return fmt.Errorf("console write: %w", err)
	}

	if f, ok := w.(flusher); ok {
		return f.Flush()
	}

	return nil
}
