package iodev

// ScancodePoller is a host keyboard consulted when the machine's own
// scancode queue is empty.
type ScancodePoller interface {
	PollScancode() (byte, bool)
}

// InterruptController acknowledges an end of interrupt on the host side.
type InterruptController interface {
	EOI(irq int)
}

// TickSource supplies the counter the PIT reports.
type TickSource interface {
	TickCount() uint64
}
