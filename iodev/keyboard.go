package iodev

import (
	"errors"
)

const (
	KbdDataPort   = 0x60
	KbdStatusPort = 0x64

	// KbdQueueSize is the capacity of the scancode queue.
	KbdQueueSize = 32

	kbdStatusOutputFull = 0x01
)

var (
	ErrQueueFull  = errors.New("scancode queue full")
	ErrQueueEmpty = errors.New("scancode queue empty")
)

// ScancodeRing is a bounded FIFO of scancodes. Head and Tail run freely and
// are reduced modulo the buffer size on access. The zero value is empty.
type ScancodeRing struct {
	Buf  [KbdQueueSize]byte
	Head uint32
	Tail uint32
}

func (r *ScancodeRing) Len() int {
	return int(r.Tail - r.Head)
}

// Push appends sc, or drops it and returns ErrQueueFull.
func (r *ScancodeRing) Push(sc byte) error {
	if r.Len() >= KbdQueueSize {
		return ErrQueueFull
	}

	r.Buf[r.Tail%KbdQueueSize] = sc
	r.Tail++

	return nil
}

func (r *ScancodeRing) Pop() (byte, error) {
	if r.Len() == 0 {
		return 0, ErrQueueEmpty
	}

	sc := r.Buf[r.Head%KbdQueueSize]
	r.Head++

	return sc, nil
}

// Keyboard is the data and status port pair of an i8042 controller.
type Keyboard struct {
	ring   *ScancodeRing
	poller ScancodePoller
}

// NewKeyboard serves scancodes from ring, then from poller if it is not nil.
func NewKeyboard(ring *ScancodeRing, poller ScancodePoller) *Keyboard {
	return &Keyboard{ring: ring, poller: poller}
}

// SetPoller replaces the host keyboard; nil detaches it.
func (k *Keyboard) SetPoller(poller ScancodePoller) {
	k.poller = poller
}

func (k *Keyboard) Read(port uint64, data []byte) error {
	switch port {
	case KbdDataPort:
		data[0] = 0

		if sc, err := k.ring.Pop(); err == nil {
			data[0] = sc
		} else if k.poller != nil {
			if sc, ok := k.poller.PollScancode(); ok {
				data[0] = sc
			}
		}
	case KbdStatusPort:
		data[0] = 0
		if k.ring.Len() > 0 {
			data[0] = kbdStatusOutputFull
		}
	}

	return nil
}

// Write drops controller and device commands.
func (k *Keyboard) Write(port uint64, data []byte) error {
	return nil
}

func (k *Keyboard) IOPort() uint64 {
	return KbdDataPort
}

func (k *Keyboard) Size() uint64 {
	return KbdStatusPort - KbdDataPort + 1
}
