package serial

import (
	"fmt"
	"io"

	"github.com/bpforbes/flinstone/device"
)

const (
	COM1Addr = 0x03f8

	// rxLimit bounds the receive FIFO; bytes beyond it are dropped.
	rxLimit = 10000
)

// Serial is a 16550-style UART. THR bytes go straight to the output sink;
// received bytes wait in a FIFO until the guest reads RBR.
type Serial struct {
	IER byte
	LCR byte
	MCR byte
	SCR byte

	rx  []byte
	out io.Writer

	// Trace, when set, receives a line for every access to a register
	// the UART does not model.
	Trace io.Writer
}

// State is the guest-visible UART state carried in a checkpoint.
type State struct {
	IER byte
	LCR byte
	MCR byte
	SCR byte
	RX  []byte
}

func New(out io.Writer) *Serial {
	return &Serial{out: out}
}

func (s *Serial) SetOutput(w io.Writer) {
	s.out = w
}

// Receive queues b for the guest. It reports false if the FIFO is full.
func (s *Serial) Receive(b byte) bool {
	if len(s.rx) >= rxLimit {
		return false
	}

	s.rx = append(s.rx, b)

	return true
}

// Pending returns the number of received bytes the guest has not read.
func (s *Serial) Pending() int {
	return len(s.rx)
}

func (s *Serial) State() State {
	return State{
		IER: s.IER, LCR: s.LCR, MCR: s.MCR, SCR: s.SCR,
		RX: append([]byte(nil), s.rx...),
	}
}

func (s *Serial) Restore(st State) {
	s.IER, s.LCR, s.MCR, s.SCR = st.IER, st.LCR, st.MCR, st.SCR
	s.rx = append(s.rx[:0], st.RX...)
}

func (s *Serial) dlab() bool {
	return s.LCR&0x80 != 0
}

func (s *Serial) trace(format string, args ...any) {
	if s.Trace != nil {
		fmt.Fprintf(s.Trace, format, args...)
	}
}

func (s *Serial) Read(port uint64, values []byte) error {
	port -= COM1Addr

	switch {
	case port == 0 && !s.dlab():
		// RBR
		values[0] = 0
		if len(s.rx) > 0 {
			values[0] = s.rx[0]
			s.rx = s.rx[1:]
		}
	case port == 0 && s.dlab():
		// DLL
		values[0] = 0xc // baud rate 9600
	case port == 1 && !s.dlab():
		// IER
		values[0] = s.IER
	case port == 1 && s.dlab():
		// DLM
		values[0] = 0x0 // baud rate 9600
	case port == 2:
		// IIR: no interrupt pending
		values[0] = 0x1
	case port == 3:
		// LCR
		values[0] = s.LCR
	case port == 4:
		// MCR
		values[0] = s.MCR
	case port == 5:
		// LSR
		values[0] = 0x60 // THR is empty
		if len(s.rx) > 0 {
			values[0] |= 0x1 // Data available
		}
	case port == 6:
		// MSR
		values[0] = 0
	case port == 7:
		values[0] = s.SCR
	}

	return nil
}

func (s *Serial) Write(port uint64, values []byte) error {
	port -= COM1Addr

	switch {
	case port == 0 && !s.dlab():
		// THR
		return device.WriteFlush(s.out, values[:1])
	case port == 0 && s.dlab():
		// DLL
		s.trace("[OUT DLL] value: %#v\n", values)
	case port == 1 && !s.dlab():
		// IER
		s.IER = values[0]
	case port == 1 && s.dlab():
		// DLM
		s.trace("[OUT DLM] value: %#v\n", values)
	case port == 2:
		// FCR
		s.trace("[OUT FCR] value: %#v\n", values)
	case port == 3:
		// LCR
		s.LCR = values[0]
	case port == 4:
		// MCR
		s.MCR = values[0]
	case port == 7:
		s.SCR = values[0]
	default:
		s.trace("factory test or not used\n")
	}

	return nil
}

func (s *Serial) IOPort() uint64 {
	return COM1Addr
}

func (s *Serial) Size() uint64 {
	return 0x8
}
