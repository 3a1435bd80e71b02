package iodev

import "fmt"

// StubDevice claims a port range that exists on a PC but is not emulated,
// so that accesses to it stay out of the unclaimed-port trace. Reads leave
// the open-bus 0xFF in place and writes are dropped.
type StubDevice struct {
	Name string
	Base uint64
	Len  uint64

	// Reads and Writes count guest accesses. They are host-side statistics
	// and never visible to the guest.
	Reads  uint64
	Writes uint64
}

func NewStub(name string, base, n uint64) *StubDevice {
	return &StubDevice{Name: name, Base: base, Len: n}
}

func (s *StubDevice) Read(port uint64, data []byte) error {
	s.Reads++

	return nil
}

func (s *StubDevice) Write(port uint64, data []byte) error {
	s.Writes++

	return nil
}

func (s *StubDevice) IOPort() uint64 {
	return s.Base
}

func (s *StubDevice) Size() uint64 {
	return s.Len
}

func (s *StubDevice) String() string {
	return fmt.Sprintf("%s@%#x+%d", s.Name, s.Base, s.Len)
}
