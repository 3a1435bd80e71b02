package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when [addr, addr+len) does not fit in guest RAM.
	ErrOutOfBounds = errors.New("guest address out of bounds")

	errInvalidSize = errors.New("invalid guest memory size")
)

const (
	// DefaultSize is the RAM size of the guest created at boot.
	DefaultSize = 16 << 20

	// PageSize is the granularity of 32-bit paging.
	PageSize = 4096
)

// Memory is the flat guest-physical RAM of a machine.
type Memory struct {
	buf []byte
	AS  *AddressSpace
}

// New allocates size bytes of zero-filled guest RAM.
func New(size int) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", errInvalidSize, size)
	}

	buf, err := alloc(size)
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes of guest RAM: %w", size, err)
	}

	return &Memory{
		buf: buf,
		AS:  NewAddressSpace("phys-ram", 0, uint32(size)),
	}, nil
}

// Close releases the backing buffer. The Memory must not be used afterwards.
func (m *Memory) Close() error {
	if m.buf == nil {
		return nil
	}

	err := free(m.buf)
	m.buf = nil

	return err
}

// Size returns the RAM size in bytes.
func (m *Memory) Size() int {
	return len(m.buf)
}

// Bytes exposes the backing buffer. Used by snapshot and checksum code.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Zero clears all of guest RAM.
func (m *Memory) Zero() {
	clear(m.buf)
}

func (m *Memory) check(addr uint32, n int) error {
	if n < 0 || uint64(addr)+uint64(n) > uint64(len(m.buf)) {
		return fmt.Errorf("%w: [%#x, %#x) size %#x", ErrOutOfBounds, addr, uint64(addr)+uint64(n), len(m.buf))
	}

	return nil
}

// Load copies data into RAM at addr. Nothing is written unless the whole range fits.
func (m *Memory) Load(addr uint32, data []byte) error {
	return m.Write(addr, data)
}

// Read fills dst from RAM starting at addr.
func (m *Memory) Read(addr uint32, dst []byte) error {
	if err := m.check(addr, len(dst)); err != nil {
		return err
	}

	copy(dst, m.buf[addr:])

	return nil
}

// Write copies src into RAM starting at addr.
func (m *Memory) Write(addr uint32, src []byte) error {
	if err := m.check(addr, len(src)); err != nil {
		return err
	}

	copy(m.buf[addr:], src)

	return nil
}

// Read8 returns the byte at addr, or 0 and an error when out of bounds.
func (m *Memory) Read8(addr uint32) (uint8, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}

	return m.buf[addr], nil
}

// Read16 returns the little-endian word at addr.
func (m *Memory) Read16(addr uint32) (uint16, error) {
	if err := m.check(addr, 2); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(m.buf[addr:]), nil
}

// Read32 returns the little-endian dword at addr.
func (m *Memory) Read32(addr uint32) (uint32, error) {
	if err := m.check(addr, 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(m.buf[addr:]), nil
}

func (m *Memory) Write8(addr uint32, v uint8) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}

	m.buf[addr] = v

	return nil
}

func (m *Memory) Write16(addr uint32, v uint16) error {
	if err := m.check(addr, 2); err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(m.buf[addr:], v)

	return nil
}

func (m *Memory) Write32(addr uint32, v uint32) error {
	if err := m.check(addr, 4); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(m.buf[addr:], v)

	return nil
}
