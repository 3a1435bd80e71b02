package iodev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/bpforbes/flinstone/device"
)

const portSpace = 0x10000

var errPortClaimed = errors.New("io port already claimed")

// Bus routes port I/O to the device that claimed the port. Reads of an
// unclaimed port return all ones and writes to it are dropped.
type Bus struct {
	ports   [portSpace]device.IODevice
	devices []device.IODevice

	// Trace, when set, receives a line for each access to an unclaimed port.
	Trace io.Writer
}

func NewBus() *Bus {
	return &Bus{}
}

// Register claims the port range of each device.
func (b *Bus) Register(devs ...device.IODevice) error {
	for _, d := range devs {
		start, end := d.IOPort(), d.IOPort()+d.Size()
		if end > portSpace {
			return fmt.Errorf("%v: port range %#x-%#x beyond %#x", name(d), start, end, portSpace)
		}

		for port := start; port < end; port++ {
			if b.ports[port] != nil {
				return fmt.Errorf("%w: %#x by %v and %v", errPortClaimed, port, name(b.ports[port]), name(d))
			}
		}

		for port := start; port < end; port++ {
			b.ports[port] = d
		}

		b.devices = append(b.devices, d)
	}

	return nil
}

// Devices returns the registered devices in registration order.
func (b *Bus) Devices() []device.IODevice {
	return b.devices
}

// name prefers a device's own String over its type.
func name(d device.IODevice) string {
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}

	return fmt.Sprintf("%T", d)
}

func ones(width int) uint32 {
	return uint32(1<<(8*width) - 1)
}

func clampWidth(width int) int {
	switch width {
	case 2, 4:
		return width
	default:
		return 1
	}
}

func (b *Bus) In(port uint16, width int) uint32 {
	width = clampWidth(width)

	d := b.ports[port]
	if d == nil {
		b.trace("in", port, width)

		return ones(width)
	}

	var buf [4]byte

	data := buf[:width]
	for i := range data {
		data[i] = 0xFF
	}

	if err := d.Read(uint64(port), data); err != nil {
		log.Printf("io: in %#x/%d: %v", port, width, err)

		return ones(width)
	}

	return binary.LittleEndian.Uint32(buf[:])
}

func (b *Bus) Out(port uint16, v uint32, width int) {
	width = clampWidth(width)

	d := b.ports[port]
	if d == nil {
		b.trace("out", port, width)

		return
	}

	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], v)

	if err := d.Write(uint64(port), buf[:width]); err != nil {
		log.Printf("io: out %#x/%d: %v", port, width, err)
	}
}

func (b *Bus) trace(dir string, port uint16, width int) {
	if b.Trace != nil {
		fmt.Fprintf(b.Trace, "io: %s %#x/%d unclaimed\n", dir, port, width)
	}
}
