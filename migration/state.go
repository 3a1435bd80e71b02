// Package migration carries machine checkpoints across process lifetimes.
package migration

import (
	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/iodev"
	"github.com/bpforbes/flinstone/serial"
)

// DeviceState aggregates emulated device state.
type DeviceState struct {
	IDE     iodev.IDEState
	PITMode uint8
	PIC     [2]uint8 // master, slave command bytes
	Serial  serial.State
}

// Snapshot is everything in a checkpoint except guest RAM, which is
// transferred separately as a raw byte stream.
type Snapshot struct {
	MemSize  int
	CPU      cpu.State
	Keyboard iodev.ScancodeRing
	Ticks    uint64
	Running  bool
	Paused   bool
	Devices  DeviceState
}
