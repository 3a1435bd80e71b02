package iodev

import (
	"fmt"

	"github.com/bpforbes/flinstone/block"
)

const (
	IDEBase = 0x1F0

	ideData    = 0
	ideError   = 1
	ideCount   = 2
	ideLBALow  = 3
	ideLBAMid  = 4
	ideLBAHigh = 5
	ideStatus  = 7

	ideStatusReady = 0x40
)

// IDE is a single-drive PIO sector interface. The guest sets a 24-bit LBA
// through 0x1F3-0x1F5 and then streams the sector one byte at a time
// through the data port.
type IDE struct {
	disk   block.Device
	buf    [block.SectorSize]byte
	cursor int
	lba    uint32
}

// IDEState is the part of the controller carried in a checkpoint.
type IDEState struct {
	Buf    [block.SectorSize]byte
	Cursor int
	LBA    uint32
}

// NewIDE returns a controller backed by disk. With a nil disk every sector
// reads as 0xFF and writes are discarded.
func NewIDE(disk block.Device) *IDE {
	return &IDE{disk: disk, cursor: block.SectorSize}
}

// SetDisk swaps the backing device. The sector in flight is kept.
func (d *IDE) SetDisk(disk block.Device) {
	d.disk = disk
}

func (d *IDE) State() IDEState {
	return IDEState{Buf: d.buf, Cursor: d.cursor, LBA: d.lba}
}

func (d *IDE) Restore(s IDEState) {
	d.buf, d.cursor, d.lba = s.Buf, s.Cursor, s.LBA
}

func (d *IDE) load() {
	d.cursor = 0

	if d.disk == nil {
		for i := range d.buf {
			d.buf[i] = 0xFF
		}

		return
	}

	if err := d.disk.ReadSector(d.lba, d.buf[:]); err != nil {
		clear(d.buf[:])
	}
}

func (d *IDE) flush() error {
	defer clear(d.buf[:])

	if d.disk == nil {
		return nil
	}

	if err := d.disk.WriteSector(d.lba, d.buf[:]); err != nil {
		return fmt.Errorf("ide: %w", err)
	}

	return nil
}

func (d *IDE) Read(port uint64, data []byte) error {
	if port-IDEBase == ideData {
		for i := range data {
			if d.cursor >= block.SectorSize {
				d.load()
			}

			data[i] = d.buf[d.cursor]
			d.cursor++
		}

		return nil
	}

	v := byte(0xFF)

	switch port - IDEBase {
	case ideError:
		v = 0
	case ideCount:
		v = 1
	case ideLBALow:
		v = byte(d.lba)
	case ideLBAMid:
		v = byte(d.lba >> 8)
	case ideLBAHigh:
		v = byte(d.lba >> 16)
	case ideStatus:
		v = ideStatusReady
	}

	data[0] = v
	for i := 1; i < len(data); i++ {
		data[i] = 0
	}

	return nil
}

func (d *IDE) Write(port uint64, data []byte) error {
	switch port - IDEBase {
	case ideData:
		for _, b := range data {
			if d.cursor >= block.SectorSize {
				d.cursor = 0
			}

			d.buf[d.cursor] = b
			d.cursor++

			if d.cursor >= block.SectorSize {
				if err := d.flush(); err != nil {
					return err
				}
			}
		}
	case ideLBALow:
		d.lba = d.lba&^0xFF | uint32(data[0])
	case ideLBAMid:
		d.lba = d.lba&^0xFF00 | uint32(data[0])<<8
	case ideLBAHigh:
		d.lba = d.lba&^0xFF0000 | uint32(data[0])<<16
	}

	return nil
}

func (d *IDE) IOPort() uint64 {
	return IDEBase
}

func (d *IDE) Size() uint64 {
	return 0x8
}
