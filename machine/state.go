package machine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/migration"
)

var (
	ErrNoCheckpoint   = errors.New("no checkpoint saved")
	ErrCheckpointSize = errors.New("checkpoint RAM size differs from machine")
)

// checkpoint is the single saved-state slot of a machine.
type checkpoint struct {
	snap migration.Snapshot
	mem  []byte
}

// Snapshot captures everything but guest RAM.
func (m *Machine) Snapshot() *migration.Snapshot {
	return &migration.Snapshot{
		MemSize:  m.mem.Size(),
		CPU:      m.cpu,
		Keyboard: m.kbd,
		Ticks:    m.ticks,
		Running:  m.running,
		Paused:   m.paused,
		Devices: migration.DeviceState{
			IDE:     m.ide.State(),
			PITMode: m.pit.Mode,
			PIC:     [2]uint8{m.pics[0].Command, m.pics[1].Command},
			Serial:  m.serial.State(),
		},
	}
}

func (m *Machine) apply(s *migration.Snapshot) {
	m.cpu = s.CPU
	m.kbd = s.Keyboard
	m.ticks = s.Ticks
	m.running = s.Running
	m.paused = s.Paused

	m.ide.Restore(s.Devices.IDE)
	m.pit.Mode = s.Devices.PITMode
	m.pics[0].Command = s.Devices.PIC[0]
	m.pics[1].Command = s.Devices.PIC[1]
	m.serial.Restore(s.Devices.Serial)
}

// SaveCheckpoint overwrites the checkpoint slot with the current state.
// The RAM copy is reused when its size still matches.
func (m *Machine) SaveCheckpoint() {
	if m.checkpoint == nil || len(m.checkpoint.mem) != m.mem.Size() {
		m.checkpoint = &checkpoint{mem: make([]byte, m.mem.Size())}
	}

	copy(m.checkpoint.mem, m.mem.Bytes())
	m.checkpoint.snap = *m.Snapshot()
}

// RestoreCheckpoint puts the machine back into the saved state. Nothing is
// modified if there is no checkpoint or its RAM size differs.
func (m *Machine) RestoreCheckpoint() error {
	if m.checkpoint == nil {
		return ErrNoCheckpoint
	}

	if len(m.checkpoint.mem) != m.mem.Size() {
		return fmt.Errorf("%w: %d != %d", ErrCheckpointSize, len(m.checkpoint.mem), m.mem.Size())
	}

	copy(m.mem.Bytes(), m.checkpoint.mem)
	m.apply(&m.checkpoint.snap)

	return nil
}

func (m *Machine) HasCheckpoint() bool {
	return m.checkpoint != nil
}

// WriteCheckpoint streams the saved checkpoint to w.
func (m *Machine) WriteCheckpoint(w io.Writer) error {
	if m.checkpoint == nil {
		return ErrNoCheckpoint
	}

	if err := migration.Write(w, &m.checkpoint.snap, m.checkpoint.mem); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	log.Printf("checkpoint: wrote %d bytes of RAM at %04x:%04x", len(m.checkpoint.mem),
		m.checkpoint.snap.CPU.Seg[cpu.CS], m.checkpoint.snap.CPU.EIP)

	return nil
}

// ReadCheckpoint loads a checkpoint from r into the slot and restores it.
func (m *Machine) ReadCheckpoint(r io.Reader) error {
	snap, mem, err := migration.Read(r)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	if len(mem) != m.mem.Size() {
		return fmt.Errorf("%w: %d != %d", ErrCheckpointSize, len(mem), m.mem.Size())
	}

	m.checkpoint = &checkpoint{snap: *snap, mem: mem}

	if err := m.RestoreCheckpoint(); err != nil {
		return err
	}

	log.Printf("checkpoint: restored %d bytes of RAM at %04x:%04x", len(mem), snap.CPU.Seg[cpu.CS], snap.CPU.EIP)

	return nil
}

// Checksum identifies the complete guest-visible state.
type Checksum [sha256.Size]byte

func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// Checksum hashes the CPU, the keyboard queue, the clock, device state and
// all of guest RAM.
func (m *Machine) Checksum() Checksum {
	h := sha256.New()
	s := m.Snapshot()

	// Writes to a hash.Hash cannot fail.
	_ = binary.Write(h, binary.LittleEndian, s.CPU)
	_ = binary.Write(h, binary.LittleEndian, s.Keyboard)
	_ = binary.Write(h, binary.LittleEndian, []uint64{s.Ticks})
	_ = binary.Write(h, binary.LittleEndian, []bool{s.Running, s.Paused})

	d := s.Devices
	h.Write(d.IDE.Buf[:])
	_ = binary.Write(h, binary.LittleEndian, []uint32{uint32(d.IDE.Cursor), d.IDE.LBA})
	h.Write([]byte{d.PITMode, d.PIC[0], d.PIC[1]})
	h.Write([]byte{d.Serial.IER, d.Serial.LCR, d.Serial.MCR, d.Serial.SCR})
	_ = binary.Write(h, binary.LittleEndian, uint32(len(d.Serial.RX)))
	h.Write(d.Serial.RX)

	h.Write(m.mem.Bytes())

	var c Checksum

	copy(c[:], h.Sum(nil))

	return c
}
