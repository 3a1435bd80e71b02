package migration

// Checkpoints are written as a sequence of framed messages:
//
//	[4-byte big-endian type][8-byte big-endian payload length][payload bytes]
//
// A checkpoint stream is MsgSnapshot, MsgMemoryFull, MsgDone.

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies a framed message.
type MsgType uint32

const (
	MsgSnapshot   MsgType = 1 // gob-encoded Snapshot (no memory)
	MsgMemoryFull MsgType = 2 // raw guest memory
	MsgDone       MsgType = 3 // end of stream
)

func (t MsgType) String() string {
	switch t {
	case MsgSnapshot:
		return "snapshot"
	case MsgMemoryFull:
		return "memory"
	case MsgDone:
		return "done"
	}

	return fmt.Sprintf("MsgType(%d)", uint32(t))
}

const (
	// MaxMemSize is the largest RAM a checkpoint may carry: the whole
	// 32-bit guest-physical space.
	MaxMemSize = 1 << 32

	// maxSnapshotLen bounds the gob-encoded snapshot.
	maxSnapshotLen = 1 << 20
)

var (
	errUnexpectedMsg = errors.New("unexpected message")
	errMemorySize    = errors.New("memory payload does not match snapshot")
	ErrPayloadSize   = errors.New("payload length exceeds limit")
)

// Sender writes framed messages to w.
type Sender struct {
	w io.Writer
}

func NewSender(w io.Writer) *Sender { return &Sender{w: w} }

func (s *Sender) send(t MsgType, payload []byte) error {
	var hdr [12]byte

	binary.BigEndian.PutUint32(hdr[0:4], uint32(t))
	binary.BigEndian.PutUint64(hdr[4:12], uint64(len(payload)))

	if _, err := s.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("send %v header: %w", t, err)
	}

	if len(payload) > 0 {
		if _, err := s.w.Write(payload); err != nil {
			return fmt.Errorf("send %v payload: %w", t, err)
		}
	}

	return nil
}

// SendSnapshot encodes snap with gob and sends it as a MsgSnapshot.
func (s *Sender) SendSnapshot(snap *Snapshot) error {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.send(MsgSnapshot, buf.Bytes())
}

// SendMemoryFull sends the raw memory bytes.
func (s *Sender) SendMemoryFull(mem []byte) error {
	return s.send(MsgMemoryFull, mem)
}

func (s *Sender) SendDone() error { return s.send(MsgDone, nil) }

// Receiver reads framed messages from r. A header announcing more than
// Limit payload bytes is rejected before anything is allocated.
type Receiver struct {
	r     io.Reader
	Limit uint64
}

func NewReceiver(r io.Reader) *Receiver { return &Receiver{r: r, Limit: MaxMemSize} }

// Next reads the next message and returns its type and full payload.
func (r *Receiver) Next() (MsgType, []byte, error) {
	var hdr [12]byte

	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	t := MsgType(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint64(hdr[4:12])

	if length == 0 {
		return t, nil, nil
	}

	if length > r.Limit {
		return 0, nil, fmt.Errorf("%w: type=%v len=%d limit=%d", ErrPayloadSize, t, length, r.Limit)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload (type=%v len=%d): %w", t, length, err)
	}

	return t, payload, nil
}

func (r *Receiver) expect(want MsgType) ([]byte, error) {
	t, payload, err := r.Next()
	if err != nil {
		return nil, err
	}

	if t != want {
		return nil, fmt.Errorf("%w: got %v, want %v", errUnexpectedMsg, t, want)
	}

	return payload, nil
}

// DecodeSnapshot decodes a gob-encoded Snapshot from payload bytes.
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap, nil
}

// Write streams a complete checkpoint to w.
func Write(w io.Writer, snap *Snapshot, mem []byte) error {
	s := NewSender(w)

	if err := s.SendSnapshot(snap); err != nil {
		return err
	}

	if err := s.SendMemoryFull(mem); err != nil {
		return err
	}

	return s.SendDone()
}

// Read reads a checkpoint written by Write.
func Read(rd io.Reader) (*Snapshot, []byte, error) {
	r := NewReceiver(rd)
	r.Limit = maxSnapshotLen

	payload, err := r.expect(MsgSnapshot)
	if err != nil {
		return nil, nil, err
	}

	snap, err := DecodeSnapshot(payload)
	if err != nil {
		return nil, nil, err
	}

	if snap.MemSize <= 0 || uint64(snap.MemSize) > MaxMemSize {
		return nil, nil, fmt.Errorf("%w: snapshot says %d bytes", errMemorySize, snap.MemSize)
	}

	r.Limit = uint64(snap.MemSize)

	mem, err := r.expect(MsgMemoryFull)
	if err != nil {
		return nil, nil, err
	}

	if len(mem) != snap.MemSize {
		return nil, nil, fmt.Errorf("%w: %d bytes, snapshot says %d", errMemorySize, len(mem), snap.MemSize)
	}

	r.Limit = 0

	if _, err := r.expect(MsgDone); err != nil {
		return nil, nil, err
	}

	return snap, mem, nil
}
