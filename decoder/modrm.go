package decoder

import (
	"encoding/binary"
	"fmt"
)

// ModRM is a decoded ModRM byte with its optional SIB byte and displacement.
type ModRM struct {
	Mod      uint8
	Reg      uint8
	RM       uint8
	Disp     int32
	DispSize int
	SIB      *SIB
}

// SIB is a decoded scale-index-base byte. Scale is the multiplier, not the
// raw two-bit field.
type SIB struct {
	Scale uint8
	Index uint8
	Base  uint8
}

// IsRegister reports whether the r/m operand names a register (mod=11).
func (m *ModRM) IsRegister() bool {
	return m.Mod == 3
}

// ParseModRM decodes the ModRM byte at b[0] and everything that follows it
// in the same addressing form. It returns the number of bytes consumed.
func ParseModRM(b []byte) (*ModRM, int, error) {
	if len(b) < 1 {
		return nil, 0, fmt.Errorf("%w: modrm", ErrTruncated)
	}

	m := &ModRM{
		Mod: b[0] >> 6,
		Reg: (b[0] >> 3) & 7,
		RM:  b[0] & 7,
	}
	n := 1

	if m.Mod != 3 && m.RM == 4 {
		if len(b) < n+1 {
			return nil, 0, fmt.Errorf("%w: sib", ErrTruncated)
		}

		s := b[n]
		m.SIB = &SIB{
			Scale: 1 << (s >> 6),
			Index: (s >> 3) & 7,
			Base:  s & 7,
		}
		n++
	}

	switch {
	case m.Mod == 1:
		if len(b) < n+1 {
			return nil, 0, fmt.Errorf("%w: disp8", ErrTruncated)
		}

		m.Disp = int32(int8(b[n]))
		m.DispSize = 1
		n++
	case m.Mod == 2,
		m.Mod == 0 && m.RM == 5,
		m.Mod == 0 && m.SIB != nil && m.SIB.Base == 5:
		if len(b) < n+4 {
			return nil, 0, fmt.Errorf("%w: disp32", ErrTruncated)
		}

		m.Disp = int32(binary.LittleEndian.Uint32(b[n:]))
		m.DispSize = 4
		n += 4
	}

	return m, n, nil
}
