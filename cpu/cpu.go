package cpu

import "fmt"

// State is the architectural state of the single guest CPU.
type State struct {
	GPR    [8]uint32
	EIP    uint32
	Seg    [6]uint16
	EFLAGS uint32
	CR0    uint32
	CR3    uint32
	Halted bool
}

// New returns a CPU in its boot state.
func New() *State {
	s := &State{}
	s.Reset()

	return s
}

// Reset puts the CPU in its boot state: every register zero except
// CS, which holds BootCS.
func (s *State) Reset() {
	*s = State{}
	s.Seg[CS] = BootCS
}

func (s *State) Reg(r Reg) uint32 {
	return s.GPR[r&7]
}

func (s *State) SetReg(r Reg, v uint32) {
	s.GPR[r&7] = v
}

func (s *State) Reg8(r Reg8) uint8 {
	r &= 7
	if r < AH {
		return uint8(s.GPR[r])
	}

	return uint8(s.GPR[r-AH] >> 8)
}

func (s *State) SetReg8(r Reg8, v uint8) {
	r &= 7
	if r < AH {
		s.GPR[r] = s.GPR[r]&^0xFF | uint32(v)

		return
	}

	s.GPR[r-AH] = s.GPR[r-AH]&^0xFF00 | uint32(v)<<8
}

// Sreg returns a segment register widened for address arithmetic.
func (s *State) Sreg(r SegReg) uint32 {
	return uint32(s.Seg[r])
}

// SP returns the low 16 bits of ESP, the real-mode stack pointer.
func (s *State) SP() uint16 {
	return uint16(s.GPR[ESP])
}

// SetSP replaces the low 16 bits of ESP.
func (s *State) SetSP(sp uint16) {
	s.GPR[ESP] = s.GPR[ESP]&^0xFFFF | uint32(sp)
}

// PC is the linear address of the next instruction.
func (s *State) PC() uint32 {
	return LinearAddr(s.Sreg(CS), s.EIP)
}

// Flag reports whether every bit of f is set in EFLAGS.
func (s *State) Flag(f uint32) bool {
	return s.EFLAGS&f == f
}

func (s *State) SetFlag(f uint32, on bool) {
	if on {
		s.EFLAGS |= f
	} else {
		s.EFLAGS &^= f
	}
}

func (s *State) String() string {
	return fmt.Sprintf(
		"eax=%08x ecx=%08x edx=%08x ebx=%08x esp=%08x ebp=%08x esi=%08x edi=%08x "+
			"cs=%04x ds=%04x es=%04x ss=%04x eip=%08x eflags=%08x cr0=%08x cr3=%08x halted=%t",
		s.GPR[EAX], s.GPR[ECX], s.GPR[EDX], s.GPR[EBX],
		s.GPR[ESP], s.GPR[EBP], s.GPR[ESI], s.GPR[EDI],
		s.Seg[CS], s.Seg[DS], s.Seg[ES], s.Seg[SS],
		s.EIP, s.EFLAGS, s.CR0, s.CR3, s.Halted)
}

// LinearAddr is the real-mode address seg*16 + off. Overflow wraps at
// 32 bits; no 20-bit folding is applied.
func LinearAddr(seg, off uint32) uint32 {
	return seg<<4 + off
}
