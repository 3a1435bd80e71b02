package engine

import (
	"errors"
	"fmt"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
)

var (
	// ErrUnimplemented is returned for an instruction the engine cannot run.
	ErrUnimplemented = errors.New("unimplemented instruction")

	// ErrUnsupportedControlRegister is returned by MOV to or from a CR other
	// than CR0 and CR3.
	ErrUnsupportedControlRegister = errors.New("unsupported control register")

	// ErrStack is returned when a push or pop would touch memory outside RAM.
	ErrStack = errors.New("stack access out of bounds")

	// ErrVectorOutOfRange is returned by INT when its IVT entry is outside RAM.
	ErrVectorOutOfRange = errors.New("interrupt vector out of range")
)

// Memory is the guest RAM as seen by the engine.
type Memory interface {
	Size() int
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
}

// PortIO is the port-mapped I/O space. Reads from unclaimed ports return
// all ones and never fail.
type PortIO interface {
	In(port uint16, width int) uint32
	Out(port uint16, v uint32, width int)
}

// Execute applies in to st and mem. It reports branched when a relative
// jump (JMP, or a taken JZ/JNZ) has already added in.Size to EIP; for
// everything else, RET, INT and IRET included, the caller advances EIP by
// in.Size. On error st and mem are unchanged.
func Execute(st *cpu.State, mem Memory, io PortIO, in decoder.Instruction) (bool, error) {
	switch in.Op {
	case decoder.OpNOP:
		return false, nil
	case decoder.OpHLT:
		st.Halted = true

		return false, nil
	case decoder.OpIN, decoder.OpOUT:
		return false, portIO(st, io, in)
	case decoder.OpMOV:
		return false, mov(st, in)
	case decoder.OpMOVCR:
		return false, movCR(st, in)
	case decoder.OpADD, decoder.OpSUB:
		return false, arith(st, in)
	case decoder.OpINC, decoder.OpDEC:
		return false, incDec(st, in)
	case decoder.OpCMP, decoder.OpTEST:
		return false, compare(st, in)
	case decoder.OpPUSH:
		return false, push(st, mem, in)
	case decoder.OpPOP:
		return false, pop(st, mem, in)
	case decoder.OpJMP, decoder.OpJZ, decoder.OpJNZ:
		return branch(st, in)
	case decoder.OpRET:
		return false, ret(st, mem)
	case decoder.OpINT:
		return false, interrupt(st, mem, in)
	case decoder.OpIRET:
		return false, iret(st, mem)
	case decoder.OpSTOSB:
		return false, stosb(st, mem)
	}

	return false, fmt.Errorf("%w: %s", ErrUnimplemented, in.Op)
}

func badOperands(in decoder.Instruction) error {
	return fmt.Errorf("%w: %s with %T operands", ErrUnimplemented, in.Op, in.Args)
}

func portIO(st *cpu.State, io PortIO, in decoder.Instruction) error {
	p, ok := in.Args.(decoder.Port)
	if !ok {
		return badOperands(in)
	}

	if in.Op == decoder.OpIN {
		st.SetReg8(cpu.AL, uint8(io.In(uint16(p.Port), 1)))
	} else {
		io.Out(uint16(p.Port), uint32(st.Reg8(cpu.AL)), 1)
	}

	return nil
}

func mov(st *cpu.State, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.RegImm)
	if !ok {
		return badOperands(in)
	}

	st.SetReg(a.Dst, a.Imm)

	return nil
}

func movCR(st *cpu.State, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.CRMove)
	if !ok {
		return badOperands(in)
	}

	var cr *uint32

	switch a.CR {
	case 0:
		cr = &st.CR0
	case 3:
		cr = &st.CR3
	default:
		return fmt.Errorf("%w: cr%d", ErrUnsupportedControlRegister, a.CR)
	}

	if a.ToCR {
		*cr = st.Reg(a.GPR)
	} else {
		st.SetReg(a.GPR, *cr)
	}

	return nil
}

func arith(st *cpu.State, in decoder.Instruction) error {
	var (
		dst cpu.Reg
		src uint32
	)

	switch a := in.Args.(type) {
	case decoder.RegReg:
		dst, src = a.Dst, st.Reg(a.Src)
	case decoder.RegImm:
		dst, src = a.Dst, a.Imm
	default:
		return badOperands(in)
	}

	v := st.Reg(dst)

	var r uint32
	if in.Op == decoder.OpADD {
		r = v + src
		st.SetFlag(cpu.FlagCF, r < v)
	} else {
		r = v - src
		st.SetFlag(cpu.FlagCF, v < src)
	}

	st.SetReg(dst, r)
	setZS(st, r, 0x80000000)

	return nil
}

// incDec leaves CF alone, as on hardware.
func incDec(st *cpu.State, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.Register)
	if !ok {
		return badOperands(in)
	}

	r := st.Reg(a.Reg)
	if in.Op == decoder.OpINC {
		r++
	} else {
		r--
	}

	st.SetReg(a.Reg, r)
	setZS(st, r, 0x80000000)

	return nil
}

func compare(st *cpu.State, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.AccImm)
	if !ok {
		return badOperands(in)
	}

	al := st.Reg8(cpu.AL)

	if in.Op == decoder.OpCMP {
		setZS(st, uint32(al-a.Imm), 0x80)
		st.SetFlag(cpu.FlagCF, al < a.Imm)
	} else {
		setZS(st, uint32(al&a.Imm), 0x80)
		st.SetFlag(cpu.FlagCF, false)
	}

	return nil
}

func setZS(st *cpu.State, r, sign uint32) {
	st.SetFlag(cpu.FlagZF, r == 0)
	st.SetFlag(cpu.FlagSF, r&sign != 0)
}

// branch handles JMP, JZ and JNZ. The displacement is relative to the
// following instruction. A JZ/JNZ that is not taken falls through.
func branch(st *cpu.State, in decoder.Instruction) (bool, error) {
	a, ok := in.Args.(decoder.Rel8)
	if !ok {
		return false, badOperands(in)
	}

	switch in.Op {
	case decoder.OpJZ:
		if !st.Flag(cpu.FlagZF) {
			return false, nil
		}
	case decoder.OpJNZ:
		if st.Flag(cpu.FlagZF) {
			return false, nil
		}
	}

	st.EIP += uint32(in.Size) + uint32(int32(a.Disp))

	return true, nil
}

func stosb(st *cpu.State, mem Memory) error {
	di := uint16(st.Reg(cpu.EDI))

	if err := mem.Write8(cpu.LinearAddr(st.Sreg(cpu.ES), uint32(di)), st.Reg8(cpu.AL)); err != nil {
		return fmt.Errorf("stosb: %w", err)
	}

	st.SetReg(cpu.EDI, st.Reg(cpu.EDI)&^0xFFFF|uint32(di+1))

	return nil
}
