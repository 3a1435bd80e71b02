package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bpforbes/flinstone/cpu"
)

var (
	// ErrTruncated is returned when the buffer ends inside an instruction.
	ErrTruncated = errors.New("truncated instruction")

	// ErrUnknownOpcode is returned for opcodes outside the supported set.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrMemoryOperand is returned when a ModRM operand addresses memory.
	// Only mod=11 register forms are executed.
	ErrMemoryOperand = errors.New("memory operand not supported")

	// ErrOpcodeExtension is returned for an unsupported /digit of group 0x83.
	ErrOpcodeExtension = errors.New("unsupported opcode extension")
)

const minInstructionBytes = 2

// Decode decodes the instruction at mem[addr:]. mem is the whole of guest
// RAM and bounds every read; it is never modified.
func Decode(mem []byte, addr uint32) (Instruction, error) {
	if uint64(addr)+minInstructionBytes > uint64(len(mem)) {
		return Instruction{}, fmt.Errorf("%w: at %#x", ErrTruncated, addr)
	}

	b := mem[addr:]

	in, err := decode(b)
	if err != nil {
		return Instruction{}, fmt.Errorf("decode at %#x (% x): %w", addr, b[:min(len(b), 4)], err)
	}

	return in, nil
}

func decode(b []byte) (Instruction, error) {
	op := b[0]

	switch {
	case op == 0x0F:
		return decodeTwoByte(b)
	case op >= 0x40 && op <= 0x47:
		return Instruction{Op: OpINC, Size: 1, Args: Register{cpu.Reg(op - 0x40)}}, nil
	case op >= 0x48 && op <= 0x4F:
		return Instruction{Op: OpDEC, Size: 1, Args: Register{cpu.Reg(op - 0x48)}}, nil
	case op >= 0x50 && op <= 0x57:
		return Instruction{Op: OpPUSH, Size: 1, Args: Register{cpu.Reg(op - 0x50)}}, nil
	case op >= 0x58 && op <= 0x5F:
		return Instruction{Op: OpPOP, Size: 1, Args: Register{cpu.Reg(op - 0x58)}}, nil
	case op >= 0xB0 && op <= 0xB7:
		return Instruction{
			Op:   OpMOV,
			Size: 2,
			Args: RegImm{Dst: cpu.Reg(op - 0xB0), Imm: uint32(b[1])},
		}, nil
	case op >= 0xB8 && op <= 0xBF:
		if len(b) < 5 {
			return Instruction{}, fmt.Errorf("%w: imm32", ErrTruncated)
		}

		return Instruction{
			Op:   OpMOV,
			Size: 5,
			Args: RegImm{Dst: cpu.Reg(op - 0xB8), Imm: binary.LittleEndian.Uint32(b[1:])},
		}, nil
	}

	switch op {
	case 0x90:
		return Instruction{Op: OpNOP, Size: 1, Args: None{}}, nil
	case 0xF4:
		return Instruction{Op: OpHLT, Size: 1, Args: None{}}, nil
	case 0xC3:
		return Instruction{Op: OpRET, Size: 1, Args: None{}}, nil
	case 0xCF:
		return Instruction{Op: OpIRET, Size: 1, Args: None{}}, nil
	case 0xAA:
		return Instruction{Op: OpSTOSB, Size: 1, Args: None{}}, nil
	case 0xE4:
		return Instruction{Op: OpIN, Size: 2, Args: Port{b[1]}}, nil
	case 0xE6:
		return Instruction{Op: OpOUT, Size: 2, Args: Port{b[1]}}, nil
	case 0xCD:
		return Instruction{Op: OpINT, Size: 2, Args: Vector{b[1]}}, nil
	case 0xEB:
		return Instruction{Op: OpJMP, Size: 2, Args: Rel8{int8(b[1])}}, nil
	case 0x74:
		return Instruction{Op: OpJZ, Size: 2, Args: Rel8{int8(b[1])}}, nil
	case 0x75:
		return Instruction{Op: OpJNZ, Size: 2, Args: Rel8{int8(b[1])}}, nil
	case 0x3C:
		return Instruction{Op: OpCMP, Size: 2, Args: AccImm{b[1]}}, nil
	case 0xA8:
		return Instruction{Op: OpTEST, Size: 2, Args: AccImm{b[1]}}, nil
	case 0x01, 0x03, 0x29, 0x2B:
		return decodeALU(b)
	case 0x83:
		return decodeGroup83(b)
	}

	return Instruction{}, fmt.Errorf("%w: %#02x", ErrUnknownOpcode, op)
}

// registerModRM parses a ModRM that must use the mod=11 register form.
func registerModRM(b []byte) (*ModRM, int, error) {
	m, n, err := ParseModRM(b)
	if err != nil {
		return nil, 0, err
	}

	if !m.IsRegister() {
		return nil, 0, fmt.Errorf("%w: mod=%d rm=%d", ErrMemoryOperand, m.Mod, m.RM)
	}

	return m, n, nil
}

// decodeALU handles ADD/SUB r/m32,r32 (0x01, 0x29) and r32,r/m32 (0x03, 0x2B).
func decodeALU(b []byte) (Instruction, error) {
	m, n, err := registerModRM(b[1:])
	if err != nil {
		return Instruction{}, err
	}

	in := Instruction{Op: OpADD, Size: 1 + n, ModRM: m}
	if b[0] == 0x29 || b[0] == 0x2B {
		in.Op = OpSUB
	}

	if b[0] == 0x01 || b[0] == 0x29 {
		in.Args = RegReg{Dst: cpu.Reg(m.RM), Src: cpu.Reg(m.Reg)}
	} else {
		in.Args = RegReg{Dst: cpu.Reg(m.Reg), Src: cpu.Reg(m.RM)}
	}

	return in, nil
}

// decodeGroup83 handles ADD (/0) and SUB (/5) r/m32,imm8.
func decodeGroup83(b []byte) (Instruction, error) {
	m, n, err := registerModRM(b[1:])
	if err != nil {
		return Instruction{}, err
	}

	var op Op

	switch m.Reg {
	case 0:
		op = OpADD
	case 5:
		op = OpSUB
	default:
		return Instruction{}, fmt.Errorf("%w: 0x83 /%d", ErrOpcodeExtension, m.Reg)
	}

	if len(b) < 1+n+1 {
		return Instruction{}, fmt.Errorf("%w: imm8", ErrTruncated)
	}

	return Instruction{
		Op:    op,
		Size:  1 + n + 1,
		ModRM: m,
		Args:  RegImm{Dst: cpu.Reg(m.RM), Imm: uint32(int32(int8(b[1+n])))},
	}, nil
}

// decodeTwoByte handles 0F 20 (MOV r32,CRn) and 0F 22 (MOV CRn,r32).
func decodeTwoByte(b []byte) (Instruction, error) {
	if b[1] != 0x20 && b[1] != 0x22 {
		return Instruction{}, fmt.Errorf("%w: 0x0f %#02x", ErrUnknownOpcode, b[1])
	}

	m, n, err := registerModRM(b[2:])
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		Op:    OpMOVCR,
		Size:  2 + n,
		ModRM: m,
		Args:  CRMove{CR: m.Reg, GPR: cpu.Reg(m.RM), ToCR: b[1] == 0x22},
	}, nil
}
