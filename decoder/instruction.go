package decoder

import (
	"fmt"

	"github.com/bpforbes/flinstone/cpu"
)

// Op identifies an instruction family.
type Op uint8

const (
	OpUnknown Op = iota
	OpNOP
	OpHLT
	OpIN
	OpOUT
	OpMOV
	OpMOVCR
	OpADD
	OpSUB
	OpINC
	OpDEC
	OpCMP
	OpTEST
	OpPUSH
	OpPOP
	OpJMP
	OpJZ
	OpJNZ
	OpINT
	OpIRET
	OpRET
	OpSTOSB
)

var opNames = [...]string{
	OpUnknown: "unknown",
	OpNOP:     "nop",
	OpHLT:     "hlt",
	OpIN:      "in",
	OpOUT:     "out",
	OpMOV:     "mov",
	OpMOVCR:   "mov-cr",
	OpADD:     "add",
	OpSUB:     "sub",
	OpINC:     "inc",
	OpDEC:     "dec",
	OpCMP:     "cmp",
	OpTEST:    "test",
	OpPUSH:    "push",
	OpPOP:     "pop",
	OpJMP:     "jmp",
	OpJZ:      "jz",
	OpJNZ:     "jnz",
	OpINT:     "int",
	OpIRET:    "iret",
	OpRET:     "ret",
	OpSTOSB:   "stosb",
}

func (o Op) String() string {
	if int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", uint8(o))
	}

	return opNames[o]
}

// Instruction is one decoded instruction. Args holds the operand variant
// for Op; ModRM is set only for encodings that carry a ModRM byte.
type Instruction struct {
	Op    Op
	Size  int
	Args  Operands
	ModRM *ModRM
}

func (in Instruction) String() string {
	if _, ok := in.Args.(None); ok || in.Args == nil {
		return in.Op.String()
	}

	return fmt.Sprintf("%s %s", in.Op, in.Args)
}

// Operands is implemented by the operand variants below.
type Operands interface {
	fmt.Stringer
	operands()
}

// None is the operand set of NOP, HLT, RET, IRET and STOSB.
type None struct{}

// Port is the imm8 port of IN AL,imm8 and OUT imm8,AL.
type Port struct {
	Port uint8
}

// Vector is the imm8 of INT.
type Vector struct {
	Vector uint8
}

// Rel8 is a branch displacement relative to the following instruction.
type Rel8 struct {
	Disp int8
}

// AccImm is the imm8 of CMP AL,imm8 and TEST AL,imm8.
type AccImm struct {
	Imm uint8
}

// RegImm loads or combines an immediate into Dst. Imm is zero-extended for
// B0+r and sign-extended for group 0x83.
type RegImm struct {
	Dst cpu.Reg
	Imm uint32
}

// RegReg is a register-to-register ALU operand pair.
type RegReg struct {
	Dst cpu.Reg
	Src cpu.Reg
}

// Register is the single register of INC, DEC, PUSH and POP.
type Register struct {
	Reg cpu.Reg
}

// CRMove moves between control register CR and GPR. ToCR is the direction:
// false reads CR into GPR, true writes GPR into CR.
type CRMove struct {
	CR   uint8
	GPR  cpu.Reg
	ToCR bool
}

func (None) operands()     {}
func (Port) operands()     {}
func (Vector) operands()   {}
func (Rel8) operands()     {}
func (AccImm) operands()   {}
func (RegImm) operands()   {}
func (RegReg) operands()   {}
func (Register) operands() {}
func (CRMove) operands()   {}

func (None) String() string       { return "" }
func (p Port) String() string     { return fmt.Sprintf("%#02x", p.Port) }
func (v Vector) String() string   { return fmt.Sprintf("%#02x", v.Vector) }
func (r Rel8) String() string     { return fmt.Sprintf("%+d", r.Disp) }
func (a AccImm) String() string   { return fmt.Sprintf("al, %#02x", a.Imm) }
func (r RegReg) String() string   { return fmt.Sprintf("%s, %s", r.Dst, r.Src) }
func (r Register) String() string { return r.Reg.String() }

func (r RegImm) String() string {
	return fmt.Sprintf("%s, %#x", r.Dst, r.Imm)
}

func (c CRMove) String() string {
	if c.ToCR {
		return fmt.Sprintf("cr%d, %s", c.CR, c.GPR)
	}

	return fmt.Sprintf("%s, cr%d", c.GPR, c.CR)
}
