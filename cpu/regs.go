package cpu

import "fmt"

// Reg is a 32-bit general purpose register, in ModRM encoding order.
type Reg uint8

const (
	EAX Reg = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

var regNames = [8]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

func (r Reg) String() string {
	return regNames[r&7]
}

// Reg8 is an 8-bit register. AL..BL alias the low byte of EAX..EBX and
// AH..BH the second byte.
type Reg8 uint8

const (
	AL Reg8 = iota
	CL
	DL
	BL
	AH
	CH
	DH
	BH
)

var reg8Names = [8]string{"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh"}

func (r Reg8) String() string {
	return reg8Names[r&7]
}

// SegReg is a segment register.
type SegReg uint8

const (
	ES SegReg = iota
	CS
	SS
	DS
	FS
	GS
)

var segNames = [6]string{"es", "cs", "ss", "ds", "fs", "gs"}

func (s SegReg) String() string {
	if int(s) >= len(segNames) {
		return fmt.Sprintf("seg%d", uint8(s))
	}

	return segNames[s]
}

// EFLAGS bits maintained by the execution engine.
const (
	FlagCF uint32 = 0x01
	FlagZF uint32 = 0x40
	FlagSF uint32 = 0x80
)

// BootCS is the conventional real-mode boot segment; CS:0 is 0x7C00.
const BootCS = 0x07C0
