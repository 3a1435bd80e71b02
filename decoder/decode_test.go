package decoder_test

import (
	"errors"
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		code []byte
		op   decoder.Op
		size int
		args decoder.Operands
	}{
		{"nop", []byte{0x90, 0x90}, decoder.OpNOP, 1, decoder.None{}},
		{"hlt", []byte{0xF4, 0x00}, decoder.OpHLT, 1, decoder.None{}},
		{"in", []byte{0xE4, 0x60}, decoder.OpIN, 2, decoder.Port{Port: 0x60}},
		{"out", []byte{0xE6, 0xF8}, decoder.OpOUT, 2, decoder.Port{Port: 0xF8}},
		{"jmp", []byte{0xEB, 0xFE}, decoder.OpJMP, 2, decoder.Rel8{Disp: -2}},
		{"ret", []byte{0xC3, 0x00}, decoder.OpRET, 1, decoder.None{}},
		{"int", []byte{0xCD, 0x10}, decoder.OpINT, 2, decoder.Vector{Vector: 0x10}},
		{"iret", []byte{0xCF, 0x00}, decoder.OpIRET, 1, decoder.None{}},
		{"stosb", []byte{0xAA, 0x00}, decoder.OpSTOSB, 1, decoder.None{}},
		{"cmp", []byte{0x3C, 0x0A}, decoder.OpCMP, 2, decoder.AccImm{Imm: 0x0A}},
		{"test", []byte{0xA8, 0x01}, decoder.OpTEST, 2, decoder.AccImm{Imm: 0x01}},
		{"jz", []byte{0x74, 0x05}, decoder.OpJZ, 2, decoder.Rel8{Disp: 5}},
		{"jnz", []byte{0x75, 0x80}, decoder.OpJNZ, 2, decoder.Rel8{Disp: -128}},
		// add ebx, ecx: r/m=ebx, reg=ecx
		{"add rm,r", []byte{0x01, 0xCB}, decoder.OpADD, 2, decoder.RegReg{Dst: cpu.EBX, Src: cpu.ECX}},
		// add ecx, ebx
		{"add r,rm", []byte{0x03, 0xCB}, decoder.OpADD, 2, decoder.RegReg{Dst: cpu.ECX, Src: cpu.EBX}},
		{"sub rm,r", []byte{0x29, 0xD0}, decoder.OpSUB, 2, decoder.RegReg{Dst: cpu.EAX, Src: cpu.EDX}},
		{"sub r,rm", []byte{0x2B, 0xD0}, decoder.OpSUB, 2, decoder.RegReg{Dst: cpu.EDX, Src: cpu.EAX}},
		{"add imm8", []byte{0x83, 0xC1, 0x05}, decoder.OpADD, 3, decoder.RegImm{Dst: cpu.ECX, Imm: 5}},
		{"sub imm8", []byte{0x83, 0xEE, 0xFF}, decoder.OpSUB, 3, decoder.RegImm{Dst: cpu.ESI, Imm: 0xFFFFFFFF}},
		{"inc", []byte{0x43, 0x00}, decoder.OpINC, 1, decoder.Register{Reg: cpu.EBX}},
		{"dec", []byte{0x4F, 0x00}, decoder.OpDEC, 1, decoder.Register{Reg: cpu.EDI}},
		// B0+r loads the zero-extended imm8 into the 32-bit register.
		{"mov imm8", []byte{0xB4, 0x0E}, decoder.OpMOV, 2, decoder.RegImm{Dst: cpu.ESP, Imm: 0x0E}},
		{"mov r32", []byte{0xBA, 0x78, 0x56, 0x34, 0x12}, decoder.OpMOV, 5, decoder.RegImm{Dst: cpu.EDX, Imm: 0x12345678}},
		{"push", []byte{0x55, 0x00}, decoder.OpPUSH, 1, decoder.Register{Reg: cpu.EBP}},
		{"pop", []byte{0x5E, 0x00}, decoder.OpPOP, 1, decoder.Register{Reg: cpu.ESI}},
		{"mov r32,cr0", []byte{0x0F, 0x20, 0xC0}, decoder.OpMOVCR, 3, decoder.CRMove{CR: 0, GPR: cpu.EAX}},
		{"mov cr3,ebx", []byte{0x0F, 0x22, 0xDB}, decoder.OpMOVCR, 3, decoder.CRMove{CR: 3, GPR: cpu.EBX, ToCR: true}},
	}

	for _, c := range cases {
		in, err := decoder.Decode(c.code, 0)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)

			continue
		}

		if in.Op != c.op || in.Size != c.size || in.Args != c.args {
			t.Errorf("%s: expected: %v/%d/%#v, actual: %v/%d/%#v", c.name, c.op, c.size, c.args, in.Op, in.Size, in.Args)
		}
	}
}

// The x86asm package decodes the same encodings in 32-bit mode, which is the
// operand size the machine uses, so its lengths are a reference.
func TestDecodeLengthMatchesX86asm(t *testing.T) {
	t.Parallel()

	codes := [][]byte{
		{0x90, 0x00},
		{0xF4, 0x00},
		{0xE4, 0x60},
		{0xE6, 0xF8},
		{0xEB, 0xFE},
		{0xCD, 0x10},
		{0x3C, 0x0A},
		{0xA8, 0x01},
		{0x74, 0x05},
		{0x01, 0xCB},
		{0x2B, 0xD0},
		{0x83, 0xC1, 0x05},
		{0x83, 0xE8, 0x01},
		{0x40, 0x00},
		{0x4A, 0x00},
		{0xB0, 'F'},
		{0xBF, 0x00, 0x80, 0x0B, 0x00},
		{0x53, 0x00},
		{0x5B, 0x00},
		{0x0F, 0x20, 0xD8},
		{0x0F, 0x22, 0xC0},
	}

	for _, code := range codes {
		in, err := decoder.Decode(code, 0)
		if err != nil {
			t.Fatalf("% x: %v", code, err)
		}

		ref, err := x86asm.Decode(code, 32)
		if err != nil {
			t.Fatalf("x86asm % x: %v", code, err)
		}

		if in.Size != ref.Len {
			t.Errorf("% x (%s): expected: %d, actual: %d", code, ref, ref.Len, in.Size)
		}
	}
}

func TestDecodeAtOffset(t *testing.T) {
	t.Parallel()

	mem := make([]byte, 0x8000)
	copy(mem[0x7C00:], []byte{0xB0, 'F', 0xE6, 0xF8, 0xF4, 0x00})

	pc := uint32(0x7C00)

	var ops []decoder.Op

	for n := 0; n < 3; n++ {
		in, err := decoder.Decode(mem, pc)
		if err != nil {
			t.Fatal(err)
		}

		ops = append(ops, in.Op)
		pc += uint32(in.Size)
	}

	want := []decoder.Op{decoder.OpMOV, decoder.OpOUT, decoder.OpHLT}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected: %v, actual: %v", want, ops)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	cases := [][]byte{
		{},
		{0x90},
		{0xB8, 0x01, 0x02, 0x03},
		{0x83, 0xC0},
		{0x0F, 0x20},
		// mod=01 rm=100: SIB and disp8 missing.
		{0x01, 0x44},
		// mod=10: disp32 cut short.
		{0x03, 0x80, 0x01, 0x02},
	}

	for _, code := range cases {
		if _, err := decoder.Decode(code, 0); err == nil {
			t.Errorf("% x: got nil, want err", code)
		} else if !errors.Is(err, decoder.ErrTruncated) && !errors.Is(err, decoder.ErrMemoryOperand) {
			t.Errorf("% x: unexpected error %v", code, err)
		}
	}

	// A two-byte instruction in the last byte of RAM.
	mem := []byte{0x00, 0x00, 0x00, 0xE6}
	if _, err := decoder.Decode(mem, 3); !errors.Is(err, decoder.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, actual %v", err)
	}

	if _, err := decoder.Decode(mem, 0xFFFFFFFF); !errors.Is(err, decoder.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, actual %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code []byte
		err  error
	}{
		{[]byte{0x01, 0x08}, decoder.ErrMemoryOperand},
		{[]byte{0x03, 0x45, 0x10}, decoder.ErrMemoryOperand},
		{[]byte{0x0F, 0x20, 0x00}, decoder.ErrMemoryOperand},
		{[]byte{0x83, 0xF8, 0x01}, decoder.ErrOpcodeExtension},
		{[]byte{0x83, 0xC8, 0x01}, decoder.ErrOpcodeExtension},
		{[]byte{0x0F, 0x01, 0x00}, decoder.ErrUnknownOpcode},
		{[]byte{0xFF, 0xFF}, decoder.ErrUnknownOpcode},
		{[]byte{0x66, 0x90}, decoder.ErrUnknownOpcode},
	}

	for _, c := range cases {
		if _, err := decoder.Decode(c.code, 0); !errors.Is(err, c.err) {
			t.Errorf("% x: expected: %v, actual: %v", c.code, c.err, err)
		}
	}
}

func TestParseModRM(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code     []byte
		n        int
		disp     int32
		dispSize int
		sib      *decoder.SIB
	}{
		{[]byte{0xC8}, 1, 0, 0, nil},
		{[]byte{0x45, 0xF0}, 2, -16, 1, nil},
		{[]byte{0x85, 0x00, 0x10, 0x00, 0x00}, 5, 0x1000, 4, nil},
		{[]byte{0x05, 0x78, 0x56, 0x34, 0x12}, 5, 0x12345678, 4, nil},
		// [eax+ecx*4]
		{[]byte{0x04, 0x88}, 2, 0, 0, &decoder.SIB{Scale: 4, Index: 1, Base: 0}},
		// [ecx*8+disp32]
		{[]byte{0x04, 0xCD, 0x00, 0x00, 0x01, 0x00}, 6, 0x10000, 4, &decoder.SIB{Scale: 8, Index: 1, Base: 5}},
		// [esp+disp8]
		{[]byte{0x44, 0x24, 0x08}, 3, 8, 1, &decoder.SIB{Scale: 1, Index: 4, Base: 4}},
	}

	for _, c := range cases {
		m, n, err := decoder.ParseModRM(c.code)
		if err != nil {
			t.Fatalf("% x: %v", c.code, err)
		}

		if n != c.n || m.Disp != c.disp || m.DispSize != c.dispSize {
			t.Errorf("% x: expected: n=%d disp=%d/%d, actual: n=%d disp=%d/%d",
				c.code, c.n, c.disp, c.dispSize, n, m.Disp, m.DispSize)
		}

		switch {
		case c.sib == nil && m.SIB != nil:
			t.Errorf("% x: unexpected SIB %+v", c.code, *m.SIB)
		case c.sib != nil && (m.SIB == nil || *m.SIB != *c.sib):
			t.Errorf("% x: expected SIB %+v, actual %+v", c.code, *c.sib, m.SIB)
		}
	}
}
