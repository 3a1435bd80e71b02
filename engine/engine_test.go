package engine_test

import (
	"errors"
	"testing"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
	"github.com/bpforbes/flinstone/engine"
	"github.com/bpforbes/flinstone/memory"
)

type portLog struct {
	in  map[uint16]uint32
	out []uint32
}

func (p *portLog) In(port uint16, _ int) uint32 {
	if v, ok := p.in[port]; ok {
		return v
	}

	return 0xFF
}

func (p *portLog) Out(_ uint16, v uint32, _ int) {
	p.out = append(p.out, v)
}

func setup(t *testing.T) (*cpu.State, *memory.Memory, *portLog) {
	t.Helper()

	mem, err := memory.New(0x20000)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = mem.Close() })

	return cpu.New(), mem, &portLog{in: map[uint16]uint32{}}
}

// run decodes code and executes it, returning whether it branched.
func run(t *testing.T, st *cpu.State, mem *memory.Memory, io engine.PortIO, code ...byte) bool {
	t.Helper()

	in, err := decoder.Decode(append(code, 0x00, 0x00), 0)
	if err != nil {
		t.Fatalf("decode % x: %v", code, err)
	}

	branched, err := engine.Execute(st, mem, io, in)
	if err != nil {
		t.Fatalf("execute %s: %v", in, err)
	}

	return branched
}

func TestHltAndNop(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)

	run(t, st, mem, io, 0x90)

	if st.Halted {
		t.Fatal("NOP halted the CPU")
	}

	run(t, st, mem, io, 0xF4)

	if !st.Halted {
		t.Fatal("HLT did not halt the CPU")
	}
}

func TestMovOut(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetReg(cpu.EAX, 0x12345678)
	st.SetReg(cpu.ESP, 0x1000)

	run(t, st, mem, io, 0xB0, 'F')

	if st.Reg(cpu.EAX) != 'F' {
		t.Fatalf("expected: %#x, actual: %#x", 'F', st.Reg(cpu.EAX))
	}

	// B4 names ESP, not AH.
	run(t, st, mem, io, 0xB4, 0x07)

	if st.Reg(cpu.ESP) != 0x07 || st.Reg(cpu.EAX) != 'F' {
		t.Fatalf("esp=%#x eax=%#x", st.Reg(cpu.ESP), st.Reg(cpu.EAX))
	}

	run(t, st, mem, io, 0xE6, 0xF8)

	if len(io.out) != 1 || io.out[0] != 'F' {
		t.Fatalf("expected: [70], actual: %v", io.out)
	}

	run(t, st, mem, io, 0xBB, 0x78, 0x56, 0x34, 0x12)

	if st.Reg(cpu.EBX) != 0x12345678 {
		t.Fatalf("expected: %#x, actual: %#x", 0x12345678, st.Reg(cpu.EBX))
	}
}

func TestIn(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	io.in[0x60] = 0x1E

	run(t, st, mem, io, 0xE4, 0x60)

	if st.Reg8(cpu.AL) != 0x1E {
		t.Fatalf("expected: %#x, actual: %#x", 0x1E, st.Reg8(cpu.AL))
	}

	run(t, st, mem, io, 0xE4, 0x99)

	if st.Reg8(cpu.AL) != 0xFF {
		t.Fatalf("expected: 0xff, actual: %#x", st.Reg8(cpu.AL))
	}
}

func TestArithmeticFlags(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetReg(cpu.EAX, 5)
	st.SetReg(cpu.ECX, 5)

	run(t, st, mem, io, 0x29, 0xC8) // sub eax, ecx

	if st.Reg(cpu.EAX) != 0 || !st.Flag(cpu.FlagZF) || st.Flag(cpu.FlagCF) {
		t.Fatalf("sub: eax=%#x eflags=%#x", st.Reg(cpu.EAX), st.EFLAGS)
	}

	run(t, st, mem, io, 0x83, 0xE8, 0x01) // sub eax, 1

	if st.Reg(cpu.EAX) != 0xFFFFFFFF || !st.Flag(cpu.FlagCF) || !st.Flag(cpu.FlagSF) || st.Flag(cpu.FlagZF) {
		t.Fatalf("sub imm: eax=%#x eflags=%#x", st.Reg(cpu.EAX), st.EFLAGS)
	}

	run(t, st, mem, io, 0x40) // inc eax

	if st.Reg(cpu.EAX) != 0 || !st.Flag(cpu.FlagZF) || !st.Flag(cpu.FlagCF) {
		t.Fatalf("inc: eax=%#x eflags=%#x", st.Reg(cpu.EAX), st.EFLAGS)
	}

	run(t, st, mem, io, 0x03, 0xC1) // add eax, ecx

	if st.Reg(cpu.EAX) != 5 || st.Flag(cpu.FlagZF) || st.Flag(cpu.FlagCF) {
		t.Fatalf("add: eax=%#x eflags=%#x", st.Reg(cpu.EAX), st.EFLAGS)
	}

	run(t, st, mem, io, 0x49) // dec ecx

	if st.Reg(cpu.ECX) != 4 {
		t.Fatalf("dec: expected: 4, actual: %d", st.Reg(cpu.ECX))
	}
}

func TestCmpTestBranch(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetReg8(cpu.AL, 'A')

	run(t, st, mem, io, 0x3C, 'A')

	if !st.Flag(cpu.FlagZF) {
		t.Fatal("CMP equal did not set ZF")
	}

	st.EIP = 0x10

	if !run(t, st, mem, io, 0x74, 0x04) || st.EIP != 0x16 {
		t.Fatalf("taken jz: eip=%#x", st.EIP)
	}

	if run(t, st, mem, io, 0x75, 0x04) || st.EIP != 0x16 {
		t.Fatalf("jnz with ZF set: eip=%#x", st.EIP)
	}

	run(t, st, mem, io, 0xA8, 0x80)

	if !st.Flag(cpu.FlagZF) {
		t.Fatal("TEST 'A'&0x80 did not set ZF")
	}

	run(t, st, mem, io, 0x3C, 'B')

	if st.Flag(cpu.FlagZF) || !st.Flag(cpu.FlagCF) {
		t.Fatalf("cmp below: eflags=%#x", st.EFLAGS)
	}
}

func TestJmpRelativeToNextInstruction(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.EIP = 0x100

	if !run(t, st, mem, io, 0xEB, 0xFE) {
		t.Fatal("JMP did not report a branch")
	}

	// jmp $ loops on itself.
	if st.EIP != 0x100 {
		t.Fatalf("expected: %#x, actual: %#x", 0x100, st.EIP)
	}

	run(t, st, mem, io, 0xEB, 0x10)

	if st.EIP != 0x112 {
		t.Fatalf("expected: %#x, actual: %#x", 0x112, st.EIP)
	}
}

func TestPushPop(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetReg(cpu.EBX, 0xDEADBEEF)

	run(t, st, mem, io, 0x53) // push ebx

	if st.SP() != 0xFFFC {
		t.Fatalf("expected: %#x, actual: %#x", 0xFFFC, st.SP())
	}

	if v, _ := mem.Read32(0xFFFC); v != 0xDEADBEEF {
		t.Fatalf("expected: %#x, actual: %#x", 0xDEADBEEF, v)
	}

	run(t, st, mem, io, 0x59) // pop ecx

	if st.Reg(cpu.ECX) != 0xDEADBEEF || st.SP() != 0 {
		t.Fatalf("ecx=%#x sp=%#x", st.Reg(cpu.ECX), st.SP())
	}
}

func TestPushOutsideRAM(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.Seg[cpu.SS] = 0xF000
	before := *st

	in, err := decoder.Decode([]byte{0x50, 0x00}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Execute(st, mem, io, in); !errors.Is(err, engine.ErrStack) {
		t.Fatalf("expected ErrStack, actual %v", err)
	}

	if *st != before {
		t.Fatalf("failed push changed state: %s", st)
	}
}

func TestIntIret(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)

	// Vector 0x21 -> 0x0900:0x0040.
	_ = mem.Write16(0x21*4, 0x0040)
	_ = mem.Write16(0x21*4+2, 0x0900)

	st.EFLAGS = 0xABCD0246
	st.EIP = 0x0010
	st.SetSP(0x8000)

	if run(t, st, mem, io, 0xCD, 0x21) {
		t.Fatal("INT reported a branch")
	}

	if st.Seg[cpu.CS] != 0x0900 || st.EIP != 0x0040 || st.SP() != 0x7FFA {
		t.Fatalf("after int: %s", st)
	}

	if ip, _ := mem.Read16(0x7FFA); ip != 0x0010 {
		t.Fatalf("pushed ip: expected: %#x, actual: %#x", 0x0010, ip)
	}

	if cs, _ := mem.Read16(0x7FFC); cs != cpu.BootCS {
		t.Fatalf("pushed cs: expected: %#x, actual: %#x", cpu.BootCS, cs)
	}

	if fl, _ := mem.Read16(0x7FFE); fl != 0x0246 {
		t.Fatalf("pushed flags: expected: %#x, actual: %#x", 0x0246, fl)
	}

	st.EFLAGS = 0x12340000

	if run(t, st, mem, io, 0xCF) {
		t.Fatal("IRET reported a branch")
	}

	if st.Seg[cpu.CS] != cpu.BootCS || st.EIP != 0x0010 || st.SP() != 0x8000 || st.EFLAGS != 0x12340246 {
		t.Fatalf("after iret: %s", st)
	}
}

func TestIntVectorOutOfRangeIsAtomic(t *testing.T) {
	t.Parallel()

	mem, err := memory.New(0x200)
	if err != nil {
		t.Fatal(err)
	}

	defer mem.Close()

	st := cpu.New()
	st.SetSP(0x100)
	before := *st

	in, err := decoder.Decode([]byte{0xCD, 0xFF}, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Execute(st, mem, &portLog{}, in); !errors.Is(err, engine.ErrVectorOutOfRange) {
		t.Fatalf("expected ErrVectorOutOfRange, actual %v", err)
	}

	if *st != before {
		t.Fatalf("failed INT changed state: %s", st)
	}

	for i, b := range mem.Bytes() {
		if b != 0 {
			t.Fatalf("failed INT wrote memory at %#x", i)
		}
	}
}

func TestRet(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetSP(0x7000)
	_ = mem.Write16(0x7000, 0x1234)

	if run(t, st, mem, io, 0xC3) {
		t.Fatal("RET reported a branch")
	}

	if st.EIP != 0x1234 || st.SP() != 0x7002 {
		t.Fatalf("after ret: %s", st)
	}
}

func TestStosbWraps(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.Seg[cpu.ES] = 0x1000
	st.SetReg(cpu.EDI, 0x0001FFFF)
	st.SetReg8(cpu.AL, 0x5A)

	run(t, st, mem, io, 0xAA)

	if v, _ := mem.Read8(0x1FFFF); v != 0x5A {
		t.Fatalf("expected: 0x5a, actual: %#x", v)
	}

	if st.Reg(cpu.EDI) != 0x00010000 {
		t.Fatalf("expected: %#x, actual: %#x", 0x00010000, st.Reg(cpu.EDI))
	}
}

func TestMovCR(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)
	st.SetReg(cpu.EAX, 0x80000001)

	run(t, st, mem, io, 0x0F, 0x22, 0xC0) // mov cr0, eax

	if st.CR0 != 0x80000001 {
		t.Fatalf("expected: %#x, actual: %#x", 0x80000001, st.CR0)
	}

	st.CR3 = 0x1000
	run(t, st, mem, io, 0x0F, 0x20, 0xDA) // mov edx, cr3

	if st.Reg(cpu.EDX) != 0x1000 {
		t.Fatalf("expected: %#x, actual: %#x", 0x1000, st.Reg(cpu.EDX))
	}

	in, err := decoder.Decode([]byte{0x0F, 0x20, 0xE0}, 0) // mov eax, cr4
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Execute(st, mem, io, in); !errors.Is(err, engine.ErrUnsupportedControlRegister) {
		t.Fatalf("expected ErrUnsupportedControlRegister, actual %v", err)
	}
}

func TestUnknownInstruction(t *testing.T) {
	t.Parallel()

	st, mem, io := setup(t)

	_, err := engine.Execute(st, mem, io, decoder.Instruction{Op: decoder.OpUnknown, Size: 1})
	if !errors.Is(err, engine.ErrUnimplemented) {
		t.Fatalf("expected ErrUnimplemented, actual %v", err)
	}
}
