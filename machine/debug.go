package machine

import (
	"fmt"
	"io"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
	"golang.org/x/arch/x86/x86asm"
)

// Inst decodes the instruction at CS:EIP with x86asm. It returns the
// instruction and its GNU syntax.
func (m *Machine) Inst() (*x86asm.Inst, string, error) {
	pc := m.mem.Translate(m.cpu.CR0, m.cpu.CR3, m.cpu.PC())

	insn := make([]byte, fetchWindow)
	if err := m.mem.Read(pc, insn); err != nil {
		return nil, "", fmt.Errorf("reading PC at %#x: %w", pc, err)
	}

	d, err := Disasm(insn)
	if err != nil {
		return nil, "", fmt.Errorf("decoding % x: %w", insn, err)
	}

	return &d, Asm(&d, uint64(m.cpu.EIP)), nil
}

// Disasm decodes one instruction with 32-bit operand size, the size the
// execution engine uses.
func Disasm(code []byte) (x86asm.Inst, error) {
	return x86asm.Decode(code, 32)
}

// Asm returns the GNU syntax of d at pc.
func Asm(d *x86asm.Inst, pc uint64) string {
	return x86asm.GNUSyntax(*d, pc, nil)
}

func (m *Machine) traceInst(phys uint32) {
	if m.Trace == nil {
		return
	}

	_, asm, err := m.Inst()
	if err != nil {
		asm = err.Error()
	}

	fmt.Fprintf(m.Trace, "[%d] %04x:%04x (%#06x) %s\n", m.executed, m.cpu.Seg[cpu.CS], m.cpu.EIP, phys, asm)
}

// Listing disassembles code as if loaded at base. Each line shows the
// bytes, the instruction as the machine executes it ("-" if it cannot)
// and the x86asm GNU syntax.
func Listing(w io.Writer, code []byte, base uint32) error {
	padded := make([]byte, len(code)+fetchWindow)
	copy(padded, code)

	for off := 0; off < len(code); {
		n, emu := 1, "-"

		if in, err := decoder.Decode(padded, uint32(off)); err == nil && off+in.Size <= len(code) {
			n, emu = in.Size, in.String()
		}

		gnu := "(bad)"

		if d, err := Disasm(code[off:]); err == nil {
			gnu = Asm(&d, uint64(base)+uint64(off))

			if emu == "-" {
				n = d.Len
			}
		}

		if _, err := fmt.Fprintf(w, "%08x  %-24s %-24s %s\n", base+uint32(off), fmt.Sprintf("% x", code[off:off+n]), emu, gnu); err != nil {
			return err
		}

		off += n
	}

	return nil
}
