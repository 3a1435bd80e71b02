package engine

import (
	"fmt"

	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
)

// The stack lives at SS:SP with a 16-bit SP; the upper half of ESP is
// preserved. Every access is checked before any state changes.

func stackAddr(st *cpu.State, sp uint16) uint32 {
	return cpu.LinearAddr(st.Sreg(cpu.SS), uint32(sp))
}

func checkStack(st *cpu.State, mem Memory, sp uint16, n int) error {
	addr := stackAddr(st, sp)
	if uint64(addr)+uint64(n) > uint64(mem.Size()) {
		return fmt.Errorf("%w: ss:sp=%04x:%04x len %d", ErrStack, st.Seg[cpu.SS], sp, n)
	}

	return nil
}

func push(st *cpu.State, mem Memory, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.Register)
	if !ok {
		return badOperands(in)
	}

	sp := st.SP() - 4
	if err := checkStack(st, mem, sp, 4); err != nil {
		return err
	}

	if err := mem.Write32(stackAddr(st, sp), st.Reg(a.Reg)); err != nil {
		return fmt.Errorf("%w: %w", ErrStack, err)
	}

	st.SetSP(sp)

	return nil
}

func pop(st *cpu.State, mem Memory, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.Register)
	if !ok {
		return badOperands(in)
	}

	sp := st.SP()

	v, err := mem.Read32(stackAddr(st, sp))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStack, err)
	}

	st.SetSP(sp + 4)
	st.SetReg(a.Reg, v)

	return nil
}

func ret(st *cpu.State, mem Memory) error {
	sp := st.SP()

	ip, err := mem.Read16(stackAddr(st, sp))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStack, err)
	}

	st.SetSP(sp + 2)
	st.EIP = uint32(ip)

	return nil
}

// interrupt pushes FLAGS, CS and the IP of the INT itself, then loads CS:IP
// from the real-mode IVT entry at vector*4. Nothing happens unless the IVT
// entry and all three stack slots are inside RAM.
func interrupt(st *cpu.State, mem Memory, in decoder.Instruction) error {
	a, ok := in.Args.(decoder.Vector)
	if !ok {
		return badOperands(in)
	}

	ivt := uint32(a.Vector) * 4

	newIP, err := mem.Read16(ivt)
	if err != nil {
		return fmt.Errorf("%w: int %#02x: %w", ErrVectorOutOfRange, a.Vector, err)
	}

	newCS, err := mem.Read16(ivt + 2)
	if err != nil {
		return fmt.Errorf("%w: int %#02x: %w", ErrVectorOutOfRange, a.Vector, err)
	}

	sp := st.SP()
	frame := [3]uint16{uint16(st.EFLAGS), st.Seg[cpu.CS], uint16(st.EIP)}

	for i := range frame {
		if err := checkStack(st, mem, sp-uint16(2*(i+1)), 2); err != nil {
			return err
		}
	}

	for _, v := range frame {
		sp -= 2
		if err := mem.Write16(stackAddr(st, sp), v); err != nil {
			return fmt.Errorf("%w: %w", ErrStack, err)
		}
	}

	st.SetSP(sp)
	st.EIP = uint32(newIP)
	st.Seg[cpu.CS] = newCS

	return nil
}

// iret pops IP, CS and FLAGS. The upper 16 bits of EFLAGS are kept.
func iret(st *cpu.State, mem Memory) error {
	sp := st.SP()

	var frame [3]uint16

	for i := range frame {
		v, err := mem.Read16(stackAddr(st, sp+uint16(2*i)))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStack, err)
		}

		frame[i] = v
	}

	st.SetSP(sp + 6)
	st.EIP = uint32(frame[0])
	st.Seg[cpu.CS] = frame[1]
	st.EFLAGS = st.EFLAGS&0xFFFF0000 | uint32(frame[2])

	return nil
}
