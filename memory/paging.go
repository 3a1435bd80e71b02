package memory

import "encoding/binary"

const (
	// CR0PG is the paging enable bit of CR0.
	CR0PG = 1 << 31

	pteP       = 1
	pageMask   = 0xFFFFF000
	tableIndex = 0x3FF
)

// Translate maps a linear address to a guest-physical one using two-level
// 32-bit paging rooted at cr3.
//
// Paging disabled, RAM smaller than a page, a non-present PDE or PTE, and an
// entry address past the end of RAM all return linear unchanged. The last
// three cases are not what hardware does (it would raise #PF); guests
// written against this machine rely on the identity fallback.
func (m *Memory) Translate(cr0, cr3, linear uint32) uint32 {
	if cr0&CR0PG == 0 || len(m.buf) < PageSize {
		return linear
	}

	pde, ok := m.entry(cr3&pageMask, linear>>22)
	if !ok || pde&pteP == 0 {
		return linear
	}

	pte, ok := m.entry(pde&pageMask, (linear>>12)&tableIndex)
	if !ok || pte&pteP == 0 {
		return linear
	}

	return pte&pageMask + linear&(PageSize-1)
}

func (m *Memory) entry(base, index uint32) (uint32, bool) {
	addr := uint64(base) + uint64(index&tableIndex)*4
	if addr+4 > uint64(len(m.buf)) {
		return 0, false
	}

	return binary.LittleEndian.Uint32(m.buf[addr:]), true
}
