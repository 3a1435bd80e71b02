package memory

import (
	"errors"
	"fmt"
)

var (
	errAddrSpaceOccupied = errors.New("address space occupied")
	errAddrSpaceOutside  = errors.New("address space outside of parent")
	errAddrSpaceNotFound = errors.New("unable to find address space")
)

// AddressSpace is a named guest-physical range. Children partition the
// parent and may not overlap each other.
type AddressSpace struct {
	Name      string
	Start     uint64
	Size      uint32
	Addresses []*AddressSpace
}

func NewAddressSpace(name string, start uint64, size uint32) *AddressSpace {
	return &AddressSpace{
		Name:  name,
		Start: start,
		Size:  size,
	}
}

// End returns the first address past the range.
func (a *AddressSpace) End() uint64 {
	return a.Start + uint64(a.Size)
}

// AddAddress registers a child range.
func (a *AddressSpace) AddAddress(addr *AddressSpace) error {
	if !a.InRange(addr) {
		return fmt.Errorf("%w: %s [%#x, %#x)", errAddrSpaceOutside, addr.Name, addr.Start, addr.End())
	}

	if !a.IsFree(addr) {
		return fmt.Errorf("%w: %s", errAddrSpaceOccupied, addr.Name)
	}

	a.Addresses = append(a.Addresses, addr)

	return nil
}

// InRange reports whether addr lies entirely inside a.
func (a *AddressSpace) InRange(addr *AddressSpace) bool {
	return a.Start <= addr.Start && addr.End() <= a.End()
}

// Overlaps reports whether a and b share at least one byte.
func (a *AddressSpace) Overlaps(b *AddressSpace) bool {
	return a.Start < b.End() && b.Start < a.End()
}

// IsFree reports whether ad overlaps none of the registered children.
func (a *AddressSpace) IsFree(ad *AddressSpace) bool {
	for _, addr := range a.Addresses {
		if addr.Overlaps(ad) {
			return false
		}
	}

	return true
}

// Lookup returns the child with the given name.
func (a *AddressSpace) Lookup(name string) (*AddressSpace, error) {
	for _, addr := range a.Addresses {
		if addr.Name == name {
			return addr, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", errAddrSpaceNotFound, name)
}
