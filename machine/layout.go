package machine

import (
	"fmt"

	"github.com/bpforbes/flinstone/device"
	"github.com/bpforbes/flinstone/display"
	"github.com/bpforbes/flinstone/memory"
)

// GuestPhysAddr
//
//	0x00000000 +------------------+
//	           | IVT              |
//	0x00000400 +------------------+
//	           |                  |
//	0x00007C00 +------------------+ <- CS:IP = 07C0:0000
//	           | boot image       |
//	           +------------------+
//	           |                  |
//	0x000B8000 +------------------+
//	           | VGA text page    |
//	0x000B8FA0 +------------------+
//	           |                  |
//	0x01000000 +------------------+
const (
	BootAddr = 0x7C00

	ivtSize = 0x400
)

// BootMessage is printed by the built-in guest.
const BootMessage = "Flinstone VM\n"

// BuiltinGuest returns a boot image that writes BootMessage to the
// console port one byte at a time and halts.
func BuiltinGuest() []byte {
	code := make([]byte, 0, 4*len(BootMessage)+1)

	for _, c := range []byte(BootMessage) {
		code = append(code,
			0xB0, c, // mov al, c
			0xE6, device.ConsolePort, // out ConsolePort, al
		)
	}

	return append(code, 0xF4) // hlt
}

// bannerText is drawn on the text page before the built-in guest runs.
const bannerText = "Flinstone VM"

const bannerAttr = 0x07

// newLayout registers the fixed regions of guest RAM. The VGA page is
// left out when RAM does not reach it.
func newLayout(size int) (*memory.AddressSpace, error) {
	root := memory.NewAddressSpace("phys-ram", 0, uint32(size))

	regions := []*memory.AddressSpace{
		memory.NewAddressSpace("ivt", 0, ivtSize),
		memory.NewAddressSpace("vga-text", display.TextBase, display.TextSize),
	}

	for _, r := range regions {
		if !root.InRange(r) {
			continue
		}

		if err := root.AddAddress(r); err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
	}

	return root, nil
}
