package iodev

const (
	PICMasterBase = 0x20
	PICSlaveBase  = 0xA0
)

// PIC is one 8259A. Writes to the command port are end-of-interrupt
// acknowledgements forwarded to the host controller; the mask register
// reads as all masked and ignores writes.
type PIC struct {
	base    uint64
	irqBase int
	ctrl    InterruptController

	// Command is the last byte written to the command port.
	Command uint8
}

// NewPIC returns a PIC at base whose first line is irqBase (0 for the
// master, 8 for the slave). ctrl may be nil.
func NewPIC(base uint64, irqBase int, ctrl InterruptController) *PIC {
	return &PIC{base: base, irqBase: irqBase, ctrl: ctrl}
}

func (p *PIC) Read(port uint64, data []byte) error {
	if port == p.base {
		data[0] = 0
	} else {
		data[0] = 0xFF
	}

	return nil
}

func (p *PIC) Write(port uint64, data []byte) error {
	if port != p.base {
		return nil
	}

	p.Command = data[0]

	if p.ctrl != nil {
		p.ctrl.EOI(p.irqBase)
	}

	return nil
}

func (p *PIC) IOPort() uint64 {
	return p.base
}

func (p *PIC) Size() uint64 {
	return 0x2
}
