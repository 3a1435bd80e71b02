package iodev

const (
	PITBase = 0x40

	pitCounter0 = 0
	pitMode     = 3
)

// PIT is an 8253/8254 timer whose counter 0 reports the low byte of a tick
// source rather than a decrementing count.
type PIT struct {
	ticks TickSource
	Mode  uint8
}

func NewPIT(ticks TickSource) *PIT {
	return &PIT{ticks: ticks}
}

func (p *PIT) Read(port uint64, data []byte) error {
	switch port - PITBase {
	case pitCounter0:
		data[0] = 0
		if p.ticks != nil {
			data[0] = byte(p.ticks.TickCount())
		}
	case pitMode:
		data[0] = p.Mode
	default:
		data[0] = 0
	}

	return nil
}

// Write stores the mode byte; counter reloads are ignored.
func (p *PIT) Write(port uint64, data []byte) error {
	if port-PITBase == pitMode {
		p.Mode = data[0]
	}

	return nil
}

func (p *PIT) IOPort() uint64 {
	return PITBase
}

func (p *PIT) Size() uint64 {
	return 0x4
}
