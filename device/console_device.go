package device

import "io"

// ConsolePort is the debug console port the boot guest prints through.
const ConsolePort = 0xF8

// ConsoleDevice copies every byte written to its port to a text sink.
type ConsoleDevice struct {
	Port uint64
	out  io.Writer
}

func NewConsole(port uint64, out io.Writer) *ConsoleDevice {
	return &ConsoleDevice{Port: port, out: out}
}

// SetOutput redirects console bytes, e.g. to capture them in tests.
func (c *ConsoleDevice) SetOutput(w io.Writer) {
	c.out = w
}

func (c *ConsoleDevice) Read(port uint64, data []byte) error {
	return nil
}

func (c *ConsoleDevice) Write(port uint64, data []byte) error {
	if len(data) != 1 {
		return errDataLenInvalid
	}

	return WriteFlush(c.out, data)
}

func (c *ConsoleDevice) IOPort() uint64 {
	return c.Port
}

func (c *ConsoleDevice) Size() uint64 {
	return 0x1
}
