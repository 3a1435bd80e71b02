package machine

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bpforbes/flinstone/block"
	"github.com/bpforbes/flinstone/cpu"
	"github.com/bpforbes/flinstone/decoder"
	"github.com/bpforbes/flinstone/device"
	"github.com/bpforbes/flinstone/display"
	"github.com/bpforbes/flinstone/engine"
	"github.com/bpforbes/flinstone/iodev"
	"github.com/bpforbes/flinstone/memory"
	"github.com/bpforbes/flinstone/serial"
)

const (
	// DefaultQuantum is the number of instructions one CPU task runs.
	DefaultQuantum = 64

	// fetchWindow is the number of bytes that must be addressable at the
	// fetch address before an instruction is decoded.
	fetchWindow = 16

	// TickStep is how far one timer task advances the logical clock.
	TickStep = 1

	inputQueueLen = 256
)

var (
	ErrFetchOutOfBounds = errors.New("instruction fetch out of bounds")
	errImageTooLarge    = errors.New("image does not fit in guest RAM")
)

// Machine is one emulated PC. It is driven from a single goroutine; host
// input reaches it only through the channels returned by GetInputChan and
// GetKeyChan, which are drained by PumpInput.
type Machine struct {
	mem *memory.Memory
	cpu cpu.State
	bus *iodev.Bus

	console *device.ConsoleDevice
	serial  *serial.Serial
	ide     *iodev.IDE
	kbd     iodev.ScancodeRing
	kbdCtl  *iodev.Keyboard
	pit     *iodev.PIT
	pics    [2]*iodev.PIC

	disk  *block.Image
	ticks uint64

	running bool
	paused  bool

	serialIn chan byte
	keyIn    chan byte

	checkpoint *checkpoint

	executed uint64
	eois     uint64

	// TraceEvery, when non-zero, prints every TraceEvery-th instruction
	// to Trace before it executes.
	TraceEvery uint64
	Trace      io.Writer
}

// New creates a machine with memSize bytes of RAM and the default device
// set. Guest console output goes to out.
func New(memSize int, out io.Writer) (*Machine, error) {
	mem, err := memory.New(memSize)
	if err != nil {
		return nil, err
	}

	layout, err := newLayout(memSize)
	if err != nil {
		mem.Close()

		return nil, err
	}

	mem.AS = layout

	m := &Machine{
		mem:      mem,
		cpu:      *cpu.New(),
		bus:      iodev.NewBus(),
		console:  device.NewConsole(device.ConsolePort, out),
		serial:   serial.New(out),
		ide:      iodev.NewIDE(nil),
		serialIn: make(chan byte, inputQueueLen),
		keyIn:    make(chan byte, inputQueueLen),
		Trace:    os.Stderr,
	}

	m.kbdCtl = iodev.NewKeyboard(&m.kbd, nil)
	m.pit = iodev.NewPIT(m)
	m.pics = [2]*iodev.PIC{
		iodev.NewPIC(iodev.PICMasterBase, 0, m),
		iodev.NewPIC(iodev.PICSlaveBase, 8, m),
	}

	if err := m.initIOPortHandlers(); err != nil {
		mem.Close()

		return nil, err
	}

	return m, nil
}

func (m *Machine) initIOPortHandlers() error {
	return m.bus.Register(
		m.pics[0],
		m.pics[1],
		m.pit,
		m.kbdCtl,
		m.console,
		m.ide,
		m.serial,

		iodev.NewStub("cmos", 0x70, 2),
		iodev.NewStub("dma-page", 0x80, 0x20),
		iodev.NewStub("com2", 0x2f8, 8),
		iodev.NewStub("com3", 0x3e8, 8),
		iodev.NewStub("com4", 0x2e8, 8),
		iodev.NewStub("vga-crtc", 0x3b4, 2),
		iodev.NewStub("vga", 0x3c0, 0x1b),
	)
}

// Close releases guest RAM and the disk image.
func (m *Machine) Close() error {
	var errs []error

	if m.disk != nil {
		errs = append(errs, m.disk.Close())
		m.disk = nil
	}

	errs = append(errs, m.mem.Close())

	return errors.Join(errs...)
}

// SetOutput redirects guest console and serial output.
func (m *Machine) SetOutput(w io.Writer) {
	m.console.SetOutput(w)
	m.serial.SetOutput(w)
}

// SetTrace sends unclaimed-port and UART register traces to w.
func (m *Machine) SetTrace(w io.Writer) {
	m.bus.Trace = w
	m.serial.Trace = w
}

// AddDisk attaches a raw disk image of sizeMB MiB to the IDE controller,
// creating the file if needed.
func (m *Machine) AddDisk(path string, sizeMB uint) error {
	img, err := block.Open(path, sizeMB)
	if err != nil {
		return err
	}

	if m.disk != nil {
		m.disk.Close()
	}

	m.disk = img
	m.ide.SetDisk(img)

	return nil
}

// LoadImage resets the CPU and copies image to BootAddr.
func (m *Machine) LoadImage(image []byte) error {
	region := memory.NewAddressSpace("boot", BootAddr, uint32(len(image)))

	if !m.mem.AS.InRange(region) || !m.mem.AS.IsFree(region) {
		return fmt.Errorf("%w: %d bytes at %#x, RAM %#x", errImageTooLarge, len(image), BootAddr, m.mem.Size())
	}

	if err := m.mem.Load(BootAddr, image); err != nil {
		return err
	}

	m.cpu.Reset()
	m.running = true

	return nil
}

// LoadImageFile loads a raw boot image from path.
func (m *Machine) LoadImageFile(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return m.LoadImage(image)
}

// LoadBuiltinGuest loads BuiltinGuest and draws the banner on the text page.
func (m *Machine) LoadBuiltinGuest() error {
	if err := m.LoadImage(BuiltinGuest()); err != nil {
		return err
	}

	if _, err := m.mem.AS.Lookup("vga-text"); err != nil {
		return nil
	}

	for i, c := range []byte(bannerText) {
		if err := m.mem.Write16(display.TextBase+uint32(2*i), bannerAttr<<8|uint16(c)); err != nil {
			return err
		}
	}

	return nil
}

// CPU returns the live CPU state.
func (m *Machine) CPU() *cpu.State {
	return &m.cpu
}

// Memory returns guest RAM.
func (m *Machine) Memory() *memory.Memory {
	return m.mem
}

func (m *Machine) Halted() bool {
	return m.cpu.Halted
}

// Running reports whether an image is loaded and the guest has not halted.
func (m *Machine) Running() bool {
	return m.running && !m.cpu.Halted
}

func (m *Machine) Paused() bool {
	return m.paused
}

// SetPaused stops or resumes CPU tasks without touching guest state.
func (m *Machine) SetPaused(p bool) {
	m.paused = p
}

// Executed returns the number of instructions retired since New.
func (m *Machine) Executed() uint64 {
	return m.executed
}

// EOIs returns the number of end-of-interrupt commands the PICs received.
func (m *Machine) EOIs() uint64 {
	return m.eois
}

// TickCount implements iodev.TickSource for the PIT.
func (m *Machine) TickCount() uint64 {
	return m.ticks
}

// EOI implements iodev.InterruptController. No interrupt is ever raised,
// so acknowledgements are only counted.
func (m *Machine) EOI(int) {
	m.eois++
}

// AdvanceTicks moves the logical clock forward by n ticks.
func (m *Machine) AdvanceTicks(n uint64) {
	m.ticks += n
}

// Tick is the timer task.
func (m *Machine) Tick() {
	m.AdvanceTicks(TickStep)
}

// SetKeyboardPoller attaches a host keyboard that port 0x60 falls back to
// when the scancode queue is empty. Polled scancodes are not part of a
// checkpoint, so replay is only exact while no poller is attached.
func (m *Machine) SetKeyboardPoller(p iodev.ScancodePoller) {
	m.kbdCtl.SetPoller(p)
}

// PushScancode queues a scancode for the guest. It fails when the queue
// is full and the scancode is dropped.
func (m *Machine) PushScancode(sc byte) error {
	return m.kbd.Push(sc)
}

// GetInputChan returns the channel feeding the UART receive FIFO.
func (m *Machine) GetInputChan() chan<- byte {
	return m.serialIn
}

// GetKeyChan returns the channel feeding the keyboard queue.
func (m *Machine) GetKeyChan() chan<- byte {
	return m.keyIn
}

// PumpInput moves pending host input into the devices. It never blocks.
func (m *Machine) PumpInput() {
	for {
		select {
		case b := <-m.serialIn:
			m.serial.Receive(b)
		case sc := <-m.keyIn:
			// A full queue drops the scancode, as a real controller would.
			_ = m.kbd.Push(sc)
		default:
			return
		}
	}
}

// Step fetches, decodes and executes one instruction. It does nothing
// once the guest has halted. On error the machine is left as it was after
// the last instruction that completed.
func (m *Machine) Step() error {
	if m.cpu.Halted {
		return nil
	}

	linear := m.cpu.PC()
	phys := m.mem.Translate(m.cpu.CR0, m.cpu.CR3, linear)

	if uint64(phys)+fetchWindow > uint64(m.mem.Size()) {
		return fmt.Errorf("%w: %04x:%04x (%#x)", ErrFetchOutOfBounds, m.cpu.Seg[cpu.CS], m.cpu.EIP, phys)
	}

	in, err := decoder.Decode(m.mem.Bytes(), phys)
	if err != nil {
		return fmt.Errorf("%04x:%04x: %w", m.cpu.Seg[cpu.CS], m.cpu.EIP, err)
	}

	if m.TraceEvery != 0 && m.executed%m.TraceEvery == 0 {
		m.traceInst(phys)
	}

	branched, err := engine.Execute(&m.cpu, m.mem, m.bus, in)
	if err != nil {
		return fmt.Errorf("%04x:%04x %v: %w", m.cpu.Seg[cpu.CS], m.cpu.EIP, in, err)
	}

	if !branched {
		m.cpu.EIP += uint32(in.Size)
	}

	m.executed++

	return nil
}

// RunCycles executes up to n instructions, stopping early on HLT. It
// returns the number of instructions executed.
func (m *Machine) RunCycles(n int) (int, error) {
	count := 0

	for count < n && !m.cpu.Halted {
		if err := m.Step(); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}

// RunQuantum is the CPU task: one quantum of instructions unless the
// machine is paused.
func (m *Machine) RunQuantum(quantum int) (int, error) {
	if m.paused {
		return 0, nil
	}

	return m.RunCycles(quantum)
}

// Frame copies the VGA text page into a display frame. It reports false
// when the page lies outside RAM.
func (m *Machine) Frame() (*display.Frame, bool) {
	buf := make([]byte, display.TextSize)

	if err := m.mem.Read(display.TextBase, buf); err != nil {
		return nil, false
	}

	f, err := display.FrameFromBytes(buf)
	if err != nil {
		return nil, false
	}

	return f, true
}

// RefreshDisplay is the display task. Sink errors are returned to the
// caller, which is free to ignore them.
func (m *Machine) RefreshDisplay(sink display.Sink) error {
	if sink == nil {
		return nil
	}

	f, ok := m.Frame()
	if !ok {
		return nil
	}

	return sink.Refresh(f)
}
