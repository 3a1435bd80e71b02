package vmm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpforbes/flinstone/display"
	"github.com/bpforbes/flinstone/machine"
	"github.com/bpforbes/flinstone/sched"
	"github.com/bpforbes/flinstone/term"
	"golang.org/x/sync/errgroup"
)

// Task priorities; a lower layer is served first.
const (
	PrioCPU     = 0
	PrioDisplay = 1
	PrioTimer   = 2
)

const (
	DisplayNone     = "none"
	DisplayTerminal = "terminal"
	DisplayWindow   = "window"

	pausePoll = 10 * time.Millisecond
)

var errUnknownDisplay = errors.New("unknown display")

type Config struct {
	// Image is a raw boot image; the built-in guest is used when empty.
	Image      string
	Disk       string
	DiskSizeMB uint
	MemSize    int
	Quantum    int
	TraceCount int

	// Display is one of DisplayNone, DisplayTerminal and DisplayWindow.
	Display     string
	WindowScale int

	CheckpointIn  string
	CheckpointOut string

	// MaxQuanta bounds the run; 0 runs until the guest halts.
	MaxQuanta int
}

type VMM struct {
	*machine.Machine
	Config

	out    *bufio.Writer
	sink   display.Sink
	window *display.Window
}

func New(c Config) *VMM {
	if c.Quantum <= 0 {
		c.Quantum = machine.DefaultQuantum
	}

	if c.Display == "" {
		c.Display = DisplayNone
	}

	return &VMM{
		Machine: nil,
		Config:  c,
		out:     bufio.NewWriter(os.Stdout),
	}
}

// SetOutput sends guest console output to w instead of stdout.
func (v *VMM) SetOutput(w io.Writer) {
	v.out = bufio.NewWriter(w)

	if v.Machine != nil {
		v.Machine.SetOutput(v.out)
	}
}

// Init instantiates a machine.
func (v *VMM) Init() error {
	m, err := machine.New(v.MemSize, v.out)
	if err != nil {
		return err
	}

	if len(v.Disk) > 0 {
		if err := m.AddDisk(v.Disk, v.DiskSizeMB); err != nil {
			m.Close()

			return err
		}
	}

	if v.TraceCount > 0 {
		m.TraceEvery = uint64(v.TraceCount)
		m.SetTrace(os.Stderr)
	}

	switch v.Display {
	case DisplayNone:
	case DisplayTerminal:
		v.sink = display.NewTerminal(os.Stdout)
	case DisplayWindow:
		v.window = display.NewWindow(v.WindowScale, func(sc byte) {
			select {
			case m.GetKeyChan() <- sc:
			default:
			}
		})
		v.sink = v.window
	default:
		m.Close()

		return fmt.Errorf("%w: %q", errUnknownDisplay, v.Display)
	}

	v.Machine = m

	return nil
}

// Setup loads the guest, then restores a checkpoint if one was given.
func (v *VMM) Setup() error {
	if len(v.Image) > 0 {
		if err := v.LoadImageFile(v.Image); err != nil {
			return err
		}
	} else if err := v.LoadBuiltinGuest(); err != nil {
		return err
	}

	if len(v.CheckpointIn) == 0 {
		return nil
	}

	return v.RestoreCheckpointFile(v.CheckpointIn)
}

// Run drives the machine with the cooperative scheduler until the guest
// halts, ctx is done, MaxQuanta is reached or the CPU stops on an error.
//
// Each round pops the CPU task, re-queues CPU, display and timer tasks
// and then drains the lower layers in priority order, so one display
// refresh and one tick follow every quantum.
func (v *VMM) Run(ctx context.Context) error {
	q := sched.New(sched.DefaultCapacity)

	var cpuErr error

	cpuTask := sched.Task{Name: "cpu", Run: func() {
		_, cpuErr = v.RunQuantum(v.Quantum)
	}}

	displayTask := sched.Task{Name: "display", Run: func() {
		// Best effort; a frame that cannot be drawn is skipped.
		_ = v.RefreshDisplay(v.sink)
	}}

	timerTask := sched.Task{Name: "timer", Run: v.Tick}

	if _, err := q.Push(PrioCPU, cpuTask); err != nil {
		return err
	}

	for quanta := 0; ; quanta++ {
		if v.MaxQuanta > 0 && quanta >= v.MaxQuanta {
			log.Printf("vm: stopped after %d quanta, %d instructions", quanta, v.Executed())

			return nil
		}

		select {
		case <-ctx.Done():
			log.Printf("vm: interrupted after %d instructions", v.Executed())

			return nil
		default:
		}

		v.PumpInput()

		t, err := q.PopFromLayer(PrioCPU)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}

		t.Run()

		if cpuErr != nil {
			_ = v.RefreshDisplay(v.sink)

			return fmt.Errorf("cpu stopped after %d instructions: %w", v.Executed(), cpuErr)
		}

		if v.Halted() {
			_ = v.RefreshDisplay(v.sink)
			log.Printf("vm: halted after %d instructions, %d ticks", v.Executed(), v.TickCount())

			return nil
		}

		for _, next := range []struct {
			prio int
			task sched.Task
		}{
			{PrioDisplay, displayTask},
			{PrioCPU, cpuTask},
			{PrioTimer, timerTask},
		} {
			if _, err := q.Push(next.prio, next.task); err != nil {
				return fmt.Errorf("scheduler: %s: %w", next.task.Name, err)
			}
		}

		for prio := PrioCPU + 1; prio < sched.Layers; prio++ {
			for q.HasLayer(prio) {
				t, err := q.PopFromLayer(prio)
				if err != nil {
					return fmt.Errorf("scheduler: %w", err)
				}

				t.Run()
			}
		}

		if v.Paused() {
			time.Sleep(pausePoll)
		}
	}
}

// Boot runs the guest to completion. Guest output is flushed on the way out
// and a checkpoint is written if one was asked for.
func (v *VMM) Boot() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()

		if v.window != nil {
			defer v.window.Close()
		}

		return v.Run(ctx)
	})

	if term.IsTerminal() && v.window == nil {
		restoreMode, err := term.SetRawMode()
		if err != nil {
			cancel()

			return errors.Join(err, g.Wait())
		}

		defer restoreMode()

		g.Go(func() error {
			return v.pumpStdin(ctx, os.Stdin, cancel)
		})
	}

	var winErr error

	if v.window != nil {
		// The window owns the main goroutine until it is closed.
		winErr = v.window.Run()
		cancel()
	}

	err := g.Wait()

	if ferr := v.out.Flush(); ferr != nil {
		log.Printf("flush console: %v", ferr)
	}

	if len(v.CheckpointOut) > 0 {
		if cerr := v.SaveCheckpointFile(v.CheckpointOut); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}

	return errors.Join(err, winErr)
}

// pumpStdin feeds stdin to the UART until ctx is done. Ctrl-A x stops the
// machine.
func (v *VMM) pumpStdin(ctx context.Context, r io.Reader, quit func()) error {
	bytesIn := make(chan byte)

	go func() {
		in := bufio.NewReader(r)

		for {
			b, err := in.ReadByte()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("stdin: %v", err)
				}

				close(bytesIn)

				return
			}

			select {
			case bytesIn <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	var before byte

	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-bytesIn:
			if !ok {
				return nil
			}

			if before == 0x1 && b == 'x' {
				quit()

				return nil
			}

			before = b

			select {
			case v.GetInputChan() <- b:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
