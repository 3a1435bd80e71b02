package flag

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/bpforbes/flinstone/machine"
	"github.com/bpforbes/flinstone/vmm"
	"github.com/pkg/profile"
)

var errReplayDiverged = errors.New("replay diverged")

type CLI struct {
	Boot   BootCMD   `cmd:"" help:"Boot a guest image (the built-in guest by default)."`
	Replay ReplayCMD `cmd:"" help:"Check that replay from a checkpoint is deterministic."`
	Disasm DisasmCMD `cmd:"" help:"Disassemble a raw boot image."`
}

// MachineFlags are shared by commands that build a machine.
type MachineFlags struct {
	Image      string `short:"i" help:"Raw boot image loaded at 0x7C00."`
	Disk       string `short:"d" help:"Disk image attached to the IDE controller, created if missing."`
	DiskSize   uint   `default:"16" help:"Disk image size in MiB."`
	MemSize    string `short:"m" default:"16M" help:"Memory size as number[K|KiB|M|MiB|G|GiB], defaults to MiB."`
	TraceCount string `short:"T" default:"0" help:"Print every Nth instruction; 0 disables tracing."`
}

type BootCMD struct {
	MachineFlags

	Quantum       int    `default:"64" help:"Instructions per CPU task."`
	MaxQuanta     int    `default:"0" help:"Stop after this many CPU tasks; 0 runs until HLT."`
	Display       string `default:"none" enum:"none,terminal,window" help:"Where the VGA text page is drawn."`
	Scale         int    `default:"2" help:"Window scale factor."`
	CheckpointIn  string `help:"Restore this checkpoint before running."`
	CheckpointOut string `help:"Write a checkpoint here when the run ends."`
	Profile       string `default:"none" enum:"none,cpu,mem" help:"Write a pprof profile to the current directory."`
}

type ReplayCMD struct {
	MachineFlags

	Before int `short:"n" default:"10" help:"Instructions to run before the checkpoint."`
	After  int `short:"k" default:"5" help:"Instructions to run after it, twice."`
}

type DisasmCMD struct {
	File string `arg:"" type:"existingfile" help:"Raw image to disassemble."`
	Base string `default:"0x7c00" help:"Load address."`
}

func Parse() error {
	c := CLI{}

	programName := "flinstone"
	programDesc := "flinstone is a small real-mode x86 emulator with checkpoint and replay"

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	return ctx.Run()
}

// Config maps the machine flags onto a vmm.Config.
func (f *MachineFlags) Config() (*vmm.Config, error) {
	memSize, err := ParseSize(f.MemSize, "m")
	if err != nil {
		return nil, err
	}

	traceC, err := ParseSize(f.TraceCount, "")
	if err != nil {
		return nil, err
	}

	return &vmm.Config{
		Image:      f.Image,
		Disk:       f.Disk,
		DiskSizeMB: f.DiskSize,
		MemSize:    memSize,
		TraceCount: traceC,
	}, nil
}

// Config adds the run-loop flags to the machine flags.
func (s *BootCMD) Config() (*vmm.Config, error) {
	c, err := s.MachineFlags.Config()
	if err != nil {
		return nil, err
	}

	c.Quantum = s.Quantum
	c.MaxQuanta = s.MaxQuanta
	c.Display = s.Display
	c.WindowScale = s.Scale
	c.CheckpointIn = s.CheckpointIn
	c.CheckpointOut = s.CheckpointOut

	return c, nil
}

func (s *BootCMD) Run() error {
	switch s.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	c, err := s.Config()
	if err != nil {
		return err
	}

	vmm := vmm.New(*c)

	if err := vmm.Init(); err != nil {
		return err
	}

	defer vmm.Close()

	if err := vmm.Setup(); err != nil {
		return err
	}

	return vmm.Boot()
}

func (r *ReplayCMD) Run() error {
	c, err := r.Config()
	if err != nil {
		return err
	}

	vmm := vmm.New(*c)

	if err := vmm.Init(); err != nil {
		return err
	}

	defer vmm.Close()

	if err := vmm.Setup(); err != nil {
		return err
	}

	a, b, err := vmm.Replay(r.Before, r.After)
	if err != nil {
		return err
	}

	fmt.Printf("first run:  %v\nreplay run: %v\n", a, b)

	if a != b {
		return fmt.Errorf("%w: %v != %v", errReplayDiverged, a, b)
	}

	return nil
}

func (d *DisasmCMD) Run() error {
	base, err := ParseAddr(d.Base)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(d.File)
	if err != nil {
		return err
	}

	return machine.Listing(os.Stdout, code, base)
}
