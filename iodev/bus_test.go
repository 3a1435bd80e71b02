package iodev_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bpforbes/flinstone/device"
	"github.com/bpforbes/flinstone/iodev"
)

func TestUnclaimedPort(t *testing.T) {
	t.Parallel()

	b := iodev.NewBus()

	var trace bytes.Buffer

	b.Trace = &trace

	if v := b.In(0x1234, 1); v != 0xFF {
		t.Fatalf("expected: 0xff, actual: %#x", v)
	}

	if v := b.In(0x1234, 2); v != 0xFFFF {
		t.Fatalf("expected: 0xffff, actual: %#x", v)
	}

	if v := b.In(0x1234, 4); v != 0xFFFFFFFF {
		t.Fatalf("expected: 0xffffffff, actual: %#x", v)
	}

	b.Out(0x1234, 0x55, 1)

	if !strings.Contains(trace.String(), "out 0x1234/1 unclaimed") {
		t.Fatalf("unexpected trace %q", trace.String())
	}
}

func TestRegisterOverlap(t *testing.T) {
	t.Parallel()

	b := iodev.NewBus()

	if err := b.Register(iodev.NewStub("cmos", 0x70, 2)); err != nil {
		t.Fatal(err)
	}

	err := b.Register(iodev.NewStub("cmos-data", 0x71, 1))
	if err == nil {
		t.Fatal("overlapping device: got nil, want err")
	}

	if !strings.Contains(err.Error(), "cmos@0x70+2 and cmos-data@0x71+1") {
		t.Fatalf("unexpected error %q", err)
	}

	if err := b.Register(iodev.NewStub("edge", 0xFFFF, 2)); err == nil {
		t.Fatal("device past 0xffff: got nil, want err")
	}

	if len(b.Devices()) != 1 {
		t.Fatalf("expected: 1, actual: %d", len(b.Devices()))
	}
}

func TestStubDeviceReadsOnes(t *testing.T) {
	t.Parallel()

	b := iodev.NewBus()

	var trace bytes.Buffer

	b.Trace = &trace

	stub := iodev.NewStub("post", 0x80, 1)

	if err := b.Register(stub); err != nil {
		t.Fatal(err)
	}

	b.Out(0x80, 0x12, 1)

	if v := b.In(0x80, 1); v != 0xFF {
		t.Fatalf("expected: 0xff, actual: %#x", v)
	}

	if trace.Len() != 0 {
		t.Fatalf("claimed port was traced: %q", trace.String())
	}

	if stub.Reads != 1 || stub.Writes != 1 {
		t.Fatalf("reads=%d writes=%d", stub.Reads, stub.Writes)
	}

	if stub.String() != "post@0x80+1" {
		t.Fatalf("expected: %q, actual: %q", "post@0x80+1", stub.String())
	}
}

func TestConsoleOnBus(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	b := iodev.NewBus()
	if err := b.Register(device.NewConsole(device.ConsolePort, &out)); err != nil {
		t.Fatal(err)
	}

	for _, c := range []byte("ok") {
		b.Out(device.ConsolePort, uint32(c), 1)
	}

	// A 2-byte write is rejected by the device and logged, not propagated.
	b.Out(device.ConsolePort, 0x4142, 2)

	if out.String() != "ok" {
		t.Fatalf("expected: %q, actual: %q", "ok", out.String())
	}
}
