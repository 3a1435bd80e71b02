package vmm

import (
	"fmt"

	"github.com/bpforbes/flinstone/machine"
)

// Replay runs n instructions, saves a checkpoint, runs m more and takes a
// checksum, then restores and runs the same m instructions again. A
// deterministic machine yields a == b.
func (v *VMM) Replay(n, m int) (a, b machine.Checksum, err error) {
	if _, err := v.RunCycles(n); err != nil {
		return a, b, fmt.Errorf("replay: first %d: %w", n, err)
	}

	v.SaveCheckpoint()

	if _, err := v.RunCycles(m); err != nil {
		return a, b, fmt.Errorf("replay: run %d: %w", m, err)
	}

	a = v.Checksum()

	if err := v.RestoreCheckpoint(); err != nil {
		return a, b, err
	}

	if _, err := v.RunCycles(m); err != nil {
		return a, b, fmt.Errorf("replay: rerun %d: %w", m, err)
	}

	b = v.Checksum()

	if err := v.out.Flush(); err != nil {
		return a, b, err
	}

	return a, b, nil
}
