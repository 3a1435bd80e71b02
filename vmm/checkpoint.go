package vmm

import (
	"bufio"
	"fmt"
	"os"
)

// SaveCheckpointFile saves a checkpoint of the current state and writes
// it to path.
func (v *VMM) SaveCheckpointFile(path string) error {
	v.SaveCheckpoint()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	w := bufio.NewWriter(f)

	if err := v.WriteCheckpoint(w); err != nil {
		f.Close()

		return err
	}

	if err := w.Flush(); err != nil {
		f.Close()

		return fmt.Errorf("checkpoint: %w", err)
	}

	return f.Close()
}

// RestoreCheckpointFile restores the checkpoint stored at path.
func (v *VMM) RestoreCheckpointFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	defer f.Close()

	return v.ReadCheckpoint(bufio.NewReader(f))
}
