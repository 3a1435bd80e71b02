package block

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// extend allocates [from, to) so later sector writes cannot hit ENOSPC.
// Filesystems without fallocate get a sparse extension instead.
func extend(f *os.File, from, to int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, from, to-from)
	if err == nil {
		return nil
	}

	if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.ENOSYS) {
		return err
	}

	return f.Truncate(to)
}
