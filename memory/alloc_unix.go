//go:build unix

package memory

import "golang.org/x/sys/unix"

// Guest RAM lives in its own anonymous mapping so that it is page aligned and
// returned to the OS as soon as the machine is closed.
func alloc(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func free(b []byte) error {
	return unix.Munmap(b)
}
