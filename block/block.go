package block

import (
	"errors"
	"fmt"
	"os"
)

// SectorSize is the only transfer unit of a block device.
const SectorSize = 512

var (
	// ErrLBAOutOfRange is returned for a sector past the end of the device.
	ErrLBAOutOfRange = errors.New("lba out of range")

	errBufferSize  = errors.New("buffer is not one sector")
	errInvalidSize = errors.New("invalid disk size")
)

// Device is a sector-addressed store.
type Device interface {
	ReadSector(lba uint32, buf []byte) error
	WriteSector(lba uint32, buf []byte) error
}

// Image is a raw disk image file, one sector after another.
type Image struct {
	f       *os.File
	sectors uint32
}

// Open opens path, creating it if needed, and grows it with zeros to
// sizeMB MiB. A larger existing file is left alone but only the first
// sizeMB MiB are addressable.
func Open(path string, sizeMB uint) (*Image, error) {
	if sizeMB == 0 || uint64(sizeMB)<<20/SectorSize > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d MiB", errInvalidSize, sizeMB)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	target := int64(sizeMB) << 20

	fi, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	if fi.Size() < target {
		if err := extend(f, fi.Size(), target); err != nil {
			f.Close()

			return nil, fmt.Errorf("extend %s to %d bytes: %w", path, target, err)
		}
	}

	return &Image{f: f, sectors: uint32(target / SectorSize)}, nil
}

// Sectors returns the number of addressable sectors.
func (i *Image) Sectors() uint32 {
	return i.sectors
}

func (i *Image) check(lba uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("%w: %d bytes", errBufferSize, len(buf))
	}

	if lba >= i.sectors {
		return fmt.Errorf("%w: %d >= %d", ErrLBAOutOfRange, lba, i.sectors)
	}

	return nil
}

func (i *Image) ReadSector(lba uint32, buf []byte) error {
	if err := i.check(lba, buf); err != nil {
		return err
	}

	if _, err := i.f.ReadAt(buf, int64(lba)*SectorSize); err != nil {
		return fmt.Errorf("read sector %d: %w", lba, err)
	}

	return nil
}

func (i *Image) WriteSector(lba uint32, buf []byte) error {
	if err := i.check(lba, buf); err != nil {
		return err
	}

	if _, err := i.f.WriteAt(buf, int64(lba)*SectorSize); err != nil {
		return fmt.Errorf("write sector %d: %w", lba, err)
	}

	return nil
}

func (i *Image) Close() error {
	return i.f.Close()
}
