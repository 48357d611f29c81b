// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package fileport implements port over a regular file or a block device.
// The blocking I/O runs on a pool of worker go routines.
package fileport

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Default number of workers doing the blocking I/O.
const DefaultWorkers = 64

// File is a storage backed by os.File. Capacity is fixed when opened.
type File struct {
	*os.File

	size int64
}

// OpenFile opens path for reading and writing and determines its size. Block
// devices are asked by ioctl since their stat size is zero.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errs.ErrInvalidConfiguration.Wrap(err)
	}

	size, err := storageSize(f)
	if err != nil {
		f.Close()
		return nil, errs.ErrInvalidConfiguration.Wrap(err)
	}

	return &File{File: f, size: size}, nil
}

func storageSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	mode := fi.Mode()
	switch {
	case mode.IsRegular():
		return fi.Size(), nil
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
		return blockDeviceSize(f)
	}

	return 0, fmt.Errorf("%s is neither a regular file nor a block device", f.Name())
}

func blockDeviceSize(f *os.File) (int64, error) {
	var size uint64

	_, _, e := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if e != 0 {
		return 0, e
	}

	return int64(size), nil
}

func (f *File) Size() int64 {
	return f.size
}

// Open returns port over file or block device at path served by workers go
// routines.
func Open(path string, workers int, poolSize int64) (*port.BlockPort, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		f.Close()
		return nil, errs.ErrInvalidConfiguration.Wrap(err)
	}

	log.Info().Str("path", path).Int64("bytes", f.size).Int("workers", workers).Msg("Storage opened")

	return port.NewBlockPort(f, pool, poolSize), nil
}
