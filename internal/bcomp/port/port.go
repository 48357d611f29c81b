// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package port defines the Block I/O Port, the only way the compression layer
// talks to the underlying storage. The layer never does raw I/O itself, it
// shapes transfers, picks addresses and submits them through the port.
//
// Implementations live in subpackages. BlockPort in this package turns any
// synchronous Storage into an asynchronous port with the help of an Executor.
package port

import (
	"fmt"
)

// Sector is a linux constant, which is always 512, no matter how big your
// sectors or blocks are. All addresses passed to the port are in sectors.
const SectorSize = 512

// Default number of transfers which can be in flight at once.
const DefaultPoolSize = 1024

// Op is the kind of I/O.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpFlush
	OpDiscard
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	case OpDiscard:
		return "discard"
	}

	return fmt.Sprintf("op(%d)", int(o))
}

// Port is an asynchronous block storage.
type Port interface {
	// Human readable name of the underlying storage.
	Name() string

	// Capacity of the storage in sectors. It is fixed for the lifetime of
	// the port.
	Capacity() int64

	// Returns transfer with room for the given number of segments. Fails
	// with errs.ErrResourceExhausted when too many transfers are in
	// flight.
	AllocateTransfer(segments int) (*Transfer, error)

	// Returns transfer sharing the memory of orig.
	CloneTransfer(orig *Transfer) (*Transfer, error)

	// Submits the transfer to the sector. The done callback is called
	// exactly once, possibly from another go routine and possibly before
	// Submit returns. The transfer is released after done returns.
	Submit(sector int64, t *Transfer, op Op, done func(error))

	// Releases the port. All submitted transfers have to be completed
	// before.
	Close() error
}
