// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package port

import (
	"io"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

// Storage is a synchronous byte addressable backend.
type Storage interface {
	io.ReaderAt
	io.WriterAt

	// Size of the storage in bytes.
	Size() int64

	Name() string
	Close() error
}

// Executor runs submitted tasks, usually on a pool of go routines. Submit can
// fail when the executor is overloaded or already released.
type Executor interface {
	Submit(task func()) error
	Release()
}

// Inline executes the task immediately in the caller's go routine. Useful for
// backends where I/O is so cheap that switching routines would dominate.
type Inline struct {
	closed atomic.Bool
}

func (e *Inline) Submit(task func()) error {
	if e.closed.Load() {
		return ants.ErrPoolClosed
	}

	task()

	return nil
}

func (e *Inline) Release() {
	e.closed.Store(true)
}

// BlockPort makes asynchronous Port from synchronous Storage. The I/O is done
// by tasks running on the executor, the completion callback is called from
// the same task.
type BlockPort struct {
	*Pool

	storage Storage
	exec    Executor
}

// NewBlockPort returns port over storage with at most poolSize transfers in
// flight.
func NewBlockPort(storage Storage, exec Executor, poolSize int64) *BlockPort {
	return &BlockPort{
		Pool:    NewPool(poolSize),
		storage: storage,
		exec:    exec,
	}
}

func (p *BlockPort) Name() string {
	return p.storage.Name()
}

func (p *BlockPort) Capacity() int64 {
	return p.storage.Size() / SectorSize
}

func (p *BlockPort) Submit(sector int64, t *Transfer, op Op, done func(error)) {
	err := p.exec.Submit(func() {
		complete(t, done, p.do(sector, t, op))
	})

	if err != nil {
		complete(t, done, errs.ErrResourceExhausted.Wrap(err))
	}
}

func (p *BlockPort) Close() error {
	p.exec.Release()
	return p.storage.Close()
}

func (p *BlockPort) do(sector int64, t *Transfer, op Op) error {
	off := sector * SectorSize
	if sector < 0 || off+int64(t.Len()) > p.storage.Size() {
		return errs.ErrIOFailed.WithMessage("%s of %d bytes at sector %d is out of range", op, t.Len(), sector)
	}

	for _, s := range t.Segments() {
		var err error

		switch op {
		case OpRead:
			_, err = p.storage.ReadAt(s, off)
		case OpWrite:
			_, err = p.storage.WriteAt(s, off)
		default:
			return errs.ErrUnsupportedOperation.WithMessage("%s", op)
		}

		if err != nil {
			return errs.ErrIOFailed.Wrap(err)
		}

		off += int64(len(s))
	}

	return nil
}

// Calls done and returns the transfer to its pool afterwards.
func complete(t *Transfer, done func(error), err error) {
	done(err)
	t.Release()
}
