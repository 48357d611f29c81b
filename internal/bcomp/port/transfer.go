// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package port

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

// Transfer is a list of memory segments taking part in one I/O. Segments are
// transferred in order to consecutive addresses.
type Transfer struct {
	segs    [][]byte
	size    int
	maxSegs int

	pool     *Pool
	released atomic.Bool
}

// NewTransfer returns transfer over bufs which does not belong to any pool.
// It is used for describing consumer memory of incoming requests.
func NewTransfer(bufs ...[]byte) *Transfer {
	t := &Transfer{maxSegs: len(bufs)}
	for _, b := range bufs {
		t.segs = append(t.segs, b)
		t.size += len(b)
	}

	return t
}

// Add appends buf to the transfer.
func (t *Transfer) Add(buf []byte) error {
	if len(t.segs) >= t.maxSegs {
		return errs.ErrInvalidArgument.WithMessage("transfer holds at most %d segments", t.maxSegs)
	}

	t.segs = append(t.segs, buf)
	t.size += len(buf)

	return nil
}

// Len returns number of bytes in the transfer.
func (t *Transfer) Len() int {
	return t.size
}

// Segments returns the memory segments.
func (t *Transfer) Segments() [][]byte {
	return t.segs
}

// CopyTo copies content of the transfer into dst and returns number of bytes
// copied.
func (t *Transfer) CopyTo(dst []byte) int {
	n := 0
	for _, s := range t.segs {
		if n >= len(dst) {
			break
		}
		n += copy(dst[n:], s)
	}

	return n
}

// CopyFrom copies src into the transfer memory and returns number of bytes
// copied.
func (t *Transfer) CopyFrom(src []byte) int {
	n := 0
	for _, s := range t.segs {
		if n >= len(src) {
			break
		}
		n += copy(s, src[n:])
	}

	return n
}

// Release returns the transfer to its pool. Further calls are no-op.
func (t *Transfer) Release() {
	if t.pool == nil || !t.released.CompareAndSwap(false, true) {
		return
	}

	t.pool.sem.Release(1)
}

// Pool limits the number of transfers in flight. Allocation never waits, it
// fails when the pool is exhausted.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns pool for at most size transfers.
func NewPool(size int64) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}

	return &Pool{sem: semaphore.NewWeighted(size)}
}

// AllocateTransfer returns empty transfer with room for segments.
func (p *Pool) AllocateTransfer(segments int) (*Transfer, error) {
	if !p.sem.TryAcquire(1) {
		return nil, errs.ErrResourceExhausted.WithMessage("no free transfer")
	}

	return &Transfer{
		segs:    make([][]byte, 0, segments),
		maxSegs: segments,
		pool:    p,
	}, nil
}

// CloneTransfer returns transfer sharing the memory of orig.
func (p *Pool) CloneTransfer(orig *Transfer) (*Transfer, error) {
	t, err := p.AllocateTransfer(len(orig.segs))
	if err != nil {
		return nil, err
	}

	t.segs = append(t.segs, orig.segs...)
	t.size = orig.size

	return t, nil
}
