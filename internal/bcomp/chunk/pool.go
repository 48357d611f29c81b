// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package chunk

import (
	"sync"
	"sync/atomic"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

// Upper bound of a single owned allocation. It is far above the compress bound
// of the largest supported block, anything bigger is a bug in the caller.
const MaxBufferSize = 1 << 20

var (
	// Pools are keyed by exact capacity. There are just a few distinct
	// sizes in practice, the block size and compress bound of it.
	pools sync.Map

	// Owned allocations handed out and not yet released.
	outstanding atomic.Int64
)

func poolFor(size int) *sync.Pool {
	if p, ok := pools.Load(size); ok {
		return p.(*sync.Pool)
	}

	p, _ := pools.LoadOrStore(size, &sync.Pool{
		New: func() interface{} {
			b := make([]byte, size)
			return &b
		},
	})

	return p.(*sync.Pool)
}

func get(size int) (*[]byte, error) {
	if size <= 0 || size > MaxBufferSize {
		return nil, errs.ErrOutOfMemory.WithMessage("cannot allocate %d bytes", size)
	}

	return poolFor(size).Get().(*[]byte), nil
}

func put(b *[]byte) {
	poolFor(len(*b)).Put(b)
}

// Outstanding returns the number of owned allocations which were not released
// yet. Useful for leak checks.
func Outstanding() int64 {
	return outstanding.Load()
}
