// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package port

import (
	"errors"
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

type sliceStorage struct {
	data   []byte
	closed bool
}

func (s *sliceStorage) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, s.data[off:]), nil
}

func (s *sliceStorage) WriteAt(p []byte, off int64) (int, error) {
	return copy(s.data[off:], p), nil
}

func (s *sliceStorage) Size() int64 { return int64(len(s.data)) }

func (s *sliceStorage) Name() string { return "slice" }

func (s *sliceStorage) Close() error {
	s.closed = true
	return nil
}

type failingExecutor struct{}

func (failingExecutor) Submit(func()) error { return errors.New("pool closed") }

func (failingExecutor) Release() {}

func submitSync(p Port, sector int64, t *Transfer, op Op) error {
	var wg sync.WaitGroup
	var res error

	wg.Add(1)
	p.Submit(sector, t, op, func(err error) {
		res = err
		wg.Done()
	})
	wg.Wait()

	return res
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "flush", OpFlush.String())
	assert.Equal(t, "op(42)", Op(42).String())
}

func TestTransferCopy(t *testing.T) {
	a := make([]byte, 3)
	b := make([]byte, 5)
	tr := NewTransfer(a, b)

	assert.Equal(t, 8, tr.Len())
	assert.Equal(t, 8, tr.CopyFrom([]byte("abcdefghij")))
	assert.Equal(t, []byte("abc"), a)
	assert.Equal(t, []byte("defgh"), b)

	dst := make([]byte, 6)
	assert.Equal(t, 6, tr.CopyTo(dst))
	assert.Equal(t, []byte("abcdef"), dst)

	assert.ErrorIs(t, tr.Add([]byte("x")), errs.ErrInvalidArgument)
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool(2)

	t1, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	t2, err := p.CloneTransfer(t1)
	require.NoError(t, err)

	_, err = p.AllocateTransfer(1)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)

	t1.Release()
	t1.Release()

	t3, err := p.AllocateTransfer(1)
	require.NoError(t, err)

	_, err = p.AllocateTransfer(1)
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)

	t2.Release()
	t3.Release()
}

func TestCloneSharesMemory(t *testing.T) {
	p := NewPool(0)
	buf := make([]byte, 4)
	orig := NewTransfer(buf)

	c, err := p.CloneTransfer(orig)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	c.CopyFrom([]byte("wxyz"))
	assert.Equal(t, []byte("wxyz"), buf)
}

func TestBlockPortReadWrite(t *testing.T) {
	s := &sliceStorage{data: make([]byte, 8*SectorSize)}
	p := NewBlockPort(s, &Inline{}, 4)

	assert.Equal(t, int64(8), p.Capacity())
	assert.Equal(t, "slice", p.Name())

	w, err := p.AllocateTransfer(2)
	require.NoError(t, err)
	require.NoError(t, w.Add([]byte("hello ")))
	require.NoError(t, w.Add([]byte("world")))
	require.NoError(t, submitSync(p, 2, w, OpWrite))

	assert.Equal(t, []byte("hello world"), s.data[2*SectorSize:2*SectorSize+11])

	out := make([]byte, 11)
	r, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, r.Add(out))
	require.NoError(t, submitSync(p, 2, r, OpRead))
	assert.Equal(t, []byte("hello world"), out)

	require.NoError(t, p.Close())
	assert.True(t, s.closed)
}

func TestBlockPortOutOfRange(t *testing.T) {
	s := &sliceStorage{data: make([]byte, 2*SectorSize)}
	p := NewBlockPort(s, &Inline{}, 1)

	tr, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, tr.Add(make([]byte, SectorSize)))

	assert.ErrorIs(t, submitSync(p, 2, tr, OpWrite), errs.ErrIOFailed)

	// The transfer went back to the pool even on failure.
	tr, err = p.AllocateTransfer(1)
	require.NoError(t, err)
	tr.Release()
}

func TestBlockPortUnsupported(t *testing.T) {
	s := &sliceStorage{data: make([]byte, 2*SectorSize)}
	p := NewBlockPort(s, &Inline{}, 1)

	tr, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, tr.Add(make([]byte, SectorSize)))

	assert.ErrorIs(t, submitSync(p, 0, tr, OpDiscard), errs.ErrUnsupportedOperation)
}

func TestBlockPortExecutorFailure(t *testing.T) {
	s := &sliceStorage{data: make([]byte, 2*SectorSize)}
	p := NewBlockPort(s, failingExecutor{}, 1)

	tr, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, tr.Add(make([]byte, SectorSize)))

	calls := 0
	p.Submit(0, tr, OpWrite, func(err error) {
		calls++
		assert.ErrorIs(t, err, errs.ErrResourceExhausted)
	})
	assert.Equal(t, 1, calls)
}

func TestInlineReleased(t *testing.T) {
	s := &sliceStorage{data: make([]byte, 2*SectorSize)}
	p := NewBlockPort(s, &Inline{}, 1)
	require.NoError(t, p.Close())

	tr, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, tr.Add(make([]byte, SectorSize)))

	assert.ErrorIs(t, submitSync(p, 0, tr, OpRead), ants.ErrPoolClosed)
}
