// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package chunk provides buffers with explicit ownership and chunks, i.e.
// pairs of buffers holding one block before and after compression.
//
// An owned buffer returns its memory to the package pool when it is released
// or re-linked. A borrowed buffer only aliases memory owned by someone else and
// never releases it. The distinction lets the no-op codec alias the source of a
// chunk as its destination without copying and without double release.
package chunk

import (
	"fmt"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

// State of the buffer memory.
type State int

const (
	// Buffer has no memory attached.
	Uninitialized State = iota

	// Buffer aliases memory owned elsewhere.
	Borrowed

	// Buffer owns its memory and releases it to the pool.
	Owned
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Borrowed:
		return "borrowed"
	case Owned:
		return "owned"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Buffer is a length tracked memory region. The capacity is the length of the
// attached memory, the data length is the part of it holding valid data.
type Buffer struct {
	state State
	data  []byte
	n     int

	// Pool handle of data when it came from the pool.
	mem *[]byte
}

// Link replaces the content of the buffer with data. Previously owned memory
// is released first. With attach the buffer takes the ownership of data,
// otherwise it only borrows it. The capacity becomes len(data) and the data
// length is reset to zero.
func (b *Buffer) Link(data []byte, attach bool) {
	b.release()

	b.state = Borrowed
	if attach {
		b.state = Owned
		outstanding.Add(1)
	}

	b.data = data
	b.n = 0
}

// State returns the ownership state of the buffer.
func (b *Buffer) State() State {
	return b.state
}

// Initialized reports whether any memory is attached to the buffer.
func (b *Buffer) Initialized() bool {
	return b.state != Uninitialized
}

// Len returns the length of valid data.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the capacity of the attached memory.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// SetLen sets the length of valid data. It never exceeds the capacity.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return errs.ErrInvalidArgument.WithMessage("data length %d out of capacity %d", n, len(b.data))
	}

	b.n = n

	return nil
}

// Bytes returns the valid data.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Raw returns the whole attached memory up to the capacity.
func (b *Buffer) Raw() []byte {
	return b.data
}

// Release the memory if it is owned and reset the buffer to uninitialized
// state. Borrowed memory is just forgotten.
func (b *Buffer) release() {
	if b.state == Owned {
		outstanding.Add(-1)
		switch {
		case b.mem != nil:
			put(b.mem)
		case b.data != nil:
			data := b.data
			put(&data)
		}
	}

	b.state = Uninitialized
	b.data = nil
	b.mem = nil
	b.n = 0
}

// Initializes the buffer according to the external memory and requested
// capacity. Non-nil ext with positive size is borrowed, nil ext with positive
// size is allocated and owned and nil ext with zero size is left
// uninitialized.
func (b *Buffer) init(size int, ext []byte) error {
	switch {
	case size > 0 && ext != nil:
		if len(ext) < size {
			return errs.ErrInvalidArgument.WithMessage("external memory %d shorter than %d", len(ext), size)
		}
		b.Link(ext[:size], false)

	case size > 0 && ext == nil:
		mem, err := get(size)
		if err != nil {
			return err
		}
		b.Link(*mem, true)
		b.mem = mem

	case size == 0 && ext == nil:
		b.release()

	default:
		return errs.ErrInvalidArgument.WithMessage("size %d with external memory %t", size, ext != nil)
	}

	return nil
}
