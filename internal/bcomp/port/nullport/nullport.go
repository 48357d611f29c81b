// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package nullport does nothing but correctly.
package nullport

import (
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Name of the null storage, also accepted as a path.
const Name = "null"

// Null storage. Writes are discarded and reads return zeroes. Usefull for
// measuring performance of the compression pipeline without any storage
// underneath. Otherwise useless.
type null struct {
	size int64
}

func (n *null) ReadAt(p []byte, off int64) (int, error) {
	for i := range p {
		p[i] = 0
	}

	return len(p), nil
}

func (n *null) WriteAt(p []byte, off int64) (int, error) {
	return len(p), nil
}

func (n *null) Size() int64 {
	return n.size
}

func (n *null) Name() string {
	return Name
}

func (n *null) Close() error {
	return nil
}

// New returns port pretending to have size bytes. Every request is completed
// immediately in the submitting go routine.
func New(size int64, poolSize int64) *port.BlockPort {
	return port.NewBlockPort(&null{size: size}, &port.Inline{}, poolSize)
}
