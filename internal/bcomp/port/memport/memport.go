// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package memport implements in-memory port. The image lives only as long as
// the port and is lost on Close. It is used by tests and for quick
// experiments with mem://<size> paths.
package memport

import (
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/bytesextra"

	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Scheme of paths handled by this package.
const Scheme = "mem://"

// Image is a fixed size in-memory storage. The underlying stream is not safe
// for concurrent use, hence the mutex.
type Image struct {
	mu   sync.Mutex
	rws  *bytesextra.ReadWriteSeeker
	size int64
	name string
}

// NewImage returns zeroed image of size bytes.
func NewImage(size int64) *Image {
	return &Image{
		rws:  bytesextra.NewReadWriteSeeker(make([]byte, size)),
		size: size,
		name: Scheme + humanize.IBytes(uint64(size)),
	}
}

func (m *Image) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	return io.ReadFull(m.rws, p)
}

func (m *Image) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.rws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	return m.rws.Write(p)
}

func (m *Image) Size() int64 {
	return m.size
}

func (m *Image) Name() string {
	return m.name
}

func (m *Image) Close() error {
	return nil
}

// New returns port over a new image of size bytes. Completions are called
// from a fresh go routine, so the port behaves asynchronously like the real
// ones.
func New(size int64, poolSize int64) *port.BlockPort {
	return port.NewBlockPort(NewImage(size), &executor{}, poolSize)
}

// Open parses mem://<size> path, where size is human readable, e.g.
// mem://64MiB, and returns port over a new image.
func Open(path string, poolSize int64) (*port.BlockPort, error) {
	if !strings.HasPrefix(path, Scheme) {
		return nil, errs.ErrInvalidConfiguration.WithMessage("%q is not a memory path", path)
	}

	size, err := humanize.ParseBytes(strings.TrimPrefix(path, Scheme))
	if err != nil {
		return nil, errs.ErrInvalidConfiguration.Wrap(err)
	}

	return New(int64(size), poolSize), nil
}

// Executor spawning one go routine per task.
type executor struct {
	wg sync.WaitGroup
}

func (e *executor) Submit(task func()) error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		task()
	}()

	return nil
}

// Release waits for running tasks.
func (e *executor) Release() {
	e.wg.Wait()
}
