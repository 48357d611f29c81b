// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package bcomp

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Number of slot locks. Slots share the lock when their numbers are equal
// modulo this value.
const lockStripes = 1024

// IO is a logical request of the consumer. Payload has to be exactly one
// block. Done is called exactly once when the request is finished.
type IO struct {
	Op      port.Op
	Sector  int64
	Payload *port.Transfer
	Done    func(error)
}

// Writers of one slot are exclusive, readers share it. The lock is held from
// the table step until the physical I/O completes.
type slotLocks [lockStripes]sync.RWMutex

func (l *slotLocks) get(slot int64) *sync.RWMutex {
	return &l[slot%lockStripes]
}

// Request carries the state of one IO through the pipeline. Its chunk is
// exclusively owned and released exactly once in finish.
type request struct {
	dev   *Device
	io    *IO
	slot  int64
	chunk *chunk.Chunk

	unlock func()
}

// Submit starts processing of io. Completion is reported through io.Done,
// possibly from another go routine and possibly before Submit returns.
func (d *Device) Submit(io *IO) {
	d.closeMu.RLock()
	if d.closed {
		d.closeMu.RUnlock()
		io.Done(errs.ErrIOFailed.WithMessage("device %s closed", d.name))
		return
	}
	d.inflight.Add(1)
	d.closeMu.RUnlock()

	r := &request{dev: d, io: io}

	if err := d.validate(io); err != nil {
		r.finish(err)
		return
	}

	r.slot = io.Sector / d.sectorsPerBlock

	switch io.Op {
	case port.OpWrite:
		r.write()
	case port.OpRead:
		r.read()
	}
}

func (d *Device) validate(io *IO) error {
	if io.Op != port.OpRead && io.Op != port.OpWrite {
		return errs.ErrUnsupportedOperation.WithMessage("%s", io.Op)
	}

	if io.Payload == nil || io.Payload.Len() != d.blockSize {
		n := 0
		if io.Payload != nil {
			n = io.Payload.Len()
		}
		return errs.ErrUnsupportedTransferSize.WithMessage("%d bytes, block size is %d", n, d.blockSize)
	}

	if io.Sector < 0 || io.Sector%d.sectorsPerBlock != 0 || io.Sector+d.sectorsPerBlock > d.capacity {
		return errs.ErrMappingFailed.WithMessage("sector %d is not a block of the device with %d sectors", io.Sector, d.capacity)
	}

	return nil
}

// Terminal state of every request. Releases the chunk and the slot before
// the consumer is notified, so Done can submit again.
func (r *request) finish(err error) {
	if err != nil {
		log.Debug().Err(err).Str("device", r.dev.name).Stringer("op", r.io.Op).Int64("sector", r.io.Sector).Msg("Request failed")
	}

	r.chunk.Free()
	r.chunk = nil

	if r.unlock != nil {
		r.unlock()
		r.unlock = nil
	}

	r.dev.inflight.Done()
	r.io.Done(err)
}

// Failed physical I/O. Errors already carrying the kind are kept as they are.
func ioError(err error) error {
	if err == nil || errors.Is(err, errs.ErrIOFailed) {
		return err
	}

	return errs.ErrIOFailed.Wrap(err)
}

// ReadBlock reads the block at sector into buf and waits for the result.
func (d *Device) ReadBlock(sector int64, buf []byte) error {
	return d.do(port.OpRead, sector, buf)
}

// WriteBlock writes buf to the block at sector and waits for the result.
func (d *Device) WriteBlock(sector int64, buf []byte) error {
	return d.do(port.OpWrite, sector, buf)
}

func (d *Device) do(op port.Op, sector int64, buf []byte) error {
	done := make(chan error, 1)

	d.Submit(&IO{
		Op:      op,
		Sector:  sector,
		Payload: port.NewTransfer(buf),
		Done:    func(err error) { done <- err },
	})

	return <-done
}
