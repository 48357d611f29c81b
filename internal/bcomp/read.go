// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package bcomp

import (
	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/mapproxy"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Reads the block. Plain blocks go directly to the consumer memory,
// compressed ones are read into the chunk and decompressed on completion.
func (r *request) read() {
	d := r.dev

	lock := d.locks.get(r.slot)
	lock.RLock()
	r.unlock = lock.RUnlock

	cell, err := d.table.Lookup(r.io.Sector)
	if err != nil {
		r.finish(err)
		return
	}

	if cell == nil {
		t, err := d.port.CloneTransfer(r.io.Payload)
		if err != nil {
			r.finish(err)
			return
		}

		d.port.Submit(r.io.Sector, t, port.OpRead, func(err error) {
			r.finish(ioError(err))
		})

		return
	}

	c, err := chunk.Alloc(int(cell.LSize), d.blockSize, nil, nil)
	if err != nil {
		r.finish(err)
		return
	}
	r.chunk = c

	t, err := d.port.AllocateTransfer(1)
	if err != nil {
		r.finish(err)
		return
	}

	if err := t.Add(c.Src.Raw()[:cell.PSize]); err != nil {
		t.Release()
		r.finish(err)
		return
	}

	d.port.Submit(cell.PBA, t, port.OpRead, func(err error) {
		r.readDone(cell, err)
	})
}

func (r *request) readDone(cell *mapproxy.Cell, err error) {
	if err != nil {
		r.finish(ioError(err))
		return
	}

	c := r.chunk
	if err := c.Src.SetLen(int(cell.PSize)); err != nil {
		r.finish(err)
		return
	}

	if err := r.dev.engine.Decompress(c, int(cell.LSize)); err != nil {
		r.finish(err)
		return
	}

	r.io.Payload.CopyFrom(c.Dst.Bytes())
	r.finish(nil)
}
