// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package bcomp

import (
	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/codec"
	"github.com/asch/bcomp/internal/bcomp/mapproxy"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Compresses the payload, records the result in the table and writes the
// shorter of the compressed and the plain block to the storage. The block
// always stays at its logical address.
func (r *request) write() {
	d := r.dev

	lock := d.locks.get(r.slot)
	lock.Lock()
	r.unlock = lock.Unlock

	c, err := chunk.AllocForCompression(d.blockSize, d.blockSize, d.engine)
	if err != nil {
		r.finish(err)
		return
	}
	r.chunk = c

	n := r.io.Payload.CopyTo(c.Src.Raw())
	if err := c.Src.SetLen(n); err != nil {
		r.finish(err)
		return
	}

	if err := d.engine.Compress(c); err != nil {
		r.finish(err)
		return
	}

	cell, err := d.table.Update(r.io.Sector, uint32(c.Src.Len()), uint32(c.Dst.Len()))
	if err != nil {
		r.finish(err)
		return
	}

	pba := r.io.Sector
	if cell != nil {
		pba = cell.PBA
	} else {
		c.AliasSrcToDst()
	}

	// The table is already updated at this point and stays so even if the
	// physical write is never issued.
	t, err := d.port.AllocateTransfer(1)
	if err != nil {
		r.finish(err)
		return
	}

	if err := t.Add(c.Dst.Bytes()); err != nil {
		t.Release()
		r.finish(err)
		return
	}

	d.port.Submit(pba, t, port.OpWrite, func(err error) {
		r.writeDone(cell, err)
	})
}

func (r *request) writeDone(cell *mapproxy.Cell, err error) {
	if err != nil {
		r.finish(ioError(err))
		return
	}

	d := r.dev
	if cell == nil || d.engine.Profile() == codec.NoOp {
		d.stats.RecordUncompressed(d.blockSize)
	} else {
		d.stats.RecordCompressed(cell.LSize, cell.PSize)
	}

	r.finish(nil)
}
