// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Linearmap package provides the linear implementation of Mapper interface.
// More details are in the LinearMap struct description.
package linearmap

import (
	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/mapproxy"
)

// Sector is a linux constant, which is always 512, no matter how big your
// sectors or blocks are.
const sectorUnit = 512

// Implementation of the Mapper interface with one cell slot per block stored
// in a continuous array. The physical block of a compressed block is always
// its logical block, compression shrinks only the number of transferred bytes
// and never relocates data.
//
// Cells are allocated lazily on the first compression of the block and reused
// for all later updates, cleared cells just carry the not compressed sentinel.
// Hence there is no allocation churn for blocks which are rewritten over and
// over. The map does not support concurrent access, use it through the proxy.
type LinearMap struct {
	cells           []*mapproxy.Cell
	sectorsPerBlock int64
	usage           mapproxy.Usage
}

// Returns new map covering capacity sectors of the device with blocks of
// blockSize bytes.
func New(capacity int64, blockSize int) (*LinearMap, error) {
	if blockSize < sectorUnit || blockSize%sectorUnit != 0 {
		return nil, errs.ErrInvalidConfiguration.WithMessage("block size %d is not a multiple of %d", blockSize, sectorUnit)
	}

	if capacity < 0 {
		return nil, errs.ErrInvalidConfiguration.WithMessage("negative capacity %d", capacity)
	}

	sectorsPerBlock := int64(blockSize / sectorUnit)

	m := LinearMap{
		cells:           make([]*mapproxy.Cell, divRoundUp(capacity, sectorsPerBlock)),
		sectorsPerBlock: sectorsPerBlock,
	}

	return &m, nil
}

func divRoundUp(n, d int64) int64 {
	return (n + d - 1) / d
}

// Returns index of the cell slot for lba.
func (m *LinearMap) slot(lba int64) (int64, error) {
	key := divRoundUp(lba, m.sectorsPerBlock)
	if lba < 0 || key >= int64(len(m.cells)) {
		return 0, errs.ErrMappingFailed.WithMessage("sector %d outside of map with %d blocks", lba, len(m.cells))
	}

	return key, nil
}

// Updates the cell of the block at lba. If the block shrinks, cell is
// allocated or reused and its copy is returned. Otherwise the existing cell is
// cleared and nil is returned.
func (m *LinearMap) Update(lba int64, lsize, psize uint32) (*mapproxy.Cell, error) {
	key, err := m.slot(lba)
	if err != nil {
		return nil, err
	}

	cell := m.cells[key]
	m.forget(cell)

	if psize >= lsize {
		if cell != nil {
			cell.Clear()
		}

		return nil, nil
	}

	if cell == nil {
		cell = new(mapproxy.Cell)
		m.cells[key] = cell
	}

	*cell = mapproxy.Cell{
		LBA:   lba,
		PBA:   lba,
		LSize: lsize,
		PSize: psize,
	}
	m.account(cell)

	c := *cell

	return &c, nil
}

// Returns copy of the cell at lba if the block is stored compressed.
func (m *LinearMap) Lookup(lba int64) (*mapproxy.Cell, error) {
	key, err := m.slot(lba)
	if err != nil {
		return nil, err
	}

	cell := m.cells[key]
	if !cell.Compressed() {
		return nil, nil
	}

	c := *cell

	return &c, nil
}

// Number of cell slots.
func (m *LinearMap) Len() int64 {
	return int64(len(m.cells))
}

// Summary of compressed blocks in the map.
func (m *LinearMap) Usage() mapproxy.Usage {
	return m.usage
}

func (m *LinearMap) account(c *mapproxy.Cell) {
	m.usage.CompressedBlocks++
	m.usage.LogicalBytes += int64(c.LSize)
	m.usage.PhysicalBytes += int64(c.PSize)
}

func (m *LinearMap) forget(c *mapproxy.Cell) {
	if !c.Compressed() {
		return
	}

	m.usage.CompressedBlocks--
	m.usage.LogicalBytes -= int64(c.LSize)
	m.usage.PhysicalBytes -= int64(c.PSize)
}
