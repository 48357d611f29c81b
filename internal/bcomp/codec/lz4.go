// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package codec

import (
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"

	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/errs"
)

const (
	// Level ids [0..MaxFastID] are fast levels, the id is the acceleration
	// factor.
	MaxFastID = 15

	// Number of high compression levels.
	MaxHCLevel = 16

	// Level ids [MaxFastID+1..MaxHCID] are high compression levels
	// [1..MaxHCLevel].
	MaxHCID = MaxFastID + MaxHCLevel

	// Decompression trusting the expected size.
	DecompressFast = 0

	// Decompression bounded by the destination capacity.
	DecompressSafe = 1

	// Largest input accepted by the LZ4 block format.
	MaxInputSize = 0x7E000000
)

// Both lz4.Compressor and lz4.CompressorHC keep their hash tables inside.
type blockCompressor interface {
	CompressBlock(src, dst []byte) (int, error)
}

// lz4Engine uses LZ4 block format. Compressors carry mutable hash tables, so
// each call takes one from the pool for exclusive use and returns it when
// done.
type lz4Engine struct {
	levelID int
	modeID  int

	scratch sync.Pool
	closed  atomic.Bool
}

func validLevelID(id int) bool {
	return id >= 0 && id <= MaxHCID
}

func validModeID(id int) bool {
	return id == DecompressFast || id == DecompressSafe
}

func isHC(levelID int) bool {
	return levelID > MaxFastID
}

// Maps HC level [1..16] to the search depth of lz4.CompressorHC. The range
// spans lz4.Level1 to lz4.Level9.
func hcDepth(levelID int) lz4.CompressionLevel {
	level := levelID - MaxFastID
	return lz4.CompressionLevel(1 << (8 + level/2))
}

func openLZ4(levelID, decompressModeID int) (Engine, error) {
	if !validLevelID(levelID) {
		return nil, errs.ErrInvalidConfiguration.WithMessage("lz4 level id %d not in [0, %d]", levelID, MaxHCID)
	}

	if !validModeID(decompressModeID) {
		return nil, errs.ErrInvalidConfiguration.WithMessage("lz4 decompression mode %d not in {%d, %d}",
			decompressModeID, DecompressFast, DecompressSafe)
	}

	e := &lz4Engine{
		levelID: levelID,
		modeID:  decompressModeID,
	}

	if isHC(levelID) {
		depth := hcDepth(levelID)
		e.scratch.New = func() interface{} {
			return &lz4.CompressorHC{Level: depth}
		}
	} else {
		e.scratch.New = func() interface{} {
			return new(lz4.Compressor)
		}
	}

	// Warm up the pool so the first request does not pay for it.
	e.scratch.Put(e.scratch.New())

	return e, nil
}

func (e *lz4Engine) Profile() Profile {
	return LZ4
}

func (e *lz4Engine) DstCapacityHint(srcLen int) int {
	return lz4.CompressBlockBound(srcLen)
}

func validateChunk(c *chunk.Chunk) error {
	if !c.Src.Initialized() {
		return errs.ErrInvalidArgument.WithMessage("source not initialized")
	}

	if !c.Dst.Initialized() {
		return errs.ErrInvalidArgument.WithMessage("destination not initialized")
	}

	if c.Src.Len() > MaxInputSize {
		return errs.ErrInvalidArgument.WithMessage("source length %d exceeds lz4 maximum", c.Src.Len())
	}

	return nil
}

func (e *lz4Engine) Compress(c *chunk.Chunk) error {
	if e.closed.Load() {
		return errs.ErrCompressionFailed.WithMessage("engine closed")
	}

	if err := validateChunk(c); err != nil {
		return errs.ErrCompressionFailed.Wrap(err)
	}

	compressor := e.scratch.Get().(blockCompressor)
	n, err := compressor.CompressBlock(c.Src.Bytes(), c.Dst.Raw())
	e.scratch.Put(compressor)

	if err != nil {
		return errs.ErrCompressionFailed.Wrap(err)
	}

	if n <= 0 {
		return errs.ErrCompressionFailed.WithMessage("lz4 produced %d bytes", n)
	}

	return c.Dst.SetLen(n)
}

func (e *lz4Engine) Decompress(c *chunk.Chunk, expected int) error {
	if err := validateChunk(c); err != nil {
		return errs.ErrDecompressionFailed.Wrap(err)
	}

	window := c.Dst.Raw()
	if e.modeID == DecompressFast {
		if expected < 0 || expected > len(window) {
			return errs.ErrDecompressionFailed.WithMessage("expected %d bytes, destination holds %d", expected, len(window))
		}
		window = window[:expected]
	}

	n, err := lz4.UncompressBlock(c.Src.Bytes(), window)
	if err != nil {
		return errs.ErrDecompressionFailed.Wrap(err)
	}

	if n != expected {
		return errs.ErrDecompressionFailed.WithMessage("decompressed %d bytes, expected %d", n, expected)
	}

	return c.Dst.SetLen(n)
}

func (e *lz4Engine) Close() error {
	e.closed.Store(true)

	return nil
}
