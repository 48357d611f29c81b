// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package codec

import (
	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/errs"
)

// noop engine never transforms data, the destination of a chunk just borrows
// its source. It accepts any level and mode id.
type noop struct {
	levelID int
	modeID  int
}

func openNoOp(levelID, decompressModeID int) (Engine, error) {
	return &noop{levelID: levelID, modeID: decompressModeID}, nil
}

func (n *noop) Profile() Profile {
	return NoOp
}

func (n *noop) DstCapacityHint(int) int {
	return 0
}

func (n *noop) Compress(c *chunk.Chunk) error {
	if !c.Src.Initialized() {
		return errs.ErrCompressionFailed.WithMessage("source not initialized")
	}

	c.AliasSrcToDst()

	return nil
}

func (n *noop) Decompress(c *chunk.Chunk, expected int) error {
	if !c.Src.Initialized() {
		return errs.ErrDecompressionFailed.WithMessage("source not initialized")
	}

	c.AliasSrcToDst()

	return nil
}

func (n *noop) Close() error {
	return nil
}
