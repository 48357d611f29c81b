// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package codec provides pluggable compression engines working on chunks.
// Every profile implements the Engine interface and registers its opener, so
// new profiles do not touch the request pipeline.
package codec

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/errs"
)

// Profile identifies the compression engine implementation.
type Profile int

const (
	// Data are passed through, destination aliases the source.
	NoOp Profile = iota

	// General-purpose LZ4 block compression with fast and high
	// compression levels.
	LZ4
)

var profileNames = map[string]Profile{
	"none":  NoOp,
	"empty": NoOp,
	"lz4":   LZ4,
}

func (p Profile) String() string {
	switch p {
	case NoOp:
		return "none"
	case LZ4:
		return "lz4"
	}

	return fmt.Sprintf("profile(%d)", int(p))
}

// ParseProfile returns profile for its configuration name.
func ParseProfile(name string) (Profile, error) {
	p, ok := profileNames[name]
	if !ok {
		return 0, errs.ErrInvalidConfiguration.WithMessage("unknown compression profile %q", name)
	}

	return p, nil
}

// Engine compresses and decompresses chunks. Implementations must be safe for
// concurrent use by multiple requests.
type Engine interface {
	// Profile of the engine.
	Profile() Profile

	// Worst case destination capacity for compressing srcLen bytes. Zero
	// means the destination reuses the source.
	DstCapacityHint(srcLen int) int

	// Compresses chunk.Src into chunk.Dst and sets the length of the
	// destination to the compressed size.
	Compress(c *chunk.Chunk) error

	// Decompresses chunk.Src into chunk.Dst. The result has to be exactly
	// expected bytes long.
	Decompress(c *chunk.Chunk, expected int) error

	// Releases scratch memory of the engine.
	Close() error
}

// Opens engine of the profile. Parameters are validated before any scratch
// memory is allocated.
type opener func(levelID, decompressModeID int) (Engine, error)

var openers = map[Profile]opener{
	NoOp: openNoOp,
	LZ4:  openLZ4,
}

// Open returns engine of profile p configured with compression level id and
// decompression mode id. Their meaning is profile specific.
func Open(p Profile, levelID, decompressModeID int) (Engine, error) {
	open, ok := openers[p]
	if !ok {
		return nil, errs.ErrInvalidConfiguration.WithMessage("compression profile %d not implemented", int(p))
	}

	e, err := open(levelID, decompressModeID)
	if err != nil {
		return nil, err
	}

	log.Debug().Stringer("profile", p).Int("compress_level", levelID).Int("mode", decompressModeID).Msg("Compression engine opened.")

	return e, nil
}
