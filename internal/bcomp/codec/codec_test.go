// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package codec

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/bcomp/internal/bcomp/chunk"
	"github.com/asch/bcomp/internal/bcomp/errs"
)

const blockSize = 4096

func patternBlock() []byte {
	return bytes.Repeat([]byte("bcomp-pattern-0123456789"), blockSize/24+1)[:blockSize]
}

func randomBlock(t *testing.T) []byte {
	b := make([]byte, blockSize)
	_, err := rand.Read(b)
	require.NoError(t, err)

	return b
}

func compress(t *testing.T, e Engine, payload []byte) *chunk.Chunk {
	c, err := chunk.AllocForCompression(len(payload), blockSize, e)
	require.NoError(t, err)

	copy(c.Src.Raw(), payload)
	require.NoError(t, c.Src.SetLen(len(payload)))
	require.NoError(t, e.Compress(c))

	return c
}

func roundTrip(t *testing.T, e Engine, payload []byte) {
	before := chunk.Outstanding()

	cc := compress(t, e, payload)
	compressed := append([]byte(nil), cc.Dst.Bytes()...)
	cc.Free()

	srcCap := blockSize
	if len(compressed) > srcCap {
		srcCap = len(compressed)
	}

	dc, err := chunk.Alloc(len(payload), srcCap, nil, nil)
	require.NoError(t, err)
	copy(dc.Src.Raw(), compressed)
	require.NoError(t, dc.Src.SetLen(len(compressed)))

	require.NoError(t, e.Decompress(dc, len(payload)))
	assert.Equal(t, payload, dc.Dst.Bytes())
	dc.Free()

	assert.Equal(t, before, chunk.Outstanding())
}

func TestRoundTripAllLevels(t *testing.T) {
	payloads := map[string][]byte{
		"pattern": patternBlock(),
		"random":  randomBlock(t),
		"zeroes":  make([]byte, blockSize),
	}

	for level := 0; level <= MaxHCID; level++ {
		for mode := DecompressFast; mode <= DecompressSafe; mode++ {
			e, err := Open(LZ4, level, mode)
			require.NoError(t, err)

			for name, p := range payloads {
				t.Run(fmt.Sprintf("lz4/%d/%d/%s", level, mode, name), func(t *testing.T) {
					roundTrip(t, e, p)
				})
			}

			require.NoError(t, e.Close())
		}
	}
}

func TestNoOpAliasesSource(t *testing.T) {
	e, err := Open(NoOp, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, e.DstCapacityHint(blockSize))

	payload := patternBlock()
	c := compress(t, e, payload)

	assert.Equal(t, chunk.Borrowed, c.Dst.State())
	assert.Equal(t, blockSize, c.Dst.Len())
	assert.Equal(t, payload, c.Dst.Bytes())

	require.NoError(t, e.Decompress(c, blockSize))
	assert.Equal(t, payload, c.Dst.Bytes())

	c.Free()
}

func TestCompressesPattern(t *testing.T) {
	e, err := Open(LZ4, 1, DecompressSafe)
	require.NoError(t, err)

	c := compress(t, e, patternBlock())
	defer c.Free()

	assert.Less(t, c.Dst.Len(), blockSize)
}

func TestRandomDoesNotShrink(t *testing.T) {
	e, err := Open(LZ4, 0, DecompressSafe)
	require.NoError(t, err)

	c := compress(t, e, randomBlock(t))
	defer c.Free()

	assert.GreaterOrEqual(t, c.Dst.Len(), blockSize)
	assert.LessOrEqual(t, c.Dst.Len(), e.DstCapacityHint(blockSize))
}

func TestOpenValidation(t *testing.T) {
	tests := []struct {
		name  string
		level int
		mode  int
		ok    bool
	}{
		{"fast lowest", 0, DecompressFast, true},
		{"fast highest", MaxFastID, DecompressSafe, true},
		{"hc lowest", MaxFastID + 1, DecompressFast, true},
		{"hc highest", MaxHCID, DecompressSafe, true},
		{"level above ranges", 9999, DecompressFast, false},
		{"level just above hc", MaxHCID + 1, DecompressFast, false},
		{"negative level", -1, DecompressFast, false},
		{"bad mode", 0, 2, false},
		{"negative mode", 0, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Open(LZ4, tt.level, tt.mode)
			if tt.ok {
				require.NoError(t, err)
				require.NoError(t, e.Close())
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
			assert.Nil(t, e)
		})
	}
}

func TestOpenUnknownProfile(t *testing.T) {
	_, err := Open(Profile(42), 0, 0)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}

func TestParseProfile(t *testing.T) {
	tests := []struct {
		input    string
		expected Profile
		ok       bool
	}{
		{"none", NoOp, true},
		{"empty", NoOp, true},
		{"lz4", LZ4, true},
		{"LZ4", 0, false},
		{"zstd", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParseProfile(tt.input)
			if !tt.ok {
				assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestDecompressWrongExpectedSize(t *testing.T) {
	for _, mode := range []int{DecompressFast, DecompressSafe} {
		e, err := Open(LZ4, 0, mode)
		require.NoError(t, err)

		cc := compress(t, e, patternBlock())

		dc, err := chunk.Alloc(blockSize, blockSize, nil, nil)
		require.NoError(t, err)
		copy(dc.Src.Raw(), cc.Dst.Bytes())
		require.NoError(t, dc.Src.SetLen(cc.Dst.Len()))

		err = e.Decompress(dc, blockSize-100)
		assert.True(t, errors.Is(err, errs.ErrDecompressionFailed), "mode %d: %v", mode, err)

		cc.Free()
		dc.Free()
	}
}

func TestDecompressGarbage(t *testing.T) {
	e, err := Open(LZ4, 0, DecompressSafe)
	require.NoError(t, err)

	dc, err := chunk.Alloc(blockSize, blockSize, nil, nil)
	require.NoError(t, err)
	defer dc.Free()

	garbage := bytes.Repeat([]byte{0xff}, 64)
	copy(dc.Src.Raw(), garbage)
	require.NoError(t, dc.Src.SetLen(len(garbage)))

	err = e.Decompress(dc, blockSize)
	assert.True(t, errors.Is(err, errs.ErrDecompressionFailed))
}

func TestCompressUninitialized(t *testing.T) {
	e, err := Open(LZ4, 0, DecompressSafe)
	require.NoError(t, err)

	c, err := chunk.Alloc(0, blockSize, nil, nil)
	require.NoError(t, err)
	defer c.Free()

	err = e.Compress(c)
	assert.True(t, errors.Is(err, errs.ErrCompressionFailed))
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestCompressAfterClose(t *testing.T) {
	e, err := Open(LZ4, 0, DecompressSafe)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	c, err := chunk.AllocForCompression(blockSize, blockSize, e)
	require.NoError(t, err)
	defer c.Free()
	require.NoError(t, c.Src.SetLen(blockSize))

	assert.True(t, errors.Is(e.Compress(c), errs.ErrCompressionFailed))
}

func TestOpenLogFields(t *testing.T) {
	var buf bytes.Buffer

	orig := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = orig }()

	e, err := Open(LZ4, 3, DecompressSafe)
	require.NoError(t, err)
	defer e.Close()

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, `"level":`))
	assert.Contains(t, line, `"level":"debug"`)
	assert.Contains(t, line, `"compress_level":3`)
}
