// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package main

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/bcomp/internal/bcomp"
	"github.com/asch/bcomp/internal/bcomp/stats"
)

func openMem(t *testing.T, path string) *bcomp.Device {
	dev, err := bcomp.Open(bcomp.Settings{
		BlockSize:      4096,
		Compression:    "lz4",
		CompressLevel:  16,
		DecompressMode: 1,
		Mapping:        "linear",
		Path:           path,
	})
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	return dev
}

func TestBench(t *testing.T) {
	dev := openMem(t, "mem://1MiB")

	random := make([]byte, 8192)
	_, err := rand.Read(random)
	require.NoError(t, err)

	// Two compressible blocks, two random ones and a padded tail.
	data := append(bytes.Repeat([]byte("bench "), 8192/6+1)[:8192], random...)
	data = append(data, []byte("tail")...)

	require.NoError(t, bench(dev, data, 4))

	s := dev.Stats().Snapshot()
	assert.Equal(t, int64(5), s.AllReqs)
	assert.Equal(t, int64(2), s.UncompressedReqs)
}

func TestBenchTooBig(t *testing.T) {
	dev := openMem(t, "mem://8KiB")

	err := bench(dev, make([]byte, 3*4096), 2)
	assert.ErrorContains(t, err, "does not fit")
}

func TestBenchConcurrency(t *testing.T) {
	dev := openMem(t, "mem://64KiB")

	for _, c := range []int{0, -1} {
		err := bench(dev, make([]byte, 4096), c)
		assert.ErrorContains(t, err, "at least 1")
	}

	assert.Zero(t, dev.Stats().Snapshot().AllReqs)
}

func TestPrintStats(t *testing.T) {
	var s stats.Stats
	s.RecordCompressed(4096, 1024)
	s.RecordUncompressed(4096)

	var out strings.Builder
	printStats(&out, s.Snapshot(), 8192, time.Second)

	assert.Contains(t, out.String(), "compressed_reqs_cnt_50")
	assert.Contains(t, out.String(), "stored 5.0 KiB")
}
