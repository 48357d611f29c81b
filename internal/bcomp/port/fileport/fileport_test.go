// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package fileport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/port"
)

func newImage(t *testing.T, size int64) string {
	path := filepath.Join(t.TempDir(), "image")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())

	return path
}

func submit(p port.Port, sector int64, t *port.Transfer, op port.Op) error {
	done := make(chan error, 1)
	p.Submit(sector, t, op, func(err error) { done <- err })
	return <-done
}

func TestOpen(t *testing.T) {
	path := newImage(t, 1<<20)

	p, err := Open(path, 4, 16)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, int64(2048), p.Capacity())
	assert.Equal(t, path, p.Name())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), 4, 16)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadWrite(t *testing.T) {
	path := newImage(t, 64*1024)

	p, err := Open(path, 2, 16)
	require.NoError(t, err)

	in := bytes.Repeat([]byte("block"), 1000)[:4096]
	w, err := p.AllocateTransfer(1)
	require.NoError(t, err)
	require.NoError(t, w.Add(in))
	require.NoError(t, submit(p, 16, w, port.OpWrite))

	out := make([]byte, 4096)
	r, err := p.CloneTransfer(port.NewTransfer(out))
	require.NoError(t, err)
	require.NoError(t, submit(p, 16, r, port.OpRead))
	assert.Equal(t, in, out)

	require.NoError(t, p.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, raw[16*port.SectorSize:16*port.SectorSize+4096])
}

func TestStorageSizeRegular(t *testing.T) {
	f, err := os.Open(newImage(t, 3*port.SectorSize))
	require.NoError(t, err)
	defer f.Close()

	size, err := storageSize(f)
	require.NoError(t, err)
	assert.Equal(t, int64(3*port.SectorSize), size)
}

func TestStorageSizeCharDevice(t *testing.T) {
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer f.Close()

	_, err = storageSize(f)
	assert.Error(t, err)

	_, err = OpenFile(os.DevNull)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestStorageSizeBlockDevice(t *testing.T) {
	paths, _ := filepath.Glob("/dev/loop[0-9]*")
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil || fi.Mode()&os.ModeDevice == 0 || fi.Mode()&os.ModeCharDevice != 0 {
			continue
		}

		size, err := storageSize(f)
		require.NoError(t, err)

		end, err := f.Seek(0, io.SeekEnd)
		require.NoError(t, err)
		assert.Equal(t, end, size)

		return
	}

	t.Skip("no readable block device")
}
