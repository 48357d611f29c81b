// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require.NoError(t, Configure(filepath.Join(t.TempDir(), "missing.toml")))

	assert.Equal(t, 4096, Cfg.Device.BlockSize)
	assert.Equal(t, "lz4", Cfg.Device.Compression)
	assert.Equal(t, 1, Cfg.Device.DecompressMode)
	assert.Equal(t, "linear", Cfg.Device.Mapping)
	assert.Equal(t, "mem://64MiB", Cfg.Device.Path)
	assert.Equal(t, int64(8<<30), Cfg.Size)
	assert.Equal(t, int64(1024), Cfg.PoolSize)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
null = true
size = 1

[device]
block_size = 16384
compression = "none"
compress_level = 20

[s3]
uploaders = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, Configure(path))

	assert.Equal(t, 16384, Cfg.Device.BlockSize)
	assert.Equal(t, "none", Cfg.Device.Compression)
	assert.Equal(t, 20, Cfg.Device.CompressLevel)
	assert.Equal(t, "null", Cfg.Device.Path)
	assert.Equal(t, int64(1<<30), Cfg.Size)
	assert.Equal(t, 4, Cfg.S3.Uploaders)
	assert.Equal(t, 16, Cfg.S3.Downloaders)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BCOMP_BLOCKSIZE", "8192")
	t.Setenv("BCOMP_PATH", "/dev/vdb")

	require.NoError(t, Configure(filepath.Join(t.TempDir(), "missing.toml")))

	assert.Equal(t, 8192, Cfg.Device.BlockSize)
	assert.Equal(t, "/dev/vdb", Cfg.Device.Path)
}

func TestDescription(t *testing.T) {
	assert.Contains(t, Description(), "BCOMP_COMPRESSION")
}
