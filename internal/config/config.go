// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package config is a singleton and provides global access to the
// configuration values.
package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// Default config path. It does not need to exist, default values for all parameters will be
	// used instead.
	DefaultConfig = "/etc/bcomp/config.toml"
)

var Cfg Config

// Configuration structure for the program. We use toml format for file-based
// configuration and also all configuration options can be overriden by
// environment variable specified in this structure.
type Config struct {
	ConfigPath string

	// The device table line. All six fields are mandatory for the device,
	// defaults give a working lz4 device.
	Device struct {
		BlockSize      int    `toml:"block_size" env:"BCOMP_BLOCKSIZE" env-default:"4096" env-description:"Block size in bytes. One of 4096, 8192, 16384, 32768, 65536, 131072."`
		Compression    string `toml:"compression" env:"BCOMP_COMPRESSION" env-default:"lz4" env-description:"Compression profile. none, empty or lz4."`
		CompressLevel  int    `toml:"compress_level" env:"BCOMP_COMPRESS_LEVEL" env-default:"0" env-description:"Compression level id. 0-15 fast, 16-31 high compression."`
		DecompressMode int    `toml:"decompress_mode" env:"BCOMP_DECOMPRESS_MODE" env-default:"1" env-description:"Decompression mode id. 0 fast, 1 safe."`
		Mapping        string `toml:"mapping" env:"BCOMP_MAPPING" env-default:"linear" env-description:"Mapping profile."`
		Path           string `toml:"path" env:"BCOMP_PATH" env-default:"mem://64MiB" env-description:"Underlying storage. File, block device, null, mem://<size> or s3://<bucket>."`
	} `toml:"device"`

	Null     bool   `toml:"null" env:"BCOMP_NULL" env-default:"false" env-description:"Use null storage, i.e. immediate acknowledge to read or write. For measuring the compression pipeline alone."`
	Size     int64  `toml:"size" env:"BCOMP_SIZE" env-default:"8" env-description:"Device size in GB for storages without own size (null, s3)."`
	PoolSize int64  `toml:"pool_size" env:"BCOMP_POOL_SIZE" env-default:"1024" env-description:"Max number of transfers in flight on the storage."`
	Workers  int    `toml:"workers" env:"BCOMP_WORKERS" env-default:"64" env-description:"Number of go routines doing blocking file I/O."`
	Listen   string `toml:"listen" env:"BCOMP_LISTEN" env-default:"localhost:7070" env-description:"Address of the stats endpoint."`

	S3 struct {
		Remote      string `toml:"remote" env:"BCOMP_S3_REMOTE" env-description:"S3 Remote address. Empty string for AWS S3 endpoint." env-default:""`
		Region      string `toml:"region" env:"BCOMP_S3_REGION" env-description:"S3 Region." env-default:"us-east-1"`
		AccessKey   string `toml:"access_key" env:"BCOMP_S3_ACCESSKEY" env-description:"S3 Access Key." env-default:""`
		SecretKey   string `toml:"secret_key" env:"BCOMP_S3_SECRETKEY" env-description:"S3 Secret Key." env-default:""`
		Uploaders   int    `toml:"uploaders" env:"BCOMP_S3_UPLOADERS" env-description:"S3 Max number of uploader threads." env-default:"16"`
		Downloaders int    `toml:"downloaders" env:"BCOMP_S3_DOWNLOADERS" env-description:"S3 Max number of downloader threads." env-default:"16"`
	} `toml:"s3"`

	Log struct {
		Level  int  `toml:"level" env:"BCOMP_LOG_LEVEL" env-description:"Log level." env-default:"-1"`
		Pretty bool `toml:"pretty" env:"BCOMP_LOG_PRETTY" env-description:"Pretty logging." env-default:"true"`
	} `toml:"log"`

	Profiler bool `toml:"profiler" env:"BCOMP_PROFILER" env-description:"Enable golang web profiler on the stats endpoint." env-default:"false"`
}

// Configure reads the configuration from path. The configuration file has
// the lower priotiry and the environment variables have the highest priority.
// It is perfetcly to fine to use just one of these or to combine them.
func Configure(path string) error {
	Cfg = Config{ConfigPath: path}

	return parse()
}

// Parse the configuration file and reads the environment variable. After that
// it does some values postprocessing and fills the Cfg structure.
func parse() error {
	if err := cleanenv.ReadConfig(Cfg.ConfigPath, &Cfg); err != nil {
		if err := cleanenv.ReadEnv(&Cfg); err != nil {
			return err
		}
	}

	Cfg.Size *= 1024 * 1024 * 1024

	if Cfg.Null {
		Cfg.Device.Path = "null"
	}

	return nil
}

// Description of all configuration variables with their environment names
// and defaults.
func Description() string {
	d, err := cleanenv.GetDescription(&Cfg, nil)
	if err != nil {
		return err.Error()
	}

	return d
}
