// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package bcomp

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/asch/bcomp/internal/bcomp/codec"
	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/mapproxy"
	"github.com/asch/bcomp/internal/bcomp/mapproxy/linearmap"
	"github.com/asch/bcomp/internal/bcomp/port"
	"github.com/asch/bcomp/internal/bcomp/port/fileport"
	"github.com/asch/bcomp/internal/bcomp/port/memport"
	"github.com/asch/bcomp/internal/bcomp/port/nullport"
	"github.com/asch/bcomp/internal/bcomp/port/objport"
	"github.com/asch/bcomp/internal/bcomp/port/objport/s3"
	"github.com/asch/bcomp/internal/bcomp/stats"
)

// Supported block sizes in bytes.
var BlockSizes = []int{4 << 10, 8 << 10, 16 << 10, 32 << 10, 64 << 10, 128 << 10}

// Minor numbers of devices opened by this process.
var minors atomic.Int64

// Settings of the device. The first six fields are mandatory and correspond
// to the ordered device table line. The rest tunes the storage port.
type Settings struct {
	BlockSize      int
	Compression    string
	CompressLevel  int
	DecompressMode int
	Mapping        string
	Path           string

	// Number of transfers in flight on the storage port.
	PoolSize int64

	// Number of go routines doing blocking file I/O.
	Workers int

	// Size in bytes for backends which do not have one, i.e. null and s3.
	Size int64

	S3          s3.Options
	Uploaders   int
	Downloaders int
}

// Device is one compressed block device. It owns the storage port, the
// compression engine and the mapping table. Requests reference the device
// explicitly, so any number of devices can coexist.
type Device struct {
	name            string
	blockSize       int
	sectorsPerBlock int64
	capacity        int64

	port   port.Port
	engine codec.Engine
	table  *mapproxy.Proxy
	stats  *stats.Stats

	locks    slotLocks
	inflight sync.WaitGroup

	// Guards closed together with inflight.Add, so no request slips in
	// after Close started waiting.
	closeMu sync.RWMutex
	closed  bool
}

func validBlockSize(bs int) bool {
	for _, s := range BlockSizes {
		if s == bs {
			return true
		}
	}

	return false
}

// Open validates settings, opens the storage at s.Path and creates the
// device on top of it.
func Open(s Settings) (*Device, error) {
	if !validBlockSize(s.BlockSize) {
		return nil, errs.ErrInvalidConfiguration.WithMessage("block size %d not in %v", s.BlockSize, BlockSizes)
	}

	profile, err := codec.ParseProfile(s.Compression)
	if err != nil {
		return nil, err
	}

	engine, err := codec.Open(profile, s.CompressLevel, s.DecompressMode)
	if err != nil {
		return nil, err
	}

	if _, err := mapproxy.ParseProfile(s.Mapping); err != nil {
		engine.Close()
		return nil, err
	}

	p, err := openPort(s)
	if err != nil {
		engine.Close()
		return nil, err
	}

	d, err := newDevice(s, p, engine)
	if err != nil {
		engine.Close()
		p.Close()
		return nil, err
	}

	return d, nil
}

// Selects the storage port by the path scheme. Anything without a known
// scheme is a file or a block device.
func openPort(s Settings) (port.Port, error) {
	switch {
	case s.Path == "":
		return nil, errs.ErrInvalidConfiguration.WithMessage("empty storage path")

	case s.Path == nullport.Name:
		return nullport.New(s.Size, s.PoolSize), nil

	case strings.HasPrefix(s.Path, memport.Scheme):
		return memport.Open(s.Path, s.PoolSize)

	case strings.HasPrefix(s.Path, s3.Scheme):
		return openS3(s)
	}

	return fileport.Open(s.Path, s.Workers, s.PoolSize)
}

func openS3(s Settings) (port.Port, error) {
	bucket, ok := s3.BucketFromPath(s.Path)
	if !ok {
		return nil, errs.ErrInvalidConfiguration.WithMessage("no bucket in %q", s.Path)
	}

	o := s.S3
	o.Bucket = bucket

	backend, err := s3.New(o)
	if err != nil {
		return nil, errs.ErrInvalidConfiguration.Wrap(err)
	}

	return objport.New(backend, objport.Options{
		Name:        s.Path,
		Size:        s.Size,
		BlockSize:   s.BlockSize,
		Uploaders:   s.Uploaders,
		Downloaders: s.Downloaders,
		PoolSize:    s.PoolSize,
	})
}

// Creates the device over already opened port and engine. Takes their
// ownership only on success.
func newDevice(s Settings, p port.Port, engine codec.Engine) (*Device, error) {
	if !validBlockSize(s.BlockSize) {
		return nil, errs.ErrInvalidConfiguration.WithMessage("block size %d not in %v", s.BlockSize, BlockSizes)
	}

	capacity := p.Capacity()
	m, err := linearmap.New(capacity, s.BlockSize)
	if err != nil {
		return nil, err
	}

	d := &Device{
		name:            fmt.Sprintf("bcomp%d", minors.Add(1)-1),
		blockSize:       s.BlockSize,
		sectorsPerBlock: int64(s.BlockSize / port.SectorSize),
		capacity:        capacity,
		port:            p,
		engine:          engine,
		table:           mapproxy.New(m),
		stats:           new(stats.Stats),
	}

	log.Info().
		Str("device", d.name).
		Str("storage", p.Name()).
		Int("block_size", d.blockSize).
		Stringer("compression", engine.Profile()).
		Int64("blocks", m.Len()).
		Msg("Device opened")

	return d, nil
}

// Close waits for requests in flight and releases the table, the engine and
// the storage port. Requests submitted after Close fail.
func (d *Device) Close() error {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return nil
	}
	d.closed = true
	d.closeMu.Unlock()

	d.inflight.Wait()
	d.table.Close()

	var result *multierror.Error
	if err := d.engine.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := d.port.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	log.Info().Str("device", d.name).Msg("Device closed")

	return result.ErrorOrNil()
}

// Name of the device, e.g. bcomp0.
func (d *Device) Name() string {
	return d.name
}

// Info returns device name and the name of the underlying storage.
func (d *Device) Info() string {
	return d.name + ":" + d.port.Name()
}

// Capacity of the device in sectors.
func (d *Device) Capacity() int64 {
	return d.capacity
}

// BlockSize in bytes.
func (d *Device) BlockSize() int {
	return d.blockSize
}

// Stats of the device. Shared, the caller can reset them.
func (d *Device) Stats() *stats.Stats {
	return d.stats
}

// Usage of the mapping table.
func (d *Device) Usage() mapproxy.Usage {
	return d.table.Usage()
}
