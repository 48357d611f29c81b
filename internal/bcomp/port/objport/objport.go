// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package objport implements port over an object store. Every physical block
// is stored as one object keyed by the block number. Objects of compressed
// blocks are shorter than the block, so the store holds only what was really
// written.
package objport

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/asch/bcomp/internal/bcomp/errs"
	"github.com/asch/bcomp/internal/bcomp/port"
)

// Returned by backends when the object does not exist. Such reads complete
// with zeroes, like reads of never written sectors of a disk.
var ErrNoSuchObject = errors.New("no such object")

// Interface for object backend storage. Anything implementing this interface
// can be used as a storage backend.
type ObjectUploadDownloaderAt interface {
	// Uploads data in buf under the key identifier. The object is replaced
	// as a whole.
	Upload(key int64, buf []byte) error

	// Downloads data into buf starting from offset in the object
	// identified by key. The length of buf is the legth of requested data.
	DownloadAt(key int64, buf []byte, offset int64) error
}

// Options to use in New() function due to high number of parameters.
type Options struct {
	// Name reported by the port, e.g. s3://bucket.
	Name string

	// Pretended size of the device in bytes.
	Size int64

	// Size of one object in bytes.
	BlockSize int

	// Number of go routines to spawn for handling upload requests and
	// download requests.
	Uploaders   int
	Downloaders int

	PoolSize int64
}

// ObjPort is a proxy for the backend storage. Writes are served by uploader
// workers and reads by downloader workers, so a burst of writes does not
// starve reads.
type ObjPort struct {
	*port.Pool

	Instance ObjectUploadDownloaderAt

	name            string
	size            int64
	sectorsPerBlock int64

	uploads   chan request
	downloads chan request
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// Request is internal structure for wrapping the communication into channels.
type request struct {
	key    int64
	offset int64
	t      *port.Transfer
	done   func(error)
}

// Return new instance of the proxy which can be directly used. It immediately
// spawns go routines for upload and download workers.
func New(instance ObjectUploadDownloaderAt, o Options) (*ObjPort, error) {
	if o.BlockSize <= 0 || o.BlockSize%port.SectorSize != 0 {
		return nil, errs.ErrInvalidConfiguration.WithMessage("block size %d", o.BlockSize)
	}

	if o.Uploaders <= 0 || o.Downloaders <= 0 {
		return nil, errs.ErrInvalidConfiguration.WithMessage("%d uploaders and %d downloaders", o.Uploaders, o.Downloaders)
	}

	if o.PoolSize <= 0 {
		o.PoolSize = port.DefaultPoolSize
	}

	// Buffers are as big as the transfer pool, so sending to them never
	// blocks.
	p := &ObjPort{
		Pool:            port.NewPool(o.PoolSize),
		Instance:        instance,
		name:            o.Name,
		size:            o.Size,
		sectorsPerBlock: int64(o.BlockSize / port.SectorSize),
		uploads:         make(chan request, o.PoolSize),
		downloads:       make(chan request, o.PoolSize),
	}

	for i := 0; i < o.Uploaders; i++ {
		p.workers.Add(1)
		go p.uploadWorker()
	}

	for i := 0; i < o.Downloaders; i++ {
		p.workers.Add(1)
		go p.downloadWorker()
	}

	return p, nil
}

func (p *ObjPort) Name() string {
	return p.name
}

func (p *ObjPort) Capacity() int64 {
	return p.size / port.SectorSize
}

// Submit translates the sector to the object key and offset and hands the
// request over to the workers.
func (p *ObjPort) Submit(sector int64, t *port.Transfer, op port.Op, done func(error)) {
	r := request{
		key:    sector / p.sectorsPerBlock,
		offset: sector % p.sectorsPerBlock * port.SectorSize,
		t:      t,
		done:   done,
	}

	if sector < 0 || sector*port.SectorSize+int64(t.Len()) > p.size {
		r.complete(errs.ErrIOFailed.WithMessage("%s of %d bytes at sector %d is out of range", op, t.Len(), sector))
		return
	}

	if r.offset+int64(t.Len()) > p.sectorsPerBlock*port.SectorSize {
		r.complete(errs.ErrIOFailed.WithMessage("%s at sector %d crosses the object boundary", op, sector))
		return
	}

	switch op {
	case port.OpRead:
		p.downloads <- r
	case port.OpWrite:
		if r.offset != 0 {
			r.complete(errs.ErrIOFailed.WithMessage("write at sector %d does not start an object", sector))
			return
		}
		p.uploads <- r
	default:
		r.complete(errs.ErrUnsupportedOperation.WithMessage("%s", op))
	}
}

// Close stops the workers after they drain the queues.
func (p *ObjPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.uploads)
		close(p.downloads)
	})
	p.workers.Wait()

	return nil
}

func (r request) complete(err error) {
	r.done(err)
	r.t.Release()
}

// Upload worker just calls Upload() on the instance provided in New().
func (p *ObjPort) uploadWorker() {
	defer p.workers.Done()

	for r := range p.uploads {
		body := r.t.Segments()[0]
		if len(r.t.Segments()) > 1 {
			body = make([]byte, r.t.Len())
			r.t.CopyTo(body)
		}

		err := p.Instance.Upload(r.key, body)
		if err != nil {
			log.Debug().Err(err).Int64("key", r.key).Msg("Upload failed")
		}

		r.complete(errs.ErrIOFailed.Wrap(err))
	}
}

// Download worker just calls DownloadAt() on the instance provided in New().
func (p *ObjPort) downloadWorker() {
	defer p.workers.Done()

	for r := range p.downloads {
		r.complete(p.download(r))
	}
}

func (p *ObjPort) download(r request) error {
	off := r.offset
	for _, s := range r.t.Segments() {
		err := p.Instance.DownloadAt(r.key, s, off)

		switch {
		case errors.Is(err, ErrNoSuchObject):
			for i := range s {
				s[i] = 0
			}
		case err != nil:
			log.Debug().Err(err).Int64("key", r.key).Msg("Download failed")
			return errs.ErrIOFailed.Wrap(err)
		}

		off += int64(len(s))
	}

	return nil
}
