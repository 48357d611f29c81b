// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Mapproxy package is a proxy for structs with Mapper interface. It
// serializes all requests coming to the Mapper, hence the mapper itself does
// not need any locking, and also improves cache locality since all operations
// are done by the same go routine.
package mapproxy

import (
	"errors"
	"sync"

	"github.com/asch/bcomp/internal/bcomp/errs"
)

// Profile identifies the mapping implementation.
type Profile int

const (
	// One cell slot per block, physical block is always the logical one.
	Linear Profile = iota
)

func (p Profile) String() string {
	if p == Linear {
		return "linear"
	}

	return "unknown"
}

// ParseProfile returns profile for its configuration name.
func ParseProfile(name string) (Profile, error) {
	if name == "linear" {
		return Linear, nil
	}

	return 0, errs.ErrInvalidConfiguration.WithMessage("unknown mapping profile %q", name)
}

// Cell describes a compressed block. Its presence in the map means the block
// at LBA is stored compressed in PSize bytes at PBA. Absence means the block
// is stored uncompressed at the same address with full block length. LBA and
// PBA are in 512 byte sectors.
type Cell struct {
	LBA   int64
	PBA   int64
	LSize uint32
	PSize uint32
}

// Compressed reports whether the cell describes a compressed block. Cleared
// cells carry LSize 0 and PSize 1 which never passes.
func (c *Cell) Compressed() bool {
	return c != nil && c.LSize >= c.PSize
}

// Clear sets the cell to the not compressed sentinel.
func (c *Cell) Clear() {
	*c = Cell{LSize: 0, PSize: 1}
}

// Usage summarizes the map content.
type Usage struct {
	// Number of blocks stored compressed.
	CompressedBlocks int64

	// Sum of logical sizes of compressed blocks.
	LogicalBytes int64

	// Sum of physical sizes of compressed blocks.
	PhysicalBytes int64
}

// Provides mapping from logical blocks presented to the consumer to the
// physical layout on the underlying storage. Implementations are not required
// to support concurrent access, the Proxy serializes it.
type Mapper interface {
	// Records that the block at lba holds lsize bytes stored in psize
	// bytes. Returns copy of the cell if the block is compressed, i.e.
	// psize < lsize, nil otherwise.
	Update(lba int64, lsize, psize uint32) (*Cell, error)

	// Returns copy of the cell for lba if the block is compressed, nil
	// otherwise.
	Lookup(lba int64) (*Cell, error)

	// Number of slots in the map.
	Len() int64

	// Summary of the map content.
	Usage() Usage
}

// ErrClosed is returned for requests to the closed proxy.
var ErrClosed = errors.New("map proxy closed")

// Proxy to the Mapper. It serializes requests coming to the map and also
// improves cache locality since the map is always traversed by the same
// thread.
type Proxy struct {
	Instance Mapper

	// Channels for internal communication specific to one type of request.
	updateChan chan updateRequest
	lookupChan chan lookupRequest

	// General low priority channel used for multiple types of requests.
	lockChan chan lockRequest

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Internal request structures just for wrapping the function calls into the
// channel communication.

type updateRequest struct {
	lba   int64
	lsize uint32
	psize uint32
	reply chan cellReply
}

type lookupRequest struct {
	lba   int64
	reply chan cellReply
}

type cellReply struct {
	cell *Cell
	err  error
}

type lockRequest struct {
	done chan struct{}
}

// Returns proxy which can be directly used. It spawns one worker which handles
// all serialized requests until Close is called.
func New(instance Mapper) *Proxy {
	p := &Proxy{
		Instance:   instance,
		updateChan: make(chan updateRequest),
		lookupChan: make(chan lookupRequest),
		lockChan:   make(chan lockRequest),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	go p.worker()

	return p
}

// Update the block at lba. See Mapper.Update.
func (p *Proxy) Update(lba int64, lsize, psize uint32) (*Cell, error) {
	reply := make(chan cellReply, 1)
	select {
	case p.updateChan <- updateRequest{lba, lsize, psize, reply}:
	case <-p.done:
		return nil, errs.ErrMappingFailed.Wrap(ErrClosed)
	}

	r := <-reply
	return r.cell, r.err
}

// Lookup the block at lba. See Mapper.Lookup.
func (p *Proxy) Lookup(lba int64) (*Cell, error) {
	reply := make(chan cellReply, 1)
	select {
	case p.lookupChan <- lookupRequest{lba, reply}:
	case <-p.done:
		return nil, errs.ErrMappingFailed.Wrap(ErrClosed)
	}

	r := <-reply
	return r.cell, r.err
}

// Returns summary of the map content. It is a low priority request.
func (p *Proxy) Usage() Usage {
	done := make(chan struct{})
	select {
	case p.lockChan <- lockRequest{done}:
	case <-p.done:
		return Usage{}
	}

	tmp := p.Instance.Usage()
	done <- struct{}{}

	return tmp
}

// Stops the worker. Requests issued after Close fail with ErrMappingFailed.
func (p *Proxy) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})

	<-p.done
}

// Worker is doing prioritization and serialization of the requests. Updates
// and lookups into the map have highest priority. All other request are low
// priority.
func (p *Proxy) worker() {
	defer close(p.done)

	for {
		select {
		case u := <-p.updateChan:
			p.update(u)

		case l := <-p.lookupChan:
			p.lookup(l)

		case <-p.quit:
			return

		default:
			select {
			case u := <-p.updateChan:
				p.update(u)

			case l := <-p.lookupChan:
				p.lookup(l)

			case l := <-p.lockChan:
				<-l.done

			case <-p.quit:
				return
			}
		}
	}
}

func (p *Proxy) update(r updateRequest) {
	cell, err := p.Instance.Update(r.lba, r.lsize, r.psize)
	r.reply <- cellReply{cell, err}
}

func (p *Proxy) lookup(r lookupRequest) {
	cell, err := p.Instance.Lookup(r.lba)
	r.reply <- cellReply{cell, err}
}
