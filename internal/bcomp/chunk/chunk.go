// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package chunk

// Chunk is one block of data at two stages of the pipeline. For compression
// Src holds the plain data and Dst the compressed one, for decompression it is
// the other way round. A chunk is exclusively owned by one request and has to
// be freed exactly once.
type Chunk struct {
	Src Buffer
	Dst Buffer

	freed bool
}

// DstCapacityHinter returns the worst case size of the destination buffer for
// compressing srcLen bytes. Zero means the destination reuses the source.
type DstCapacityHinter interface {
	DstCapacityHint(srcLen int) int
}

// Alloc creates a chunk. For each buffer non-nil external memory with positive
// size is borrowed, nil memory with positive size is allocated and owned and
// nil memory with zero size is left uninitialized. Any other combination is an
// invalid argument. The data length of both buffers is zero.
func Alloc(dstCap, srcCap int, dstExt, srcExt []byte) (*Chunk, error) {
	c := new(Chunk)

	if err := c.Dst.init(dstCap, dstExt); err != nil {
		return nil, err
	}

	if err := c.Src.init(srcCap, srcExt); err != nil {
		c.Dst.release()
		return nil, err
	}

	return c, nil
}

// AllocForCompression creates a chunk with owned source of srcLen bytes and
// destination big enough for the compressed data. The destination is at
// least minDst bytes long, unless the hinter wants the destination to reuse
// the source. In such case the destination stays uninitialized.
func AllocForCompression(srcLen, minDst int, hinter DstCapacityHinter) (*Chunk, error) {
	dstCap := hinter.DstCapacityHint(srcLen)
	if dstCap > 0 && dstCap < minDst {
		dstCap = minDst
	}

	return Alloc(dstCap, srcLen, nil, nil)
}

// Free releases owned buffers of the chunk. Borrowed memory is left untouched.
// Calling Free more than once is a no-op.
func (c *Chunk) Free() {
	if c == nil || c.freed {
		return
	}

	c.freed = true
	c.Dst.release()
	c.Src.release()
}

// Freed reports whether Free was already called.
func (c *Chunk) Freed() bool {
	return c.freed
}

// AliasSrcToDst makes the destination borrow the source memory and copies the
// data length. Previously owned destination memory is released.
func (c *Chunk) AliasSrcToDst() {
	c.Dst.Link(c.Src.Raw(), false)
	c.Dst.n = c.Src.n
}
