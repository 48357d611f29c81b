// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// bcomp is a transparent compression layer between a consumer addressing
// fixed size logical blocks and an underlying block storage. Every written
// block is compressed and stored in the same place with fewer bytes when it
// shrinks, otherwise it is stored as is. The mapping table remembers which
// blocks are compressed and how long they are, reads consult it and
// decompress on the way out.
//
// bcomp defines interfaces for the compression engine, the mapping table and
// the underlying storage port. All three can be trivially changed just by
// implementing corresponding interface.
package bcomp
