// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package stats aggregates traffic and compression efficacy counters. Every
// counter is atomic on its own, there is no transaction across counters. A
// reader can observe a snapshot mixing two concurrent updates, which is fine
// for monitoring but not for exact accounting.
package stats

import (
	"fmt"
	"sync/atomic"
)

// Compression ratio buckets in percents of the original size.
const (
	Less25 = 25
	Less50 = 50
	Less75 = 75
	Less99 = 99
)

// Stats of one device. The zero value is ready to use.
type Stats struct {
	allReqs          atomic.Int64
	uncompressedReqs atomic.Int64

	dataIn           atomic.Int64
	compressedDataIn atomic.Int64

	compressed25 atomic.Int64 // 0% <= compressed < 25%
	compressed50 atomic.Int64 // 25% <= compressed < 50%
	compressed75 atomic.Int64 // 50% <= compressed < 75%
	compressed99 atomic.Int64 // 75% <= compressed < 100%
}

// Snapshot is a point in time copy of the counters.
type Snapshot struct {
	CompressedReqs25      int64 `json:"compressed_reqs_cnt_25"`
	CompressedReqs50      int64 `json:"compressed_reqs_cnt_50"`
	CompressedReqs75      int64 `json:"compressed_reqs_cnt_75"`
	CompressedReqs99      int64 `json:"compressed_reqs_cnt_99"`
	UncompressedReqs      int64 `json:"uncompressed_reqs_cnt"`
	AllReqs               int64 `json:"all_reqs_cnt"`
	DataInBytes           int64 `json:"data_in_bytes"`
	CompressedDataInBytes int64 `json:"compressed_data_in_bytes"`
}

// Level returns the compression bucket for block of sourceSize bytes
// compressed to compressedSize bytes. Bucket boundaries are strict, a block
// compressed to exactly 25% falls into the 50% bucket.
func Level(compressedSize, sourceSize uint32) int {
	coef := uint64(compressedSize) * 100
	src := uint64(sourceSize)

	switch {
	case coef < Less25*src:
		return Less25
	case coef < Less50*src:
		return Less50
	case coef < Less75*src:
		return Less75
	}

	return Less99
}

// RecordUncompressed accounts successful write of size bytes stored as is.
func (s *Stats) RecordUncompressed(size int) {
	s.allReqs.Add(1)
	s.dataIn.Add(int64(size))
	s.uncompressedReqs.Add(1)
}

// RecordCompressed accounts successful write of lsize bytes stored compressed
// in psize bytes.
func (s *Stats) RecordCompressed(lsize, psize uint32) {
	s.allReqs.Add(1)
	s.dataIn.Add(int64(lsize))
	s.compressedDataIn.Add(int64(psize))

	switch Level(psize, lsize) {
	case Less25:
		s.compressed25.Add(1)
	case Less50:
		s.compressed50.Add(1)
	case Less75:
		s.compressed75.Add(1)
	default:
		s.compressed99.Add(1)
	}
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.allReqs.Store(0)
	s.uncompressedReqs.Store(0)
	s.dataIn.Store(0)
	s.compressedDataIn.Store(0)
	s.compressed25.Store(0)
	s.compressed50.Store(0)
	s.compressed75.Store(0)
	s.compressed99.Store(0)
}

// Snapshot returns current values of all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		CompressedReqs25:      s.compressed25.Load(),
		CompressedReqs50:      s.compressed50.Load(),
		CompressedReqs75:      s.compressed75.Load(),
		CompressedReqs99:      s.compressed99.Load(),
		UncompressedReqs:      s.uncompressedReqs.Load(),
		AllReqs:               s.allReqs.Load(),
		DataInBytes:           s.dataIn.Load(),
		CompressedDataInBytes: s.compressedDataIn.Load(),
	}
}

// Fields returns the counters as name and value pairs in the stable order.
func (s Snapshot) Fields() []Field {
	return []Field{
		{"compressed_reqs_cnt_25", s.CompressedReqs25},
		{"compressed_reqs_cnt_50", s.CompressedReqs50},
		{"compressed_reqs_cnt_75", s.CompressedReqs75},
		{"compressed_reqs_cnt_99", s.CompressedReqs99},
		{"uncompressed_reqs_cnt", s.UncompressedReqs},
		{"all_reqs_cnt", s.AllReqs},
		{"data_in_bytes", s.DataInBytes},
		{"compressed_data_in_bytes", s.CompressedDataInBytes},
	}
}

// Field is one named counter.
type Field struct {
	Name  string
	Value int64
}

// String renders the snapshot one "name: value" line per counter.
func (s Snapshot) String() string {
	var out string
	for _, f := range s.Fields() {
		out += fmt.Sprintf("%s: %d\n", f.Name, f.Value)
	}

	return out
}
