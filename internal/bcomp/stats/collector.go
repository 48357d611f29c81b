// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reqsDesc = prometheus.NewDesc(
		"bcomp_write_requests_total",
		"Successfully completed write requests by compression outcome.",
		[]string{"device", "ratio"}, nil,
	)

	bytesDesc = prometheus.NewDesc(
		"bcomp_write_bytes_total",
		"Bytes written by the consumer and bytes stored after compression.",
		[]string{"device", "kind"}, nil,
	)
)

// Collector exports stats of one device to prometheus. The values are read
// from the atomic counters at scrape time.
type Collector struct {
	device string
	stats  *Stats
}

// NewCollector returns collector for stats s labeled with device name.
func NewCollector(device string, s *Stats) *Collector {
	return &Collector{device: device, stats: s}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- reqsDesc
	ch <- bytesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()

	reqs := []struct {
		ratio string
		value int64
	}{
		{"lt25", s.CompressedReqs25},
		{"lt50", s.CompressedReqs50},
		{"lt75", s.CompressedReqs75},
		{"lt99", s.CompressedReqs99},
		{"uncompressed", s.UncompressedReqs},
	}

	for _, r := range reqs {
		ch <- prometheus.MustNewConstMetric(reqsDesc, prometheus.CounterValue, float64(r.value), c.device, r.ratio)
	}

	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(s.DataInBytes), c.device, "logical")
	ch <- prometheus.MustNewConstMetric(bytesDesc, prometheus.CounterValue, float64(s.CompressedDataInBytes), c.device, "compressed")
}
