// Copyright (C) 2021 Vojtech Aschenbrenner <v@asch.cz>

// Package server exposes the device stats over http. Besides the plain text
// snapshot and reset, stats are exported in the prometheus format and the
// golang profiler can be attached to the same endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/asch/bcomp/internal/bcomp/mapproxy"
	"github.com/asch/bcomp/internal/bcomp/stats"
)

// Device is the observed device.
type Device interface {
	Name() string
	Info() string
	Stats() *stats.Stats
	Usage() mapproxy.Usage
}

type Server struct {
	dev  Device
	http *http.Server
}

// Usage of the mapping table as served by /usage.
type usageReply struct {
	CompressedBlocks int64  `json:"compressed_blocks"`
	LogicalBytes     int64  `json:"logical_bytes"`
	PhysicalBytes    int64  `json:"physical_bytes"`
	Saved            string `json:"saved"`
}

// New returns server for dev listening on addr. It is not started yet.
func New(addr string, dev Device, profiler bool) *Server {
	s := &Server{dev: dev}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		stats.NewCollector(dev.Name(), dev.Stats()),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/reset", s.handleReset)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/usage", s.handleUsage)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if profiler {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.http = &http.Server{Addr: addr, Handler: mux}

	return s
}

// Handler returns the http handler with all endpoints.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("Stats endpoint listening")

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return false
	}

	return true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.dev.Stats().Snapshot().String())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	s.dev.Stats().Reset()
	log.Info().Str("device", s.dev.Name()).Msg("Stats reset")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, s.dev.Info())
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	u := s.dev.Usage()
	reply := usageReply{
		CompressedBlocks: u.CompressedBlocks,
		LogicalBytes:     u.LogicalBytes,
		PhysicalBytes:    u.PhysicalBytes,
		Saved:            humanize.IBytes(uint64(u.LogicalBytes - u.PhysicalBytes)),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		log.Info().Err(err).Send()
	}
}
