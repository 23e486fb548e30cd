// Command server runs zonal statistics over the vector and raster files
// named in the environment (see internal/config) and serves the results
// as FlatGeobuf for the map client in ../client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zonalstats "github.com/tingold/orb-zonalstats"
	"github.com/tingold/orb-zonalstats/internal/config"
	"github.com/tingold/orb-zonalstats/internal/logging"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}
	log := logging.Build(logging.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogFormat == "console",
		SampleN:   cfg.LogSampleN,
		Component: "server",
	}, os.Stderr)

	reg := prometheus.NewRegistry()
	s, err := newServer(cfg, &log, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("create server")
	}
	s.extract()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(filepath.Join("..", "client")),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server")
	}
}

// server holds the latest batch. Extraction runs under mu since an
// Extractor is single threaded.
type server struct {
	cfg *config.Config
	log *zerolog.Logger
	reg *prometheus.Registry

	mu        sync.Mutex
	extractor *zonalstats.Extractor
	batch     *zonalstats.Batch
}

func newServer(cfg *config.Config, log *zerolog.Logger, reg *prometheus.Registry) (*server, error) {
	opts := cfg.Options()
	opts.Logger = log
	opts.Metrics = zonalstats.NewMetrics(reg)
	e, err := zonalstats.NewExtractor(opts)
	if err != nil {
		return nil, err
	}
	return &server{cfg: cfg, log: log, reg: reg, extractor: e, batch: zonalstats.NewBatch()}, nil
}

func (s *server) extract() *zonalstats.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = s.extractor.Extract(s.cfg.Vectors, s.cfg.Rasters)
	return s.batch
}

func (s *server) current() *zonalstats.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

func (s *server) routes(clientDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/pairs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.current().Results)
	})
	r.Post("/extract", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.extract().Results)
	})
	r.Get("/results/{vector}/{raster}.fgb", s.serveResults)
	r.Handle("/*", http.FileServer(http.Dir(clientDir)))
	return r
}

// serveResults writes the records of one pair, named by file stems, as
// FlatGeobuf.
func (s *server) serveResults(w http.ResponseWriter, req *http.Request) {
	vector, raster := chi.URLParam(req, "vector"), chi.URLParam(req, "raster")
	var rs *zonalstats.ResultSet
	for _, c := range s.current().Results {
		if stem(c.Vector) == vector && stem(c.Raster) == raster {
			rs = c
			break
		}
	}
	switch {
	case rs == nil:
		http.Error(w, "no such pair", http.StatusNotFound)
		return
	case rs.Kind != zonalstats.KindStats || len(rs.Records) == 0:
		http.Error(w, rs.Comment, http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := zonalstats.WriteResults(w, rs, &zonalstats.WriteOptions{Name: vector, IncludeIndex: true}); err != nil {
		s.log.Error().Err(err).Str("vector", vector).Str("raster", raster).Msg("write results")
	}
}

func (s *server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		s.log.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, results []*zonalstats.ResultSet) {
	w.Header().Set("Content-Type", "application/json")
	if results == nil {
		results = []*zonalstats.ResultSet{}
	}
	if err := json.NewEncoder(w).Encode(results); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
