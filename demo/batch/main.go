// Command batch computes zonal statistics for every vector and raster
// pair named in the environment (see internal/config) and writes one
// FlatGeobuf file per pair.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	zonalstats "github.com/tingold/orb-zonalstats"
	"github.com/tingold/orb-zonalstats/internal/config"
	"github.com/tingold/orb-zonalstats/internal/logging"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	log := logging.Build(logging.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogFormat == "console",
		SampleN:   cfg.LogSampleN,
		Component: "batch",
	}, os.Stderr)

	reg := prometheus.NewRegistry()
	metrics := zonalstats.NewMetrics(reg)

	batch, err := run(context.Background(), cfg, &log, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("batch failed")
	}

	if cfg.OutDir != "" {
		if err := writeOutputs(cfg.OutDir, batch, &log); err != nil {
			log.Fatal().Err(err).Msg("write outputs")
		}
		if err := prometheus.WriteToTextfile(filepath.Join(cfg.OutDir, "metrics.prom"), reg); err != nil {
			log.Warn().Err(err).Msg("write metrics")
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summarize(batch)); err != nil {
		log.Fatal().Err(err).Msg("encode summary")
	}
}

// run hands each vector to a worker with its own Extractor, so a vector
// layer is parsed once per batch and reused for every raster.
func run(ctx context.Context, cfg *config.Config, log *zerolog.Logger, metrics *zonalstats.Metrics) (*zonalstats.Batch, error) {
	results := make(chan *zonalstats.Batch)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	go func() {
		defer close(results)
		for _, v := range cfg.Vectors {
			g.Go(func() error {
				opts := cfg.Options()
				opts.Metrics = metrics
				wlog := log.With().Str("worker_vector", filepath.Base(v)).Logger()
				opts.Logger = &wlog

				e, err := zonalstats.NewExtractor(opts)
				if err != nil {
					return err
				}
				b := e.Extract([]string{v}, cfg.Rasters)
				select {
				case results <- b:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}
		_ = g.Wait()
	}()

	batch := zonalstats.NewBatch()
	for b := range results {
		batch.Merge(b)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	batch.Order(cfg.Vectors, cfg.Rasters)
	return batch, nil
}

func writeOutputs(dir string, batch *zonalstats.Batch, log *zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, rs := range batch.Results {
		if rs.Kind != zonalstats.KindStats || len(rs.Records) == 0 {
			continue
		}
		name := stem(rs.Vector) + "__" + stem(rs.Raster) + ".fgb"
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		err = zonalstats.WriteResults(f, rs, &zonalstats.WriteOptions{Name: stem(rs.Vector), IncludeIndex: true})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Debug().Str("file", name).Int("records", len(rs.Records)).Msg("wrote results")
	}
	return nil
}

type pairSummary struct {
	Vector  string `json:"vector"`
	Raster  string `json:"raster"`
	Kind    string `json:"kind"`
	Comment string `json:"comment"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"`
}

func summarize(batch *zonalstats.Batch) []pairSummary {
	out := make([]pairSummary, 0, batch.Len())
	for _, rs := range batch.Results {
		out = append(out, pairSummary{
			Vector:  rs.Vector,
			Raster:  rs.Raster,
			Kind:    rs.Kind.String(),
			Comment: rs.Comment,
			Records: len(rs.Records),
			Skipped: len(rs.Skipped),
		})
	}
	return out
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
