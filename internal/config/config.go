// Package config reads batch and server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	zonalstats "github.com/tingold/orb-zonalstats"
)

// Config holds the batch settings, populated from environment variables.
type Config struct {
	Vectors []string
	Rasters []string
	OutDir  string
	Workers int
	Addr    string

	Stats       []string
	IDField     string
	Prefix      string
	AllTouched  bool
	Categorical bool
	Band        int
	NoData      *float64
	Preprocess  *zonalstats.Preprocess
	CacheSize   int

	LogLevel   string
	LogFormat  string
	LogSampleN int
}

// FromEnv reads configuration from environment variables, applying
// defaults where unset.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Vectors:   parseList(os.Getenv("ZONAL_VECTORS")),
		Rasters:   parseList(os.Getenv("ZONAL_RASTERS")),
		OutDir:    os.Getenv("ZONAL_OUT_DIR"),
		Addr:      envOrDefault("ZONAL_ADDR", ":8080"),
		Stats:     strings.Fields(os.Getenv("ZONAL_STATS")),
		IDField:   os.Getenv("ZONAL_ID_FIELD"),
		Prefix:    os.Getenv("ZONAL_PREFIX"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.Workers, err = parsePositive("ZONAL_WORKERS", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.Band, err = parsePositive("ZONAL_BAND", 1); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = parsePositive("ZONAL_CACHE_SIZE", 16); err != nil {
		return nil, err
	}
	if cfg.LogSampleN, err = parsePositive("LOG_SAMPLE_N", 1); err != nil {
		return nil, err
	}
	if cfg.AllTouched, err = parseBool("ZONAL_ALL_TOUCHED"); err != nil {
		return nil, err
	}
	if cfg.Categorical, err = parseBool("ZONAL_CATEGORICAL"); err != nil {
		return nil, err
	}
	if s := os.Getenv("ZONAL_NODATA"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ZONAL_NODATA: %w", err)
		}
		cfg.NoData = &v
	}
	if s := os.Getenv("ZONAL_PREPROCESS"); s != "" {
		p, err := zonalstats.ParsePreprocess([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("invalid ZONAL_PREPROCESS: %w", err)
		}
		cfg.Preprocess = p
	}
	if _, err := zonalstats.ParseStats(cfg.Stats...); err != nil {
		return nil, fmt.Errorf("invalid ZONAL_STATS: %w", err)
	}

	if len(cfg.Vectors) == 0 {
		return nil, errors.New("ZONAL_VECTORS is required")
	}
	if len(cfg.Rasters) == 0 {
		return nil, errors.New("ZONAL_RASTERS is required")
	}
	return cfg, nil
}

// Options converts the settings into extraction options.
func (c *Config) Options() *zonalstats.Options {
	opts := zonalstats.DefaultOptions()
	opts.Stats = c.Stats
	opts.IDField = c.IDField
	opts.Prefix = c.Prefix
	opts.AllTouched = c.AllTouched
	opts.Categorical = c.Categorical
	opts.Band = c.Band
	opts.NoData = c.NoData
	opts.Preprocess = c.Preprocess
	opts.CacheSize = c.CacheSize
	return opts
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePositive(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseBool(key string) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return b, nil
}
