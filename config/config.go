// Package config loads scanner settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"memcheetah/freeze"
	"memcheetah/resultset"
	"memcheetah/scanner"
	"memcheetah/search"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Workers         int           `yaml:"workers"`
	MaxResults      int           `yaml:"max_results"`
	ChunkSize       uint          `yaml:"chunk_size"`
	UndoLimit       int           `yaml:"undo_limit"`
	FreezeInterval  time.Duration `yaml:"freeze_interval"`
	MinStringLength int           `yaml:"min_string_length"`
	ExcludePrefixes []string      `yaml:"exclude_prefixes"`
	UnknownMinWidth int           `yaml:"unknown_min_width"`
	UnknownMaxWidth int           `yaml:"unknown_max_width"`
}

func DefaultConfig() *Config {
	return &Config{
		Workers:         runtime.NumCPU(),
		MaxResults:      search.DefaultMaxResults,
		ChunkSize:       scanner.DefaultChunkSize,
		UndoLimit:       resultset.DefaultUndoLimit,
		FreezeInterval:  freeze.DefaultInterval,
		MinStringLength: 3,
		ExcludePrefixes: append([]string(nil), scanner.DefaultExcludePrefixes...),
		UnknownMinWidth: 2,
		UnknownMaxWidth: 8,
	}
}

// LoadConfig reads path over the defaults. A missing file yields DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("max_results must not be negative"))
	}
	if c.ChunkSize < 4096 {
		errs = append(errs, fmt.Errorf("chunk_size must be at least 4096, got %d", c.ChunkSize))
	}
	if c.UndoLimit < 1 {
		errs = append(errs, fmt.Errorf("undo_limit must be at least 1"))
	}
	if c.FreezeInterval < time.Millisecond {
		errs = append(errs, fmt.Errorf("freeze_interval too small: %s", c.FreezeInterval))
	}
	if c.UnknownMinWidth < 1 || c.UnknownMaxWidth > 8 || c.UnknownMinWidth > c.UnknownMaxWidth {
		errs = append(errs, fmt.Errorf("unknown width range %d..%d outside 1..8", c.UnknownMinWidth, c.UnknownMaxWidth))
	}
	return errors.Join(errs...)
}

// SearchOptions converts the scan settings to search options.
func (c *Config) SearchOptions() []search.Option {
	return []search.Option{
		search.WithWorkers(c.Workers),
		search.WithMaxResults(c.MaxResults),
		search.WithChunkSize(c.ChunkSize),
	}
}

// ResultSetOptions returns the options for a new search tab.
func (c *Config) ResultSetOptions() resultset.Options {
	return resultset.Options{
		UndoLimit: c.UndoLimit,
		Workers:   c.Workers,
		Filter:    scanner.FilterOptions{ExcludePrefixes: c.ExcludePrefixes},
		Search:    c.SearchOptions(),
	}
}
