// Package storeconfig loads the store's tunable knobs (spec.md §6) from a
// TOML file, the same library and decode-then-default idiom the teacher
// uses for its own config file.
package storeconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable the store facade needs at Open time.
type Config struct {
	// ChunkSize is how many lines a chunk groups together for decoding
	// and caching.
	ChunkSize int `toml:"chunk_size"`

	// CacheChunks bounds the LRU chunk cache's capacity, in chunks.
	CacheChunks int `toml:"cache_chunks"`

	// WorkerCount sizes the filter engine's worker pool. Zero requests
	// the engine's own runtime.NumCPU()-based default.
	WorkerCount int `toml:"worker_count"`

	// TailBlockSize is the initial number of bytes read backward from
	// EOF when servicing a Tail request; it doubles on each retry that
	// doesn't yet cover enough decoded records.
	TailBlockSize int64 `toml:"tail_block_size"`

	// ProgressIntervalLines is decoded and defaulted with the other
	// tunables, but Open does not pass it to fileindex.Build: index-build
	// progress callbacks and cancellation checks fire every 10,000 lines
	// whatever this is set to.
	ProgressIntervalLines int `toml:"progress_interval_lines"`
}

// Default returns the tunables a store uses when no config file is
// supplied.
func Default() Config {
	return Config{
		ChunkSize:             1000,
		CacheChunks:           50,
		WorkerCount:           0,
		TailBlockSize:         8 * 1024,
		ProgressIntervalLines: 10000,
	}
}

// Load reads a TOML config file and overlays it onto Default(), so a file
// that only sets one key leaves every other tunable at its default.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("storeconfig: decoding %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in any zero-valued field left unset by a partial
// TOML file, the same "decode over known defaults" shape the teacher's
// config loader follows for its own optional fields.
func (c *Config) applyDefaults() {
	d := Default()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.CacheChunks <= 0 {
		c.CacheChunks = d.CacheChunks
	}
	if c.TailBlockSize <= 0 {
		c.TailBlockSize = d.TailBlockSize
	}
	if c.ProgressIntervalLines <= 0 {
		c.ProgressIntervalLines = d.ProgressIntervalLines
	}
}
