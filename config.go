package fsreader

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/fsreader/metrics"
)

const (
	// DefaultBlockSize is the block size used when WithBlockSize is not given.
	DefaultBlockSize = 128 * 1024
	MinBlockSize     = 4 * 1024
	MaxBlockSize     = 1024 * 1024
)

// config holds Reader configuration. It is read-only once New returns.
type config struct {
	// BlockSize is the maximum payload of a DataBlock. Must be a power of two.
	// Default: 128 KiB.
	BlockSize int

	// BlockLog is log2(BlockSize), derived by validateConfig.
	BlockLog uint

	// NoFragmentCompression is the process-wide fragment compression setting.
	// A file's tail is only a fragment candidate when its inode override equals it.
	// Default: false.
	NoFragmentCompression bool

	// Priorities selects priority mode when non-nil.
	// Default: nil (tree mode).
	Priorities *PriorityList

	// FS opens source files. Default: the host filesystem.
	FS FS

	// Pseudo spawns generators for pseudo entries. Default: nil, which makes
	// every pseudo entry fail with a fatal block.
	Pseudo PseudoSource

	Logger  *slog.Logger
	Metrics metrics.Provider
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		BlockSize: DefaultBlockSize,
		FS:        OSFS{},
		Logger:    slog.Default(),
		Metrics:   metrics.NewNoopProvider(),
	}
}

// validateConfig checks invariants and derives BlockLog.
func validateConfig(cfg *config) error {
	if cfg.BlockSize < MinBlockSize || cfg.BlockSize > MaxBlockSize || bits.OnesCount(uint(cfg.BlockSize)) != 1 {
		return errorc.With(ErrInvalidConfig, errorc.String("block_size",
			fmt.Sprintf("%d is not a power of two between %d and %d", cfg.BlockSize, MinBlockSize, MaxBlockSize)))
	}
	cfg.BlockLog = uint(bits.TrailingZeros(uint(cfg.BlockSize)))
	if cfg.FS == nil {
		return errorc.With(ErrInvalidConfig, errorc.String("fs", "must not be nil"))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	return nil
}

// Option configures a Reader. Options return an error on invalid input.
type Option func(*config) error

// WithBlockSize sets the block size. It must be a power of two between
// MinBlockSize and MaxBlockSize.
func WithBlockSize(n int) Option {
	return func(cfg *config) error { cfg.BlockSize = n; return nil }
}

// WithNoFragmentCompression sets the process-wide fragment compression setting.
func WithNoFragmentCompression(v bool) Option {
	return func(cfg *config) error { cfg.NoFragmentCompression = v; return nil }
}

// WithPriorities switches the reader to priority mode over list.
func WithPriorities(list *PriorityList) Option {
	return func(cfg *config) error {
		if list == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("priorities", "WithPriorities requires a non-nil list"))
		}
		cfg.Priorities = list
		return nil
	}
}

// WithFS replaces the filesystem regular files are opened from.
func WithFS(fsys FS) Option {
	return func(cfg *config) error { cfg.FS = fsys; return nil }
}

// WithPseudoSource sets the generator source for pseudo entries.
func WithPseudoSource(src PseudoSource) Option {
	return func(cfg *config) error { cfg.Pseudo = src; return nil }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) error { cfg.Logger = l; return nil }
}

// WithMetrics sets the metrics provider.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error { cfg.Metrics = p; return nil }
}
