package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/fsreader"
	"github.com/ygrebnov/fsreader/compress"
	"github.com/ygrebnov/fsreader/metrics"
)

// Config configures a Pipeline. Zero values select the defaults.
type Config struct {
	// BlockSize is the payload size of every block. Default: fsreader.DefaultBlockSize.
	BlockSize int

	// Buffers bounds the blocks in flight between the reader and the image
	// writer. Must be at least 2. Default: 4 per worker.
	Buffers uint

	// Workers is the number of compression workers. Default: 1.
	Workers int

	Compression compress.Tag

	// NoFragmentCompression is the process-wide fragment compression setting.
	NoFragmentCompression bool

	// Priorities selects the priority walk when non-nil.
	Priorities *fsreader.PriorityList

	FS     fsreader.FS
	Pseudo fsreader.PseudoSource

	Logger  *slog.Logger
	Metrics metrics.Provider
}

func (c *Config) setDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = fsreader.DefaultBlockSize
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Buffers == 0 {
		c.Buffers = 4 * uint(c.Workers)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopProvider()
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return errorc.With(fsreader.ErrInvalidConfig, errorc.String("workers", fmt.Sprintf("must be positive, got %d", c.Workers)))
	}
	if c.Buffers < 2 {
		return errorc.With(fsreader.ErrInvalidConfig, errorc.String("buffers", fmt.Sprintf("must be at least 2, got %d", c.Buffers)))
	}
	if c.Compression > compress.Snappy {
		return errorc.With(fsreader.ErrInvalidConfig, errorc.String("compression", c.Compression.String()))
	}
	return nil
}

// readerOptions translates c into the reader's functional options.
func (c *Config) readerOptions() []fsreader.Option {
	opts := []fsreader.Option{
		fsreader.WithBlockSize(c.BlockSize),
		fsreader.WithNoFragmentCompression(c.NoFragmentCompression),
		fsreader.WithLogger(c.Logger),
		fsreader.WithMetrics(c.Metrics),
	}
	if c.FS != nil {
		opts = append(opts, fsreader.WithFS(c.FS))
	}
	if c.Pseudo != nil {
		opts = append(opts, fsreader.WithPseudoSource(c.Pseudo))
	}
	if c.Priorities != nil {
		opts = append(opts, fsreader.WithPriorities(c.Priorities))
	}
	return opts
}
