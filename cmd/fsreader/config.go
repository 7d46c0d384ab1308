package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ygrebnov/fsreader"
	"github.com/ygrebnov/fsreader/compress"
)

// pseudoFile is one generated file: Name is relative to the source root.
type pseudoFile struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// options are the settings of one run. A YAML file given with --config is
// loaded first; flags set on the command line override it.
type options struct {
	Output      string `yaml:"output"`
	BlockSize   int    `yaml:"block_size"`
	Compression string `yaml:"compression"`
	Workers     int    `yaml:"workers"`
	Buffers     uint   `yaml:"buffers"`
	SortFile    string `yaml:"sort_file"`

	NoFragments           bool `yaml:"no_fragments"`
	AlwaysUseFragments    bool `yaml:"always_use_fragments"`
	NoFragmentCompression bool `yaml:"no_fragment_compression"`
	NoDataCompression     bool `yaml:"no_data_compression"`

	Pseudo []pseudoFile `yaml:"pseudo"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

func defaultOptions() options {
	return options{
		BlockSize:   fsreader.DefaultBlockSize,
		Compression: compress.Zstd.String(),
		Workers:     4,
		LogLevel:    "info",
	}
}

// loadFile merges the YAML file at path into o. Unknown keys are rejected.
func (o *options) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// bindFlags registers the command line flags. Their defaults are the values
// currently in o, so a config file loaded beforehand shows through.
func (o *options) bindFlags(fs *pflag.FlagSet) *[]string {
	fs.StringVarP(&o.Output, "output", "o", o.Output, "image file to write")
	fs.IntVar(&o.BlockSize, "block-size", o.BlockSize, "block size in bytes, a power of two between 4K and 1M")
	fs.StringVar(&o.Compression, "compression", o.Compression, "block compression: none, lz4, zstd or snappy")
	fs.IntVar(&o.Workers, "workers", o.Workers, "compression workers")
	fs.UintVar(&o.Buffers, "buffers", o.Buffers, "blocks in flight (default: 4 per worker)")
	fs.StringVar(&o.SortFile, "sort", o.SortFile, "sort file with \"path priority\" lines")
	fs.BoolVar(&o.NoFragments, "no-fragments", o.NoFragments, "never pack tails into fragments")
	fs.BoolVar(&o.AlwaysUseFragments, "always-use-fragments", o.AlwaysUseFragments, "pack the tail of large files into fragments too")
	fs.BoolVar(&o.NoFragmentCompression, "no-fragment-compression", o.NoFragmentCompression, "do not compress fragments")
	fs.BoolVar(&o.NoDataCompression, "no-data-compression", o.NoDataCompression, "store file blocks uncompressed")
	fs.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "debug, info, warn or error")
	return fs.StringArray("pseudo", nil, "add a generated file, as name=command (repeatable)")
}

// addPseudo parses name=command pairs given on the command line.
func (o *options) addPseudo(specs []string) error {
	for _, s := range specs {
		name, command, ok := strings.Cut(s, "=")
		if !ok || name == "" || command == "" {
			return fmt.Errorf("--pseudo %q: want name=command", s)
		}
		o.Pseudo = append(o.Pseudo, pseudoFile{Name: name, Command: command})
	}
	return nil
}

func (o *options) logLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return 0, fmt.Errorf("--log-level: %w", err)
	}
	return l, nil
}

// configPath finds --config ahead of the full parse so the file can supply
// the flag defaults.
func configPath(args []string) string {
	fs := pflag.NewFlagSet("fsreader", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.BoolP("help", "h", false, "")
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}
