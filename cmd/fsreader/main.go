// fsreader reads a source directory into an image file: every regular file
// is split into blocks, compressed in parallel and stored in walk order (or
// sort-file order), together with files produced by generator commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ygrebnov/fsreader"
	"github.com/ygrebnov/fsreader/compress"
	"github.com/ygrebnov/fsreader/metrics"
	"github.com/ygrebnov/fsreader/pipeline"
	"github.com/ygrebnov/fsreader/tree"
)

// failedFiles is returned when the image was written without some files.
type failedFiles int

func (n failedFiles) Error() string { return fmt.Sprintf("%d files could not be read", int(n)) }
func (n failedFiles) ExitCode() int { return 2 }

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	o := defaultOptions()
	cfgPath := configPath(args)
	if cfgPath != "" {
		if err := o.loadFile(cfgPath); err != nil {
			return err
		}
	}

	flagSet := pflag.NewFlagSet("fsreader", pflag.ContinueOnError)
	flagSet.String("config", cfgPath, "YAML file with default settings")
	pseudo := o.bindFlags(flagSet)
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if err := o.addPseudo(*pseudo); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("expected exactly one SOURCE directory, got %d arguments", len(rest))
	}
	if o.Output == "" {
		return errors.New("--output is required")
	}

	level, err := o.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return build(ctx, logger, &o, rest[0])
}

func build(ctx context.Context, logger *slog.Logger, o *options, source string) error {
	tag, err := compress.ParseTag(o.Compression)
	if err != nil {
		return err
	}

	root, err := tree.Build(source, tree.Options{
		NoDataCompression:     o.NoDataCompression,
		NoFragments:           o.NoFragments,
		AlwaysUseFragments:    o.AlwaysUseFragments,
		NoFragmentCompression: o.NoFragmentCompression,
		Logger:                logger,
	})
	if err != nil {
		return err
	}

	src := fsreader.NewExecSource()
	for _, pf := range o.Pseudo {
		dir, err := lookupDir(root, filepath.Dir(pf.Name))
		if err != nil {
			return fmt.Errorf("pseudo %s: %w", pf.Name, err)
		}
		tree.AddPseudo(dir, filepath.Base(pf.Name), src.Register(pf.Command))
	}

	var priorities *fsreader.PriorityList
	if o.SortFile != "" {
		f, err := os.Open(o.SortFile)
		if err != nil {
			return err
		}
		sorts, err := tree.ParseSortFile(f, root.Path)
		f.Close()
		if err != nil {
			return err
		}
		priorities = tree.Priorities(root, sorts)
	}

	var provider metrics.Provider = metrics.NewNoopProvider()
	if o.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		provider = metrics.NewPrometheusProvider(reg, "fsreader")
		srv := serveMetrics(logger, o.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	p, err := pipeline.New(pipeline.Config{
		BlockSize:             o.BlockSize,
		Buffers:               o.Buffers,
		Workers:               o.Workers,
		Compression:           tag,
		NoFragmentCompression: o.NoFragmentCompression,
		Priorities:            priorities,
		Pseudo:                src,
		Logger:                logger,
		Metrics:               provider,
	})
	if err != nil {
		return err
	}

	out, err := os.Create(o.Output)
	if err != nil {
		return err
	}
	sum, err := p.Run(ctx, root, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	for _, ferr := range sum.Failed {
		logger.Error("file not stored", slog.Any("error", ferr))
	}
	logger.Info("image complete",
		slog.String("output", o.Output),
		slog.Int("files", sum.Files),
		slog.Int("restarts", sum.Restarts),
		slog.Int("compressed_blocks", sum.Compressed),
		slog.Int64("size", sum.Size),
		slog.String("digest", fmt.Sprintf("%x", sum.Digest)))
	if len(sum.Failed) > 0 {
		return failedFiles(len(sum.Failed))
	}
	return nil
}

// lookupDir resolves rel, a slash-separated path relative to root, to a
// directory of the scanned tree.
func lookupDir(root *fsreader.Dir, rel string) (*fsreader.Dir, error) {
	dir := root
	if rel == "." || rel == "" {
		return dir, nil
	}
	for _, name := range strings.Split(filepath.ToSlash(rel), "/") {
		var next *fsreader.Dir
		for _, e := range dir.Entries {
			if e.Name == name && e.Sub != nil {
				next = e.Sub
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("no directory %q under %s", rel, root.Path)
		}
		dir = next
	}
	return dir, nil
}

func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	return srv
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fsreader reads a directory tree into an image file.

Every regular file is cut into blocks, the blocks are compressed in
parallel and stored in walk order. Files changing size while being read
are read again; files that cannot be read are reported and left out.

Usage:
  fsreader [flags] SOURCE

Examples:
  # Read ./rootfs into rootfs.img with default settings
  fsreader -o rootfs.img ./rootfs

  # Store boot files first and add a generated file
  fsreader -o rootfs.img --sort boot.sort --pseudo etc/build-id='git rev-parse HEAD' ./rootfs

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
