// Package pipeline assembles the reader with the stages that consume its
// block stream: parallel compression, fragment collection and an image
// writer that stores blocks in sequence order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/ygrebnov/fsreader"
	"github.com/ygrebnov/fsreader/compress"
	"github.com/ygrebnov/fsreader/metrics"
	"github.com/ygrebnov/fsreader/pool"
)

// Pipeline runs one image build. A Pipeline is single use.
type Pipeline struct {
	cfg Config
	log *slog.Logger

	compressed metrics.Counter
	inflight   metrics.UpDownCounter
	fragments  metrics.Counter

	scratch *pool.Dynamic[*[]byte]
	encode  func(dst, src []byte, tag compress.Tag) ([]byte, error)
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bound := compress.Bound(cfg.BlockSize)
	m := cfg.Metrics
	return &Pipeline{
		cfg:        cfg,
		log:        cfg.Logger,
		compressed: m.Counter(metrics.BlocksCompressed,
			metrics.WithDescription("blocks stored compressed"),
			metrics.WithAttributes(map[string]string{"algorithm": cfg.Compression.String()})),
		inflight:   m.UpDownCounter(metrics.BlocksInflight, metrics.WithDescription("blocks queued on compression workers")),
		fragments:  m.Counter(metrics.FragmentBlocks, metrics.WithDescription("tail blocks routed to fragment packing")),
		scratch: pool.NewDynamic(func() *[]byte {
			b := make([]byte, bound)
			return &b
		}),
		encode: compress.Compress,
	}, nil
}

// Run reads the tree rooted at root into out and returns the summary of
// what was stored. Files that could not be read are reported in
// Summary.Failed and do not make Run fail.
func (p *Pipeline) Run(ctx context.Context, root *fsreader.Dir, out io.WriteSeeker) (*Summary, error) {
	if out == nil {
		return nil, fmt.Errorf("%w: nil output", fsreader.ErrInvalidConfig)
	}
	cfg := &p.cfg

	buffers := fsreader.NewBufferPool(cfg.Buffers, cfg.BlockSize)
	deflateQ := fsreader.NewFIFO(cfg.Buffers)
	fragmentQ := fsreader.NewFIFO(cfg.Buffers)
	sink := fsreader.NewSeqQueue(cfg.Buffers, cfg.Buffers, 0)

	r, err := fsreader.New(buffers, fsreader.Queues{Deflate: deflateQ, Fragment: fragmentQ, Sink: sink}, cfg.readerOptions()...)
	if err != nil {
		sink.CloseInput()
		return nil, err
	}

	var inflight sync.WaitGroup
	workers, err := ants.NewPoolWithFunc(cfg.Workers, func(arg any) {
		b := arg.(*fsreader.DataBlock)
		// Every submitted block reaches the sink, panics included.
		defer func() {
			if v := recover(); v != nil {
				p.log.Error("pipeline: compression panicked, storing block uncompressed",
					slog.Int64("sequence", b.Sequence), slog.Any("panic", v))
			}
			p.inflight.Add(-1)
			sink.Put(b)
			inflight.Done()
		}()
		p.compress(b)
	})
	if err != nil {
		sink.CloseInput()
		return nil, fmt.Errorf("pipeline: worker pool: %w", err)
	}

	w := newImageWriter(out, buffers, p.log)
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		w.run(sink.Out())
	}()

	var stagesWG sync.WaitGroup
	stagesWG.Add(2)
	go func() {
		defer stagesWG.Done()
		p.deflateStage(deflateQ.C(), workers, &inflight, sink)
	}()
	go func() {
		defer stagesWG.Done()
		p.fragmentStage(fragmentQ.C(), sink)
	}()

	sd := &shutdown{
		closeStageInputs: func() {
			deflateQ.Close()
			fragmentQ.Close()
		},
		stagesWG:  &stagesWG,
		inflight:  &inflight,
		release:   workers.Release,
		closeSink: sink.CloseInput,
		writerWG:  &writerWG,
	}

	handoff := make(chan *fsreader.Dir, 1)
	handoff <- root
	close(handoff)

	runErr := r.Run(ctx, handoff)
	sd.Close()

	if runErr != nil {
		return nil, runErr
	}
	if n := sink.Pending(); n > 0 {
		return w.sum, fmt.Errorf("pipeline: %d blocks never reached the writer", n)
	}
	if w.err != nil {
		return w.sum, w.err
	}

	p.log.Info("pipeline: image written",
		slog.Int("files", w.sum.Files),
		slog.Int("failed", len(w.sum.Failed)),
		slog.Int64("blocks", w.sum.Blocks),
		slog.Int64("bytes", w.sum.Size))
	return w.sum, nil
}

// deflateStage hands each block to a compression worker. Invoke blocks
// while every worker is busy.
func (p *Pipeline) deflateStage(in <-chan *fsreader.DataBlock, workers *ants.PoolWithFunc, inflight *sync.WaitGroup, sink fsreader.Queue) {
	for b := range in {
		inflight.Add(1)
		p.inflight.Add(1)
		if err := workers.Invoke(b); err != nil {
			inflight.Done()
			p.inflight.Add(-1)
			p.log.Error("pipeline: cannot submit block, storing it uncompressed", slog.Int64("sequence", b.Sequence), slog.Any("error", err))
			sink.Put(b)
		}
	}
}

// fragmentStage forwards fragment tails uncompressed; packing them into
// shared fragment blocks happens in the image format layer.
func (p *Pipeline) fragmentStage(in <-chan *fsreader.DataBlock, sink fsreader.Queue) {
	for b := range in {
		p.fragments.Add(1)
		sink.Put(b)
	}
}

// compress replaces b's payload with its compressed form when that is smaller.
func (p *Pipeline) compress(b *fsreader.DataBlock) {
	if b.NoCompression || p.cfg.Compression == compress.None || b.Size == 0 {
		return
	}

	buf := p.scratch.Get()
	defer p.scratch.Put(buf)

	out, err := p.encode(*buf, b.Payload(), p.cfg.Compression)
	switch {
	case errors.Is(err, compress.ErrIncompressible):
		return
	case err != nil:
		p.log.Warn("pipeline: compression failed, storing block uncompressed",
			slog.Int64("sequence", b.Sequence), slog.Any("error", err))
		return
	}

	b.Size = copy(b.Data, out)
	b.Compressed = true
	p.compressed.Add(1)
}
