package fsreader

import (
	"context"
	"log/slog"
	"time"

	"github.com/ygrebnov/errorc"

	"github.com/ygrebnov/fsreader/metrics"
	"github.com/ygrebnov/fsreader/pool"
)

// Reader turns a source tree into the ordered DataBlock stream.
//
// A Reader is the only writer of its sequence counter and path scratch
// buffer. It is not safe for concurrent use and must not be copied: run it
// from one goroutine, once per image.
type Reader struct {
	// noCopy prevents accidental copying of the reader state.
	//go:nocopy
	nc noCopy

	config *config
	pool   pool.Pool[*DataBlock]
	d      *dispatcher
	log    *slog.Logger

	// seq is the sequence number given to the next acquired block.
	seq int64

	// path is scratch space for materialising source paths.
	path []byte

	blocks   metrics.Counter
	bytes    metrics.Counter
	restarts metrics.Counter
	fatals   metrics.Counter
	readTime metrics.Histogram
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
// It works with the "-copylocks" analyzer via the presence of Lock/Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// New creates a Reader acquiring buffers from p and dispatching into queues.
// Every block in p must have a Data buffer of at least the configured block size.
func New(p pool.Pool[*DataBlock], queues Queues, opts ...Option) (*Reader, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if p == nil || queues.Deflate == nil || queues.Fragment == nil || queues.Sink == nil {
		return nil, errorc.With(ErrInvalidConfig, errorc.String("queues", "buffer pool and all three queues are required"))
	}

	m := cfg.Metrics
	return &Reader{
		config:   &cfg,
		pool:     p,
		d:        newDispatcher(queues),
		log:      cfg.Logger,
		blocks:   m.Counter(metrics.BlocksDispatched, metrics.WithDescription("blocks handed to downstream queues")),
		bytes:    m.Counter(metrics.BytesRead, metrics.WithUnit("bytes")),
		restarts: m.Counter(metrics.Restarts, metrics.WithDescription("reads restarted after a size change")),
		fatals:   m.Counter(metrics.FatalBlocks, metrics.WithDescription("files abandoned with a fatal block")),
		readTime: m.Histogram(metrics.FileReadSeconds, metrics.WithUnit("seconds")),
	}, nil
}

// BlockSize returns the configured block size.
func (r *Reader) BlockSize() int { return r.config.BlockSize }

// Sequence returns the number of blocks dispatched so far, which is also
// the sequence number the next dispatched block will carry.
func (r *Reader) Sequence() int64 { return r.seq }

// Run waits for the handoff that authorizes the walk, then reads the whole
// tree. In tree mode the handed-off directory is walked depth first; in
// priority mode the priority list is traversed instead, followed by a pass
// over the handed-off directory that reads its pseudo entries only.
//
// ctx bounds the wait for the handoff only. Once the walk has started it
// runs to completion; per-file failures are reported through the block
// stream and never stop the traversal.
func (r *Reader) Run(ctx context.Context, handoff <-chan *Dir) error {
	var root *Dir
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d, ok := <-handoff:
		if !ok {
			return ErrNoHandoff
		}
		root = d
	}

	if r.config.Priorities != nil {
		r.log.Debug("reader: priority walk", slog.Int("entries", r.config.Priorities.Len()))
		r.walkPriorities(r.config.Priorities)
		if root != nil {
			r.walkPseudo(root)
		}
	} else if root != nil {
		r.log.Debug("reader: tree walk", slog.String("root", root.Path))
		r.walkTree(root)
	}
	r.log.Debug("reader: done", slog.Int64("blocks", r.seq))
	return nil
}

// walkTree visits dir depth first.
func (r *Reader) walkTree(dir *Dir) {
	for _, e := range dir.Entries {
		if e.RootPlaceholder {
			continue
		}
		if e.Pseudo {
			r.readProcess(e)
			continue
		}
		switch {
		case e.Inode.IsRegular():
			r.readFile(e)
		case e.Inode.IsDir():
			if e.Sub != nil {
				r.walkTree(e.Sub)
			}
		}
	}
}

// walkPriorities visits buckets from the highest priority down.
func (r *Reader) walkPriorities(list *PriorityList) {
	for i := NumPriorities - 1; i >= 0; i-- {
		for _, e := range list.Bucket(uint16(i)) {
			r.readFile(e)
		}
	}
}

// walkPseudo visits dir depth first reading only pseudo entries, which a
// priority list never holds.
func (r *Reader) walkPseudo(dir *Dir) {
	for _, e := range dir.Entries {
		switch {
		case e.RootPlaceholder:
		case e.Pseudo:
			r.readProcess(e)
		case e.Inode.IsDir() && e.Sub != nil:
			r.walkPseudo(e.Sub)
		}
	}
}

// acquire takes a buffer from the pool, blocking while it is exhausted, and
// assigns it the next sequence number.
func (r *Reader) acquire(e *Entry) *DataBlock {
	b := r.pool.Get()
	b.reset()
	b.Sequence = r.seq
	r.seq++
	b.Entry = e
	b.NoCompression = e.Inode.NoDataCompression
	return b
}

// discard returns the most recently acquired, never dispatched block to the
// pool and gives its sequence number back.
func (r *Reader) discard(b *DataBlock) {
	r.seq--
	r.pool.Put(b)
}

func (r *Reader) dispatch(b *DataBlock) {
	r.blocks.Add(1)
	r.bytes.Add(int64(b.Size))
	r.d.dispatch(b)
}

// fail dispatches b as the fatal block of its file, abandoned because of cause.
func (r *Reader) fail(b *DataBlock, cause error) {
	b.Error = ErrorFatal
	b.Cause = cause
	b.Size = 0
	r.fatals.Add(1)
	r.dispatch(b)
}

// pathname materialises the source path of e into the scratch buffer.
func (r *Reader) pathname(e *Entry) string {
	r.path = e.appendPath(r.path[:0])
	return string(r.path)
}

func (r *Reader) isFragment(ino *Inode, size int64) bool {
	return IsFragment(ino, size, r.config.BlockSize, r.config.NoFragmentCompression)
}

func (r *Reader) observe(start time.Time) {
	r.readTime.Record(time.Since(start).Seconds())
}
