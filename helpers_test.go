package fsreader

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/fsreader/pool"
)

const testBlockSize = MinBlockSize

var errBoom = errors.New("boom")

// memNode is one in-memory source file. data is what reads return; Stat
// reports statSize when it is non-negative and len(data) otherwise.
type memNode struct {
	data     []byte
	statSize int64
	statErr  error
	openErr  error
	// readErr is returned once data is exhausted, instead of EOF.
	readErr error
}

type memFS struct {
	mu    sync.Mutex
	nodes map[string]*memNode
	opens []string
}

func newMemFS() *memFS { return &memFS{nodes: make(map[string]*memNode)} }

func (m *memFS) add(path string, data []byte) *memNode {
	n := &memNode{data: data, statSize: -1}
	m.nodes[path] = n
	return n
}

func (m *memFS) Open(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, name)
	n, ok := m.nodes[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	if n.openErr != nil {
		return nil, n.openErr
	}
	var r io.Reader = bytes.NewReader(n.data)
	if n.readErr != nil {
		r = io.MultiReader(r, errReader{n.readErr})
	}
	return &memFile{r: r, node: n, name: name}, nil
}

func (m *memFS) opened() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opens...)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

type memFile struct {
	r    io.Reader
	node *memNode
	name string
}

func (f *memFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *memFile) Close() error               { return nil }

func (f *memFile) Stat() (fs.FileInfo, error) {
	if f.node.statErr != nil {
		return nil, f.node.statErr
	}
	size := f.node.statSize
	if size < 0 {
		size = int64(len(f.node.data))
	}
	return memInfo{name: f.name, size: size}, nil
}

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

// record is a copy of a dispatched block, taken before it is released.
type record struct {
	queue   string
	block   DataBlock
	payload []byte
}

// recorder captures every dispatched block in dispatch order and returns
// the buffer to the pool immediately.
type recorder struct {
	mu      sync.Mutex
	pool    pool.Pool[*DataBlock]
	records []record
}

func (r *recorder) put(queue string, b *DataBlock) {
	r.mu.Lock()
	r.records = append(r.records, record{
		queue:   queue,
		block:   *b,
		payload: append([]byte(nil), b.Payload()...),
	})
	r.mu.Unlock()
	r.pool.Put(b)
}

func (r *recorder) queues() Queues {
	return Queues{
		Deflate:  namedQueue{"deflate", r},
		Fragment: namedQueue{"fragment", r},
		Sink:     namedQueue{"sink", r},
	}
}

func (r *recorder) forEntry(e *Entry) []record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []record
	for _, rec := range r.records {
		if rec.block.Entry == e {
			out = append(out, rec)
		}
	}
	return out
}

type namedQueue struct {
	name string
	r    *recorder
}

func (q namedQueue) Put(b *DataBlock) { q.r.put(q.name, b) }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestReader(t *testing.T, blockSize int, opts ...Option) (*Reader, *recorder) {
	t.Helper()
	p := NewBufferPool(4, blockSize)
	rec := &recorder{pool: p}
	opts = append([]Option{WithBlockSize(blockSize), WithLogger(discardLogger())}, opts...)
	r, err := New(p, rec.queues(), opts...)
	require.NoError(t, err)
	return r, rec
}

// runTree hands root to r and runs the walk.
func runTree(t *testing.T, r *Reader, root *Dir) {
	t.Helper()
	handoff := make(chan *Dir, 1)
	handoff <- root
	require.NoError(t, r.Run(t.Context(), handoff))
}

func regular(size int64) *Inode { return &Inode{Mode: 0o644, Size: size} }

// newRoot returns a directory at path "/src" holding the given entries.
func newRoot(entries ...*Entry) *Dir {
	d := &Dir{Path: "/src"}
	for _, e := range entries {
		e.Dir = d
		d.Entries = append(d.Entries, e)
	}
	return d
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

func requireContiguous(t *testing.T, recs []record) {
	t.Helper()
	for i, rec := range recs {
		require.Equalf(t, int64(i), rec.block.Sequence, "record %d out of sequence", i)
	}
}
