package fsreader

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/fsreader/metrics"
)

func TestRun_TreeModeVisitsEntriesDepthFirst(t *testing.T) {
	fsys := newMemFS()
	fsys.add("/src/a", pattern(3))
	fsys.add("/src/sub/b", pattern(4))
	fsys.add("/src/sub/deeper/c", pattern(5))
	fsys.add("/src/z", pattern(6))

	src := newFakePseudo()
	src.gens[0] = &fakeGenerator{data: pattern(8)}

	aIno := regular(3)
	a := &Entry{Name: "a", Inode: aIno}
	alias := &Entry{Name: "a-link", Inode: aIno}

	deeper := &Dir{Path: "/src/sub/deeper"}
	c := &Entry{Name: "c", Dir: deeper, Inode: regular(5)}
	deeper.Entries = []*Entry{c}

	sub := &Dir{Path: "/src/sub"}
	b := &Entry{Name: "b", Dir: sub, Inode: regular(4)}
	deeperEntry := &Entry{Name: "deeper", Dir: sub, Inode: &Inode{Mode: fs.ModeDir | 0o755}, Sub: deeper}
	sub.Entries = []*Entry{b, deeperEntry}

	root := newRoot(
		&Entry{Name: "placeholder", Inode: regular(1), RootPlaceholder: true},
		a,
		&Entry{Name: "sub", Inode: &Inode{Mode: fs.ModeDir | 0o755}, Sub: sub},
		&Entry{Name: "link", Inode: &Inode{Mode: fs.ModeSymlink | 0o777}},
		&Entry{Name: "dev", Inode: &Inode{Mode: fs.ModeDevice}},
		pseudoEntry("gen", 0),
		alias,
		&Entry{Name: "z", Inode: regular(6)},
	)
	sub.Parent, deeper.Parent = root, sub

	r, rec := newTestReader(t, testBlockSize, WithFS(fsys), WithPseudoSource(src))
	runTree(t, r, root)

	require.Equal(t, []string{"/src/a", "/src/sub/b", "/src/sub/deeper/c", "/src/z"}, fsys.opened())
	require.Equal(t, []int{0}, src.spawned)
	require.Len(t, rec.records, 5)
	requireContiguous(t, rec.records)
	require.Empty(t, rec.forEntry(alias), "hard-link aliases are read once")
}

func TestRun_HardLinksReadOnce(t *testing.T) {
	fsys := newMemFS()
	fsys.add("/src/one", pattern(2*testBlockSize))
	ino := regular(int64(2 * testBlockSize))
	entries := []*Entry{
		{Name: "one", Inode: ino},
		{Name: "two", Inode: ino, SourcePath: "/src/one"},
		{Name: "three", Inode: ino, SourcePath: "/src/one"},
	}

	r, rec := newTestReader(t, testBlockSize, WithFS(fsys))
	runTree(t, r, newRoot(entries...))

	require.Len(t, fsys.opened(), 1)
	require.Len(t, rec.records, 2)
	require.True(t, ino.Read())
}

func TestRun_PriorityModeOrder(t *testing.T) {
	fsys := newMemFS()
	list := NewPriorityList()
	add := func(name string, prio uint16) {
		fsys.add("/src/"+name, pattern(1))
		e := &Entry{Name: name, Dir: &Dir{Path: "/src"}, Inode: regular(1)}
		list.Add(prio, e)
	}
	add("mid-1", 5)
	add("top", 65535)
	add("bottom", 0)
	add("mid-2", 5)
	add("high", 40000)

	r, rec := newTestReader(t, testBlockSize, WithFS(fsys), WithPriorities(list))

	handoff := make(chan *Dir, 1)
	handoff <- nil
	require.NoError(t, r.Run(t.Context(), handoff))

	require.Equal(t,
		[]string{"/src/top", "/src/high", "/src/mid-1", "/src/mid-2", "/src/bottom"},
		fsys.opened())
	require.Equal(t, 5, list.Len())
	requireContiguous(t, rec.records)
}

func TestRun_PriorityModeIgnoresHandedOffTree(t *testing.T) {
	fsys := newMemFS()
	fsys.add("/src/listed", pattern(1))
	fsys.add("/src/unlisted", pattern(1))
	listed := &Entry{Name: "listed", Inode: regular(1)}
	root := newRoot(listed, &Entry{Name: "unlisted", Inode: regular(1)})

	list := NewPriorityList()
	list.Add(1, listed)

	r, _ := newTestReader(t, testBlockSize, WithFS(fsys), WithPriorities(list))
	runTree(t, r, root)

	require.Equal(t, []string{"/src/listed"}, fsys.opened())
}

func TestRun_PriorityModeReadsPseudoEntriesAfterList(t *testing.T) {
	fsys := newMemFS()
	fsys.add("/src/listed", pattern(1))
	src := newFakePseudo()
	src.gens[4] = &fakeGenerator{data: pattern(7)}

	listed := &Entry{Name: "listed", Inode: regular(1)}
	gen := pseudoEntry("gen", 4)
	sub := &Dir{Path: "/src/sub"}
	nested := pseudoEntry("nested", 4)
	nested.Dir = sub
	sub.Entries = []*Entry{nested}
	root := newRoot(gen, listed, &Entry{Name: "sub", Inode: &Inode{Mode: fs.ModeDir | 0o755}, Sub: sub})

	list := NewPriorityList()
	list.Add(1, listed)

	r, rec := newTestReader(t, testBlockSize, WithFS(fsys), WithPriorities(list), WithPseudoSource(src))
	runTree(t, r, root)

	require.Len(t, rec.records, 3)
	require.Same(t, listed, rec.records[0].block.Entry)
	require.Same(t, gen, rec.records[1].block.Entry)
	require.Same(t, nested, rec.records[2].block.Entry)
	require.Equal(t, int64(7), rec.records[2].block.FileSize)
	requireContiguous(t, rec.records)
	require.Equal(t, []string{"/src/listed"}, fsys.opened())
}

func TestRun_Handoff(t *testing.T) {
	t.Run("closed handoff", func(t *testing.T) {
		r, _ := newTestReader(t, testBlockSize)
		handoff := make(chan *Dir)
		close(handoff)
		require.ErrorIs(t, r.Run(t.Context(), handoff), ErrNoHandoff)
	})

	t.Run("cancelled before handoff", func(t *testing.T) {
		r, _ := newTestReader(t, testBlockSize)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, r.Run(ctx, make(chan *Dir)), context.Canceled)
	})
}

func TestRun_RecordsMetrics(t *testing.T) {
	bs := testBlockSize
	fsys := newMemFS()
	fsys.add("/src/shrunk", pattern(bs+1))
	fsys.add("/src/missing-on-open", nil).openErr = errBoom

	p := metrics.NewBasicProvider()
	r, rec := newTestReader(t, bs, WithFS(fsys), WithMetrics(p))
	runTree(t, r, newRoot(
		&Entry{Name: "shrunk", Inode: regular(int64(3 * bs))},
		&Entry{Name: "missing-on-open", Inode: regular(1)},
	))

	value := func(name string) int64 {
		v, _ := p.Value(name)
		return v
	}
	require.Equal(t, int64(len(rec.records)), value(metrics.BlocksDispatched))
	require.Equal(t, int64(1), value(metrics.Restarts))
	require.Equal(t, int64(1), value(metrics.FatalBlocks))
}

func TestNew_Validation(t *testing.T) {
	p := NewBufferPool(2, testBlockSize)
	rec := &recorder{pool: p}

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "block size not a power of two", opts: []Option{WithBlockSize(5000)}},
		{name: "block size too small", opts: []Option{WithBlockSize(1024)}},
		{name: "block size too large", opts: []Option{WithBlockSize(2 * MaxBlockSize)}},
		{name: "nil priorities", opts: []Option{WithPriorities(nil)}},
		{name: "nil fs", opts: []Option{WithFS(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(p, rec.queues(), tt.opts...)
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Nil(t, r)
		})
	}

	t.Run("missing queue", func(t *testing.T) {
		q := rec.queues()
		q.Fragment = nil
		_, err := New(p, q)
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.NotEqual(t, ErrInvalidConfig, err, "the error names the missing field")
	})

	t.Run("missing pool", func(t *testing.T) {
		_, err := New(nil, rec.queues())
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.NotEqual(t, ErrInvalidConfig, err)
	})
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, validateConfig(&cfg))
	require.Equal(t, DefaultBlockSize, cfg.BlockSize)
	require.Equal(t, uint(17), cfg.BlockLog)
	require.False(t, cfg.NoFragmentCompression)
	require.Nil(t, cfg.Priorities)
	require.IsType(t, OSFS{}, cfg.FS)
}

func TestEntry_Path(t *testing.T) {
	root := &Dir{Path: "/src/"}
	e := &Entry{Name: "x", Dir: root}
	require.Equal(t, "/src/x", e.Path())

	e.SourcePath = "/elsewhere/y"
	require.Equal(t, "/elsewhere/y", e.Path())

	require.Equal(t, "bare", (&Entry{Name: "bare"}).Path())
}
