package pipeline

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ygrebnov/fsreader"
)

// memImage is an in-memory io.WriteSeeker that supports Truncate.
type memImage struct {
	buf []byte
	pos int64
}

func (m *memImage) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		m.buf = append(m.buf, make([]byte, end-int64(len(m.buf)))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memImage) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	if m.pos < 0 {
		return 0, errors.New("negative position")
	}
	return m.pos, nil
}

func (m *memImage) Truncate(size int64) error {
	m.buf = m.buf[:size]
	return nil
}

// failingFS refuses to open the named paths and defers to the host
// filesystem otherwise.
type failingFS struct {
	refuse map[string]bool
}

func (f failingFS) Open(name string) (fsreader.File, error) {
	if f.refuse[name] {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	return fsreader.OSFS{}.Open(name)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func text(n int) []byte {
	const line = "the quick brown fox jumps over the lazy dog\n"
	b := make([]byte, n)
	for i := range b {
		b[i] = line[i%len(line)]
	}
	return b
}

func regularFile(dir *fsreader.Dir, name string, size int64) *fsreader.Entry {
	e := &fsreader.Entry{Name: name, Dir: dir, Inode: &fsreader.Inode{Mode: 0o644, Size: size}}
	dir.Entries = append(dir.Entries, e)
	return e
}
