package pipeline

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/ygrebnov/fsreader"
	"github.com/ygrebnov/fsreader/pool"
)

// Summary describes a finished image.
type Summary struct {
	// Files counts files stored completely, empty files included.
	Files int
	// Failed holds one *fsreader.FileError per file left out of the image.
	Failed []error

	Blocks     int64
	Restarts   int
	Fragments  int
	Compressed int

	// Size is the number of bytes in the image.
	Size int64

	// Digests maps each stored file path to the blake3 digest of its stored bytes.
	Digests map[string][32]byte
	// Digest is the blake3 digest of the per-file digests in image order.
	Digest [32]byte
}

// imageWriter consumes the sequenced sink. Blocks of one file arrive
// contiguously, so a single cursor tracks the file being written.
type imageWriter struct {
	out  io.WriteSeeker
	pool pool.Pool[*fsreader.DataBlock]
	log  *slog.Logger

	offset int64
	cur    *fsreader.Entry
	start  int64
	file   *blake3.Hasher
	image  *blake3.Hasher

	sum *Summary
	err error
}

func newImageWriter(out io.WriteSeeker, p pool.Pool[*fsreader.DataBlock], log *slog.Logger) *imageWriter {
	return &imageWriter{
		out:   out,
		pool:  p,
		log:   log,
		file:  blake3.New(),
		image: blake3.New(),
		sum:   &Summary{Digests: make(map[string][32]byte)},
	}
}

// run writes every block from in and releases it. After the first write
// error it keeps draining so upstream stages never stall.
func (w *imageWriter) run(in <-chan *fsreader.DataBlock) {
	for b := range in {
		if w.err == nil {
			w.err = w.write(b)
		}
		w.pool.Put(b)
	}
	if w.err == nil {
		w.err = w.finish()
	}
}

func (w *imageWriter) write(b *fsreader.DataBlock) error {
	w.sum.Blocks++
	if b.Entry != w.cur {
		w.cur = b.Entry
		w.start = w.offset
		w.file.Reset()
	}

	switch b.Error {
	case fsreader.ErrorRestart:
		w.sum.Restarts++
		w.log.Debug("writer: file changed, discarding partial output",
			slog.String("path", b.Entry.Path()), slog.Int64("bytes", w.offset-w.start))
		return w.rewind()
	case fsreader.ErrorFatal:
		cause := fsreader.ErrFileUnreadable
		if b.Cause != nil {
			cause = fmt.Errorf("%w: %w", fsreader.ErrFileUnreadable, b.Cause)
		}
		w.sum.Failed = append(w.sum.Failed, fsreader.NewFileError(b, cause))
		w.log.Warn("writer: file left out of the image", slog.String("path", b.Entry.Path()), slog.Any("error", b.Cause))
		// The entry can only come back for another file.
		w.cur = nil
		return w.rewind()
	}

	if b.Compressed {
		w.sum.Compressed++
	}
	if b.Fragment {
		w.sum.Fragments++
	}

	payload := b.Payload()
	n, err := w.out.Write(payload)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("writer: %s: %w", b.Entry.Path(), err)
	}
	_, _ = w.file.Write(payload)

	if b.IsTail() {
		var digest [32]byte
		copy(digest[:], w.file.Sum(nil))
		w.sum.Digests[b.Entry.Path()] = digest
		_, _ = w.image.Write(digest[:])
		w.sum.Files++
	}
	return nil
}

// rewind drops everything written for the current file.
func (w *imageWriter) rewind() error {
	w.file.Reset()
	if w.offset == w.start {
		return nil
	}
	if _, err := w.out.Seek(w.start, io.SeekStart); err != nil {
		return fmt.Errorf("writer: rewind: %w", err)
	}
	w.offset = w.start
	return nil
}

type truncater interface {
	Truncate(size int64) error
}

// finish cuts off bytes left behind by a rewind at the end of the image.
func (w *imageWriter) finish() error {
	w.sum.Size = w.offset
	copy(w.sum.Digest[:], w.image.Sum(nil))
	if t, ok := w.out.(truncater); ok {
		if err := t.Truncate(w.offset); err != nil {
			return fmt.Errorf("writer: truncate: %w", err)
		}
	}
	return nil
}
