package fsreader

import (
	"log/slog"
	"time"
)

// readState is the state of one regular-file read.
type readState int

const (
	// stateReading: an attempt is (re)starting from byte 0.
	stateReading readState = iota
	// stateRestat: the data read disagrees with the attempt size.
	stateRestat
	// stateDispatching: the tail block is complete and classified.
	stateDispatching
	// stateFatal: the current block must be dispatched as the fatal block.
	stateFatal
	// stateDone: every block of the file has been dispatched.
	stateDone
)

// fileAttempt is one pass over a regular file, read with the size the inode
// recorded when the pass started.
type fileAttempt struct {
	path string
	size int64
	file File
	// cur is the block being filled; it has not been dispatched.
	cur *DataBlock
	// err is the cause recorded on the way to stateFatal.
	err error
}

func (a *fileAttempt) close() {
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
}

// readFile streams the regular file behind e. The inode is marked read
// before the first byte is fetched so that further aliases are skipped.
// The file ends with either all of its blocks, or one fatal block, after
// any number of restart-signal blocks.
func (r *Reader) readFile(e *Entry) {
	ino := e.Inode
	if ino.read {
		return
	}
	ino.read = true
	defer r.observe(time.Now())

	a := &fileAttempt{path: r.pathname(e)}
	state := stateReading
	for state != stateDone {
		switch state {
		case stateReading:
			a.size = ino.Size
			state = r.readAttempt(e, a)
		case stateRestat:
			state = r.restat(ino, a)
		case stateDispatching:
			a.cur.FileSize = a.size
			a.cur.Fragment = r.isFragment(ino, a.size)
			r.dispatch(a.cur)
			a.close()
			state = stateDone
		case stateFatal:
			a.close()
			r.fail(a.cur, a.err)
			state = stateDone
		}
	}
}

// readAttempt reads the file from byte 0 expecting a.size bytes. Non-tail
// blocks are dispatched as soon as they are full; the tail is left in a.cur.
func (r *Reader) readAttempt(e *Entry, a *fileAttempt) readState {
	bs := r.config.BlockSize
	blocks := (a.size + int64(bs) - 1) >> r.config.BlockLog

	f, err := r.config.FS.Open(a.path)
	if err != nil {
		r.log.Error("reader: cannot open file", slog.String("path", a.path), slog.Any("error", err))
		a.cur = r.acquire(e)
		a.err = err
		return stateFatal
	}
	a.file = f

	var bytes int64
	for {
		a.cur = r.acquire(e)

		// Always ask for a whole block, even for the tail, so growth since
		// the stat shows up as a size mismatch.
		n, err := readBlock(f, a.cur.Data[:bs])
		if err != nil {
			r.log.Error("reader: read failed", slog.String("path", a.path), slog.Any("error", err))
			a.err = err
			return stateFatal
		}
		a.cur.Size = n
		bytes += int64(n)

		if blocks > 1 {
			if n < bs {
				return stateRestat
			}
			r.dispatch(a.cur)
		}

		blocks--
		if blocks <= 0 {
			break
		}
	}

	if bytes != a.size {
		return stateRestat
	}

	if a.size > 0 && a.size&int64(bs-1) == 0 {
		// Exact multiple: nothing has tried to read past the end yet.
		var probe [1]byte
		n, err := readBlock(f, probe[:])
		if err != nil {
			r.log.Error("reader: read failed", slog.String("path", a.path), slog.Any("error", err))
			a.err = err
			return stateFatal
		}
		if n != 0 {
			return stateRestat
		}
	}
	return stateDispatching
}

// restat compares the open file's current size with the attempt size. A
// different size restarts the read; the same size means the short or long
// read was a genuine I/O error.
func (r *Reader) restat(ino *Inode, a *fileAttempt) readState {
	fi, err := a.file.Stat()
	if err != nil {
		r.log.Error("reader: cannot stat file", slog.String("path", a.path), slog.Any("error", err))
		a.err = err
		return stateFatal
	}

	if fi.Size() == a.size {
		r.log.Error("reader: file size does not match bytes read",
			slog.String("path", a.path), slog.Int64("size", a.size), slog.Any("error", ErrSizeMismatch))
		a.err = ErrSizeMismatch
		return stateFatal
	}

	r.log.Warn("reader: file changed size while being read, restarting",
		slog.String("path", a.path), slog.Int64("old_size", a.size), slog.Int64("new_size", fi.Size()),
		slog.Int64("sequence", a.cur.Sequence))
	a.close()
	ino.Size = fi.Size()
	a.cur.Error = ErrorRestart
	a.cur.FileSize = a.size
	r.restarts.Add(1)
	r.dispatch(a.cur)
	return stateReading
}
