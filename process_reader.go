package fsreader

import (
	"log/slog"
	"time"
)

// lookahead holds back the most recently filled block of a pseudo file:
// only the next read can tell whether it was the last one.
type lookahead struct {
	held *DataBlock
}

// push holds b and returns the previously held block, if any, which is now
// known not to be the tail.
func (l *lookahead) push(b *DataBlock) *DataBlock {
	prev := l.held
	l.held = b
	return prev
}

// take empties the slot.
func (l *lookahead) take() *DataBlock {
	b := l.held
	l.held = nil
	return b
}

// readProcess streams the output of the generator behind a pseudo entry.
// The size is unknown until the stream ends, so every block is held back
// until the following read proves it is not the tail.
func (r *Reader) readProcess(e *Entry) {
	ino := e.Inode
	defer r.observe(time.Now())

	if r.config.Pseudo == nil {
		r.log.Error("reader: no pseudo source configured", slog.String("name", e.Name))
		r.fail(r.acquire(e), ErrUnknownPseudo)
		return
	}

	stream, err := r.config.Pseudo.Spawn(ino.PseudoID)
	if err != nil {
		r.log.Error("reader: cannot spawn generator", slog.String("name", e.Name), slog.Any("error", err))
		r.fail(r.acquire(e), err)
		return
	}

	bs := r.config.BlockSize
	var (
		slot  lookahead
		bytes int64
		cur   *DataBlock
	)
	for {
		cur = r.acquire(e)
		n, err := readBlock(stream, cur.Data[:bs])
		if err != nil {
			r.log.Error("reader: generator read failed", slog.String("name", e.Name), slog.Any("error", err))
			_ = stream.Join()
			r.failProcess(&slot, cur, err)
			return
		}
		cur.Size = n
		bytes += int64(n)
		if n == 0 {
			break
		}
		if prev := slot.push(cur); prev != nil {
			r.dispatch(prev)
		}
	}

	// cur is the empty end-of-stream block.
	if err := stream.Join(); err != nil {
		r.log.Error("reader: generator failed", slog.String("name", e.Name), slog.Any("error", err))
		r.failProcess(&slot, cur, err)
		return
	}

	ino.Size = bytes
	tail := slot.take()
	if tail == nil {
		tail = cur
	} else {
		r.discard(cur)
	}
	tail.FileSize = bytes
	tail.Fragment = r.isFragment(ino, bytes)
	r.dispatch(tail)
}

// failProcess dispatches the fatal block of a pseudo file: the held block
// when there is one (cur is then discarded), otherwise cur itself.
func (r *Reader) failProcess(slot *lookahead, cur *DataBlock, cause error) {
	if held := slot.take(); held != nil {
		r.discard(cur)
		cur = held
	}
	r.fail(cur, cause)
}
