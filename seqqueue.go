package fsreader

import "sync"

// SeqQueue re-sequences blocks arriving from several producers (the reader
// directly, and the deflate and fragment stages) so that the consumer sees
// them strictly in Sequence order.
//
// Producers call Put concurrently; a single coordinator goroutine buffers
// out-of-order arrivals and forwards the contiguous run starting at the
// cursor to the output channel. Writes to the output are synchronous, so a
// slow consumer throttles the coordinator and, through it, the producers.
//
// Sequences must be contiguous starting at the configured first value:
// a gap stalls everything behind it. After CloseInput only the contiguous
// prefix from the cursor is flushed; blocks behind a gap are dropped and
// reported by Pending.
type SeqQueue struct {
	in  chan *DataBlock
	out chan *DataBlock

	done    chan struct{}
	mu      sync.Mutex
	pending int
}

// NewSeqQueue starts the coordinator. inSize and outSize bound the input
// and output channels; first is the sequence number expected first.
func NewSeqQueue(inSize, outSize uint, first int64) *SeqQueue {
	q := &SeqQueue{
		in:   make(chan *DataBlock, inSize),
		out:  make(chan *DataBlock, outSize),
		done: make(chan struct{}),
	}
	go q.run(first)
	return q
}

func (q *SeqQueue) Put(b *DataBlock) { q.in <- b }

// Out returns the ordered output channel. It is closed after CloseInput once
// the final flush completes.
func (q *SeqQueue) Out() <-chan *DataBlock { return q.out }

// CloseInput marks the end of input. Every producer must have finished.
func (q *SeqQueue) CloseInput() { close(q.in) }

// Pending reports how many blocks were left behind a gap at shutdown.
// It is only meaningful after Out has been closed.
func (q *SeqQueue) Pending() int {
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// run executes the coordinator loop until the input channel is closed.
func (q *SeqQueue) run(next int64) {
	defer close(q.done)
	defer close(q.out)

	buf := make(map[int64]*DataBlock)
	for b := range q.in {
		buf[b.Sequence] = b
		next = q.flushContiguous(next, buf)
	}

	// Final flush: only a contiguous prefix from next can be emitted.
	q.flushContiguous(next, buf)
	q.mu.Lock()
	q.pending = len(buf)
	q.mu.Unlock()
}

// flushContiguous emits consecutive blocks starting from next and returns
// the advanced cursor.
func (q *SeqQueue) flushContiguous(next int64, buf map[int64]*DataBlock) int64 {
	for {
		b, ok := buf[next]
		if !ok {
			return next
		}
		q.out <- b
		delete(buf, next)
		next++
	}
}
