package fsreader

// Queue receives dispatched blocks. Put may block when the queue is bounded.
type Queue interface {
	Put(b *DataBlock)
}

// FIFO is a bounded multi-producer, multi-consumer block queue.
// The producer side closes it once no more blocks will be put.
type FIFO struct {
	ch chan *DataBlock
}

// NewFIFO returns a FIFO holding up to size blocks. Size zero makes Put
// rendezvous with a consumer.
func NewFIFO(size uint) *FIFO {
	return &FIFO{ch: make(chan *DataBlock, size)}
}

func (q *FIFO) Put(b *DataBlock) { q.ch <- b }

// C returns the receive side; it is closed by Close.
func (q *FIFO) C() <-chan *DataBlock { return q.ch }

// Close marks the end of input. Put must not be called afterwards.
func (q *FIFO) Close() { close(q.ch) }

// Len returns the number of queued blocks.
func (q *FIFO) Len() int { return len(q.ch) }
