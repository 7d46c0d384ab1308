package fsreader

// Queues are the three destinations of a finished block.
type Queues struct {
	// Deflate receives compressible non-fragment blocks.
	Deflate Queue
	// Fragment receives fragment-eligible tail blocks.
	Fragment Queue
	// Sink is the sequenced terminal queue. It receives blocks that need no
	// compression: error-tagged blocks and empty-file tails.
	Sink Queue
}

// dispatcher routes finished blocks. It never retries; enqueue blocks when
// the target queue is full.
type dispatcher struct {
	queues Queues
}

func newDispatcher(q Queues) *dispatcher {
	return &dispatcher{queues: q}
}

func (d *dispatcher) dispatch(b *DataBlock) {
	switch {
	case b.Error != ErrorNone:
		b.Fragment = false
		d.queues.Sink.Put(b)
	case b.FileSize == 0:
		d.queues.Sink.Put(b)
	case b.Fragment:
		d.queues.Fragment.Put(b)
	default:
		d.queues.Deflate.Put(b)
	}
}
