// Package fsreader is the ingestion stage of a filesystem-image builder.
//
// A Reader walks a source tree (or a precomputed priority order) and turns
// every regular file, and every pseudo file produced by a generator
// process, into a stream of fixed-size DataBlocks handed to three queues:
// a deflate queue for compression workers, a fragment queue for small
// tails, and a sequenced sink that restores global block order.
//
// Ordering
// Every dispatched block carries a sequence number. Numbers are contiguous
// and strictly increasing across the whole walk, counting error blocks;
// SeqQueue uses them to re-sequence blocks that the parallel stages finish
// out of order.
//
// Changing files
// A regular file is read with the size recorded in its Inode. If the data
// disagrees with that size, the open file is stat'ed again. A new size
// produces an ErrorRestart block and a fresh read from byte 0; an unchanged
// size is a genuine I/O error and produces an ErrorFatal block.
//
// Pseudo files
// Generator output has no size until it ends. The reader holds one block
// back until the next read shows whether it was the tail, then sizes the
// file retroactively from the bytes streamed.
//
// Backpressure
// Blocks come from a bounded pool.Fixed; the reader blocks when every
// buffer is in flight, so slow compression throttles ingestion. The pool
// needs at least two buffers for pseudo files.
//
// Concurrency
// Run executes on a single goroutine and is the sole producer into all
// queues. Consumers own dispatched blocks and return them to the pool.
package fsreader
