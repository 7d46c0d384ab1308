package fsreader

import "github.com/ygrebnov/fsreader/pool"

// ErrorTag classifies a DataBlock that does not carry normal file content.
type ErrorTag uint8

const (
	// ErrorNone marks an ordinary content block.
	ErrorNone ErrorTag = iota

	// ErrorFatal marks the single block emitted for a file that could not be
	// read. It carries no usable payload; consumers treat the file as failed.
	ErrorFatal

	// ErrorRestart marks a partial attempt abandoned because the file changed
	// size while being read. Consumers discard anything already produced for
	// the file and wait for the re-read that follows. FileSize holds the size
	// the abandoned attempt was read with.
	ErrorRestart
)

func (t ErrorTag) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorFatal:
		return "fatal"
	case ErrorRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// DataBlock is the unit moving between pipeline stages. The reader fills it
// and hands it to exactly one queue; whichever consumer finishes with it
// releases it back to the buffer pool.
type DataBlock struct {
	// Sequence orders blocks globally. Dispatched numbers are strictly
	// increasing and contiguous.
	Sequence int64

	// NoCompression copies the inode's data compression override.
	NoCompression bool

	// Size is the number of valid bytes in Data, 0..block size.
	Size int

	// FileSize is the total size of the file on its tail block, the attempt
	// size on a restart block, and -1 otherwise.
	FileSize int64

	// Fragment reports that the tail qualifies for fragment packing.
	Fragment bool

	Error ErrorTag

	// Entry is the directory entry the block was read for.
	Entry *Entry

	// Data is the payload buffer; its capacity is the block size.
	Data []byte

	// Compressed is set by the deflate stage when Data holds compressed bytes.
	Compressed bool

	// Cause is why the file was abandoned, on ErrorFatal blocks only.
	Cause error
}

// Payload returns the valid part of Data.
func (b *DataBlock) Payload() []byte { return b.Data[:b.Size] }

// IsTail reports whether b is the last content block of a successfully read file.
func (b *DataBlock) IsTail() bool { return b.Error == ErrorNone && b.FileSize >= 0 }

// reset clears everything but the buffer, ready for a new sequence number.
func (b *DataBlock) reset() {
	data := b.Data[:cap(b.Data)]
	*b = DataBlock{Data: data, FileSize: -1}
}

// NewBufferPool returns a bounded pool of capacity DataBlocks with
// blockSize-byte buffers. Get blocks once all of them are in flight.
func NewBufferPool(capacity uint, blockSize int) *pool.Fixed[*DataBlock] {
	return pool.NewFixed(capacity, func() *DataBlock {
		return &DataBlock{Data: make([]byte, blockSize), FileSize: -1}
	})
}
