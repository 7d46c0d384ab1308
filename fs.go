package fsreader

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

// FS opens source files for reading.
type FS interface {
	Open(name string) (File, error)
}

// File is an open source file. Stat reports the current metadata of the
// open file, not of whatever the path names now.
type File interface {
	io.ReadCloser
	Stat() (fs.FileInfo, error)
}

// OSFS opens files from the host filesystem.
type OSFS struct{}

func (OSFS) Open(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// readBlock reads until buf is full or the stream ends. A short count with a
// nil error means end of file.
func readBlock(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
