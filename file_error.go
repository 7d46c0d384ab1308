package fsreader

import (
	"errors"
	"fmt"
)

// FileMetaError exposes which file and block a downstream failure belongs to.
type FileMetaError interface {
	error
	Unwrap() error
	FilePath() string
	BlockSequence() int64
}

// FileError reports a file that did not make it into the image, as seen by
// the consumer of the block stream.
type FileError struct {
	Path     string
	Sequence int64
	Err      error
}

// NewFileError builds the error for the fatal block b.
func NewFileError(b *DataBlock, err error) error {
	if err == nil {
		return nil
	}
	path := ""
	if b.Entry != nil {
		path = b.Entry.Path()
	}
	return &FileError{Path: path, Sequence: b.Sequence, Err: err}
}

func (e *FileError) Error() string        { return e.Path + ": " + e.Err.Error() }
func (e *FileError) Unwrap() error        { return e.Err }
func (e *FileError) FilePath() string     { return e.Path }
func (e *FileError) BlockSequence() int64 { return e.Sequence }

func (e *FileError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "file(path=%q,sequence=%d): %+v", e.Path, e.Sequence, e.Err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractFilePath returns the file path from err if present.
func ExtractFilePath(err error) (string, bool) {
	var fme FileMetaError
	if errors.As(err, &fme) {
		return fme.FilePath(), true
	}
	return "", false
}

// ExtractBlockSequence returns the block sequence from err if present.
func ExtractBlockSequence(err error) (int64, bool) {
	var fme FileMetaError
	if errors.As(err, &fme) {
		return fme.BlockSequence(), true
	}
	return 0, false
}

// ErrFileUnreadable is wrapped by the consumer-side error of a fatal block.
var ErrFileUnreadable = errors.New(Namespace + ": file could not be read")
