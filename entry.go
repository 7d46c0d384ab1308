package fsreader

import "io/fs"

// NumPriorities is the number of PriorityList buckets.
const NumPriorities = 65536

// Dir is one directory of the source tree.
type Dir struct {
	// Path is the source path of the directory.
	Path string

	Entries []*Entry

	// Parent is nil for the root.
	Parent *Dir
}

// Entry is a named reference to an Inode inside a Dir. Several entries may
// share one Inode (hard links).
type Entry struct {
	Name string

	// Dir is the directory owning the entry.
	Dir *Dir

	Inode *Inode

	// Sub is the directory this entry names, for directory entries.
	Sub *Dir

	// RootPlaceholder marks a synthetic root marker that is never read.
	RootPlaceholder bool

	// Pseudo marks an entry whose content comes from a generator.
	Pseudo bool

	// SourcePath overrides the path materialised from Dir.Path and Name.
	SourcePath string
}

// Inode is the file object shared by every alias of one file.
type Inode struct {
	Mode fs.FileMode

	// Size is the size the file was recorded with. The reader overwrites it
	// when a file changes size while being read and once a pseudo file's
	// output has been fully streamed.
	Size int64

	NoDataCompression     bool
	NoFragments           bool
	AlwaysUseFragments    bool
	NoFragmentCompression bool

	// PseudoID names the generator of a pseudo entry.
	PseudoID int

	// read is set once the content has been streamed; it is never reset.
	read bool
}

// Read reports whether the inode's content has already been streamed.
func (ino *Inode) Read() bool { return ino.read }

// IsRegular reports whether the inode is a regular file.
func (ino *Inode) IsRegular() bool { return ino.Mode.Type() == 0 }

// IsDir reports whether the inode is a directory.
func (ino *Inode) IsDir() bool { return ino.Mode.IsDir() }

// appendPath appends the materialised source path of e to buf.
func (e *Entry) appendPath(buf []byte) []byte {
	if e.SourcePath != "" {
		return append(buf, e.SourcePath...)
	}
	if e.Dir != nil && e.Dir.Path != "" {
		buf = append(buf, e.Dir.Path...)
		if buf[len(buf)-1] != '/' {
			buf = append(buf, '/')
		}
	}
	return append(buf, e.Name...)
}

// Path returns the source path of e.
func (e *Entry) Path() string { return string(e.appendPath(nil)) }

// PriorityList holds regular-file entries in NumPriorities ordered buckets.
type PriorityList struct {
	buckets [NumPriorities][]*Entry
	n       int
}

// NewPriorityList returns an empty list.
func NewPriorityList() *PriorityList { return &PriorityList{} }

// Add appends e to the bucket for priority.
func (l *PriorityList) Add(priority uint16, e *Entry) {
	l.buckets[priority] = append(l.buckets[priority], e)
	l.n++
}

// Bucket returns the entries with the given priority in insertion order.
func (l *PriorityList) Bucket(priority uint16) []*Entry { return l.buckets[priority] }

// Len returns the total number of entries.
func (l *PriorityList) Len() int { return l.n }
