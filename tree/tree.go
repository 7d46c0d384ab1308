// Package tree builds the in-memory directory tree the reader walks, and
// the priority list used when a sort file is given.
package tree

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ygrebnov/fsreader"
)

// Options are the per-inode defaults applied while scanning.
type Options struct {
	NoDataCompression     bool
	NoFragments           bool
	AlwaysUseFragments    bool
	NoFragmentCompression bool

	Logger *slog.Logger
}

type inodeKey struct {
	dev uint64
	ino uint64
}

type builder struct {
	opts   Options
	log    *slog.Logger
	inodes map[inodeKey]*fsreader.Inode
}

// Build scans the directory at root without following symbolic links.
// Entries of every directory are sorted by name, and hard links share a
// single Inode so the reader streams their content once.
func Build(root string, opts Options) (*fsreader.Dir, error) {
	root = filepath.Clean(root)

	var st unix.Stat_t
	if err := unix.Lstat(root, &st); err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: root, Err: err}
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return nil, fmt.Errorf("tree: %s is not a directory", root)
	}

	b := &builder{opts: opts, log: opts.Logger, inodes: make(map[inodeKey]*fsreader.Inode)}
	if b.log == nil {
		b.log = slog.Default()
	}

	dir := &fsreader.Dir{Path: root}
	if err := b.scan(dir); err != nil {
		return nil, err
	}
	b.log.Debug("tree: scanned", slog.String("root", root), slog.Int("inodes", len(b.inodes)))
	return dir, nil
}

func (b *builder) scan(dir *fsreader.Dir) error {
	des, err := os.ReadDir(dir.Path)
	if err != nil {
		return fmt.Errorf("tree: %w", err)
	}

	dir.Entries = make([]*fsreader.Entry, 0, len(des))
	for _, de := range des {
		path := filepath.Join(dir.Path, de.Name())

		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return fmt.Errorf("tree: %w", &fs.PathError{Op: "lstat", Path: path, Err: err})
		}

		e := &fsreader.Entry{Name: de.Name(), Dir: dir, Inode: b.inode(&st)}
		if e.Inode.IsDir() {
			e.Sub = &fsreader.Dir{Path: path, Parent: dir}
			if err := b.scan(e.Sub); err != nil {
				return err
			}
		}
		dir.Entries = append(dir.Entries, e)
	}
	return nil
}

// inode returns the shared Inode for st, creating it on first sight.
func (b *builder) inode(st *unix.Stat_t) *fsreader.Inode {
	mode := fileMode(st)
	key := inodeKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}
	if !mode.IsDir() && st.Nlink > 1 {
		if ino, ok := b.inodes[key]; ok {
			return ino
		}
	}

	ino := &fsreader.Inode{
		Mode:                  mode,
		Size:                  st.Size,
		NoDataCompression:     b.opts.NoDataCompression,
		NoFragments:           b.opts.NoFragments,
		AlwaysUseFragments:    b.opts.AlwaysUseFragments,
		NoFragmentCompression: b.opts.NoFragmentCompression,
	}
	b.inodes[key] = ino
	return ino
}

func fileMode(st *unix.Stat_t) fs.FileMode {
	m := fs.FileMode(st.Mode & 0o777)
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		m |= fs.ModeDir
	case unix.S_IFLNK:
		m |= fs.ModeSymlink
	case unix.S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		m |= fs.ModeDevice
	case unix.S_IFIFO:
		m |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		m |= fs.ModeSocket
	}
	return m
}

// AddPseudo adds a pseudo file named name to dir whose content is produced
// by generator id. An existing entry with the same name is replaced.
func AddPseudo(dir *fsreader.Dir, name string, id int) *fsreader.Entry {
	e := &fsreader.Entry{
		Name:   name,
		Dir:    dir,
		Pseudo: true,
		Inode:  &fsreader.Inode{Mode: 0o644, PseudoID: id},
	}
	dir.Entries = slices.DeleteFunc(dir.Entries, func(x *fsreader.Entry) bool { return x.Name == name })
	dir.Entries = append(dir.Entries, e)
	sortEntries(dir)
	return e
}

func sortEntries(dir *fsreader.Dir) {
	slices.SortStableFunc(dir.Entries, func(a, b *fsreader.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
}
