package tree

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ygrebnov/fsreader"
)

const (
	MinPriority = -32768
	MaxPriority = 32767
)

// Sorts maps a cleaned source path to its priority.
type Sorts map[string]int

// ParseSortFile reads lines of the form "path priority". Relative paths
// are taken relative to root. Blank lines and lines starting with '#' are
// ignored; a path may contain spaces, the priority is the last field.
// A later line for the same path overrides an earlier one.
func ParseSortFile(r io.Reader, root string) (Sorts, error) {
	sorts := make(Sorts)
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		i := strings.LastIndexAny(line, " \t")
		if i < 0 {
			return nil, fmt.Errorf("tree: sort file line %d: missing priority", n)
		}
		path := strings.TrimSpace(line[:i])
		p, err := strconv.Atoi(line[i+1:])
		if err != nil {
			return nil, fmt.Errorf("tree: sort file line %d: %w", n, err)
		}
		if p < MinPriority || p > MaxPriority {
			return nil, fmt.Errorf("tree: sort file line %d: priority %d outside %d..%d", n, p, MinPriority, MaxPriority)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		sorts[filepath.Clean(path)] = p
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tree: sort file: %w", err)
	}
	return sorts, nil
}

// Priorities collects every regular, non-pseudo file under root into a
// PriorityList. Files absent from sorts get priority 0.
func Priorities(root *fsreader.Dir, sorts Sorts) *fsreader.PriorityList {
	list := fsreader.NewPriorityList()
	var walk func(d *fsreader.Dir)
	walk = func(d *fsreader.Dir) {
		for _, e := range d.Entries {
			switch {
			case e.RootPlaceholder || e.Pseudo:
			case e.Inode.IsDir():
				if e.Sub != nil {
					walk(e.Sub)
				}
			case e.Inode.IsRegular():
				list.Add(uint16(sorts[e.Path()]-MinPriority), e)
			}
		}
	}
	walk(root)
	return list
}
