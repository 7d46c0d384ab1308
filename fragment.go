package fsreader

// IsFragment reports whether a file of fileSize bytes backed by ino should
// have its tail packed as a fragment. noFragmentCompression is the
// process-wide fragment compression setting: a tail compressed differently
// from fragments can never be one.
func IsFragment(ino *Inode, fileSize int64, blockSize int, noFragmentCompression bool) bool {
	if ino.NoFragmentCompression != noFragmentCompression {
		return false
	}
	bs := int64(blockSize)
	return !ino.NoFragments && fileSize > 0 &&
		(fileSize < bs || (ino.AlwaysUseFragments && fileSize&(bs-1) != 0))
}
