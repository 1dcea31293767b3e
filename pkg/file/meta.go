package file

import "github.com/KevoDB/blockstore/pkg/disk"

// MetaInfo is a point-in-time summary of a file. It is never updated; build
// a new one after the file changes.
type MetaInfo struct {
	FileName string
	// BlockCount is the declared capacity of the file
	BlockCount int
	// RecordCount is the number of occupied entries
	RecordCount int
	// FirstBlock is the locator held by entry 0, or disk.NoLocator
	FirstBlock disk.Locator
}

// NewMetaInfo computes the summary of f
func NewMetaInfo(f *File) MetaInfo {
	return MetaInfo{
		FileName:    f.Name(),
		BlockCount:  f.Capacity(),
		RecordCount: f.Count(),
		FirstBlock:  f.Locator(0),
	}
}

// Meta is shorthand for NewMetaInfo(f)
func (f *File) Meta() MetaInfo {
	return NewMetaInfo(f)
}
