// Package file implements a named record file on top of a disk.Pool.
//
// A File is an ordered, fixed-length list of entries. Each entry is either
// empty or refers to one pool block owned by the file. The file owns the
// positions; the pool owns the block contents.
package file

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/KevoDB/blockstore/pkg/disk"
)

var (
	// ErrNotFound is returned when no entry holds the requested record
	ErrNotFound = errors.New("record not found")
	// ErrFileFull is returned when every entry of the file is in use
	ErrFileFull = fmt.Errorf("%w: file has no free entry", disk.ErrOutOfSpace)
)

// Entry is one occupied position of a file
type Entry struct {
	Position int
	Locator  disk.Locator
	Record   disk.Record
}

// File is a fixed-capacity record index backed by a pool
type File struct {
	name    string
	pool    *disk.Pool
	entries []disk.Locator
}

// Ensure File can take part in pool compaction
var _ disk.Relocator = (*File)(nil)

// Create returns an empty file of the given capacity
func Create(pool *disk.Pool, name string, capacity int) (*File, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", disk.ErrInvalidArgument)
	}
	if err := disk.ValidateName(name); err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, fmt.Errorf("%w: record count must not be negative, got %d",
			disk.ErrInvalidArgument, capacity)
	}
	if capacity > disk.MaxFileCapacity {
		return nil, fmt.Errorf("%w: record count %d exceeds %d",
			disk.ErrInvalidArgument, capacity, disk.MaxFileCapacity)
	}

	f := &File{
		name:    name,
		pool:    pool,
		entries: make([]disk.Locator, capacity),
	}
	f.Reset()
	return f, nil
}

// Name returns the file name
func (f *File) Name() string {
	return f.name
}

// Capacity returns the declared number of entries
func (f *File) Capacity() int {
	return len(f.entries)
}

// Locator returns the block referenced at position, or disk.NoLocator
func (f *File) Locator(position int) disk.Locator {
	if position < 0 || position >= len(f.entries) {
		return disk.NoLocator
	}
	return f.entries[position]
}

// Insert stores record in a new block and places it at the first free entry.
// The free entry is found before the block is allocated so a failure on
// either side leaves the file and the pool unchanged.
func (f *File) Insert(record disk.Record) (int, error) {
	position := f.firstFree()
	if position < 0 {
		return -1, ErrFileFull
	}

	loc, err := f.pool.Allocate(f.name, record)
	if err != nil {
		return -1, err
	}
	f.entries[position] = loc
	return position, nil
}

// InsertAt stores record in a new block referenced from the given empty
// position. It is used to rebuild a file with its original layout.
func (f *File) InsertAt(position int, record disk.Record) error {
	if position < 0 || position >= len(f.entries) {
		return fmt.Errorf("%w: position %d outside file of %d entries",
			disk.ErrInvalidArgument, position, len(f.entries))
	}
	if f.entries[position].Valid() {
		return fmt.Errorf("%w: position %d is already in use", disk.ErrInvalidArgument, position)
	}

	loc, err := f.pool.Allocate(f.name, record)
	if err != nil {
		return err
	}
	f.entries[position] = loc
	return nil
}

// Search returns the lowest position holding a record with the given id
func (f *File) Search(id int64) (int, error) {
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		rec, err := f.pool.Get(loc)
		if err != nil {
			return -1, err
		}
		if rec.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// Get returns the record with the given id
func (f *File) Get(id int64) (disk.Record, error) {
	position, err := f.Search(id)
	if err != nil {
		return disk.Record{}, err
	}
	return f.pool.Get(f.entries[position])
}

// Edit replaces the content of the record with the given id in place
func (f *File) Edit(id int64, content string) error {
	position, err := f.Search(id)
	if err != nil {
		return err
	}
	return f.pool.SetContent(f.entries[position], content)
}

// Delete frees the block of the record with the given id and clears its entry
func (f *File) Delete(id int64) error {
	position, err := f.Search(id)
	if err != nil {
		return err
	}
	if err := f.pool.Free(f.entries[position]); err != nil {
		return err
	}
	f.entries[position] = disk.NoLocator
	return nil
}

// Sort orders the occupied entries by ascending record id. The sort is
// stable and empty entries keep their positions.
func (f *File) Sort() error {
	var positions []int
	var entries []Entry
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		rec, err := f.pool.Get(loc)
		if err != nil {
			return err
		}
		positions = append(positions, i)
		entries = append(entries, Entry{Position: i, Locator: loc, Record: rec})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.ID < entries[j].Record.ID
	})

	for i, position := range positions {
		f.entries[position] = entries[i].Locator
	}
	return nil
}

// Defragment moves every occupied entry to the front, keeping relative order
func (f *File) Defragment() {
	next := 0
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		if next != i {
			f.entries[next] = loc
			f.entries[i] = disk.NoLocator
		}
		next++
	}
}

// DeleteFile frees every block of the file. Name and capacity are kept.
func (f *File) DeleteFile() error {
	var firstErr error
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		if err := f.pool.Free(loc); err != nil && firstErr == nil {
			firstErr = err
		}
		f.entries[i] = disk.NoLocator
	}
	return firstErr
}

// Reset clears every entry without touching the pool. It is used after the
// pool itself was re-initialized.
func (f *File) Reset() {
	for i := range f.entries {
		f.entries[i] = disk.NoLocator
	}
}

// Count returns the number of occupied entries
func (f *File) Count() int {
	count := 0
	for _, loc := range f.entries {
		if loc.Valid() {
			count++
		}
	}
	return count
}

// SearchByContent returns the positions whose content contains substr
func (f *File) SearchByContent(substr string) ([]int, error) {
	positions := []int{}
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		rec, err := f.pool.Get(loc)
		if err != nil {
			return nil, err
		}
		if strings.Contains(rec.Content, substr) {
			positions = append(positions, i)
		}
	}
	return positions, nil
}

// Records returns the occupied entries in position order
func (f *File) Records() ([]Entry, error) {
	var out []Entry
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		rec, err := f.pool.Get(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Position: i, Locator: loc, Record: rec})
	}
	return out, nil
}

// Verify checks that every occupied entry refers to a distinct block that is
// occupied and owned by this file
func (f *File) Verify() error {
	seen := make(map[disk.Locator]int)
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		if err := f.pool.Check(f.name, loc); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if prev, dup := seen[loc]; dup {
			return fmt.Errorf("%w: entries %d and %d share block %d",
				disk.ErrInvalidLocator, prev, i, loc)
		}
		seen[loc] = i
	}
	return nil
}

// PrepareRelocation checks that every block referenced by the file is part
// of the compaction plan
func (f *File) PrepareRelocation(r disk.Relocation) error {
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		if _, ok := r.Lookup(loc); !ok {
			return fmt.Errorf("%w: entry %d of %q refers to empty block %d",
				disk.ErrInvalidLocator, i, f.name, loc)
		}
	}
	return nil
}

// CommitRelocation rewrites every entry to its post-compaction locator
func (f *File) CommitRelocation(r disk.Relocation) {
	for i, loc := range f.entries {
		if !loc.Valid() {
			continue
		}
		if to, ok := r.Lookup(loc); ok {
			f.entries[i] = to
		}
	}
}

// firstFree returns the lowest empty position or -1
func (f *File) firstFree() int {
	for i, loc := range f.entries {
		if !loc.Valid() {
			return i
		}
	}
	return -1
}
