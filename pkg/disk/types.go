package disk

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	// MaxContentSize is the largest record content accepted, in bytes
	MaxContentSize = 100
	// MaxNameSize is the largest file name accepted, in bytes
	MaxNameSize = 49
	// MaxFileCapacity is the largest number of entries a file may declare
	MaxFileCapacity = 1 << 20
	// NoLocator is returned wherever a locator is absent
	NoLocator Locator = -1
)

// Locator identifies one block of a Pool by its index
type Locator int

// Valid reports whether the locator could refer to a block
func (l Locator) Valid() bool {
	return l >= 0
}

// Record is the caller-level payload stored in a single block
type Record struct {
	ID      int64
	Content string
}

// Validate checks the record content bound
func (r Record) Validate() error {
	if len(r.Content) > MaxContentSize {
		return fmt.Errorf("%w: content is %d bytes, limit is %d",
			ErrInvalidArgument, len(r.Content), MaxContentSize)
	}
	return nil
}

// Digest returns the xxhash fingerprint of the record id and content
func (r Record) Digest() uint64 {
	d := xxhash.New()
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], uint64(r.ID))
	d.Write(id[:])
	d.WriteString(r.Content)
	return d.Sum64()
}

// ValidateName checks that name can own blocks and back a snapshot file
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty file name", ErrInvalidArgument)
	case len(name) > MaxNameSize:
		return fmt.Errorf("%w: file name is %d bytes, limit is %d",
			ErrInvalidArgument, len(name), MaxNameSize)
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == 0 || c == ' ' || c == '\t' {
			return fmt.Errorf("%w: file name %q contains %q", ErrInvalidArgument, name, c)
		}
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: file name %q is reserved", ErrInvalidArgument, name)
	}
	return nil
}

// SlotStatus describes one block for the disk status report
type SlotStatus struct {
	Locator  Locator
	Occupied bool
	Owner    string
	Record   Record
	// Digest is zero for empty blocks
	Digest uint64
}

type slot struct {
	occupied bool
	owner    string
	record   Record
}
