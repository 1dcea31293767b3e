// Package snapshot persists a record file as a self-contained binary image.
//
// Only logical content is stored: the file name, its capacity and the
// (position, id, content) triple of every occupied entry. Block locators are
// specific to one pool and are never written; restoring allocates new blocks.
//
// Layout:
//
//	magic   [4]byte "KBLK"
//	version uint8
//	codec   uint8
//	_       [2]byte
//	payload []byte   compressed with codec, protobuf wire format
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/KevoDB/blockstore/pkg/disk"
	"github.com/KevoDB/blockstore/pkg/file"
)

const (
	// HeaderSize is the fixed size of the snapshot header in bytes
	HeaderSize = 8
	// Magic identifies a snapshot blob
	Magic = uint32(0x4B4C424B) // "KBLK" little endian
	// CurrentVersion is the current snapshot format version
	CurrentVersion = uint8(1)

	maxPayloadSize = 64 << 20
)

var (
	// ErrCorruptSnapshot is returned when a blob cannot be decoded
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
	// ErrUnknownCodec is returned for codec names or ids that are not supported
	ErrUnknownCodec = errors.New("unknown compression codec")
)

// Image is the decoded content of a snapshot
type Image struct {
	Name     string
	Capacity int
	Entries  []Entry
}

// Entry is one occupied position of the captured file
type Entry struct {
	Position int
	Record   disk.Record
}

// Capture builds an image of f
func Capture(f *file.File) (*Image, error) {
	records, err := f.Records()
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", f.Name(), err)
	}

	img := &Image{
		Name:     f.Name(),
		Capacity: f.Capacity(),
		Entries:  make([]Entry, 0, len(records)),
	}
	for _, r := range records {
		img.Entries = append(img.Entries, Entry{Position: r.Position, Record: r.Record})
	}
	return img, nil
}

// Rebuild creates a file from the image, allocating one block of pool per
// entry. If anything fails, every block allocated so far is released.
func (img *Image) Rebuild(pool *disk.Pool) (*file.File, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if pool.Available() < len(img.Entries) {
		return nil, fmt.Errorf("%w: snapshot needs %d blocks, %d available",
			disk.ErrOutOfSpace, len(img.Entries), pool.Available())
	}

	f, err := file.Create(pool, img.Name, img.Capacity)
	if err != nil {
		return nil, err
	}
	for _, e := range img.Entries {
		if err := f.InsertAt(e.Position, e.Record); err != nil {
			err = fmt.Errorf("failed to restore record %d: %w", e.Record.ID, err)
			if rollbackErr := f.DeleteFile(); rollbackErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to release restored blocks: %w", rollbackErr))
			}
			return nil, err
		}
	}
	return f, nil
}

// Encode serializes img with the given codec
func Encode(img *Image, codec Codec) ([]byte, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}

	payload, err := shared.compress(marshalImage(img), codec)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(blob[0:4], Magic)
	blob[4] = CurrentVersion
	blob[5] = byte(codec)
	return append(blob, payload...), nil
}

// Decode parses a blob produced by Encode
func Decode(blob []byte) (*Image, error) {
	if len(blob) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptSnapshot, len(blob))
	}
	if magic := binary.LittleEndian.Uint32(blob[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %x", ErrCorruptSnapshot, magic)
	}
	if version := blob[4]; version != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}

	codec := Codec(blob[5])
	payload, err := shared.decompress(blob[HeaderSize:], codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	img, err := unmarshalImage(payload)
	if err != nil {
		return nil, err
	}
	if err := img.validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// validate checks the image against the invariants of a file
func (img *Image) validate() error {
	if err := disk.ValidateName(img.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if img.Capacity < 0 || img.Capacity > disk.MaxFileCapacity {
		return fmt.Errorf("%w: capacity %d outside [0, %d]",
			ErrCorruptSnapshot, img.Capacity, disk.MaxFileCapacity)
	}
	if len(img.Entries) > img.Capacity {
		return fmt.Errorf("%w: %d entries exceed capacity %d",
			ErrCorruptSnapshot, len(img.Entries), img.Capacity)
	}

	used := make(map[int]bool, len(img.Entries))
	for _, e := range img.Entries {
		if e.Position < 0 || e.Position >= img.Capacity {
			return fmt.Errorf("%w: position %d outside capacity %d",
				ErrCorruptSnapshot, e.Position, img.Capacity)
		}
		if used[e.Position] {
			return fmt.Errorf("%w: position %d appears twice", ErrCorruptSnapshot, e.Position)
		}
		used[e.Position] = true
		if err := e.Record.Validate(); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrCorruptSnapshot, e.Record.ID, err)
		}
	}
	return nil
}
