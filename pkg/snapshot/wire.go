package snapshot

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/KevoDB/blockstore/pkg/disk"
)

// Field numbers of the payload message
const (
	fieldName       protowire.Number = 1
	fieldCapacity   protowire.Number = 2
	fieldEntryCount protowire.Number = 3
	fieldEntry      protowire.Number = 4
)

// Field numbers of an entry message
const (
	fieldPosition protowire.Number = 1
	fieldID       protowire.Number = 2
	fieldContent  protowire.Number = 3
)

func marshalImage(img *Image) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, img.Name)
	b = protowire.AppendTag(b, fieldCapacity, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(img.Capacity))
	b = protowire.AppendTag(b, fieldEntryCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(img.Entries)))

	for _, e := range img.Entries {
		var eb []byte
		eb = protowire.AppendTag(eb, fieldPosition, protowire.VarintType)
		eb = protowire.AppendVarint(eb, uint64(e.Position))
		eb = protowire.AppendTag(eb, fieldID, protowire.VarintType)
		eb = protowire.AppendVarint(eb, protowire.EncodeZigZag(e.Record.ID))
		eb = protowire.AppendTag(eb, fieldContent, protowire.BytesType)
		eb = protowire.AppendString(eb, e.Record.Content)

		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b
}

func unmarshalImage(b []byte) (*Image, error) {
	img := &Image{}
	var (
		haveName, haveCapacity, haveCount bool
		declared                          uint64
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, corrupt(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			img.Name = string(v)
			haveName = true
			b = b[n:]

		case num == fieldCapacity && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			if v > disk.MaxFileCapacity {
				return nil, fmt.Errorf("%w: capacity %d is too large", ErrCorruptSnapshot, v)
			}
			img.Capacity = int(v)
			haveCapacity = true
			b = b[n:]

		case num == fieldEntryCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			declared = v
			haveCount = true
			b = b[n:]

		case num == fieldEntry && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			e, err := unmarshalEntry(v)
			if err != nil {
				return nil, err
			}
			img.Entries = append(img.Entries, e)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, corrupt(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch {
	case !haveName || !haveCapacity || !haveCount:
		return nil, fmt.Errorf("%w: missing header fields", ErrCorruptSnapshot)
	case declared != uint64(len(img.Entries)):
		return nil, fmt.Errorf("%w: header declares %d entries, found %d",
			ErrCorruptSnapshot, declared, len(img.Entries))
	}
	return img, nil
}

func unmarshalEntry(b []byte) (Entry, error) {
	var (
		e              Entry
		havePos, hasID bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, corrupt(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldPosition && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, corrupt(protowire.ParseError(n))
			}
			if v > disk.MaxFileCapacity {
				return Entry{}, fmt.Errorf("%w: position %d is too large", ErrCorruptSnapshot, v)
			}
			e.Position = int(v)
			havePos = true
			b = b[n:]

		case num == fieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, corrupt(protowire.ParseError(n))
			}
			e.Record.ID = protowire.DecodeZigZag(v)
			hasID = true
			b = b[n:]

		case num == fieldContent && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, corrupt(protowire.ParseError(n))
			}
			if len(v) > disk.MaxContentSize {
				return Entry{}, fmt.Errorf("%w: content of %d bytes", ErrCorruptSnapshot, len(v))
			}
			e.Record.Content = string(v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Entry{}, corrupt(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !havePos || !hasID {
		return Entry{}, fmt.Errorf("%w: entry without position or id", ErrCorruptSnapshot)
	}
	return e, nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
}
