package snapshot

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec selects how the snapshot payload is compressed
type Codec uint8

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecZstd
)

// String returns the configuration name of the codec
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a configuration name to a Codec
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CodecNone, nil
	case "snappy":
		return CodecSnappy, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// compressor holds the zstd state shared by all snapshots of the process
type compressor struct {
	once    sync.Once
	err     error
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var shared compressor

func (c *compressor) init() error {
	c.once.Do(func() {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			c.err = fmt.Errorf("failed to create ZSTD encoder: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
		if err != nil {
			enc.Close()
			c.err = fmt.Errorf("failed to create ZSTD decoder: %w", err)
			return
		}
		c.encoder = enc
		c.decoder = dec
	})
	return c.err
}

func (c *compressor) compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		if err := c.init(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.encoder.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

func (c *compressor) decompress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, err
		}
		if n > maxPayloadSize {
			return nil, fmt.Errorf("payload of %d bytes exceeds %d", n, maxPayloadSize)
		}
		return snappy.Decode(nil, data)
	case CodecZstd:
		if err := c.init(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.decoder.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}
