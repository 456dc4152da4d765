package cache

import (
	"bytes"
	stderr "errors"
	"fmt"
	"reflect"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how disk envelopes are stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// errTypeMismatch marks a stored value whose type differs from the one
// requested. It is a miss, not a failure.
var errTypeMismatch = stderr.New("stored value has a different type")

// envelope is the on-disk representation of one entry.
type envelope struct {
	Key       string          `json:"key"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// codec serializes envelopes, optionally through zstd.
type codec struct {
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

func newCodec(compression Compression, level int) (*codec, error) {
	c := &codec{compression: compression}
	if compression == "" {
		c.compression = CompressionNone
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.decoder = dec

	if c.compression == CompressionZstd {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			dec.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

func (c *codec) close() {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// encode wraps value in an envelope tagged with its dynamic type.
func (c *codec) encode(key string, value any, createdAt time.Time) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}

	data, err := json.Marshal(envelope{
		Key:       key,
		Type:      typeTag(value),
		CreatedAt: createdAt,
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	if c.encoder != nil {
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	}
	return data, nil
}

// decode reads an envelope written with or without compression.
func (c *codec) decode(data []byte) (*envelope, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress envelope: %w", err)
		}
		data = raw
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

func typeTag(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// valueCodec converts what a tier holds into the caller's requested type.
type valueCodec struct {
	fromMemory func(v any) (any, bool)
	fromDisk   func(env *envelope) (any, error)
	fromRemote func(raw []byte) (any, error)
}

// untyped returns stored values as they are. Disk payloads decode to the
// generic JSON shapes and remote payloads are returned as raw bytes.
var untyped = valueCodec{
	fromMemory: func(v any) (any, bool) { return v, true },
	fromDisk: func(env *envelope) (any, error) {
		var out any
		if err := json.Unmarshal(env.Payload, &out); err != nil {
			return nil, err
		}
		return out, nil
	},
	fromRemote: func(raw []byte) (any, error) { return raw, nil },
}

// typed returns a codec that only accepts values of type T.
func typed[T any]() valueCodec {
	rt := reflect.TypeFor[T]()
	tag := rt.String()
	isInterface := rt.Kind() == reflect.Interface

	return valueCodec{
		fromMemory: func(v any) (any, bool) {
			t, ok := v.(T)
			return t, ok
		},
		fromDisk: func(env *envelope) (any, error) {
			if !isInterface && env.Type != tag {
				return nil, errTypeMismatch
			}
			var out T
			if err := json.Unmarshal(env.Payload, &out); err != nil {
				if isInterface {
					return nil, errTypeMismatch
				}
				return nil, err
			}
			return out, nil
		},
		fromRemote: func(raw []byte) (any, error) {
			var out T
			switch p := any(&out).(type) {
			case *[]byte:
				*p = raw
			case *string:
				*p = string(raw)
			default:
				if err := json.Unmarshal(raw, &out); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	}
}
