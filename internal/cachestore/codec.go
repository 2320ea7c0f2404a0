package cachestore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// blobMagic prefixes every encoded blob. Bumping the version invalidates
// blobs written by older layouts.
var blobMagic = []byte("GAIA\x00\x01")

// The encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode serializes v with gob and compresses it with zstd.
func Encode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode blob: %w", err)
	}

	out := make([]byte, 0, len(blobMagic)+buf.Len()/2)
	out = append(out, blobMagic...)
	return zstdEncoder.EncodeAll(buf.Bytes(), out), nil
}

// Decode reverses Encode. Any failure is reported as ErrCorrupted.
func Decode[T any](data []byte) (T, error) {
	var v T

	if !bytes.HasPrefix(data, blobMagic) {
		return v, fmt.Errorf("%w: bad header", ErrCorrupted)
	}

	raw, err := zstdDecoder.DecodeAll(data[len(blobMagic):], nil)
	if err != nil {
		return v, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	if err = gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	return v, nil
}
