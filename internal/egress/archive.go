package egress

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// WriteArchive writes the payload as zstd-compressed JSON. The archive is
// the lossless form of a session; the CSV backup is its flattened view.
func WriteArchive(path string, p *Payload) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("initializing archive compressor: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(p); err != nil {
		enc.Close() //nolint:errcheck
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finishing archive %s: %w", path, err)
	}
	return f.Close()
}

// ReadArchive loads a payload previously written by WriteArchive.
func ReadArchive(path string) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("initializing archive decompressor: %w", err)
	}
	defer dec.Close()

	var p Payload
	if err := json.NewDecoder(dec).Decode(&p); err != nil {
		return nil, fmt.Errorf("reading archive %s: %w", path, err)
	}
	return &p, nil
}
