// Package archive wraps finished pack artifacts for cold-tier placement.
// Packs headed for cold storage are xz-compressed; reads detect the xz
// magic and unwrap transparently, so callers can hand either form around.
package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Wrap compresses a pack artifact for cold storage.
func Wrap(pack []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(pack); err != nil {
		return nil, fmt.Errorf("xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close xz stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Unwrap returns the raw pack bytes. Input without the xz magic is
// returned as-is.
func Unwrap(data []byte) ([]byte, error) {
	if !IsWrapped(data) {
		return data, nil
	}
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xz decompress: %w", err)
	}
	return out, nil
}

// IsWrapped reports whether data carries the xz container magic.
func IsWrapped(data []byte) bool {
	return len(data) >= len(xzMagic) && bytes.Equal(data[:len(xzMagic)], xzMagic)
}
