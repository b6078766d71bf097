package pack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compressor is the injected DEFLATE primitive used for entry payloads.
// The pack format requires the zlib framing (2-byte header, Adler-32
// trailer); beyond that the engine is agnostic to the implementation.
type Compressor interface {
	Deflate(data []byte) ([]byte, error)
	Inflate(data []byte) ([]byte, error)

	// InflateFrom decompresses one zlib stream from the front of data and
	// also reports how many compressed bytes it consumed, which the parser
	// needs to find the next entry boundary.
	InflateFrom(data []byte) (out []byte, consumed int, err error)
}

// ZlibCompressor is the default Compressor.
type ZlibCompressor struct {
	// Level follows zlib conventions; zero value means zlib.DefaultCompression
	// via NewZlibCompressor.
	Level int
}

// NewZlibCompressor returns a Compressor at the default compression level.
func NewZlibCompressor() *ZlibCompressor {
	return &ZlibCompressor{Level: zlib.DefaultCompression}
}

// Deflate compresses data into a single zlib stream.
func (c *ZlibCompressor) Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close deflate stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Inflate decompresses a complete zlib stream.
func (c *ZlibCompressor) Inflate(data []byte) ([]byte, error) {
	out, _, err := c.InflateFrom(data)
	return out, err
}

// InflateFrom decompresses the zlib stream at the front of data.
func (c *ZlibCompressor) InflateFrom(data []byte) ([]byte, int, error) {
	r := bytes.NewReader(data)
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("zlib reader: %w", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, 0, fmt.Errorf("inflate: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, 0, fmt.Errorf("close inflate stream: %w", err)
	}
	return out, len(data) - r.Len(), nil
}
