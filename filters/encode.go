package filters

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// ZlibCompressor produces FlateDecode payloads.
type ZlibCompressor struct{}

// Compress deflates data into a zlib container at the given level (0-9).
func (ZlibCompressor) Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}
