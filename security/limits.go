package security

import (
	"errors"
	"time"
)

// Limits defines resource boundaries for parsing untrusted PDFs.
// They guard against zip bombs, runaway nesting and oversized payloads.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64 `toml:"max_decompressed_size"`

	// Maximum array/dictionary nesting and indirect reference depth. Default: 100.
	MaxIndirectDepth int `toml:"max_indirect_depth"`

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int `toml:"max_xref_depth"`

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64 `toml:"max_string_length"`

	// Maximum raw stream length (bytes). Default: 50 MB.
	MaxStreamLength int64 `toml:"max_stream_length"`

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration `toml:"max_decode_time"`

	// Maximum total parse time. Default: 5m.
	MaxParseTime time.Duration `toml:"max_parse_time"`
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024, // 100 MB
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxStringLength:     10 * 1024 * 1024, // 10 MB
		MaxStreamLength:     50 * 1024 * 1024, // 50 MB
		MaxDecodeTime:       30 * time.Second,
		MaxParseTime:        5 * time.Minute,
	}
}

// Validate rejects negative limits. Zero disables a limit.
func (l Limits) Validate() error {
	switch {
	case l.MaxDecompressedSize < 0:
		return errors.New("max_decompressed_size must not be negative")
	case l.MaxIndirectDepth < 0:
		return errors.New("max_indirect_depth must not be negative")
	case l.MaxXRefDepth < 0:
		return errors.New("max_xref_depth must not be negative")
	case l.MaxStringLength < 0:
		return errors.New("max_string_length must not be negative")
	case l.MaxStreamLength < 0:
		return errors.New("max_stream_length must not be negative")
	case l.MaxDecodeTime < 0 || l.MaxParseTime < 0:
		return errors.New("time limits must not be negative")
	}
	return nil
}
