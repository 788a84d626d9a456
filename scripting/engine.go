package scripting

import (
	"context"
)

// Engine runs scripts against a PDF compressor.
type Engine interface {
	// Execute runs a script and exports its completion value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// SetBytes exposes data to scripts as an ArrayBuffer global.
	SetBytes(name string, data []byte) error
}

// Compressor is the operation exposed to scripts as PdfCompressor.compress.
// *optimize.Optimizer satisfies it.
type Compressor interface {
	Compress(ctx context.Context, input []byte) ([]byte, error)
}
