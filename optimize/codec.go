package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync"

	// Formats sniffed by image.Decode.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pdfslim/filters"
)

// ImageCodec decodes stored image payloads and encodes replacement candidates.
type ImageCodec interface {
	// Decode sniffs the format from content and returns its name.
	Decode(data []byte) (image.Image, string, error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
	EncodePNG(img image.Image) ([]byte, error)
}

// ByteCompressor produces zlib (FlateDecode) payloads.
type ByteCompressor interface {
	Compress(data []byte, level int) ([]byte, error)
}

// StdImageCodec is backed by the image package and golang.org/x/image.
type StdImageCodec struct {
	pool pngBufferPool
}

func NewStdImageCodec() *StdImageCodec { return &StdImageCodec{} }

func (c *StdImageCodec) Decode(data []byte) (image.Image, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if err := filters.ValidateImageBounds(cfg.Width, cfg.Height); err != nil {
		return nil, format, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, err
	}
	return img, format, nil
}

func (c *StdImageCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *StdImageCodec) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression, BufferPool: &c.pool}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

type pngBufferPool struct {
	p sync.Pool
}

func (p *pngBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.p.Get().(*png.EncoderBuffer)
	return b
}

func (p *pngBufferPool) Put(b *png.EncoderBuffer) { p.p.Put(b) }
