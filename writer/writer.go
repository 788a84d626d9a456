package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfslim/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

// Config controls serialization. The zero value keeps the document's own
// header version, falling back to PDF17.
type Config struct {
	Version PDFVersion
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

// Interceptor observes each indirect object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object, bytesWritten int64) error
}

type WriterBuilder struct {
	cfg          Config
	interceptors []Interceptor
}

func (b *WriterBuilder) WithConfig(cfg Config) *WriterBuilder {
	b.cfg = cfg
	return b
}

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() Writer { return &impl{cfg: b.cfg, interceptors: b.interceptors} }

// NewWriter returns a writer without interceptors.
func NewWriter(cfg Config) Writer { return (&WriterBuilder{}).WithConfig(cfg).Build() }
