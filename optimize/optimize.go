// Package optimize shrinks PDF documents: it recompresses image streams,
// deflates unfiltered streams and clears the document information dictionary.
package optimize

import (
	"bytes"
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/wudi/pdfslim/filters"
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
	"github.com/wudi/pdfslim/parser"
	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/security"
	"github.com/wudi/pdfslim/writer"
)

const (
	// JPEGQuality is used when re-encoding DCTDecode images.
	JPEGQuality = 70
	// DeflateLevel is used for unfiltered streams.
	DeflateLevel = 9
)

type Config struct {
	Limits security.Limits
	// Recovery handles malformed input while loading. Nil selects a fresh
	// lenient strategy per run that reports through the logger.
	Recovery recovery.Strategy
	Writer   writer.Config
}

type Option func(*Optimizer)

func WithLogger(l observability.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(o *Optimizer) {
		if t != nil {
			o.tracer = t
		}
	}
}

func WithImageCodec(c ImageCodec) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.codec = c
		}
	}
}

func WithCompressor(c ByteCompressor) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.compressor = c
		}
	}
}

// WithMeter records run and stream counters on m instead of the global
// meter provider.
func WithMeter(m metric.Meter) Option {
	return func(o *Optimizer) { o.meter = m }
}

// Optimizer holds configuration and codecs only; it can be reused for
// sequential calls.
type Optimizer struct {
	cfg        Config
	logger     observability.Logger
	tracer     observability.Tracer
	codec      ImageCodec
	compressor ByteCompressor
	meter      metric.Meter
	inst       *instruments
}

func New(cfg Config, opts ...Option) *Optimizer {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	o := &Optimizer{
		cfg:        cfg,
		logger:     observability.NopLogger{},
		tracer:     observability.NopTracer(),
		codec:      NewStdImageCodec(),
		compressor: filters.ZlibCompressor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	inst, err := newInstruments(o.meter)
	if err != nil {
		o.logger.Warn("metrics disabled", observability.Error("error", err))
	}
	o.inst = inst
	return o
}

// Compress runs the pipeline and returns the serialized output. The output
// is returned even when it is not smaller than input.
func (o *Optimizer) Compress(ctx context.Context, input []byte) ([]byte, error) {
	res, err := o.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Run is Compress with the per-stream report.
func (o *Optimizer) Run(ctx context.Context, input []byte) (res *Result, err error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanCompress)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	span.SetTag(observability.TagInputBytes, len(input))

	var doc *raw.Document
	err = o.traced(ctx, observability.SpanParse, func(ctx context.Context) error {
		var lerr error
		doc, lerr = o.load(ctx, input)
		return lerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindLoad, Err: err}
	}
	span.SetTag(observability.TagObjectCount, len(doc.Objects))
	o.logger.Info("PDF loaded successfully",
		observability.Int("objects", len(doc.Objects)),
		observability.String("version", doc.Version),
	)

	rep := Report{InputSize: len(input)}
	if err := o.traced(ctx, observability.SpanImageStage, func(ctx context.Context) error {
		return o.compressImages(ctx, doc, &rep)
	}); err != nil {
		return nil, fmt.Errorf("failed to compress images: %w", err)
	}
	if err := o.traced(ctx, observability.SpanStreamStage, func(ctx context.Context) error {
		return o.compressStreams(ctx, doc, &rep)
	}); err != nil {
		return nil, fmt.Errorf("failed to compress text streams: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep.MetadataStripped = o.removeMetadata(doc)

	var buf bytes.Buffer
	stats := &writeStats{}
	w := (&writer.WriterBuilder{}).WithConfig(o.cfg.Writer).WithInterceptor(stats).Build()
	if err := o.traced(ctx, observability.SpanWrite, func(ctx context.Context) error {
		return w.Write(ctx, doc, &buf)
	}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindSave, Err: err}
	}
	rep.OutputSize = buf.Len()
	rep.ObjectsWritten = stats.objects
	rep.StreamObjectBytes = stats.streamBytes
	o.logger.Debug("document serialized",
		observability.Int("objects", stats.objects),
		observability.Int64("object_bytes", stats.bytes),
		observability.Int64("stream_object_bytes", stats.streamBytes),
	)
	res = &Result{Input: input, Output: buf.Bytes(), Report: rep}

	if res.Effective() {
		o.logger.Info("PDF compressed successfully",
			observability.Int("input", rep.InputSize),
			observability.Int("output", rep.OutputSize),
		)
	} else {
		o.logger.Warn("compression was ineffective",
			observability.Int("input", rep.InputSize),
			observability.Int("output", rep.OutputSize),
		)
	}
	span.SetTag(observability.TagOutputBytes, rep.OutputSize)
	span.SetTag(observability.TagReplacedCount, rep.Replaced(""))
	o.inst.record(ctx, res)
	return res, nil
}

func (o *Optimizer) traced(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := o.tracer.StartSpan(ctx, name)
	defer span.Finish()
	if err := fn(ctx); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func (o *Optimizer) load(ctx context.Context, input []byte) (*raw.Document, error) {
	rec := o.cfg.Recovery
	if rec == nil {
		rec = recovery.NewLenientStrategy().WithLogger(o.logger)
	}
	p := parser.NewDocumentParser(parser.Config{
		Recovery: rec,
		Limits:   o.cfg.Limits,
		Logger:   o.logger,
	})
	return p.Parse(ctx, bytes.NewReader(input))
}
