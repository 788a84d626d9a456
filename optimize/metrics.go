package optimize

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/wudi/pdfslim/optimize"

type instruments struct {
	runs       metric.Int64Counter
	streams    metric.Int64Counter
	savedBytes metric.Int64Counter
}

func newInstruments(m metric.Meter) (*instruments, error) {
	if m == nil {
		m = otel.Meter(scopeName)
	}
	runs, err := m.Int64Counter("pdfslim.runs",
		metric.WithDescription("Completed compression runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	streams, err := m.Int64Counter("pdfslim.streams",
		metric.WithDescription("Streams visited by a compression stage"),
		metric.WithUnit("{stream}"))
	if err != nil {
		return nil, err
	}
	saved, err := m.Int64Counter("pdfslim.saved",
		metric.WithDescription("Stream payload bytes removed by replaced streams"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	return &instruments{runs: runs, streams: streams, savedBytes: saved}, nil
}

func (i *instruments) record(ctx context.Context, res *Result) {
	if i == nil {
		return
	}
	i.runs.Add(ctx, 1, metric.WithAttributes(attribute.Bool("effective", res.Effective())))
	for _, s := range res.Report.Streams {
		i.streams.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", string(s.Stage)),
			attribute.String("outcome", s.Outcome.String()),
		))
	}
	if saved := res.Report.StreamBytesSaved(); saved > 0 {
		i.savedBytes.Add(ctx, saved)
	}
}
