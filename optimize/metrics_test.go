package optimize

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/wudi/pdfslim/ir/raw"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRunRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	input := buildPDF(t, map[int]raw.Object{
		3: stream([]byte(strings.Repeat("0 0 m 100 100 l S\n", 50))),
		4: stream([]byte("junk"), "Subtype", "Image", "Filter", "DCTDecode"),
	}, nil)
	res, err := New(Config{}, WithMeter(mp.Meter("test"))).Run(context.Background(), input)
	require.NoError(t, err)
	require.True(t, res.Effective())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), sumOf(t, rm, "pdfslim.runs"))
	assert.Equal(t, int64(2), sumOf(t, rm, "pdfslim.streams"))

	r := resultFor(t, res.Report, 3)
	require.Equal(t, OutcomeReplaced, r.Outcome)
	assert.Equal(t, int64(r.OriginalSize-r.NewSize), res.Report.StreamBytesSaved())
	assert.Equal(t, res.Report.StreamBytesSaved(), sumOf(t, rm, "pdfslim.saved"))
}

func TestRunRecordsNoSavingsWhenNothingReplaced(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	// Info stripping shrinks the file, but no stream payload changes.
	info := raw.Dict()
	info.Set(raw.NameLiteral("Producer"), raw.Str([]byte(strings.Repeat("producer ", 40))))
	input := buildPDF(t, map[int]raw.Object{
		3: stream([]byte("junk"), "Subtype", "Image", "Filter", "DCTDecode"),
	}, info)
	res, err := New(Config{}, WithMeter(mp.Meter("test"))).Run(context.Background(), input)
	require.NoError(t, err)
	require.True(t, res.Effective())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Zero(t, res.Report.StreamBytesSaved())
	assert.Zero(t, sumOf(t, rm, "pdfslim.saved"))
}
