package filters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfslim/ir/raw"
)

func predictorDict(predictor, colors, bpc, columns int) *raw.DictObj {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Predictor"), raw.NumberInt(int64(predictor)))
	d.Set(raw.NameLiteral("Colors"), raw.NumberInt(int64(colors)))
	d.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(int64(bpc)))
	d.Set(raw.NameLiteral("Columns"), raw.NumberInt(int64(columns)))
	return d
}

func TestApplyPNGPredictor(t *testing.T) {
	tests := []struct {
		name     string
		columns  int
		input    []byte // includes filter byte per row
		expected []byte
	}{
		{
			name:     "None filter",
			columns:  3,
			input:    []byte{0, 1, 2, 3},
			expected: []byte{1, 2, 3},
		},
		{
			name:     "Sub filter multiple rows",
			columns:  3,
			input:    []byte{1, 1, 1, 1, 1, 2, 2, 2},
			expected: []byte{1, 2, 3, 2, 4, 6},
		},
		{
			name:     "Up filter",
			columns:  3,
			input:    []byte{0, 10, 20, 30, 2, 5, 5, 5},
			expected: []byte{10, 20, 30, 15, 25, 35},
		},
		{
			name:     "Average filter",
			columns:  3,
			input:    []byte{0, 10, 20, 30, 3, 0, 0, 0},
			expected: []byte{10, 20, 30, 5, 12, 21},
		},
		{
			// Row2 first byte: left=0, up=10, upLeft=0 -> paeth picks up (10).
			name:     "Paeth filter",
			columns:  3,
			input:    []byte{0, 10, 20, 30, 4, 1, 1, 1},
			expected: []byte{10, 20, 30, 11, 21, 31},
		},
		{
			name:     "Short trailing row",
			columns:  3,
			input:    []byte{0, 1, 2, 3, 2, 1},
			expected: []byte{1, 2, 3, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ApplyPredictor(tt.input, predictorDict(15, 1, 8, tt.columns))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestApplyPNGPredictorMultiByte(t *testing.T) {
	// RGB, 2 columns: Sub uses the byte three positions back.
	in := []byte{1, 10, 20, 30, 1, 1, 1}
	out, err := ApplyPredictor(in, predictorDict(11, 3, 8, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 20, 30, 11, 21, 31}, out)
}

func TestApplyPNGPredictorInvalidFilter(t *testing.T) {
	_, err := ApplyPredictor([]byte{5, 1, 2, 3}, predictorDict(12, 1, 8, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown PNG filter type: 5")
}

func TestApplyTIFFPredictor(t *testing.T) {
	out, err := ApplyPredictor([]byte{10, 1, 1, 5, 5, 5}, predictorDict(2, 1, 8, 3))
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 11, 12, 5, 10, 15}, out)

	_, err = ApplyPredictor([]byte{1, 2, 3, 4}, predictorDict(2, 1, 8, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not divisible by row size")
}

func TestPredictorParamsValidate(t *testing.T) {
	assert.NoError(t, PredictorParams{Predictor: 1}.Validate())
	assert.Error(t, PredictorParams{Predictor: 12, Colors: 0, BitsPerComponent: 8, Columns: 1}.Validate())
	assert.Error(t, PredictorParams{Predictor: 12, Colors: 1, BitsPerComponent: 3, Columns: 1}.Validate())

	err := PredictorParams{Predictor: 12, Colors: 1, BitsPerComponent: 8, Columns: maxColumns + 1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of valid range")

	assert.Error(t, PredictorParams{Predictor: 7, Colors: 1, BitsPerComponent: 8, Columns: 1}.Validate())
}

func TestApplyPredictorDefaults(t *testing.T) {
	var nilDict *raw.DictObj
	out, err := ApplyPredictor([]byte{1, 2, 3}, nilDict)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, out)

	p := ParsePredictorParams(raw.Dict())
	assert.Equal(t, PredictorParams{Predictor: 1, Colors: 1, BitsPerComponent: 8, Columns: 1}, p)
}
