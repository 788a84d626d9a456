package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfslim/ir/raw"
)

const maxColumns = 1 << 20

// PredictorParams mirrors the predictor entries of a /DecodeParms dictionary.
type PredictorParams struct {
	Predictor        int
	Colors           int
	BitsPerComponent int
	Columns          int
}

// ParsePredictorParams reads predictor settings, applying the PDF defaults
// for absent entries.
func ParsePredictorParams(params raw.Dictionary) PredictorParams {
	return PredictorParams{
		Predictor:        intParam(params, "Predictor", 1),
		Colors:           intParam(params, "Colors", 1),
		BitsPerComponent: intParam(params, "BitsPerComponent", 8),
		Columns:          intParam(params, "Columns", 1),
	}
}

func (p PredictorParams) Validate() error {
	if p.Predictor == 1 {
		return nil
	}
	if p.Colors < 1 || p.Colors > 256 {
		return fmt.Errorf("Colors out of valid range: %d", p.Colors)
	}
	switch p.BitsPerComponent {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("BitsPerComponent must be 1, 2, 4, 8, or 16, got %d", p.BitsPerComponent)
	}
	if p.Columns < 1 || p.Columns > maxColumns {
		return fmt.Errorf("Columns out of valid range: %d", p.Columns)
	}
	switch p.Predictor {
	case 2, 10, 11, 12, 13, 14, 15:
		return nil
	default:
		return fmt.Errorf("Predictor must be 1, 2, or 10-15, got %d", p.Predictor)
	}
}

func (p PredictorParams) bytesPerPixel() int { return (p.Colors*p.BitsPerComponent + 7) / 8 }
func (p PredictorParams) bytesPerRow() int   { return (p.Colors*p.BitsPerComponent*p.Columns + 7) / 8 }

// ApplyPredictor undoes the predictor named in params. Data without a
// predictor is returned unchanged.
func ApplyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	p := ParsePredictorParams(params)
	if p.Predictor == 1 {
		return data, nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Predictor == 2 {
		return decodeTIFF(data, p)
	}
	return decodePNG(data, p)
}

func decodePNG(data []byte, p PredictorParams) ([]byte, error) {
	rowLen := p.bytesPerRow()
	bpp := p.bytesPerPixel()
	out := make([]byte, 0, len(data)/(rowLen+1)*rowLen+rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for off := 0; off < len(data); off += rowLen + 1 {
		end := off + rowLen + 1
		if end > len(data) {
			end = len(data)
		}
		tag := data[off]
		row := data[off+1 : end]
		n := len(row)
		copy(cur, row)
		for i := n; i < rowLen; i++ {
			cur[i] = 0
		}
		switch tag {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paethPredictor(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("unknown PNG filter type: %d", tag)
		}
		out = append(out, cur[:n]...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func decodeTIFF(data []byte, p PredictorParams) ([]byte, error) {
	rowLen := p.bytesPerRow()
	if len(data)%rowLen != 0 {
		return nil, fmt.Errorf("data length %d not divisible by row size %d", len(data), rowLen)
	}
	out := append([]byte(nil), data...)
	for off := 0; off < len(out); off += rowLen {
		row := out[off : off+rowLen]
		switch p.BitsPerComponent {
		case 8:
			for i := p.Colors; i < rowLen; i++ {
				row[i] += row[i-p.Colors]
			}
		case 16:
			stride := 2 * p.Colors
			for i := stride; i+1 < rowLen; i += 2 {
				v := uint16(row[i])<<8 | uint16(row[i+1])
				left := uint16(row[i-stride])<<8 | uint16(row[i-stride+1])
				v += left
				row[i], row[i+1] = byte(v>>8), byte(v)
			}
		default:
			return nil, errors.New("TIFF predictor supports 8 and 16 bits per component only")
		}
	}
	return out, nil
}

func intParam(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	if d, ok := params.(*raw.DictObj); ok && d == nil {
		return def
	}
	v, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return def
	}
	return int(n.Int())
}
