package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wudi/pdfslim/ir/raw"
)

func TestFlateDecode(t *testing.T) {
	comp, err := ZlibCompressor{}.Compress([]byte("hello world"), 9)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	out, err := NewFlateDecoder().Decode(context.Background(), comp, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncated(t *testing.T) {
	comp, _ := ZlibCompressor{}.Compress(bytes.Repeat([]byte("abcdefgh"), 4096), 9)
	out, err := NewFlateDecoder().Decode(context.Background(), comp[:len(comp)-6], nil)
	if err != nil && len(out) == 0 {
		return
	}
	if !bytes.HasPrefix(bytes.Repeat([]byte("abcdefgh"), 4096), out) {
		t.Fatalf("truncated decode should yield a prefix of the input")
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp, _ := ZlibCompressor{}.Compress([]byte{1, 10, 12, 20}, 6)

	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(12))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(1))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(3))

	out, err := NewFlateDecoder().Decode(context.Background(), comp, params)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	input := []byte("hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68656c6c6f 20776f726c6>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello worl`" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChain(t *testing.T) {
	comp, _ := ZlibCompressor{}.Compress([]byte("chained"), 9)
	hexed := strings.ToUpper(hex.EncodeToString(comp)) + ">"

	p := NewDefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), []byte(hexed), []string{"ASCIIHexDecode", "FlateDecode"}, []raw.Dictionary{nil, nil})
	if err != nil {
		t.Fatalf("pipeline decode error: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineLimits(t *testing.T) {
	comp, _ := ZlibCompressor{}.Compress(bytes.Repeat([]byte{0}, 1<<16), 9)
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 1024})
	_, err := p.Decode(context.Background(), comp, []string{"FlateDecode"}, nil)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestPipelineDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewDefaultPipeline(Limits{MaxDecodeTime: time.Second})
	if _, err := p.Decode(ctx, []byte("00>"), []string{"ASCIIHexDecode"}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestUnsupportedFilters(t *testing.T) {
	fp := NewDefaultPipeline(Limits{})
	_, err := fp.Decode(context.Background(), []byte{0x00}, []string{"JPXDecode"}, nil)
	var ue UnsupportedError
	if err == nil || !errors.As(err, &ue) || ue.Filter != "JPXDecode" {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	d := raw.Dict()
	if names, params := ExtractFilters(d); names != nil || params != nil {
		t.Fatalf("expected no filters for bare dict")
	}

	dp := raw.Dict()
	dp.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	d.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	d.Set(raw.NameLiteral("DecodeParms"), raw.NewArray(raw.NullObj{}, dp))
	names, params := ExtractFilters(d)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] != dp {
		t.Fatalf("params not aligned with names: %v", params)
	}
}
