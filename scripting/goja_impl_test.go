package scripting

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/wudi/pdfslim/optimize"
)

type stubCompressor struct {
	got []byte
	out []byte
	err error
}

func (s *stubCompressor) Compress(_ context.Context, input []byte) ([]byte, error) {
	s.got = append([]byte(nil), input...)
	return s.out, s.err
}

func TestGojaEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine(&stubCompressor{})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if _, err := engine.Execute(ctx, "while (true) {}"); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	if _, err := engine.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine should recover after cancellation, got %v", err)
	}
}

func TestGojaEngine_ImmediateCancel(t *testing.T) {
	engine := NewEngine(&stubCompressor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Execute(ctx, "42"); err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func TestPdfCompressor_CompressUint8Array(t *testing.T) {
	stub := &stubCompressor{out: []byte("%PDF-small")}
	engine := NewEngine(stub)
	if err := engine.SetBytes("input", []byte("%PDF-original")); err != nil {
		t.Fatalf("set bytes: %v", err)
	}

	val, err := engine.Execute(context.Background(), "new PdfCompressor().compress(new Uint8Array(input))")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	buf, ok := val.(goja.ArrayBuffer)
	if !ok {
		t.Fatalf("expected ArrayBuffer, got %T", val)
	}
	if !bytes.Equal(buf.Bytes(), []byte("%PDF-small")) {
		t.Fatalf("unexpected output %q", buf.Bytes())
	}
	if !bytes.Equal(stub.got, []byte("%PDF-original")) {
		t.Fatalf("compressor saw %q", stub.got)
	}
}

func TestPdfCompressor_CompressSubarrayView(t *testing.T) {
	stub := &stubCompressor{out: []byte("x")}
	engine := NewEngine(stub)
	if err := engine.SetBytes("input", []byte("..%PDF..")); err != nil {
		t.Fatalf("set bytes: %v", err)
	}
	if _, err := engine.Execute(context.Background(), "new PdfCompressor().compress(new Uint8Array(input).subarray(2, 6))"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(stub.got) != "%PDF" {
		t.Fatalf("expected view bytes, got %q", stub.got)
	}
}

func TestPdfCompressor_CompressArrayBuffer(t *testing.T) {
	stub := &stubCompressor{out: []byte("ok")}
	engine := NewEngine(stub)
	if err := engine.SetBytes("input", []byte("abc")); err != nil {
		t.Fatalf("set bytes: %v", err)
	}
	val, err := engine.Execute(context.Background(), "new PdfCompressor().compress(input).byteLength")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n, ok := val.(int64); !ok || n != 2 {
		t.Fatalf("expected byteLength 2, got %#v", val)
	}
}

func TestPdfCompressor_ErrorsBecomeJSErrors(t *testing.T) {
	engine := NewEngine(&stubCompressor{err: errors.New("failed to load PDF: trailer /Root missing")})
	if err := engine.SetBytes("input", []byte("junk")); err != nil {
		t.Fatalf("set bytes: %v", err)
	}

	script := `
		var msg = "";
		try {
			new PdfCompressor().compress(new Uint8Array(input));
		} catch (e) {
			msg = e.message;
		}
		msg`
	val, err := engine.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if val != "failed to load PDF: trailer /Root missing" {
		t.Fatalf("unexpected message %#v", val)
	}

	if _, err := engine.Execute(context.Background(), "new PdfCompressor().compress(42)"); err == nil {
		t.Fatalf("expected type error for numeric argument")
	}
}

func TestPdfCompressor_WithOptimizer(t *testing.T) {
	engine := NewEngine(optimize.New(optimize.Config{}))
	if err := engine.SetBytes("input", []byte("not a pdf")); err != nil {
		t.Fatalf("set bytes: %v", err)
	}
	script := `
		var msg = "";
		try {
			new PdfCompressor().compress(new Uint8Array(input));
		} catch (e) {
			msg = e.message;
		}
		msg`
	val, err := engine.Execute(context.Background(), script)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	msg, _ := val.(string)
	if !strings.HasPrefix(msg, "failed to load PDF") {
		t.Fatalf("unexpected message %q", msg)
	}
}
