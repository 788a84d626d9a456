package recovery_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfslim/parser"
	"github.com/wudi/pdfslim/recovery"
)

func TestRecoveryStrategies(t *testing.T) {
	// A broken PDF where object 1 is missing ">>".
	// Offsets are adjusted to be correct so XRef resolution succeeds,
	// and the parser hits the error when loading object 1.
	brokenPDFData := []byte(`%PDF-1.7
1 0 obj
<< /Type /Catalog /Pages 2 0 R
endobj
2 0 obj
<< /Type /Pages /Kids [3 0 R] /Count 1 >>
endobj
3 0 obj
<< /Type /Page /MediaBox [0 0 612 792] /Parent 2 0 R /Resources << >> /Contents 4 0 R >>
endobj
4 0 obj
<< /Length 5 >>
stream
BT /F1 12 Tf (Hello) Tj ET
endstream
endobj
xref
0 5
0000000000 65535 f 
0000000009 00000 n 
0000000055 00000 n 
0000000112 00000 n 
0000000215 00000 n 
trailer
<< /Size 5 /Root 1 0 R >>
startxref
290
%%EOF`)

	t.Run("StrictStrategy", func(t *testing.T) {
		cfg := parser.Config{
			Recovery: recovery.NewStrictStrategy(),
		}
		_, err := parser.NewDocumentParser(cfg).Parse(context.Background(), bytes.NewReader(brokenPDFData))
		if err == nil {
			t.Fatal("Expected error with StrictStrategy, got nil")
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		cfg := parser.Config{
			Recovery: rec,
		}
		doc, err := parser.NewDocumentParser(cfg).Parse(context.Background(), bytes.NewReader(brokenPDFData))
		if err != nil {
			t.Fatalf("Expected success with LenientStrategy, got error: %v", err)
		}
		if doc == nil {
			t.Fatal("Expected document to be returned")
		}

		if len(rec.Errors) == 0 {
			t.Fatal("Expected LenientStrategy to record the unterminated dictionary")
		}
		if _, ok := doc.Trailer.Lookup("Root"); !ok {
			t.Fatal("Expected trailer root to survive recovery")
		}
	})
}

func TestStrictStrategyAlwaysFails(t *testing.T) {
	s := recovery.NewStrictStrategy()
	if got := s.OnError(context.Background(), errors.New("boom"), recovery.Location{Component: "scanner"}); got != recovery.ActionFail {
		t.Fatalf("expected ActionFail, got %v", got)
	}
}

func TestLenientStrategyRecordsErrors(t *testing.T) {
	s := recovery.NewLenientStrategy().WithLogger(nil)
	cause := errors.New("unterminated dictionary")
	got := s.OnError(context.Background(), cause, recovery.Location{ByteOffset: 42, ObjectNum: 7, Component: "parser"})
	if got != recovery.ActionFix {
		t.Fatalf("expected ActionFix, got %v", got)
	}
	if len(s.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %d", len(s.Errors))
	}
	if !errors.Is(s.Errors[0], cause) {
		t.Fatalf("recorded error does not wrap cause: %v", s.Errors[0])
	}
	if want := "[parser] offset 42: unterminated dictionary"; s.Errors[0].Error() != want {
		t.Fatalf("unexpected message %q", s.Errors[0].Error())
	}
}
