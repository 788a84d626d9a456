package parser

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/recovery"
)

// FuzzDocumentParser checks that every successfully parsed document has a
// resolvable catalog and no layout streams left in the arena.
func FuzzDocumentParser(f *testing.F) {
	f.Add(buildClassicPDF())
	f.Add(buildIncrementalPDF())
	f.Add(buildObjectStreamPDF())
	f.Add(buildBadOffsetPDF())

	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewDocumentParser(Config{Recovery: recovery.NewLenientStrategy()})
		doc, err := p.Parse(context.Background(), bytes.NewReader(data))
		if err != nil {
			return
		}
		root, _ := doc.Trailer.Lookup("Root")
		if _, ok := doc.Resolve(root).(*raw.DictObj); !ok {
			t.Fatalf("parsed document without a catalog")
		}
		for ref, obj := range doc.Objects {
			st, ok := obj.(*raw.StreamObj)
			if !ok || st.Dict == nil {
				continue
			}
			if isType(st.Dict, "ObjStm") || isType(st.Dict, "XRef") {
				t.Fatalf("layout stream %v left in document", ref)
			}
		}
	})
}
