package writer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfslim/ir/raw"
)

// trailerKeys are carried over from the source trailer. Layout keys such as
// /Prev and /XRefStm describe the old file and are dropped.
var trailerKeys = []string{"Root", "Info", "ID"}

type impl struct {
	cfg          Config
	interceptors []Interceptor
}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	if obj == nil {
		return nil, fmt.Errorf("object %v is nil", ref)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d obj\n", ref.Num, ref.Gen)
	b.Write(serializePrimitive(obj))
	b.WriteString("\nendobj\n")
	return b.Bytes(), nil
}

// Write performs a full rewrite: header, every object in ascending number
// order, a classic xref table and the trailer.
func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if doc.Trailer == nil {
		return errors.New("document has no trailer")
	}
	if _, ok := doc.Trailer.Lookup("Root"); !ok {
		return errors.New("trailer /Root missing")
	}

	bw := bufio.NewWriter(out)
	cw := &countingWriter{w: bw}

	fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", w.version(doc))

	refs := latestGenerations(doc)
	offsets := make(map[int]int64, len(refs))
	gens := make(map[int]int, len(refs))
	maxNum := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj := doc.Objects[ref]
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		data, err := w.SerializeObject(ref, obj)
		if err != nil {
			return err
		}
		offsets[ref.Num] = cw.n
		gens[ref.Num] = ref.Gen
		if _, err := cw.Write(data); err != nil {
			return err
		}
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, obj, int64(len(data))); err != nil {
				return err
			}
		}
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}

	xrefOffset := cw.n
	size := maxNum + 1
	fmt.Fprintf(cw, "xref\n0 %d\n", size)
	cw.Write([]byte("0000000000 65535 f \n"))
	for num := 1; num < size; num++ {
		if off, ok := offsets[num]; ok {
			fmt.Fprintf(cw, "%010d %05d n \n", off, gens[num])
		} else {
			cw.Write([]byte("0000000000 65535 f \n"))
		}
	}

	trailer := raw.Dict()
	for _, k := range trailerKeys {
		if v, ok := doc.Trailer.Lookup(k); ok {
			trailer.Set(raw.NameLiteral(k), v)
		}
	}
	trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(size)))
	cw.Write([]byte("trailer\n"))
	cw.Write(serializePrimitive(trailer))
	fmt.Fprintf(cw, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)

	if cw.err != nil {
		return cw.err
	}
	return bw.Flush()
}

func (w *impl) version(doc *raw.Document) PDFVersion {
	if w.cfg.Version != "" {
		return w.cfg.Version
	}
	if doc.Version != "" {
		return PDFVersion(doc.Version)
	}
	return PDF17
}

// latestGenerations keeps one ref per object number, the highest generation.
func latestGenerations(doc *raw.Document) []raw.ObjectRef {
	byNum := make(map[int]raw.ObjectRef, len(doc.Objects))
	for ref, obj := range doc.Objects {
		if obj == nil || ref.Num <= 0 {
			continue
		}
		if cur, ok := byNum[ref.Num]; !ok || ref.Gen > cur.Gen {
			byNum[ref.Num] = ref
		}
	}
	refs := make([]raw.ObjectRef, 0, len(byNum))
	for _, ref := range byNum {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	return refs
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
