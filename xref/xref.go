package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfslim/filters"
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/scanner"
)

// Table maps object numbers to their location in the file.
type Table interface {
	// Lookup returns the byte offset of an uncompressed object.
	Lookup(objNum int) (offset int64, gen int, found bool)
	// ObjStream returns the object stream holding a compressed object.
	ObjStream(objNum int) (streamNum int, index int, found bool)
	// Objects lists the in-use object numbers in ascending order.
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, r io.ReaderAt) (Table, error)
	Trailer() *raw.DictObj
	Repaired() bool
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Scanner      scanner.Config
	Filters      filters.Limits
}

// NewResolver returns a resolver for classic tables, xref streams and hybrid
// files. Revisions are followed through /Prev newest first; when that fails
// and the recovery strategy allows it, the file is scanned for objects.
func NewResolver(cfg ResolverConfig) Resolver {
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg      ResolverConfig
	trailer  *raw.DictObj
	repaired bool
}

func (r *resolver) Trailer() *raw.DictObj { return r.trailer }
func (r *resolver) Repaired() bool        { return r.repaired }

func (r *resolver) Resolve(ctx context.Context, ra io.ReaderAt) (Table, error) {
	data := readAll(ra)
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		r.trailer = t.trailer
		return t, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if r.cfg.Recovery == nil {
		return nil, err
	}
	action := r.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"})
	if action != recovery.ActionFix && action != recovery.ActionWarn {
		return nil, err
	}
	t, rerr := repair(ctx, bytes.NewReader(data), r.scannerConfig())
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	r.trailer = t.trailer
	r.repaired = true
	return t, nil
}

func (r *resolver) scannerConfig() scanner.Config {
	cfg := r.cfg.Scanner
	if cfg.Recovery == nil {
		cfg.Recovery = r.cfg.Recovery
	}
	return cfg
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	// Sections are parsed strictly; tolerance is applied by falling back to repair.
	s := scanner.New(bytes.NewReader(data), r.cfg.Scanner)
	t := &table{entries: make(map[int]entry), trailer: raw.Dict()}
	visited := make(map[int64]bool)

	off := start
	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.cfg.MaxXRefDepth > 0 && depth > r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain exceeds depth %d", r.cfg.MaxXRefDepth)
		}
		if visited[off] {
			break
		}
		visited[off] = true

		sec, err := r.readSection(ctx, s, off)
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", off, err)
		}
		if depth == 0 {
			t.kind = sec.kind
		}
		t.merge(sec)
		if stmOff, ok := sec.trailer.IntValue("XRefStm"); ok && sec.kind == kindTable && !visited[stmOff] {
			visited[stmOff] = true
			stm, err := r.readSection(ctx, s, stmOff)
			if err != nil {
				return nil, fmt.Errorf("xref stream at %d: %w", stmOff, err)
			}
			t.mergeEntries(stm.entries)
		}
		prev, ok := sec.trailer.IntValue("Prev")
		if !ok || prev < 0 || prev >= int64(len(data)) {
			break
		}
		off = prev
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	offset, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if offset <= 0 || offset >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", offset)
	}
	return offset, nil
}

type section struct {
	kind    string
	entries map[int]entry
	trailer *raw.DictObj
}

func (r *resolver) readSection(ctx context.Context, s scanner.Scanner, off int64) (*section, error) {
	if err := s.SeekTo(off); err != nil {
		return nil, err
	}
	tr := raw.NewTokenReader(s)
	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseTable(tr)
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return nil, errors.New("xref keyword not found at offset")
	}
	gen, err := tr.Next()
	if err != nil || gen.Type != scanner.TokenNumber {
		return nil, errors.New("malformed xref stream header")
	}
	kw, err := tr.Next()
	if err != nil || kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return nil, errors.New("malformed xref stream header")
	}
	obj, err := raw.ParseObject(tr, nil, int(tok.Int), int(gen.Int))
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("xref stream dictionary missing")
	}
	if typ, _ := dict.NameValue("Type"); typ != "XRef" {
		return nil, errors.New("object at startxref is not an xref stream")
	}
	length, _ := dict.IntValue("Length")
	tr.SetStreamLengthHint(length)
	st, err := tr.Next()
	tr.SetStreamLengthHint(0)
	if err != nil || st.Type != scanner.TokenStream {
		return nil, errors.New("xref stream data missing")
	}
	return parseXRefStream(ctx, dict, st.Bytes, r.cfg.Filters)
}

func parseTable(tr *raw.TokenReader) (*section, error) {
	sec := &section{kind: kindTable, entries: make(map[int]entry)}
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, errors.New("unexpected end of xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := raw.ParseObject(tr, nil, 0, 0)
			if err != nil {
				return nil, fmt.Errorf("parse trailer: %w", err)
			}
			d, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			sec.trailer = d
			return sec, nil
		}
		countTok, err := tr.Next()
		if tok.Type != scanner.TokenNumber || !tok.IsInt || err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, errors.New("invalid xref subsection header")
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := tr.Next()
			genTok, err2 := tr.Next()
			kindTok, err3 := tr.Next()
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, errors.New("unexpected end of xref section")
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry for object %d", first+i)
			}
			e := entry{offset: offTok.Int, gen: int(genTok.Int)}
			switch kindTok.Str {
			case "n":
				e.kind = entryInUse
			case "f":
				e.kind = entryFree
			default:
				return nil, fmt.Errorf("invalid xref entry type %q", kindTok.Str)
			}
			sec.entries[first+i] = e
		}
	}
}

func parseXRefStream(ctx context.Context, dict *raw.DictObj, payload []byte, limits filters.Limits) (*section, error) {
	names, params := filters.ExtractFilters(dict)
	data, err := filters.NewDefaultPipeline(limits).Decode(ctx, payload, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	w, err := intArray(dict, "W")
	if err != nil || len(w) != 3 {
		return nil, errors.New("xref stream /W must hold three widths")
	}
	for _, n := range w {
		if n < 0 || n > 8 {
			return nil, fmt.Errorf("xref stream field width %d out of range", n)
		}
	}
	size, _ := dict.IntValue("Size")
	index, err := intArray(dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	if len(index)%2 != 0 {
		return nil, errors.New("xref stream /Index must hold pairs")
	}

	sec := &section{kind: kindStream, entries: make(map[int]entry), trailer: trailerFromStream(dict)}
	rowLen := int(w[0] + w[1] + w[2])
	if rowLen == 0 {
		return nil, errors.New("xref stream rows are empty")
	}
	pos := 0
	for i := 0; i < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return sec, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			switch typ {
			case 0:
				sec.entries[first+j] = entry{kind: entryFree, gen: int(f3)}
			case 1:
				sec.entries[first+j] = entry{kind: entryInUse, offset: f2, gen: int(f3)}
			case 2:
				sec.entries[first+j] = entry{kind: entryCompressed, stream: int(f2), index: int(f3)}
			}
		}
	}
	return sec, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	obj, ok := d.Lookup(key)
	if !ok {
		return nil, errors.New(key + " missing")
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil, errors.New(key + " is not an array")
	}
	out := make([]int64, 0, arr.Len())
	for _, item := range arr.Items {
		n, ok := item.(raw.NumberObj)
		if !ok {
			return nil, errors.New(key + " holds a non-number")
		}
		out = append(out, n.Int())
	}
	return out, nil
}

// trailerFromStream keeps the document-level entries of an xref stream dictionary.
func trailerFromStream(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for _, k := range []string{"Size", "Root", "Info", "ID", "Encrypt", "Prev"} {
		if v, ok := d.Lookup(k); ok {
			out.KV[k] = v
		}
	}
	return out
}

const (
	kindTable  = "table"
	kindStream = "xref-stream"
	kindRepair = "repair"
)

type entryKind int

const (
	entryFree entryKind = iota
	entryInUse
	entryCompressed
)

type entry struct {
	kind   entryKind
	offset int64
	gen    int
	stream int
	index  int
}

type table struct {
	kind    string
	entries map[int]entry
	trailer *raw.DictObj
}

// merge adds an older section: entries already known win, and trailer keys
// are only filled in when absent.
func (t *table) merge(sec *section) {
	t.mergeEntries(sec.entries)
	for k, v := range sec.trailer.KV {
		if _, ok := t.trailer.KV[k]; !ok {
			t.trailer.KV[k] = v
		}
	}
}

func (t *table) mergeEntries(entries map[int]entry) {
	for num, e := range entries {
		if _, ok := t.entries[num]; !ok {
			t.entries[num] = e
		}
	}
}

func (t *table) validate() error {
	size, ok := t.trailer.IntValue("Size")
	if !ok {
		return errors.New("trailer /Size missing")
	}
	for num, e := range t.entries {
		if e.kind != entryFree && int64(num) >= size {
			return fmt.Errorf("xref entry %d beyond /Size %d", num, size)
		}
	}
	if _, ok := t.trailer.Lookup("Root"); !ok {
		return errors.New("trailer /Root missing")
	}
	return nil
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != entryInUse {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != entryCompressed {
		return 0, 0, false
	}
	return e.stream, e.index, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.kind != entryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }

func readAll(r io.ReaderAt) []byte {
	if br, ok := r.(*bytes.Reader); ok {
		buf := make([]byte, br.Size())
		n, _ := br.ReadAt(buf, 0)
		return buf[:n]
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	for off := int64(0); ; off += chunk {
		tmp := make([]byte, chunk)
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
