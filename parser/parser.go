package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wudi/pdfslim/filters"
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/scanner"
	"github.com/wudi/pdfslim/security"
	"github.com/wudi/pdfslim/xref"
)

// ErrEncrypted is returned for documents with an /Encrypt trailer entry.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery    recovery.Strategy
	XRef        xref.ResolverConfig
	MaxIndirect int
	Limits      security.Limits
	Cache       Cache
	Logger      observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.MaxIndirect == 0 {
		cfg.MaxIndirect = cfg.Limits.MaxIndirectDepth
	}
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	if cfg.XRef.Scanner == (scanner.Config{}) {
		cfg.XRef.Scanner = scannerConfig(cfg.Limits, nil)
	}
	if cfg.XRef.Filters == (filters.Limits{}) {
		cfg.XRef.Filters = filterLimits(cfg.Limits)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

// Parse loads every object reachable through the cross-reference data. When
// that fails and the recovery strategy tolerates it, the file is parsed
// linearly instead.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	if detectHeaderVersion(r) == "" && !p.tolerate(ctx, errors.New("missing %PDF header"), "header") {
		return nil, errors.New("not a PDF: missing %PDF header")
	}

	doc, err := p.parseWithXRef(ctx, r)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, ErrEncrypted) || ctx.Err() != nil {
		return nil, err
	}
	if !p.tolerate(ctx, err, "parser") {
		return nil, err
	}
	p.cfg.Logger.Warn("cross-reference load failed, scanning file linearly", observability.Error("error", err))
	doc, lerr := p.parseLinear(ctx, r)
	if lerr != nil {
		return nil, fmt.Errorf("%w (linear scan: %v)", err, lerr)
	}
	return doc, nil
}

func (p *DocumentParser) parseWithXRef(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	resolver := xref.NewResolver(p.cfg.XRef)
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := table.Trailer()
	if _, ok := trailer.Lookup("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	builder := &ObjectLoaderBuilder{
		reader:    r,
		xrefTable: table,
		maxDepth:  p.cfg.MaxIndirect,
		limits:    p.cfg.Limits,
		cache:     p.cfg.Cache,
		recovery:  p.cfg.Recovery,
	}
	loader, err := builder.Build()
	if err != nil {
		return nil, err
	}

	doc := &raw.Document{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Trailer: trailer,
		Version: detectHeaderVersion(r),
	}

	for _, objNum := range table.Objects() {
		if objNum == 0 {
			continue // free head entry
		}
		_, gen, found := table.Lookup(objNum)
		if !found {
			gen = 0 // compressed objects always have generation 0
		}
		ref := raw.ObjectRef{Num: objNum, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load object %d: %w", objNum, err)
		}
		doc.Objects[ref] = obj
	}

	if table.Type() == "repair" {
		// A rebuilt table only knows top-level objects.
		if err := unpackObjectStreams(ctx, doc, p.cfg.Recovery, p.cfg.Limits); err != nil {
			return nil, err
		}
	}
	dropLayoutStreams(doc)
	if err := checkRoot(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *DocumentParser) parseLinear(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	lp := raw.NewParser(raw.ParserConfig{
		Scanner:  scannerConfig(p.cfg.Limits, nil),
		Recovery: p.cfg.Recovery,
	})
	doc, err := lp.Parse(ctx, r)
	if err != nil {
		return nil, err
	}
	if _, ok := doc.Trailer.Lookup("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	doc.Version = detectHeaderVersion(r)
	if err := unpackObjectStreams(ctx, doc, p.cfg.Recovery, p.cfg.Limits); err != nil {
		return nil, err
	}
	dropLayoutStreams(doc)
	if _, ok := doc.Trailer.Lookup("Root"); !ok {
		if ref, ok := findCatalog(doc); ok {
			doc.Trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: ref})
		}
	}
	if err := checkRoot(doc); err != nil {
		return nil, err
	}
	doc.Trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(doc.MaxObjectNumber()+1)))
	return doc, nil
}

func (p *DocumentParser) tolerate(ctx context.Context, err error, component string) bool {
	if p.cfg.Recovery == nil {
		return false
	}
	action := p.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: component})
	return action == recovery.ActionFix || action == recovery.ActionWarn
}

// unpackObjectStreams adds members of object streams that are not defined
// as top-level objects.
func unpackObjectStreams(ctx context.Context, doc *raw.Document, rec recovery.Strategy, limits security.Limits) error {
	for _, ref := range doc.Refs() {
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || !isType(st.Dict, "ObjStm") {
			continue
		}
		members, err := parseObjectStream(ctx, st, rec, limits)
		if err != nil {
			if rec == nil {
				return fmt.Errorf("object stream %d: %w", ref.Num, err)
			}
			continue
		}
		nums := make([]int, 0, len(members))
		for n := range members {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		for _, n := range nums {
			mref := raw.ObjectRef{Num: n}
			if _, exists := doc.Objects[mref]; !exists {
				doc.Objects[mref] = members[n]
			}
		}
	}
	return nil
}

// dropLayoutStreams removes object and xref streams; their content lives on
// as ordinary objects and a fresh xref table.
func dropLayoutStreams(doc *raw.Document) {
	for ref, obj := range doc.Objects {
		if st, ok := obj.(*raw.StreamObj); ok && (isType(st.Dict, "ObjStm") || isType(st.Dict, "XRef")) {
			delete(doc.Objects, ref)
		}
	}
}

func checkRoot(doc *raw.Document) error {
	root, ok := doc.Trailer.Lookup("Root")
	if !ok {
		return errors.New("trailer /Root missing")
	}
	if _, ok := doc.Resolve(root).(*raw.DictObj); !ok {
		return errors.New("document catalog missing or not a dictionary")
	}
	return nil
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, bool) {
	var found raw.ObjectRef
	ok := false
	for _, ref := range doc.Refs() {
		if d, isDict := doc.Objects[ref].(*raw.DictObj); isDict && isType(d, "Catalog") {
			found, ok = ref, true
		}
	}
	return found, ok
}

func isType(d *raw.DictObj, typ string) bool {
	v, _ := d.NameValue("Type")
	return v == typ
}

func detectHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 1024)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	head := string(buf[:n])
	// Some producers put junk before the header.
	idx := strings.Index(head, "%PDF-")
	if idx < 0 {
		return ""
	}
	line := head[idx+5:]
	end := 0
	for end < len(line) && (line[end] == '.' || (line[end] >= '0' && line[end] <= '9')) {
		end++
	}
	return line[:end]
}
