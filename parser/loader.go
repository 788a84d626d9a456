package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfslim/filters"
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/scanner"
	"github.com/wudi/pdfslim/security"
	"github.com/wudi/pdfslim/xref"
)

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	reader    io.ReaderAt
	xrefTable xref.Table
	scanner   scanner.Scanner
	maxDepth  int
	limits    security.Limits
	cache     Cache
	recovery  recovery.Strategy
}

func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithReader(r io.ReaderAt) *ObjectLoaderBuilder {
	b.reader = r
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithRecovery(r recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = r
	return b
}
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder { b.cache = c; return b }

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.reader == nil || b.xrefTable == nil {
		return nil, errors.New("reader and xrefTable required")
	}
	maxDepth := b.maxDepth
	if maxDepth == 0 {
		maxDepth = b.limits.MaxIndirectDepth
		if maxDepth == 0 {
			maxDepth = security.DefaultLimits().MaxIndirectDepth
		}
	}
	return &objectLoader{
		reader:    b.reader,
		xrefTable: b.xrefTable,
		scanner:   b.scanner,
		maxDepth:  maxDepth,
		limits:    b.limits,
		cache:     b.cache,
		recovery:  b.recovery,
	}, nil
}

type objectLoader struct {
	reader    io.ReaderAt
	xrefTable xref.Table
	scanner   scanner.Scanner
	maxDepth  int
	limits    security.Limits
	cache     Cache
	recovery  recovery.Strategy
	mu        sync.Mutex
	objstm    map[int]map[int]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if o.cache != nil {
		if obj, ok := o.cache.Get(ref); ok {
			return obj, nil
		}
	}

	obj, err := o.loadOnce(ctx, ref)
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.Put(ref, obj)
	}
	return obj, nil
}

func (o *objectLoader) LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.maxDepth {
		return nil, errors.New("max depth exceeded")
	}
	return o.Load(ctx, ref)
}

func (o *objectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offset, gen, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		if osNum, _, ok := o.xrefTable.ObjStream(ref.Num); ok {
			return o.loadFromObjectStream(ctx, ref, osNum)
		}
		return nil, errors.New("object not found in xref")
	}
	return o.loadAtOffset(ref.Num, offset, gen)
}

// loadAtOffset assumes caller holds the loader mutex.
func (o *objectLoader) loadAtOffset(objNum int, offset int64, gen int) (raw.Object, error) {
	if o.scanner == nil {
		o.scanner = scanner.New(o.reader, scannerConfig(o.limits, o.recovery))
	}
	return o.scanObject(o.scanner, objNum, offset, gen)
}

func (o *objectLoader) scanObject(s scanner.Scanner, objNum int, offset int64, gen int) (raw.Object, error) {
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	if rc, ok := s.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
		rc.SetRecoveryLocation(recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "loader"})
	}
	tr := raw.NewTokenReader(s)

	// Expect "<objNum> <gen> obj"
	tokNum, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || int(tokNum.Int) != objNum {
		return nil, errors.New("object header number mismatch")
	}
	tokGen, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt || int(tokGen.Int) != gen {
		return nil, errors.New("object header generation mismatch")
	}
	tokObj, err := tr.Next()
	if err != nil {
		return nil, err
	}
	if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return nil, errors.New("expected obj keyword")
	}

	obj, err := raw.ParseObject(tr, o.recovery, objNum, gen)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		hint, err := o.resolveStreamLength(dict)
		if err != nil {
			return nil, err
		}
		tr.SetStreamLengthHint(hint)
		streamTok, err := tr.Next()
		tr.SetStreamLengthHint(0)
		if err == nil && streamTok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, streamTok.Bytes)
		} else if err == nil {
			tr.Unread(streamTok)
		} else if !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return obj, nil
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, objStreamNum int) (raw.Object, error) {
	if o.objstm == nil {
		o.objstm = make(map[int]map[int]raw.Object)
	}
	objs, ok := o.objstm[objStreamNum]
	if !ok {
		offset, gen, found := o.xrefTable.Lookup(objStreamNum)
		if !found {
			return nil, errors.New("object stream entry missing")
		}
		streamObj, err := o.loadAtOffset(objStreamNum, offset, gen)
		if err != nil {
			return nil, err
		}
		st, ok := streamObj.(*raw.StreamObj)
		if !ok {
			return nil, errors.New("object stream is not a stream")
		}
		objs, err = parseObjectStream(ctx, st, o.recovery, o.limits)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", objStreamNum, err)
		}
		o.objstm[objStreamNum] = objs
	}
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, errors.New("object not found in object stream")
}

// parseObjectStream decodes a /Type /ObjStm stream and parses its members.
func parseObjectStream(ctx context.Context, st *raw.StreamObj, rec recovery.Strategy, limits security.Limits) (map[int]raw.Object, error) {
	nObj64, _ := st.Dict.IntValue("N")
	first64, _ := st.Dict.IntValue("First")
	nObj, first := int(nObj64), int(first64)

	data := st.RawData()
	names, params := filters.ExtractFilters(st.Dict)
	if len(names) > 0 {
		decoded, err := filters.NewDefaultPipeline(filterLimits(limits)).Decode(ctx, data, names, params)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}
	header := data[:first]
	body := data[first:]

	cfg := scannerConfig(limits, rec)
	s := scanner.New(bytes.NewReader(header), cfg)
	var pairs []int
	for len(pairs)/2 < nObj {
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		pairs = append(pairs, int(tok.Int))
	}
	if len(pairs)%2 != 0 {
		pairs = pairs[:len(pairs)-1]
	}

	objs := make(map[int]raw.Object, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		objNum, off := pairs[i], pairs[i+1]
		if off < 0 || off > len(body) {
			return nil, fmt.Errorf("object %d offset %d outside object stream", objNum, off)
		}
		sc := scanner.New(bytes.NewReader(body[off:]), cfg)
		obj, err := raw.ParseObject(raw.NewTokenReader(sc), rec, objNum, 0)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", objNum, err)
		}
		objs[objNum] = obj
	}
	return objs, nil
}

func (o *objectLoader) resolveStreamLength(dict *raw.DictObj) (int64, error) {
	val, ok := dict.Lookup("Length")
	if !ok {
		return 0, nil
	}
	switch v := val.(type) {
	case raw.NumberObj:
		return v.Int(), nil
	case raw.RefObj:
		obj, err := o.loadReferencedObject(v.R)
		if err != nil {
			if o.recovery != nil {
				// The scanner falls back to searching for endstream.
				return 0, nil
			}
			return 0, err
		}
		if num, ok := obj.(raw.NumberObj); ok {
			return num.Int(), nil
		}
		return 0, fmt.Errorf("length reference %v is not numeric", v.R)
	default:
		return 0, nil
	}
}

func (o *objectLoader) loadReferencedObject(ref raw.ObjectRef) (raw.Object, error) {
	offset, gen, ok := o.xrefTable.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %d missing for length reference", ref.Num)
	}
	// Use a temporary scanner to avoid clobbering the shared scanner state
	tmpScanner := scanner.New(o.reader, scannerConfig(o.limits, o.recovery))
	return o.scanObject(tmpScanner, ref.Num, offset, gen)
}

func scannerConfig(l security.Limits, rec recovery.Strategy) scanner.Config {
	return scanner.Config{
		Recovery:        rec,
		MaxStringLength: l.MaxStringLength,
		MaxArrayDepth:   l.MaxIndirectDepth,
		MaxDictDepth:    l.MaxIndirectDepth,
		MaxStreamLength: l.MaxStreamLength,
	}
}

func filterLimits(l security.Limits) filters.Limits {
	return filters.Limits{
		MaxDecompressedSize: l.MaxDecompressedSize,
		MaxDecodeTime:       l.MaxDecodeTime,
	}
}
