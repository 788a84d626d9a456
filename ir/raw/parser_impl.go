package raw

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/scanner"
)

// ParserConfig controls raw parsing behavior.
type ParserConfig struct {
	Scanner  scanner.Config
	Recovery recovery.Strategy
}

// NewParser constructs a linear raw.Parser. It ignores cross-reference data
// and collects every "n g obj ... endobj" block front to back, so later
// definitions of an object win. Trailer dictionaries are merged the same way.
func NewParser(cfg ParserConfig) Parser {
	return &parserImpl{cfg: cfg}
}

type parserImpl struct {
	cfg ParserConfig
}

func (p *parserImpl) Parse(ctx context.Context, r io.ReaderAt) (*Document, error) {
	scfg := p.cfg.Scanner
	if scfg.Recovery == nil {
		scfg.Recovery = p.cfg.Recovery
	}
	s := scanner.New(r, scfg)
	tr := NewTokenReader(s)
	setLoc, _ := s.(interface{ SetRecoveryLocation(recovery.Location) })

	doc := &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if tolerate(p.cfg.Recovery, err, 0, 0) {
				continue
			}
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			if obj, err := ParseObject(tr, p.cfg.Recovery, 0, 0); err == nil {
				if d, ok := obj.(*DictObj); ok {
					mergeTrailer(doc.Trailer, d)
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		genTok, err := tr.Next()
		if err != nil {
			break
		}
		if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
			tr.Unread(genTok)
			continue
		}
		kwTok, err := tr.Next()
		if err != nil {
			break
		}
		if kwTok.Type != scanner.TokenKeyword || kwTok.Str != "obj" {
			tr.Unread(kwTok)
			tr.Unread(genTok)
			continue
		}
		objNum, gen := int(tok.Int), int(genTok.Int)
		if setLoc != nil {
			setLoc.SetRecoveryLocation(recovery.Location{ObjectNum: objNum, ObjectGen: gen})
		}

		obj, err := p.parseIndirect(tr, objNum, gen)
		if err != nil {
			if tolerate(p.cfg.Recovery, err, objNum, gen) {
				continue
			}
			return nil, fmt.Errorf("parse object %d %d: %w", objNum, gen, err)
		}
		if st, ok := obj.(*StreamObj); ok {
			if typ, _ := st.Dict.NameValue("Type"); typ == "XRef" {
				// Cross-reference streams carry the trailer entries in
				// files that have no classic trailer.
				mergeTrailer(doc.Trailer, trailerEntries(st.Dict))
			}
		}
		doc.Objects[ObjectRef{Num: objNum, Gen: gen}] = obj
	}

	return doc, nil
}

func (p *parserImpl) parseIndirect(tr *TokenReader, objNum, gen int) (Object, error) {
	obj, err := ParseObject(tr, p.cfg.Recovery, objNum, gen)
	if err != nil {
		return nil, err
	}
	if dict, ok := obj.(*DictObj); ok {
		length, _ := dict.IntValue("Length")
		if _, isRef := dict.KV["Length"].(RefObj); isRef {
			length = 0
		}
		tr.SetStreamLengthHint(length)
		streamTok, err := tr.Next()
		tr.SetStreamLengthHint(0)
		if err == nil {
			if streamTok.Type == scanner.TokenStream {
				obj = NewStream(dict, streamTok.Bytes)
			} else {
				tr.Unread(streamTok)
			}
		}
	}
	if t, err := tr.Next(); err == nil {
		if t.Type != scanner.TokenKeyword || t.Str != "endobj" {
			tr.Unread(t)
		}
	}
	return obj, nil
}

// mergeTrailer copies entries from a later trailer over an earlier one.
func mergeTrailer(dst, src *DictObj) {
	for k, v := range src.KV {
		dst.KV[k] = v
	}
}

func trailerEntries(d *DictObj) *DictObj {
	out := Dict()
	for _, k := range []string{"Root", "Info", "ID", "Encrypt", "Size"} {
		if v, ok := d.KV[k]; ok {
			out.KV[k] = v
		}
	}
	return out
}
