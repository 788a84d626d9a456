package raw

import (
	"context"
	"errors"

	"github.com/wudi/pdfslim/recovery"
	"github.com/wudi/pdfslim/scanner"
)

type streamLengthSetter interface{ SetNextStreamLength(int64) }

// TokenReader wraps a token source with unlimited push-back.
type TokenReader struct {
	s            interface{ Next() (scanner.Token, error) }
	buf          []scanner.Token
	lengthSetter streamLengthSetter
}

func NewTokenReader(src interface{ Next() (scanner.Token, error) }) *TokenReader {
	tr := &TokenReader{s: src}
	if setter, ok := src.(streamLengthSetter); ok {
		tr.lengthSetter = setter
	}
	return tr
}

func (r *TokenReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *TokenReader) Unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// SetStreamLengthHint forwards a /Length value to the scanner. Non-positive
// values clear any previous hint.
func (r *TokenReader) SetStreamLengthHint(n int64) {
	if r.lengthSetter == nil {
		return
	}
	if n <= 0 {
		n = -1
	}
	r.lengthSetter.SetNextStreamLength(n)
}

// ParseObject reads one direct object. rec may be nil.
func ParseObject(tr *TokenReader, rec recovery.Strategy, objNum, gen int) (Object, error) {
	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberObj{I: tok.Int, IsInt: true}, nil
		}
		return NumberObj{F: tok.Float}, nil
	case scanner.TokenBoolean:
		return BoolObj{V: tok.Bool}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return parseArray(tr, rec, objNum, gen)
	case scanner.TokenDict:
		return parseDict(tr, rec, objNum, gen)
	case scanner.TokenRef:
		return RefObj{R: ObjectRef{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenKeyword:
		if tok.Str == "endobj" {
			return nil, errors.New("unexpected endobj")
		}
	}
	return nil, errors.New("unexpected token: " + tok.Type.String())
}

func parseArray(tr *TokenReader, rec recovery.Strategy, objNum, gen int) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			break
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
			if !tolerate(rec, errors.New("unexpected endobj in array (missing ]?)"), objNum, gen) {
				return nil, errors.New("unexpected endobj in array")
			}
			tr.Unread(tok)
			break
		}
		tr.Unread(tok)
		item, err := ParseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
	return arr, nil
}

func parseDict(tr *TokenReader, rec recovery.Strategy, objNum, gen int) (Object, error) {
	d := Dict()
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			break
		}
		if tok.Type != scanner.TokenName {
			if (tok.Type == scanner.TokenKeyword && tok.Str == "endobj") || tok.Type == scanner.TokenStream {
				err := errors.New("unexpected " + tok.Type.String() + " in dict (missing >>?)")
				if !tolerate(rec, err, objNum, gen) {
					return nil, err
				}
				tr.Unread(tok)
				break
			}
			return nil, errors.New("expected name in dict")
		}
		val, err := ParseObject(tr, rec, objNum, gen)
		if err != nil {
			return nil, err
		}
		d.Set(NameObj{Val: tok.Str}, val)
	}
	return d, nil
}

func tolerate(rec recovery.Strategy, err error, objNum, gen int) bool {
	if rec == nil {
		return false
	}
	action := rec.OnError(context.Background(), err, recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "parser"})
	return action == recovery.ActionWarn || action == recovery.ActionFix
}
