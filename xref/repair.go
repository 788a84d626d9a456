package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/scanner"
)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries; later
// definitions win, matching incremental-update semantics.
func repair(ctx context.Context, r io.ReaderAt, cfg scanner.Config) (*table, error) {
	s := scanner.New(r, cfg)
	tr := raw.NewTokenReader(s)
	entries := make(map[int]entry)
	trailer := raw.Dict()
	var catalog *raw.ObjectRef

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Skip invalid tokens during repair scan
			continue
		}

		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			if obj, err := raw.ParseObject(tr, nil, 0, 0); err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					for k, v := range dict.KV {
						trailer.KV[k] = v
					}
				}
			}
			continue
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}

		tokGen, err := tr.Next()
		if err != nil {
			continue
		}
		if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
			tr.Unread(tokGen)
			continue
		}
		tokObj, err := tr.Next()
		if err != nil {
			continue
		}
		if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
			// tokGen could start an object: "1 2 0 obj" where "1" is garbage.
			tr.Unread(tokObj)
			tr.Unread(tokGen)
			continue
		}

		objNum, gen := int(tok.Int), int(tokGen.Int)
		entries[objNum] = entry{kind: entryInUse, offset: tok.Pos, gen: gen}

		obj, err := raw.ParseObject(tr, nil, objNum, gen)
		if err != nil {
			continue
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		switch typ, _ := dict.NameValue("Type"); typ {
		case "XRef":
			for k, v := range trailerFromStream(dict).KV {
				if k != "Prev" {
					trailer.KV[k] = v
				}
			}
		case "Catalog":
			ref := raw.ObjectRef{Num: objNum, Gen: gen}
			catalog = &ref
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	if _, ok := trailer.Lookup("Root"); !ok && catalog != nil {
		trailer.Set(raw.NameLiteral("Root"), raw.RefObj{R: *catalog})
	}
	if _, ok := trailer.Lookup("Root"); !ok {
		return nil, errors.New("repair failed: no document catalog found")
	}
	max := 0
	for num := range entries {
		if num > max {
			max = num
		}
	}
	if size, ok := trailer.IntValue("Size"); !ok || size <= int64(max) {
		trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(max+1)))
	}
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")

	return &table{kind: kindRepair, entries: entries, trailer: trailer}, nil
}
