package optimize

import (
	"fmt"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfslim/ir/raw"
)

// imageKeys are the dictionary entries that influence how an image payload
// decodes. Two streams agreeing on these and on their bytes share a candidate.
var imageKeys = []string{"Filter", "DecodeParms", "Width", "Height", "BitsPerComponent", "ColorSpace", "Subtype", "Decode", "ImageMask"}

type digest [blake2b.Size256]byte

func digestImage(st *raw.StreamObj) digest {
	h, _ := blake2b.New256(nil)
	for _, k := range imageKeys {
		v, _ := st.Dict.Lookup(k)
		fmt.Fprint(h, k, "=")
		writeHash(h, v)
		fmt.Fprint(h, ";")
	}
	fmt.Fprintf(h, "%d:", len(st.Data))
	h.Write(st.Data)
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

func writeHash(h hash.Hash, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.Name:
		fmt.Fprint(h, t.Value())
	case raw.Number:
		if t.IsInteger() {
			fmt.Fprint(h, t.Int())
		} else {
			fmt.Fprint(h, t.Float())
		}
	case raw.Boolean:
		fmt.Fprint(h, t.Value())
	case raw.String:
		fmt.Fprintf(h, "%x", t.Value())
	case raw.Reference:
		fmt.Fprintf(h, "%d %d R", t.Ref().Num, t.Ref().Gen)
	case raw.Array:
		fmt.Fprint(h, "[")
		for i := 0; i < t.Len(); i++ {
			v, _ := t.Get(i)
			writeHash(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case raw.Dictionary:
		fmt.Fprint(h, "<<")
		keys := t.Keys()
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].Value() < keys[j].Value()
		})
		for _, k := range keys {
			fmt.Fprint(h, k.Value(), " ")
			v, _ := t.Get(k)
			writeHash(h, v)
		}
		fmt.Fprint(h, ">>")
	case raw.Null:
		fmt.Fprint(h, "null")
	}
}
