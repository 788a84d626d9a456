package writer

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/wudi/pdfslim/ir/raw"
)

func serializePrimitive(o raw.Object) []byte {
	var b bytes.Buffer
	appendObject(&b, o)
	return b.Bytes()
}

func appendObject(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		appendName(b, v.Value())
	case raw.NumberObj:
		b.WriteString(formatNumber(v))
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.Value()))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.IsHex() {
			b.WriteByte('<')
			b.WriteString(hex.EncodeToString(v.Value()))
			b.WriteByte('>')
		} else {
			b.Write(escapeLiteralString(v.Value()))
		}
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			appendObject(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		appendDict(b, v, -1)
	case *raw.StreamObj:
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		appendDict(b, dict, int64(len(v.Data)))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		b.WriteString(strconv.Itoa(v.Ref().Num))
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(v.Ref().Gen))
		b.WriteString(" R")
	default:
		b.WriteString("null")
	}
}

// appendDict writes d with sorted keys. A non-negative length replaces /Length.
func appendDict(b *bytes.Buffer, d *raw.DictObj, length int64) {
	b.WriteString("<<")
	for _, k := range d.SortedKeys() {
		if length >= 0 && k == "Length" {
			continue
		}
		b.WriteByte(' ')
		appendName(b, k)
		b.WriteByte(' ')
		appendObject(b, d.KV[k])
	}
	if length >= 0 {
		b.WriteString(" /Length ")
		b.WriteString(strconv.FormatInt(length, 10))
	}
	b.WriteString(" >>")
}

func formatNumber(n raw.NumberObj) string {
	if n.IsInteger() {
		return strconv.FormatInt(n.Int(), 10)
	}
	f := n.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10) + ".0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func appendName(b *bytes.Buffer, name string) {
	const hexDigits = "0123456789ABCDEF"
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			b.WriteByte('#')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
			continue
		}
		b.WriteByte(c)
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func escapeLiteralString(rawBytes []byte) []byte {
	out := make([]byte, 0, len(rawBytes)+2)
	out = append(out, '(')
	for _, c := range rawBytes {
		switch c {
		case '\\', '(', ')':
			out = append(out, '\\', c)
		case '\r':
			// A bare CR would be read back as LF.
			out = append(out, '\\', 'r')
		default:
			out = append(out, c)
		}
	}
	out = append(out, ')')
	return out
}
