package optimize

import "github.com/wudi/pdfslim/ir/raw"

// Encoding is the storage state of a stream payload as declared by /Filter.
type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingImageJPEG
	EncodingImagePNG
	EncodingGenericDeflate
	EncodingOther
)

func (e Encoding) String() string {
	switch e {
	case EncodingRaw:
		return "raw"
	case EncodingImageJPEG:
		return "jpeg"
	case EncodingImagePNG:
		return "png"
	case EncodingGenericDeflate:
		return "deflate"
	default:
		return "other"
	}
}

// imageStage reports whether the image stage attempts streams in this state.
func (e Encoding) imageStage() bool { return e != EncodingRaw }

// genericStage reports whether the generic stage compresses streams in this state.
func (e Encoding) genericStage() bool { return e == EncodingRaw }

// Classify maps a stream's /Filter entry to an Encoding. A one-element filter
// array counts as its single entry; empty arrays, longer chains and malformed
// entries are EncodingOther. Only a stream with no /Filter key is raw.
func Classify(st *raw.StreamObj) Encoding {
	if st == nil || st.Dict == nil {
		return EncodingRaw
	}
	f, ok := st.Dict.Lookup("Filter")
	if !ok {
		return EncodingRaw
	}
	if arr, isArr := f.(*raw.ArrayObj); isArr {
		if arr.Len() != 1 {
			return EncodingOther
		}
		f = arr.Items[0]
	}
	name, ok := f.(raw.NameObj)
	if !ok {
		return EncodingOther
	}
	switch name.Value() {
	case "DCTDecode":
		return EncodingImageJPEG
	case "FlateDecode":
		if isImageXObject(st.Dict) {
			return EncodingImagePNG
		}
		return EncodingGenericDeflate
	default:
		return EncodingOther
	}
}

func isImageXObject(d *raw.DictObj) bool {
	sub, _ := d.NameValue("Subtype")
	return sub == "Image"
}
