package optimize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var errUnsupportedPNG = errors.New("png layout not representable as a PDF image")

// flateImage is a PNG re-expressed as a FlateDecode image: the IDAT zlib
// stream with PNG row filters, decodable with /Predictor 15.
type flateImage struct {
	Data     []byte
	Width    int
	Height   int
	BitDepth int
	Colors   int
	// Palette holds RGB triplets for indexed images.
	Palette []byte
}

// pngToFlate splits a PNG into its IHDR parameters and concatenated IDAT data.
// Images with alpha or transparency chunks are rejected.
func pngToFlate(data []byte) (*flateImage, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.New("not a png stream")
	}
	var (
		out       flateImage
		colorType byte
		seenIHDR  bool
		idat      bytes.Buffer
	)
	rest := data[len(pngSignature):]
	for len(rest) >= 12 {
		n := binary.BigEndian.Uint32(rest[:4])
		typ := string(rest[4:8])
		if uint64(n)+12 > uint64(len(rest)) {
			return nil, fmt.Errorf("png chunk %q truncated", typ)
		}
		body := rest[8 : 8+n]
		rest = rest[12+n:]

		switch typ {
		case "IHDR":
			if n != 13 {
				return nil, errors.New("png IHDR has wrong length")
			}
			out.Width = int(binary.BigEndian.Uint32(body[0:4]))
			out.Height = int(binary.BigEndian.Uint32(body[4:8]))
			out.BitDepth = int(body[8])
			colorType = body[9]
			if body[12] != 0 {
				return nil, fmt.Errorf("%w: interlaced", errUnsupportedPNG)
			}
			seenIHDR = true
		case "PLTE":
			out.Palette = append([]byte(nil), body...)
		case "tRNS":
			return nil, fmt.Errorf("%w: transparency", errUnsupportedPNG)
		case "IDAT":
			idat.Write(body)
		case "IEND":
			rest = nil
		}
	}
	if !seenIHDR || idat.Len() == 0 {
		return nil, errors.New("png missing IHDR or IDAT")
	}

	switch colorType {
	case 0:
		out.Colors = 1
	case 2:
		out.Colors = 3
	case 3:
		if len(out.Palette) == 0 || len(out.Palette)%3 != 0 {
			return nil, errors.New("png palette missing")
		}
		out.Colors = 1
	default:
		return nil, fmt.Errorf("%w: alpha channel", errUnsupportedPNG)
	}
	if colorType != 3 {
		out.Palette = nil
	}
	out.Data = idat.Bytes()
	return &out, nil
}
