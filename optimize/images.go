package optimize

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfslim/filters"
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
)

// candidate is the re-encoded form of one image payload. Streams with the
// same digest share it; the size gate is still applied per stream.
type candidate struct {
	data   []byte
	flate  *flateImage // nil on the JPEG branch
	kind   ErrorKind
	reason Reason
	err    error
}

func (o *Optimizer) compressImages(ctx context.Context, doc *raw.Document, rep *Report) error {
	cache := make(map[digest]*candidate)
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		enc := Classify(st)
		if !enc.imageStage() {
			continue
		}
		key := digestImage(st)
		c, ok := cache[key]
		if !ok {
			c = o.buildCandidate(ctx, doc, st, enc)
			cache[key] = c
		}
		rep.Streams = append(rep.Streams, o.applyCandidate(doc, ref, st, enc, c))
	}
	return nil
}

func (o *Optimizer) applyCandidate(doc *raw.Document, ref raw.ObjectRef, st *raw.StreamObj, enc Encoding, c *candidate) StreamResult {
	original := len(st.Data)
	res := StreamResult{
		Ref:          ref,
		Stage:        StageImage,
		Encoding:     enc,
		OriginalSize: original,
		NewSize:      original,
	}
	log := o.logger.With(
		observability.String("ref", ref.String()),
		observability.String("filter", enc.String()),
		observability.Int("original", original),
	)

	switch {
	case c.err != nil:
		res.Reason = c.reason
		res.Err = &Error{Kind: c.kind, Ref: ref, Err: c.err}
		if c.reason == ReasonDecodeFailed {
			log.Info("unable to load image, skipping", observability.Error("error", c.err))
		} else {
			log.Warn("unable to re-encode image, keeping original", observability.Error("error", c.err))
		}
		return res
	case c.reason == ReasonUnsupported:
		res.Reason = ReasonUnsupported
		log.Info("image layout unsupported, keeping original")
		return res
	case len(c.data) >= original:
		res.Reason = ReasonNotSmaller
		log.Info("image recompression ineffective, keeping original",
			observability.Int("compressed", len(c.data)))
		return res
	}

	st.Data = c.data
	if c.flate != nil {
		o.setFlateImage(doc, st, c.flate)
	} else {
		// Re-encoded baseline JPEG; old DCT parameters no longer apply.
		st.Dict.Delete("DecodeParms")
	}
	st.Dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(c.data))))
	res.Outcome = OutcomeReplaced
	res.NewSize = len(c.data)
	log.Info("image recompressed",
		observability.Int("compressed", res.NewSize),
		observability.Float64("reduction", res.Reduction()),
	)
	return res
}

func (o *Optimizer) buildCandidate(ctx context.Context, doc *raw.Document, st *raw.StreamObj, enc Encoding) *candidate {
	if enc != EncodingImageJPEG && hasSampleMapping(st.Dict) {
		return &candidate{reason: ReasonUnsupported}
	}
	if enc == EncodingImageJPEG && untransformedPlanes(doc, st.Dict) {
		return &candidate{reason: ReasonUnsupported}
	}
	img, err := o.decodeImage(ctx, doc, st, enc)
	if err != nil {
		return &candidate{kind: KindImageDecode, reason: ReasonDecodeFailed, err: err}
	}

	if enc == EncodingImageJPEG {
		if _, isCMYK := img.(*image.CMYK); isCMYK {
			return &candidate{reason: ReasonUnsupported}
		}
		data, err := o.codec.EncodeJPEG(img, JPEGQuality)
		if err != nil {
			return &candidate{kind: KindImageEncode, reason: ReasonEncodeFailed, err: err}
		}
		return &candidate{data: data}
	}

	pngData, err := o.codec.EncodePNG(img)
	if err != nil {
		return &candidate{kind: KindImageEncode, reason: ReasonEncodeFailed, err: err}
	}
	fi, err := pngToFlate(pngData)
	if errors.Is(err, errUnsupportedPNG) {
		return &candidate{reason: ReasonUnsupported}
	}
	if err != nil {
		return &candidate{kind: KindImageEncode, reason: ReasonEncodeFailed, err: err}
	}
	return &candidate{data: fi.Data, flate: fi}
}

// decodeImage sniffs the stored bytes first. Flate image XObjects holding
// 8-bit gray or RGB samples are decoded through the filter pipeline instead.
func (o *Optimizer) decodeImage(ctx context.Context, doc *raw.Document, st *raw.StreamObj, enc Encoding) (image.Image, error) {
	img, _, err := o.codec.Decode(st.Data)
	if err == nil {
		return img, nil
	}
	if enc != EncodingImagePNG {
		return nil, err
	}
	img, serr := o.decodeSamples(ctx, doc, st)
	if serr != nil {
		return nil, fmt.Errorf("%w (samples: %v)", err, serr)
	}
	return img, nil
}

func (o *Optimizer) decodeSamples(ctx context.Context, doc *raw.Document, st *raw.StreamObj) (image.Image, error) {
	w64, _ := st.Dict.IntValue("Width")
	h64, _ := st.Dict.IntValue("Height")
	w, h := int(w64), int(h64)
	if err := filters.ValidateImageBounds(w, h); err != nil {
		return nil, err
	}
	if bpc, _ := st.Dict.IntValue("BitsPerComponent"); bpc != 8 {
		return nil, fmt.Errorf("unsupported BitsPerComponent %d", bpc)
	}
	cs, _ := st.Dict.Lookup("ColorSpace")
	n := colorComponents(doc, cs)
	if n != 1 && n != 3 {
		return nil, fmt.Errorf("unsupported color space with %d components", n)
	}

	names, params := filters.ExtractFilters(st.Dict)
	pipeline := filters.NewDefaultPipeline(filters.Limits{
		MaxDecompressedSize: o.cfg.Limits.MaxDecompressedSize,
		MaxDecodeTime:       o.cfg.Limits.MaxDecodeTime,
	})
	samples, err := pipeline.Decode(ctx, st.Data, names, params)
	if err != nil {
		return nil, err
	}
	if len(samples) < w*h*n {
		return nil, fmt.Errorf("short sample data: %d < %d", len(samples), w*h*n)
	}

	rect := image.Rect(0, 0, w, h)
	if n == 1 {
		return &image.Gray{Pix: samples[:w*h], Stride: w, Rect: rect}, nil
	}
	img := image.NewRGBA(rect)
	for i, j := 0, 0; i < w*h*3; i, j = i+3, j+4 {
		img.Pix[j] = samples[i]
		img.Pix[j+1] = samples[i+1]
		img.Pix[j+2] = samples[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// setFlateImage rewrites the image dictionary to describe fi.
func (o *Optimizer) setFlateImage(doc *raw.Document, st *raw.StreamObj, fi *flateImage) {
	d := st.Dict
	parms := raw.Dict()
	parms.Set(raw.NameLiteral("Predictor"), raw.NumberInt(15))
	parms.Set(raw.NameLiteral("Colors"), raw.NumberInt(int64(fi.Colors)))
	parms.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(int64(fi.BitDepth)))
	parms.Set(raw.NameLiteral("Columns"), raw.NumberInt(int64(fi.Width)))

	d.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	d.Set(raw.NameLiteral("DecodeParms"), parms)
	d.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(fi.Width)))
	d.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(fi.Height)))
	d.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(int64(fi.BitDepth)))

	switch {
	case fi.Palette != nil:
		d.Set(raw.NameLiteral("ColorSpace"), raw.NewArray(
			raw.NameLiteral("Indexed"),
			raw.NameLiteral("DeviceRGB"),
			raw.NumberInt(int64(len(fi.Palette)/3-1)),
			raw.HexStr(fi.Palette),
		))
	default:
		cs, _ := d.Lookup("ColorSpace")
		if colorComponents(doc, cs) == fi.Colors {
			break
		}
		if fi.Colors == 1 {
			d.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceGray"))
		} else {
			d.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceRGB"))
		}
	}
}

// hasSampleMapping reports entries that reinterpret stored samples; such
// images cannot move to a different color model.
func hasSampleMapping(d *raw.DictObj) bool {
	if _, ok := d.Lookup("Decode"); ok {
		return true
	}
	if v, ok := d.Lookup("ImageMask"); ok {
		if b, isBool := v.(raw.BoolObj); isBool && b.Value() {
			return true
		}
	}
	return false
}

// untransformedPlanes reports /DecodeParms << /ColorTransform 0 >>. The
// stored planes are already RGB and a baseline re-encode would be read back
// as YCbCr.
func untransformedPlanes(doc *raw.Document, d *raw.DictObj) bool {
	v, ok := d.Lookup("DecodeParms")
	if !ok {
		return false
	}
	v = doc.Resolve(v)
	if arr, isArr := v.(*raw.ArrayObj); isArr && arr.Len() == 1 {
		v = doc.Resolve(arr.Items[0])
	}
	parms, ok := v.(*raw.DictObj)
	if !ok {
		return false
	}
	ct, ok := parms.IntValue("ColorTransform")
	return ok && ct == 0
}

// colorComponents returns the number of color components of a color space
// object, or 0 when it is not a plain gray, RGB or CMYK space.
func colorComponents(doc *raw.Document, cs raw.Object) int {
	switch v := doc.Resolve(cs).(type) {
	case raw.NameObj:
		switch v.Value() {
		case "DeviceGray", "G", "CalGray":
			return 1
		case "DeviceRGB", "RGB", "CalRGB":
			return 3
		case "DeviceCMYK", "CMYK":
			return 4
		}
	case *raw.ArrayObj:
		if v.Len() < 2 {
			return 0
		}
		family, _ := v.Items[0].(raw.NameObj)
		switch family.Value() {
		case "CalGray":
			return 1
		case "CalRGB":
			return 3
		case "ICCBased":
			if profile, ok := doc.Resolve(v.Items[1]).(*raw.StreamObj); ok {
				n, _ := profile.Dict.IntValue("N")
				return int(n)
			}
		}
	}
	return 0
}
