package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
)

// compressStreams deflates every stream that declares no filter.
func (o *Optimizer) compressStreams(ctx context.Context, doc *raw.Document, rep *Report) error {
	for _, ref := range doc.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		enc := Classify(st)
		if !enc.genericStage() {
			continue
		}
		original := len(st.Data)
		compressed, err := o.compressor.Compress(st.Data, DeflateLevel)
		if err != nil {
			return &Error{Kind: KindIO, Ref: ref, Err: fmt.Errorf("deflate: %w", err)}
		}

		res := StreamResult{
			Ref:          ref,
			Stage:        StageGeneric,
			Encoding:     enc,
			OriginalSize: original,
			NewSize:      original,
		}
		log := o.logger.With(
			observability.String("ref", ref.String()),
			observability.Int("original", original),
			observability.Int("compressed", len(compressed)),
		)
		if len(compressed) < original {
			st.Data = compressed
			st.Dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
			st.Dict.Delete("DecodeParms")
			st.Dict.Set(raw.NameLiteral("Length"), raw.NumberInt(int64(len(compressed))))
			res.Outcome = OutcomeReplaced
			res.NewSize = len(compressed)
			log.Info("text stream compressed", observability.Float64("reduction", res.Reduction()))
		} else {
			res.Reason = ReasonNotSmaller
			log.Warn("text stream compression ineffective, keeping original")
		}
		rep.Streams = append(rep.Streams, res)
	}
	return nil
}
