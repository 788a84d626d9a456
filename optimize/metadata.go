package optimize

import (
	"github.com/wudi/pdfslim/ir/raw"
	"github.com/wudi/pdfslim/observability"
)

// removeMetadata empties the trailer's /Info dictionary in place. It never
// fails; a missing dictionary is a no-op.
func (o *Optimizer) removeMetadata(doc *raw.Document) bool {
	info, ok := doc.Trailer.Lookup("Info")
	if !ok {
		o.logger.Warn("no metadata found to remove")
		return false
	}
	dict, ok := doc.Resolve(info).(*raw.DictObj)
	if !ok {
		o.logger.Warn("document info is not a dictionary", observability.String("type", typeName(info)))
		return false
	}
	n := dict.Len()
	dict.Clear()
	o.logger.Info("metadata removed", observability.Int("entries", n))
	return true
}

func typeName(obj raw.Object) string {
	if obj == nil {
		return "null"
	}
	return obj.Type()
}
