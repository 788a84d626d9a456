package filters

import "github.com/wudi/pdfslim/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// Params are aligned with names; missing entries are nil.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string

	filterObj, ok := dict.Get(raw.NameObj{Val: "Filter"})
	if !ok {
		return nil, nil
	}

	switch f := filterObj.(type) {
	case raw.Name:
		names = append(names, f.Value())
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.Name); ok {
				names = append(names, n.Value())
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	params := make([]raw.Dictionary, len(names))
	if pObj, ok := dict.Get(raw.NameObj{Val: "DecodeParms"}); ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params[0] = p
		case *raw.ArrayObj:
			for i, item := range p.Items {
				if i >= len(params) {
					break
				}
				if d, ok := item.(*raw.DictObj); ok {
					params[i] = d
				}
			}
		}
	}

	return names, params
}
