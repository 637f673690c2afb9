package filters

import "github.com/wudi/pdfengine/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// Both entries are expected to be direct objects.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}

	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	if pObj, ok := dict.Get("DecodeParms"); ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := item.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

// IsImageCodec reports whether name is a lossy or bilevel image codec whose
// payload is passed through untouched.
func IsImageCodec(name string) bool {
	switch name {
	case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode", "CCF":
		return true
	}
	return false
}

func intParam(params *raw.DictObj, key string, def int) int {
	if params == nil {
		return def
	}
	if n, ok := params.KV[key].(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}
