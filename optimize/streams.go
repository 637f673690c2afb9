package optimize

import (
	"context"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// compressStreams Flate-encodes unfiltered streams and re-encodes plain
// Flate streams at the configured level, keeping whichever is smaller.
// Streams using image codecs are never touched.
func (o *Optimizer) compressStreams(ctx context.Context, doc *raw.Document) (int, int, error) {
	recompressed, skipped := 0, 0
	for _, ref := range sortedRefs(doc) {
		if err := ctx.Err(); err != nil {
			return recompressed, skipped, err
		}
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		names, params := filters.ExtractFilters(st.Dict)
		var plain []byte
		switch {
		case len(names) == 0:
			plain = st.Data
		case len(names) == 1 && names[0] == "FlateDecode" && (len(params) == 0 || params[0] == nil):
			dec, err := o.config.Filters.DecodeStream(ctx, st)
			if err != nil {
				continue
			}
			plain = dec
		default:
			if hasImageCodec(names) {
				skipped++
			}
			continue
		}
		enc, err := filters.FlateEncode(plain, o.config.CompressionLevel)
		if err != nil {
			return recompressed, skipped, err
		}
		if len(enc) >= len(st.Data) {
			continue
		}
		st.Data = enc
		st.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
		st.Dict.Delete("DecodeParms")
		st.Dict.Set("Length", raw.NumberInt(int64(len(enc))))
		recompressed++
	}
	return recompressed, skipped, nil
}

func hasImageCodec(names []string) bool {
	for _, n := range names {
		if filters.IsImageCodec(n) {
			return true
		}
	}
	return false
}
