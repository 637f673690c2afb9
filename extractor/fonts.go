package extractor

import (
	"context"
	"sort"
	"strings"

	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
)

// FontInfo groups font dictionaries referenced throughout the document.
type FontInfo struct {
	ResourceName string
	BaseFont     string
	Subtype      string
	Encoding     string
	HasToUnicode bool
	Pages        []int
}

// ExtractFonts reports the distinct fonts referenced by pages and their usage.
func (e *Extractor) ExtractFonts() []FontInfo {
	fontMap := make(map[*raw.DictObj]*FontInfo)
	for idx, page := range e.pages {
		fontDict := e.pageFonts(page)
		for _, name := range fontDict.Keys() {
			dict, ok := e.raw.ResolveDict(fontDict.KV[name])
			if !ok {
				continue
			}
			info, ok := fontMap[dict]
			if !ok {
				info = &FontInfo{ResourceName: name}
				info.BaseFont, _ = dict.Name("BaseFont")
				info.Subtype, _ = dict.Name("Subtype")
				info.Encoding, _ = dict.Name("Encoding")
				_, info.HasToUnicode = e.raw.Resolve(dict.KV["ToUnicode"]).(*raw.StreamObj)
				fontMap[dict] = info
			}
			if n := len(info.Pages); n == 0 || info.Pages[n-1] != idx {
				info.Pages = append(info.Pages, idx)
			}
		}
	}
	out := make([]FontInfo, 0, len(fontMap))
	for _, info := range fontMap {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseFont == out[j].BaseFont {
			return out[i].ResourceName < out[j].ResourceName
		}
		return out[i].BaseFont < out[j].BaseFont
	})
	return out
}

func (e *Extractor) pageFonts(page *raw.DictObj) *raw.DictObj {
	res, ok := inherited(e.raw, page, "Resources").(*raw.DictObj)
	if !ok {
		return raw.Dict()
	}
	fontDict, ok := e.raw.ResolveDict(res.KV["Font"])
	if !ok {
		return raw.Dict()
	}
	return fontDict
}

// fontDecoder turns shown strings into text and advances.
type fontDecoder struct {
	cmap         *toUnicodeMap
	twoByte      bool
	firstChar    int
	widths       []float64
	cidWidths    map[int]float64
	defaultWidth float64
	std          *fonts.Metrics
}

func (e *Extractor) fontDecoder(ctx context.Context, obj raw.Object) *fontDecoder {
	dict, ok := e.raw.ResolveDict(obj)
	if !ok {
		return &fontDecoder{defaultWidth: 500}
	}
	if cached, ok := e.fontCache[dict]; ok {
		return cached
	}
	d := &fontDecoder{defaultWidth: 500}
	if data, ok := e.streamBytes(ctx, dict.KV["ToUnicode"]); ok {
		d.cmap = parseToUnicodeCMap(data)
	}
	subtype, _ := dict.Name("Subtype")
	if subtype == "Type0" {
		d.twoByte = true
		d.defaultWidth = 1000
		if desc, ok := e.raw.ResolveArray(dict.KV["DescendantFonts"]); ok && desc.Len() > 0 {
			if cid, ok := e.raw.ResolveDict(desc.Items[0]); ok {
				if dw, ok := e.raw.ResolveNumber(cid.KV["DW"]); ok {
					d.defaultWidth = dw
				}
				d.cidWidths = e.cidWidths(cid.KV["W"])
			}
		}
	} else {
		if fc, ok := e.raw.ResolveNumber(dict.KV["FirstChar"]); ok {
			d.firstChar = int(fc)
		}
		if ws, ok := e.raw.ResolveArray(dict.KV["Widths"]); ok {
			for _, w := range ws.Items {
				v, _ := e.raw.ResolveNumber(w)
				d.widths = append(d.widths, v)
			}
		}
		base, _ := dict.Name("BaseFont")
		if i := strings.IndexByte(base, '+'); i == 6 {
			base = base[i+1:]
		}
		d.std, _ = fonts.Lookup(fonts.Family(base))
	}
	e.fontCache[dict] = d
	return d
}

// cidWidths reads a CIDFont /W array: "c [w1 w2 ...]" or "cFirst cLast w".
func (e *Extractor) cidWidths(obj raw.Object) map[int]float64 {
	arr, ok := e.raw.ResolveArray(obj)
	if !ok {
		return nil
	}
	out := make(map[int]float64)
	items := arr.Items
	for i := 0; i+1 < len(items); {
		first, ok := e.raw.ResolveNumber(items[i])
		if !ok {
			break
		}
		if list, ok := e.raw.ResolveArray(items[i+1]); ok {
			for j, w := range list.Items {
				v, _ := e.raw.ResolveNumber(w)
				out[int(first)+j] = v
			}
			i += 2
			continue
		}
		if i+2 >= len(items) {
			break
		}
		last, _ := e.raw.ResolveNumber(items[i+1])
		w, _ := e.raw.ResolveNumber(items[i+2])
		for c := int(first); c <= int(last) && c-int(first) < maxBFRange; c++ {
			out[c] = w
		}
		i += 3
	}
	return out
}

type glyph struct {
	text  string
	width float64 // 1/1000 em
	space bool    // single-byte code 32, subject to word spacing
}

func (d *fontDecoder) decode(data []byte) []glyph {
	if d.cmap == nil && len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		return []glyph{{text: decodeUTF16BE(data[2:]), width: float64(len(data)-2) / 2 * d.defaultWidth}}
	}
	var out []glyph
	for len(data) > 0 {
		size := 1
		if d.twoByte && len(data) >= 2 {
			size = 2
		}
		var g glyph
		if d.cmap != nil {
			if text, n, ok := d.cmap.lookup(data); ok {
				size = n
				g.text = text
			}
		}
		code := bytesToInt(data[:size])
		if g.text == "" && d.cmap == nil {
			if d.twoByte {
				g.text = decodeUTF16BE(data[:size])
			} else {
				g.text = fonts.DecodeWinAnsi(data[:1])
			}
		}
		g.width = d.width(code)
		g.space = size == 1 && code == 32
		out = append(out, g)
		data = data[size:]
	}
	return out
}

func (d *fontDecoder) width(code int) float64 {
	if d.twoByte {
		if w, ok := d.cidWidths[code]; ok {
			return w
		}
		return d.defaultWidth
	}
	if i := code - d.firstChar; i >= 0 && i < len(d.widths) {
		return d.widths[i]
	}
	if d.std != nil {
		return d.std.GlyphWidth([]rune(fonts.DecodeWinAnsi([]byte{byte(code)}))[0])
	}
	return d.defaultWidth
}
