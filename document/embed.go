package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
)

// Font is a standard font registered in a document.
type Font struct {
	Family  fonts.Family
	Metrics *fonts.Metrics
	ref     raw.RefObj
	name    string
}

// Image is an image XObject registered in a document.
type Image struct {
	Width, Height int
	ref           raw.RefObj
	name          string
}

// GState is an ExtGState carrying constant fill and stroke opacity.
type GState struct {
	Opacity float64
	ref     raw.RefObj
	name    string
}

func (d *Document) resourceName(prefix string) string {
	d.nextRes++
	return prefix + strconv.Itoa(d.nextRes)
}

// EmbedStandardFont registers one of the standard fonts. Repeated calls for
// the same family return the same handle.
func (d *Document) EmbedStandardFont(family fonts.Family) (*Font, error) {
	if f, ok := d.fonts[string(family)]; ok {
		return f, nil
	}
	m, err := fonts.Lookup(family)
	if err != nil {
		return nil, err
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Font"))
	dict.Set("Subtype", raw.NameLiteral("Type1"))
	dict.Set("BaseFont", raw.NameLiteral(string(family)))
	dict.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	f := &Font{Family: family, Metrics: m, ref: d.raw.Add(dict), name: d.resourceName("EF")}
	d.fonts[string(family)] = f
	return f, nil
}

// EmbedJPEG stores JPEG data as a DCT-encoded image without re-encoding it.
func (d *Document) EmbedJPEG(data []byte) (*Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg header: %w", err)
	}
	if err := filters.ValidateImageBounds(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	dict := imageDict(cfg.Width, cfg.Height)
	switch cfg.ColorModel {
	case color.GrayModel:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
	case color.CMYKModel:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceCMYK"))
		// Adobe writes inverted CMYK JPEGs
		dict.Set("Decode", raw.Numbers(1, 0, 1, 0, 1, 0, 1, 0))
	default:
		dict.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	}
	dict.Set("Filter", raw.NameLiteral("DCTDecode"))
	st := raw.NewStream(dict, append([]byte(nil), data...))
	return &Image{Width: cfg.Width, Height: cfg.Height, ref: d.raw.Add(st), name: d.resourceName("EIm")}, nil
}

// EmbedPNG decodes PNG data and embeds the pixels.
func (d *Document) EmbedPNG(data []byte) (*Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return d.EmbedImage(img)
}

// EmbedImage stores img as Flate-compressed 8-bit RGB. Any transparency
// becomes a DeviceGray soft mask.
func (d *Document) EmbedImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if err := filters.ValidateImageBounds(w, h); err != nil {
		return nil, err
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != 4*w {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		px := nrgba.Pix[i*4 : i*4+4]
		pixels = append(pixels, px[0], px[1], px[2])
		alpha = append(alpha, px[3])
		if px[3] < 255 {
			hasAlpha = true
		}
	}

	dict := imageDict(w, h)
	dict.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	if err := setFlateData(dict, &pixels); err != nil {
		return nil, err
	}
	if hasAlpha {
		mdict := imageDict(w, h)
		mdict.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
		if err := setFlateData(mdict, &alpha); err != nil {
			return nil, err
		}
		dict.Set("SMask", d.raw.Add(raw.NewStream(mdict, alpha)))
	}
	return &Image{Width: w, Height: h, ref: d.raw.Add(raw.NewStream(dict, pixels)), name: d.resourceName("EIm")}, nil
}

func imageDict(w, h int) *raw.DictObj {
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XObject"))
	dict.Set("Subtype", raw.NameLiteral("Image"))
	dict.Set("Width", raw.NumberInt(int64(w)))
	dict.Set("Height", raw.NumberInt(int64(h)))
	dict.Set("BitsPerComponent", raw.NumberInt(8))
	return dict
}

func setFlateData(dict *raw.DictObj, data *[]byte) error {
	enc, err := filters.FlateEncode(*data, 6)
	if err != nil {
		return err
	}
	*data = enc
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	return nil
}

// Opacity returns an ExtGState for alpha, clamped to [0,1] and rounded to
// three decimals. Equal values share one object.
func (d *Document) Opacity(alpha float64) *GState {
	alpha = math.Round(math.Max(0, math.Min(1, alpha))*1000) / 1000
	key := strconv.FormatFloat(alpha, 'f', -1, 64)
	if gs, ok := d.gstates[key]; ok {
		return gs
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("ExtGState"))
	dict.Set("ca", raw.NumberFloat(alpha))
	dict.Set("CA", raw.NumberFloat(alpha))
	gs := &GState{Opacity: alpha, ref: d.raw.Add(dict), name: d.resourceName("EGS")}
	d.gstates[key] = gs
	return gs
}
