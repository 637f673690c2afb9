package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"strings"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/extractor"
	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// Rasterizer renders one page of a document at scale device pixels per
// point.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc *document.Document, idx int, scale float64) (image.Image, error)
}

// maxFormDepth bounds nesting of form XObjects.
const maxFormDepth = 8

// VectorRasterizer draws path fills and strokes, image XObjects and text.
// Text is set horizontally in the Go fonts at the position and size the
// content stream gives it; shading, patterns, clipping and blend modes are
// not rendered.
type VectorRasterizer struct {
	// Interpolator resamples embedded images. When nil, pages rendered at
	// one pixel per point or less use ApproxBiLinear and larger scales use
	// CatmullRom.
	Interpolator draw.Interpolator

	once  sync.Once
	faces map[string]*truetype.Font
	err   error
}

func NewVectorRasterizer() *VectorRasterizer { return &VectorRasterizer{} }

func (v *VectorRasterizer) loadFaces() {
	v.faces = make(map[string]*truetype.Font, 3)
	for name, ttf := range map[string][]byte{"regular": goregular.TTF, "bold": gobold.TTF, "mono": gomono.TTF} {
		f, err := truetype.Parse(ttf)
		if err != nil {
			v.err = fmt.Errorf("parse %s font: %w", name, err)
			return
		}
		v.faces[name] = f
	}
}

func (v *VectorRasterizer) face(baseFont string) *truetype.Font {
	switch {
	case strings.Contains(baseFont, "Courier"), strings.Contains(baseFont, "Mono"):
		return v.faces["mono"]
	case strings.Contains(baseFont, "Bold"):
		return v.faces["bold"]
	}
	return v.faces["regular"]
}

func (v *VectorRasterizer) Rasterize(ctx context.Context, doc *document.Document, idx int, scale float64) (image.Image, error) {
	v.once.Do(v.loadFaces)
	if v.err != nil {
		return nil, v.err
	}
	page, err := doc.Page(idx)
	if err != nil {
		return nil, err
	}
	base, w, h := deviceMatrix(page.CropBox(), page.Rotation(), scale)
	if err := filters.ValidateImageBounds(w, h); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	ops, err := contentstream.Parse(content)
	if err != nil && len(ops) == 0 {
		return nil, err
	}
	res, _ := doc.Raw().ResolveDict(page.Dict().KV["Resources"])
	r := &pageRenderer{
		ctx:     ctx,
		img:     img,
		base:    base,
		doc:     doc.Raw(),
		filters: doc.Filters(),
		interp:  v.Interpolator,
	}
	if r.interp == nil {
		r.interp = draw.CatmullRom
		if scale <= 1 {
			r.interp = draw.ApproxBiLinear
		}
	}
	if err := r.render(ops, res, coords.Identity(), 0); err != nil {
		return nil, err
	}

	ex, err := extractor.New(doc.Raw(), doc.Filters())
	if err != nil {
		return nil, err
	}
	runs, err := ex.PageRuns(ctx, idx)
	if err != nil && len(runs) == 0 {
		return nil, err
	}
	if err := v.drawText(img, base, runs); err != nil {
		return nil, err
	}
	return img, nil
}

func (v *VectorRasterizer) drawText(img *image.RGBA, base coords.Matrix, runs []extractor.TextRun) error {
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	for _, run := range runs {
		if strings.TrimSpace(run.Text) == "" {
			continue
		}
		m := run.Matrix.Multiply(base)
		size := m.ScaleFactor()
		if size < 1 {
			continue
		}
		origin := m.Transform(coords.Point{})
		c.SetFont(v.face(run.BaseFont))
		c.SetFontSize(size)
		c.SetSrc(image.NewUniform(rgb(run.Fill)))
		if _, err := c.DrawString(run.Text, fixed.Point26_6{X: fixed.Int26_6(origin.X * 64), Y: fixed.Int26_6(origin.Y * 64)}); err != nil {
			return err
		}
	}
	return nil
}

// deviceMatrix maps user space inside box onto a top-down pixel grid,
// applying the page's clockwise display rotation.
func deviceMatrix(box coords.Rect, rotation int, s float64) (coords.Matrix, int, int) {
	box = box.Normalize()
	pw, ph := box.Width()*s, box.Height()*s
	var m coords.Matrix
	switch rotation {
	case 90:
		m = coords.Matrix{0, s, s, 0, -box.LLY * s, -box.LLX * s}
		pw, ph = ph, pw
	case 180:
		m = coords.Matrix{-s, 0, 0, s, box.URX * s, -box.LLY * s}
	case 270:
		m = coords.Matrix{0, -s, -s, 0, box.URY * s, box.URX * s}
		pw, ph = ph, pw
	default:
		m = coords.Matrix{s, 0, 0, -s, -box.LLX * s, box.URY * s}
	}
	return m, int(math.Ceil(pw - 1e-9)), int(math.Ceil(ph - 1e-9))
}

func rgb(c [3]float64) color.RGBA {
	ch := func(v float64) uint8 { return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255)) }
	return color.RGBA{R: ch(c[0]), G: ch(c[1]), B: ch(c[2]), A: 255}
}

type pathOp struct {
	kind byte // 'M', 'L', 'C' or 'Z'
	pts  [3]coords.Point
}

// pageRenderer paints path and image operators onto img. Path points are
// stored in device space.
type pageRenderer struct {
	ctx     context.Context
	img     *image.RGBA
	base    coords.Matrix
	doc     *raw.Document
	filters *filters.Pipeline
	interp  draw.Interpolator

	path    []pathOp
	current coords.Point // user space
}

func (r *pageRenderer) render(ops []contentstream.Operation, res *raw.DictObj, m coords.Matrix, depth int) error {
	p := contentstream.NewProcessor()
	for _, op := range []string{"m", "l", "c", "v", "y", "re", "h"} {
		p.RegisterHandler(op, contentstream.HandlerFunc(r.construct))
	}
	for _, op := range []string{"f", "F", "f*", "S", "s", "B", "B*", "b", "b*", "n"} {
		p.RegisterHandler(op, contentstream.HandlerFunc(r.paint))
	}
	p.RegisterHandler("Do", contentstream.HandlerFunc(func(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
		return r.xobject(ec, op, depth)
	}))
	gs := contentstream.NewGraphicsState()
	gs.CTM = m
	return p.Process(r.ctx, ops, &contentstream.ExecutionContext{State: gs, Resources: res, Doc: r.doc})
}

func (r *pageRenderer) device(gs *contentstream.GraphicsState, x, y float64) coords.Point {
	return gs.CTM.Multiply(r.base).Transform(coords.Point{X: x, Y: y})
}

func (r *pageRenderer) construct(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	if op.Operator == "h" {
		r.path = append(r.path, pathOp{kind: 'Z'})
		return nil
	}
	v, ok := op.Numbers()
	if !ok {
		return nil
	}
	gs := ec.State
	pt := func(i int) coords.Point { return r.device(gs, v[i], v[i+1]) }
	switch {
	case op.Operator == "m" && len(v) == 2:
		r.path = append(r.path, pathOp{kind: 'M', pts: [3]coords.Point{pt(0)}})
		r.current = coords.Point{X: v[0], Y: v[1]}
	case op.Operator == "l" && len(v) == 2:
		r.path = append(r.path, pathOp{kind: 'L', pts: [3]coords.Point{pt(0)}})
		r.current = coords.Point{X: v[0], Y: v[1]}
	case op.Operator == "c" && len(v) == 6:
		r.path = append(r.path, pathOp{kind: 'C', pts: [3]coords.Point{pt(0), pt(2), pt(4)}})
		r.current = coords.Point{X: v[4], Y: v[5]}
	case op.Operator == "v" && len(v) == 4:
		cur := r.device(gs, r.current.X, r.current.Y)
		r.path = append(r.path, pathOp{kind: 'C', pts: [3]coords.Point{cur, pt(0), pt(2)}})
		r.current = coords.Point{X: v[2], Y: v[3]}
	case op.Operator == "y" && len(v) == 4:
		r.path = append(r.path, pathOp{kind: 'C', pts: [3]coords.Point{pt(0), pt(2), pt(2)}})
		r.current = coords.Point{X: v[2], Y: v[3]}
	case op.Operator == "re" && len(v) == 4:
		x, y, w, h := v[0], v[1], v[2], v[3]
		r.path = append(r.path,
			pathOp{kind: 'M', pts: [3]coords.Point{r.device(gs, x, y)}},
			pathOp{kind: 'L', pts: [3]coords.Point{r.device(gs, x+w, y)}},
			pathOp{kind: 'L', pts: [3]coords.Point{r.device(gs, x+w, y+h)}},
			pathOp{kind: 'L', pts: [3]coords.Point{r.device(gs, x, y+h)}},
			pathOp{kind: 'Z'})
		r.current = coords.Point{X: x, Y: y}
	}
	return nil
}

func (r *pageRenderer) paint(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	defer func() { r.path = r.path[:0] }()
	if len(r.path) == 0 {
		return nil
	}
	gs := ec.State
	switch op.Operator {
	case "f", "F", "f*":
		r.fill(gs.FillRGB)
	case "B", "B*":
		r.fill(gs.FillRGB)
		r.stroke(gs, false)
	case "b", "b*":
		r.fill(gs.FillRGB)
		r.stroke(gs, true)
	case "S":
		r.stroke(gs, false)
	case "s":
		r.stroke(gs, true)
	}
	return nil
}

func (r *pageRenderer) rasterizer() *vector.Rasterizer {
	b := r.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func (r *pageRenderer) fill(c [3]float64) {
	z := r.rasterizer()
	started := false
	for _, p := range r.path {
		switch p.kind {
		case 'M':
			if started {
				z.ClosePath()
			}
			z.MoveTo(float32(p.pts[0].X), float32(p.pts[0].Y))
			started = true
		case 'L':
			if started {
				z.LineTo(float32(p.pts[0].X), float32(p.pts[0].Y))
			}
		case 'C':
			if started {
				z.CubeTo(float32(p.pts[0].X), float32(p.pts[0].Y),
					float32(p.pts[1].X), float32(p.pts[1].Y),
					float32(p.pts[2].X), float32(p.pts[2].Y))
			}
		case 'Z':
			if started {
				z.ClosePath()
			}
		}
	}
	if !started {
		return
	}
	z.ClosePath()
	z.Draw(r.img, r.img.Bounds(), image.NewUniform(rgb(c)), image.Point{})
}

// curveSteps is how many line segments approximate a stroked curve.
const curveSteps = 16

// stroke outlines every segment of the path as a quadrilateral of the
// current line width. Joins and caps are not drawn.
func (r *pageRenderer) stroke(gs *contentstream.GraphicsState, closeAll bool) {
	hw := gs.LineWidth * gs.CTM.Multiply(r.base).ScaleFactor() / 2
	if hw < 0.5 {
		hw = 0.5
	}
	z := r.rasterizer()
	var start, cur coords.Point
	drawn := false
	seg := func(a, b coords.Point) {
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			return
		}
		nx, ny := -dy/l*hw, dx/l*hw
		z.MoveTo(float32(a.X+nx), float32(a.Y+ny))
		z.LineTo(float32(b.X+nx), float32(b.Y+ny))
		z.LineTo(float32(b.X-nx), float32(b.Y-ny))
		z.LineTo(float32(a.X-nx), float32(a.Y-ny))
		z.ClosePath()
		drawn = true
	}
	for _, p := range r.path {
		switch p.kind {
		case 'M':
			if closeAll && cur != start {
				seg(cur, start)
			}
			start, cur = p.pts[0], p.pts[0]
		case 'L':
			seg(cur, p.pts[0])
			cur = p.pts[0]
		case 'C':
			prev := cur
			for i := 1; i <= curveSteps; i++ {
				next := cubic(cur, p.pts[0], p.pts[1], p.pts[2], float64(i)/curveSteps)
				seg(prev, next)
				prev = next
			}
			cur = p.pts[2]
		case 'Z':
			seg(cur, start)
			cur = start
		}
	}
	if closeAll && cur != start {
		seg(cur, start)
	}
	if drawn {
		z.Draw(r.img, r.img.Bounds(), image.NewUniform(rgb(gs.StrokeRGB)), image.Point{})
	}
}

func cubic(p0, p1, p2, p3 coords.Point, t float64) coords.Point {
	u := 1 - t
	a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	return coords.Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func (r *pageRenderer) xobject(ec *contentstream.ExecutionContext, op contentstream.Operation, depth int) error {
	name, ok := op.Name(0)
	if !ok || ec.Resources == nil {
		return nil
	}
	xobjects, ok := r.doc.ResolveDict(ec.Resources.KV["XObject"])
	if !ok {
		return nil
	}
	st, ok := r.doc.Resolve(xobjects.KV[name]).(*raw.StreamObj)
	if !ok {
		return nil
	}
	switch subtype, _ := st.Dict.Name("Subtype"); subtype {
	case "Image":
		img, err := decodeImage(r.ctx, r.doc, r.filters, st)
		if err != nil {
			// unsupported images are left blank rather than failing the page
			return nil
		}
		r.drawImage(ec.State, img)
	case "Form":
		if depth >= maxFormDepth {
			return nil
		}
		data, err := r.filters.DecodeStream(r.ctx, st)
		if err != nil {
			return nil
		}
		ops, _ := contentstream.Parse(data)
		m := ec.State.CTM
		if arr, ok := r.doc.ResolveArray(st.Dict.KV["Matrix"]); ok && arr.Len() == 6 {
			var fm coords.Matrix
			for i := range fm {
				fm[i], _ = r.doc.ResolveNumber(arr.Items[i])
			}
			m = fm.Multiply(m)
		}
		res, ok := r.doc.ResolveDict(st.Dict.KV["Resources"])
		if !ok {
			res = ec.Resources
		}
		// forms keep their own path state
		saved := r.path
		r.path = nil
		err = r.render(ops, res, m, depth+1)
		r.path = saved
		return err
	}
	return nil
}

// drawImage maps the unit square, and with it the image, through the CTM.
func (r *pageRenderer) drawImage(gs *contentstream.GraphicsState, img image.Image) {
	b := img.Bounds()
	toUnit := coords.Matrix{1 / float64(b.Dx()), 0, 0, -1 / float64(b.Dy()), 0, 1}
	m := coords.Translate(-float64(b.Min.X), -float64(b.Min.Y)).Multiply(toUnit).Multiply(gs.CTM).Multiply(r.base)
	s2d := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	r.interp.Transform(r.img, s2d, img, b, draw.Over, nil)
}

var errUnsupportedImage = errors.New("unsupported image encoding")

// decodeImage reads 8-bit Gray, RGB and CMYK samples and DCT data, with an
// optional soft mask.
func decodeImage(ctx context.Context, doc *raw.Document, pipeline *filters.Pipeline, st *raw.StreamObj) (image.Image, error) {
	names, params := filters.ExtractFilters(st.Dict)
	if n := len(names); n > 0 && (names[n-1] == "DCTDecode" || names[n-1] == "DCT") {
		if len(params) > n-1 {
			params = params[:n-1]
		}
		data, err := pipeline.Decode(ctx, st.Data, names[:n-1], params)
		if err != nil {
			return nil, err
		}
		return jpeg.Decode(bytes.NewReader(data))
	}
	for _, n := range names {
		if filters.IsImageCodec(n) {
			return nil, fmt.Errorf("%w: %s", errUnsupportedImage, n)
		}
	}
	w, _ := doc.ResolveNumber(st.Dict.KV["Width"])
	h, _ := doc.ResolveNumber(st.Dict.KV["Height"])
	bpc, ok := doc.ResolveNumber(st.Dict.KV["BitsPerComponent"])
	if !ok {
		bpc = 8
	}
	width, height := int(w), int(h)
	if bpc != 8 || width <= 0 || height <= 0 {
		return nil, errUnsupportedImage
	}
	if err := filters.ValidateImageBounds(width, height); err != nil {
		return nil, err
	}
	comps := components(doc, st.Dict.KV["ColorSpace"])
	if comps == 0 {
		return nil, errUnsupportedImage
	}
	data, err := pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	if len(data) < width*height*comps {
		return nil, fmt.Errorf("image data truncated: %d of %d bytes", len(data), width*height*comps)
	}

	var alpha []byte
	if mask, ok := doc.Resolve(st.Dict.KV["SMask"]).(*raw.StreamObj); ok {
		if m, err := pipeline.DecodeStream(ctx, mask); err == nil && len(m) >= width*height {
			alpha = m
		}
	}
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		px := data[i*comps : i*comps+comps]
		var c color.NRGBA
		switch comps {
		case 1:
			c = color.NRGBA{px[0], px[0], px[0], 255}
		case 3:
			c = color.NRGBA{px[0], px[1], px[2], 255}
		case 4:
			k := 255 - int(px[3])
			c = color.NRGBA{
				uint8((255 - int(px[0])) * k / 255),
				uint8((255 - int(px[1])) * k / 255),
				uint8((255 - int(px[2])) * k / 255),
				255,
			}
		}
		if alpha != nil {
			c.A = alpha[i]
		}
		out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return out, nil
}

// components returns the sample count per pixel of a device or ICC color
// space, or zero when unsupported.
func components(doc *raw.Document, cs raw.Object) int {
	switch v := doc.Resolve(cs).(type) {
	case raw.NameObj:
		switch v.Val {
		case "DeviceGray", "CalGray", "G":
			return 1
		case "DeviceRGB", "CalRGB", "RGB":
			return 3
		case "DeviceCMYK", "CMYK":
			return 4
		}
	case *raw.ArrayObj:
		if v.Len() == 2 {
			if name, _ := doc.ResolveName(v.Items[0]); name == "ICCBased" {
				if st, ok := doc.Resolve(v.Items[1]).(*raw.StreamObj); ok {
					if n, ok := doc.ResolveNumber(st.Dict.KV["N"]); ok {
						return int(n)
					}
				}
			}
			if name, _ := doc.ResolveName(v.Items[0]); name == "CalRGB" {
				return 3
			}
		}
	}
	return 0
}
