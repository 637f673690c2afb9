package extractor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

// PageText captures extracted text per page along with optional labels.
type PageText struct {
	Page    int
	Label   string
	Content string
}

// ExtractText returns best-effort text for every page. Pages whose content
// cannot be read yield an empty Content and are reported in the error list.
func (e *Extractor) ExtractText(ctx context.Context) ([]PageText, []error) {
	out := make([]PageText, 0, len(e.pages))
	var errs []error
	for idx := range e.pages {
		if err := ctx.Err(); err != nil {
			return out, append(errs, err)
		}
		text, err := e.PageText(ctx, idx)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", idx+1, err))
		}
		out = append(out, PageText{Page: idx, Label: e.pageLabels[idx], Content: text})
	}
	return out, errs
}

// PageText extracts the text of page idx (zero-based).
func (e *Extractor) PageText(ctx context.Context, idx int) (string, error) {
	w, err := e.walk(ctx, idx)
	if w == nil {
		return "", err
	}
	return strings.TrimSpace(w.out.String()), err
}

// TextRun is the text shown by one string operand, with the text rendering
// matrix in effect when it started.
type TextRun struct {
	Text   string
	Matrix coords.Matrix
	// Font is the resource name of the font; BaseFont its PostScript name.
	Font     string
	BaseFont string
	Fill     [3]float64
}

// Origin is the start of the run in user space.
func (r TextRun) Origin() coords.Point { return r.Matrix.Transform(coords.Point{}) }

// Size is the rendered font size in user space units.
func (r TextRun) Size() float64 { return r.Matrix.ScaleFactor() }

// PageRuns returns the positioned text runs of page idx in content order.
func (e *Extractor) PageRuns(ctx context.Context, idx int) ([]TextRun, error) {
	w, err := e.walk(ctx, idx)
	if w == nil {
		return nil, err
	}
	return w.runs, err
}

func (e *Extractor) walk(ctx context.Context, idx int) (*textWriter, error) {
	if idx < 0 || idx >= len(e.pages) {
		return nil, fmt.Errorf("page index %d out of range", idx)
	}
	page := e.pages[idx]
	var data []byte
	for _, obj := range contentStreams(e.raw, page) {
		if b, ok := e.streamBytes(ctx, obj); ok {
			data = append(data, b...)
			data = append(data, '\n')
		}
	}
	ops, err := contentstream.Parse(data)
	if err != nil && len(ops) == 0 {
		return nil, err
	}
	res, _ := inherited(e.raw, page, "Resources").(*raw.DictObj)
	w := &textWriter{e: e, ctx: ctx, fonts: e.pageFonts(page)}
	p := contentstream.NewProcessor()
	show := contentstream.HandlerFunc(w.show)
	for _, op := range []string{"Tj", "TJ", "'", "\""} {
		p.RegisterHandler(op, show)
	}
	return w, p.Process(ctx, ops, &contentstream.ExecutionContext{Resources: res, Doc: e.raw})
}

func contentStreams(doc *raw.Document, page *raw.DictObj) []raw.Object {
	switch v := doc.Resolve(page.KV["Contents"]).(type) {
	case *raw.StreamObj:
		return []raw.Object{v}
	case *raw.ArrayObj:
		return v.Items
	}
	return nil
}

// textWriter lays shown strings out in reading order using their device
// positions: a vertical jump starts a new line, a horizontal gap adds a space.
type textWriter struct {
	e     *Extractor
	ctx   context.Context
	fonts *raw.DictObj
	out   strings.Builder

	runs    []TextRun
	started bool
	lastEnd coords.Point
	lastY   float64
	size    float64
}

func (w *textWriter) show(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
	gs := ec.State
	dec := w.e.fontDecoder(w.ctx, w.fonts.KV[gs.Text.Font])
	if len(op.Operands) == 0 {
		return nil
	}
	switch arg := op.Operands[len(op.Operands)-1].(type) {
	case raw.StringObj:
		w.run(gs, dec, arg.Bytes)
	case *raw.ArrayObj:
		for _, item := range arg.Items {
			switch v := item.(type) {
			case raw.StringObj:
				w.run(gs, dec, v.Bytes)
			case raw.NumberObj:
				if v.Float() < -200 && w.started {
					w.space()
				}
				gs.Text.Advance(-v.Float() / 1000 * gs.Text.FontSize * gs.Text.HScale)
			}
		}
	}
	return nil
}

func (w *textWriter) run(gs *contentstream.GraphicsState, dec *fontDecoder, data []byte) {
	glyphs := dec.decode(data)
	if len(glyphs) == 0 {
		return
	}
	trm := gs.TextRenderingMatrix()
	origin := trm.Transform(coords.Point{})
	var text strings.Builder
	for _, g := range glyphs {
		text.WriteString(g.text)
	}
	w.runs = append(w.runs, TextRun{
		Text:     text.String(),
		Matrix:   trm,
		Font:     gs.Text.Font,
		BaseFont: w.baseFont(gs.Text.Font),
		Fill:     gs.FillRGB,
	})
	size := math.Max(trm.ScaleFactor(), 1)

	if w.started {
		switch {
		case math.Abs(origin.Y-w.lastY) > math.Max(size, w.size)*0.5:
			w.out.WriteByte('\n')
		case origin.X-w.lastEnd.X > size*0.2:
			w.space()
		}
	}
	ts := &gs.Text
	for _, g := range glyphs {
		w.out.WriteString(g.text)
		adv := g.width/1000*ts.FontSize + ts.CharSpacing
		if g.space {
			adv += ts.WordSpacing
		}
		ts.Advance(adv * ts.HScale)
	}
	w.started = true
	w.lastEnd = gs.TextRenderingMatrix().Transform(coords.Point{})
	w.lastY = origin.Y
	w.size = size
}

func (w *textWriter) baseFont(resource string) string {
	if w.fonts == nil {
		return ""
	}
	dict, ok := w.e.raw.ResolveDict(w.fonts.KV[resource])
	if !ok {
		return ""
	}
	name, _ := dict.Name("BaseFont")
	return name
}

func (w *textWriter) space() {
	s := w.out.String()
	if len(s) > 0 && s[len(s)-1] != ' ' && s[len(s)-1] != '\n' {
		w.out.WriteByte(' ')
	}
}
