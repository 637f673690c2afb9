package contentstream

import (
	"errors"

	"github.com/wudi/pdfengine/coords"
)

// GraphicsState is the subset of the PDF graphics state the engine tracks.
type GraphicsState struct {
	CTM       coords.Matrix
	LineWidth float64
	FillRGB   [3]float64
	StrokeRGB [3]float64
	Text      TextState
	stack     []GraphicsState
}

// TextState follows the text operators between BT and ET.
type TextState struct {
	Font           string
	FontSize       float64
	CharSpacing    float64
	WordSpacing    float64
	HScale         float64
	Leading        float64
	Rise           float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

func NewGraphicsState() *GraphicsState {
	return &GraphicsState{
		CTM:       coords.Identity(),
		LineWidth: 1,
		Text:      TextState{HScale: 1, TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()},
	}
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	gs.stack = append(gs.stack, clone)
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	stack := gs.stack[:n-1]
	*gs = gs.stack[n-1]
	gs.stack = stack
	return nil
}

// Depth is the number of saved states.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

// TextRenderingMatrix maps glyph space (scaled by font size) to device space.
func (gs *GraphicsState) TextRenderingMatrix() coords.Matrix {
	ts := gs.Text
	params := coords.Matrix{ts.FontSize * ts.HScale, 0, 0, ts.FontSize, 0, ts.Rise}
	return params.Multiply(ts.TextMatrix).Multiply(gs.CTM)
}

// Advance moves the text matrix by tx text-space units.
func (ts *TextState) Advance(tx float64) {
	ts.TextMatrix = coords.Translate(tx, 0).Multiply(ts.TextMatrix)
}

func (ts *TextState) nextLine(tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}
