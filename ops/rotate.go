package ops

import (
	"context"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

type RotateOptions struct {
	// Angle is the clockwise rotation to add: 90, 180 or 270.
	Angle int
	// Pages lists 0-based page indices; nil rotates every page.
	Pages    []int
	Progress progress.Func
}

type RotateResult struct {
	Data          []byte
	FileName      string
	OriginalSize  int64
	ProcessedSize int64
	PagesRotated  int
}

func validAngle(a int) bool { return a == 90 || a == 180 || a == 270 }

// Rotate adds Angle to the rotation of the selected pages. All indices are
// validated before any page changes; content streams are not touched.
func (e *Engine) Rotate(ctx context.Context, file validation.File, opts RotateOptions) (*RotateResult, error) {
	if !validAngle(opts.Angle) {
		return nil, pdferr.Validationf("Invalid rotation angle: %d. Must be 90, 180, or 270 degrees.", opts.Angle)
	}
	if err := e.validatePDFs("rotate", []validation.File{file}); err != nil {
		return nil, err
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, e, "rotate", tracker, func(ctx context.Context) (*RotateResult, error) {
		defer e.release(file)
		tracker.Report(10)
		doc, err := e.load(ctx, file)
		if err != nil {
			return nil, err
		}
		tracker.Report(30)

		targets := opts.Pages
		if targets == nil {
			targets = allPages(doc.PageCount())
		}
		if err := checkPageIndices(targets, doc.PageCount()); err != nil {
			return nil, err
		}
		targets = dedupe(targets)
		tracker.Report(40)

		for i, idx := range targets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, _ := doc.Page(idx)
			if err := p.Rotate(opts.Angle); err != nil {
				return nil, pdferr.PageFailure("rotate", idx, err)
			}
			tracker.Fraction(i+1, len(targets), 40, 80)
		}

		data, err := e.save(ctx, "rotate", doc, document.SaveOptions{Progress: tracker.Band(80, 99)})
		if err != nil {
			return nil, err
		}
		return &RotateResult{
			Data:          data,
			FileName:      fileStem(file.Name) + "_rotated.pdf",
			OriginalSize:  file.Size(),
			ProcessedSize: int64(len(data)),
			PagesRotated:  len(targets),
		}, nil
	})
}

func dedupe(indices []int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}

// RotationDescription describes a rotation angle for display.
func RotationDescription(angle int) string {
	switch angle {
	case 90:
		return "Rotate 90° clockwise (portrait to landscape)"
	case 180:
		return "Rotate 180° (upside down)"
	case 270:
		return "Rotate 270° clockwise (landscape to portrait)"
	}
	return "No rotation"
}
