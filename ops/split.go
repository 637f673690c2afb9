package ops

import (
	"context"
	"fmt"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

// SplitMode selects how a document is partitioned. It is one of
// FixedChunks, Ranges or ExplicitPages.
type SplitMode interface {
	validate() error
	plan(pageCount int) ([]PageRange, error)
}

// FixedChunks cuts the document into runs of Size pages; the last run may
// be shorter.
type FixedChunks struct{ Size int }

// Ranges produces one output per inclusive 1-based range.
type Ranges struct{ Ranges []PageRange }

// ExplicitPages produces one single-page output per listed 1-based page
// number, in order. Repeats are allowed.
type ExplicitPages struct{ Pages []int }

// PageRange is an inclusive 1-based page span.
type PageRange struct{ Start, End int }

func (c FixedChunks) validate() error {
	if c.Size < 1 {
		return pdferr.Validationf("Pages per file must be at least 1")
	}
	return nil
}

func (c FixedChunks) plan(n int) ([]PageRange, error) {
	var out []PageRange
	for start := 1; start <= n; start += c.Size {
		end := start + c.Size - 1
		if end > n {
			end = n
		}
		out = append(out, PageRange{start, end})
	}
	return out, nil
}

func (r Ranges) validate() error {
	if len(r.Ranges) == 0 {
		return pdferr.Validationf("At least one page range is required")
	}
	for _, pr := range r.Ranges {
		if pr.Start < 1 || pr.Start > pr.End {
			return pdferr.Validationf("Invalid page range: %d-%d.", pr.Start, pr.End)
		}
	}
	return nil
}

func (r Ranges) plan(n int) ([]PageRange, error) {
	for _, pr := range r.Ranges {
		if pr.Start < 1 || pr.End > n || pr.Start > pr.End {
			return nil, pdferr.Validationf("Invalid page range: %d-%d. Document has %d pages.", pr.Start, pr.End, n)
		}
	}
	return append([]PageRange(nil), r.Ranges...), nil
}

func (p ExplicitPages) validate() error {
	if len(p.Pages) == 0 {
		return pdferr.Validationf("At least one page number is required")
	}
	return nil
}

func (p ExplicitPages) plan(n int) ([]PageRange, error) {
	out := make([]PageRange, 0, len(p.Pages))
	for _, num := range p.Pages {
		if num < 1 || num > n {
			return nil, pdferr.Validationf("Invalid page number: %d. Document has %d pages.", num, n)
		}
		out = append(out, PageRange{num, num})
	}
	return out, nil
}

type SplitOptions struct {
	Mode     SplitMode
	Progress progress.Func
}

type SplitOutput struct {
	Data     []byte
	FileName string
	Range    PageRange
}

type SplitResult struct {
	Outputs      []SplitOutput
	OriginalSize int64
}

// Split writes one document per planned range. Every range is checked
// against the page count before the first output is produced, and any
// failure discards all outputs.
func (e *Engine) Split(ctx context.Context, file validation.File, opts SplitOptions) (*SplitResult, error) {
	if opts.Mode == nil {
		return nil, pdferr.Validationf("Split mode is required")
	}
	if err := opts.Mode.validate(); err != nil {
		return nil, err
	}
	if err := e.validatePDFs("split", []validation.File{file}); err != nil {
		return nil, err
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, e, "split", tracker, func(ctx context.Context) (*SplitResult, error) {
		defer e.release(file)
		src, err := e.load(ctx, file)
		if err != nil {
			return nil, err
		}
		tracker.Report(10)
		ranges, err := opts.Mode.plan(src.PageCount())
		if err != nil {
			return nil, err
		}
		_, single := opts.Mode.(ExplicitPages)
		names := newNamer(fileStem(file.Name), single)

		res := &SplitResult{OriginalSize: file.Size()}
		for i, pr := range ranges {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := e.midpoint("split"); err != nil {
				return nil, err
			}
			data, err := e.extract(ctx, src, pr)
			if err != nil {
				return nil, err
			}
			res.Outputs = append(res.Outputs, SplitOutput{Data: data, FileName: names.next(pr), Range: pr})
			tracker.Fraction(i+1, len(ranges), 10, 99)
		}
		return res, nil
	})
}

func (e *Engine) extract(ctx context.Context, src *document.Document, pr PageRange) ([]byte, error) {
	indices := make([]int, 0, pr.End-pr.Start+1)
	for p := pr.Start; p <= pr.End; p++ {
		indices = append(indices, p-1)
	}
	out := document.NewEmpty()
	pages, err := out.CopyPages(src, indices)
	if err != nil {
		return nil, pdferr.Processing("split", err)
	}
	for _, p := range pages {
		if err := out.AddPage(p); err != nil {
			return nil, pdferr.Processing("split", err)
		}
	}
	return e.save(ctx, "split", out, document.SaveOptions{})
}

// namer derives output names from the source stem and page span. Repeated
// spans get a numeric suffix so names never collide.
type namer struct {
	stem   string
	single bool
	used   map[string]int
}

func newNamer(stem string, single bool) *namer {
	return &namer{stem: stem, single: single, used: make(map[string]int)}
}

func (n *namer) next(pr PageRange) string {
	var base string
	if n.single {
		base = fmt.Sprintf("%s_page_%d", n.stem, pr.Start)
	} else {
		base = fmt.Sprintf("%s_pages_%d-%d", n.stem, pr.Start, pr.End)
	}
	n.used[base]++
	if c := n.used[base]; c > 1 {
		base = fmt.Sprintf("%s_%d", base, c)
	}
	return base + ".pdf"
}
