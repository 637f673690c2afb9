package ops

import (
	"context"
	"fmt"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

type MergeOptions struct {
	// PreserveMetadata copies title, author and subject from the first file.
	PreserveMetadata bool
	Progress         progress.Func
}

func DefaultMergeOptions() MergeOptions {
	return MergeOptions{PreserveMetadata: true}
}

type MergeResult struct {
	Data          []byte
	FileName      string
	OriginalSize  int64
	ProcessedSize int64
	PagesMerged   int
}

// Merge concatenates the pages of files in the given order. A single file
// is returned unchanged. Any unreadable file fails the whole merge.
func (e *Engine) Merge(ctx context.Context, files []validation.File, opts MergeOptions) (*MergeResult, error) {
	if len(files) == 0 {
		return nil, pdferr.Validationf("No files provided for merging")
	}
	if err := e.validatePDFs("merge", files); err != nil {
		return nil, err
	}
	tracker := progress.New(opts.Progress)
	var original int64
	for _, f := range files {
		original += f.Size()
	}
	if len(files) == 1 {
		tracker.Done()
		return &MergeResult{
			Data:          files[0].Data,
			FileName:      files[0].Name,
			OriginalSize:  original,
			ProcessedSize: original,
			PagesMerged:   e.countPages(ctx, files[0]),
		}, nil
	}
	return run(ctx, e, "merge", tracker, func(ctx context.Context) (*MergeResult, error) {
		defer e.release(files...)
		return e.merge(ctx, files, opts, tracker, original)
	})
}

// MergeWithOrder merges files rearranged by order, which must be a
// permutation of the file indices.
func (e *Engine) MergeWithOrder(ctx context.Context, files []validation.File, order []int, opts MergeOptions) (*MergeResult, error) {
	if len(order) != len(files) {
		return nil, pdferr.Validationf("Order array length must match files array length")
	}
	seen := make([]bool, len(files))
	reordered := make([]validation.File, len(order))
	for i, idx := range order {
		if idx < 0 || idx >= len(files) {
			return nil, pdferr.Validationf("Invalid order index: %d", idx)
		}
		if seen[idx] {
			return nil, pdferr.Validationf("Duplicate order index: %d", idx)
		}
		seen[idx] = true
		reordered[i] = files[idx]
	}
	return e.Merge(ctx, reordered, opts)
}

func (e *Engine) countPages(ctx context.Context, f validation.File) int {
	doc, err := document.Load(ctx, f.Data, document.LoadOptions{Lenient: e.lenient})
	if err != nil {
		e.logger.Debug("could not count pages of pass-through file",
			observability.String("file", f.Name), observability.Error("error", err))
		return 0
	}
	return doc.PageCount()
}

func (e *Engine) merge(ctx context.Context, files []validation.File, opts MergeOptions, tracker *progress.Tracker, original int64) (*MergeResult, error) {
	// every source is loaded before copying so a bad file fails fast and
	// the page total is known for progress
	sources := make([]*document.Document, len(files))
	total := 0
	for i, f := range files {
		if err := e.midpoint("merge"); err != nil {
			return nil, err
		}
		doc, err := e.load(ctx, f)
		if err != nil {
			if pdferr.Is(err, pdferr.KindDocumentLoad) {
				pe := pdferr.Processing("merge", err)
				pe.File = f.Name
				return nil, pe
			}
			return nil, err
		}
		sources[i] = doc
		total += doc.PageCount()
	}

	out := document.NewEmpty()
	md := document.Metadata{Creator: Producer, Producer: Producer}
	if opts.PreserveMetadata {
		first := sources[0].Metadata()
		md.Title, md.Author, md.Subject = first.Title, first.Author, first.Subject
	}
	out.SetMetadata(md)

	merged := 0
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.midpoint("merge"); err != nil {
			return nil, err
		}
		pages, err := out.CopyPages(src, allPages(src.PageCount()))
		if err != nil {
			pe := pdferr.Processing("merge", fmt.Errorf("copy pages of %s: %w", files[i].Name, err))
			pe.File = files[i].Name
			return nil, pe
		}
		for _, p := range pages {
			if err := out.AddPage(p); err != nil {
				return nil, pdferr.Processing("merge", err)
			}
			merged++
			if merged%memoryCheckEvery == 0 {
				if err := e.midpoint("merge"); err != nil {
					return nil, err
				}
			}
			tracker.Fraction(merged, total, 0, 90)
		}
		sources[i] = nil
	}

	data, err := e.save(ctx, "merge", out, document.SaveOptions{Progress: tracker.Band(90, 99)})
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		Data:          data,
		FileName:      "merged.pdf",
		OriginalSize:  original,
		ProcessedSize: int64(len(data)),
		PagesMerged:   merged,
	}, nil
}
