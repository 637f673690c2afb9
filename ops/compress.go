package ops

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/optimize"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) valid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// stripsMetadata reports whether q is medium or lower.
func (q Quality) stripsMetadata() bool { return q != QualityHigh }

type Strategy string

const (
	StrategyInPlace        Strategy = "in-place"
	StrategyReconstruction Strategy = "reconstruction"
)

type CompressOptions struct {
	Quality  Quality
	Progress progress.Func
}

type CompressResult struct {
	Data           []byte
	FileName       string
	OriginalSize   int64
	CompressedSize int64
	// Ratio is the size reduction in percent, never negative.
	Ratio    int
	Strategy Strategy
	// Outcomes lists pages the winning strategy had to skip.
	Outcomes []PageOutcome
	Message  string
	Notes    []string
}

// strategyResult is the output of one compression strategy.
type strategyResult struct {
	strategy Strategy
	data     []byte
	skipped  []PageOutcome
	report   optimize.Report
}

type inPlaceSettings struct {
	objectStreams bool
	tick          int
	level         int
}

var inPlaceByQuality = map[Quality]inPlaceSettings{
	QualityLow:    {objectStreams: true, tick: 100, level: 9},
	QualityMedium: {objectStreams: true, tick: 50, level: 6},
	QualityHigh:   {objectStreams: false, tick: 25, level: 4},
}

var reconstructTick = map[Quality]int{
	QualityLow:    1000,
	QualityMedium: 200,
	QualityHigh:   50,
}

// imageDominated is the share of skipped image streams among all
// recompression candidates above which the result carries a note.
const imageDominated = 0.5

// CompressionCapabilities describes what Compress does and does not do.
func CompressionCapabilities() []string {
	return []string{
		"Removes unused objects and merges duplicate resources",
		"Recompresses uncompressed and Flate streams",
		"Strips optional metadata at low and medium quality",
		"Embedded images are not recompressed or downsampled; image-heavy documents shrink little",
	}
}

// Compress runs an in-place optimization and a full reconstruction of the
// document concurrently and keeps the smaller output.
func (e *Engine) Compress(ctx context.Context, file validation.File, opts CompressOptions) (*CompressResult, error) {
	if opts.Quality == "" {
		opts.Quality = QualityMedium
	}
	if !opts.Quality.valid() {
		return nil, pdferr.Validationf("Invalid compression quality: %s. Must be low, medium, or high.", opts.Quality)
	}
	if err := e.validatePDFs("compress", []validation.File{file}); err != nil {
		return nil, err
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, e, "compress", tracker, func(ctx context.Context) (*CompressResult, error) {
		tracker.Report(10)

		strategies := []func(context.Context) (*strategyResult, error){
			func(ctx context.Context) (*strategyResult, error) { return e.compressInPlace(ctx, file, opts.Quality) },
			func(ctx context.Context) (*strategyResult, error) { return e.reconstruct(ctx, file, opts.Quality) },
		}
		results := make([]*strategyResult, len(strategies))
		errs := make([]error, len(strategies))
		// a failing strategy must not cancel the other, so goroutines
		// never return an error to the group
		var g errgroup.Group
		var finished atomic.Int32
		for i, s := range strategies {
			g.Go(func() error {
				results[i], errs[i] = s(ctx)
				tracker.Fraction(int(finished.Add(1)), len(strategies), 10, 90)
				return nil
			})
		}
		_ = g.Wait()
		tracker.Report(90)

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var best *strategyResult
		for i, r := range results {
			if errs[i] != nil {
				e.logger.Warn("compression strategy failed",
					observability.Int("strategy", i), observability.Error("error", errs[i]))
				continue
			}
			e.logger.Info("compression strategy finished",
				observability.String("strategy", string(r.strategy)),
				observability.Int("size", len(r.data)))
			if best == nil || len(r.data) < len(best.data) {
				best = r
			}
		}
		if best == nil {
			for _, err := range errs {
				if pdferr.Is(err, pdferr.KindMemoryExceeded) {
					return nil, err
				}
			}
			return nil, pdferr.Processing("compress", fmt.Errorf("all compression methods failed: %w", errors.Join(errs...)))
		}
		return e.compressResult(file, best), nil
	})
}

func (e *Engine) compressResult(file validation.File, best *strategyResult) *CompressResult {
	original := file.Size()
	size := int64(len(best.data))
	ratio := compressionRatio(original, size)
	res := &CompressResult{
		Data:           best.data,
		FileName:       fileStem(file.Name) + "_compressed.pdf",
		OriginalSize:   original,
		CompressedSize: size,
		Ratio:          ratio,
		Strategy:       best.strategy,
		Outcomes:       best.skipped,
	}
	if ratio > 0 {
		res.Message = fmt.Sprintf("Compressed from %s to %s (%d%% reduction)",
			validation.FormatSize(original), validation.FormatSize(size), ratio)
	} else {
		res.Message = fmt.Sprintf("File size: %s (no significant compression achieved)", validation.FormatSize(size))
	}
	rep := best.report
	if candidates := rep.Recompressed + rep.SkippedImages; candidates > 0 &&
		float64(rep.SkippedImages)/float64(candidates) > imageDominated {
		res.Notes = append(res.Notes, fmt.Sprintf(
			"%d embedded images were left as-is; image data is not recompressed", rep.SkippedImages))
	}
	return res
}

// compressInPlace optimizes the loaded document and serializes it with
// quality-dependent hints.
func (e *Engine) compressInPlace(ctx context.Context, file validation.File, q Quality) (*strategyResult, error) {
	defer e.release(file)
	doc, err := e.load(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := e.midpoint("compress"); err != nil {
		return nil, err
	}
	if q.stripsMetadata() {
		doc.SetMetadata(document.Metadata{Creator: Producer, Producer: Producer})
	}
	settings := inPlaceByQuality[q]
	rep, err := optimize.New(optimize.Config{
		PruneUnreachable:  true,
		CombineDuplicates: true,
		CompressStreams:   true,
		CompressionLevel:  settings.level,
		StripMetadata:     q.stripsMetadata(),
		Filters:           doc.Filters(),
		Logger:            e.logger,
	}).Optimize(ctx, doc.Raw())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// a failed pass leaves the document valid; serialize what we have
		e.logger.Warn("optimization incomplete", observability.Error("error", err))
	}

	data, err := e.save(ctx, "compress", doc, document.SaveOptions{
		UseObjectStreams:       settings.objectStreams,
		ObjectsPerTick:         settings.tick,
		UpdateFieldAppearances: q == QualityHigh,
	})
	if err != nil {
		return nil, err
	}
	if q == QualityLow {
		// object streams do not always win on small files
		plain, perr := e.save(ctx, "compress", doc, document.SaveOptions{ObjectsPerTick: settings.tick})
		if perr == nil && len(plain) < len(data) {
			data = plain
		}
	}
	return &strategyResult{strategy: StrategyInPlace, data: data, report: rep}, nil
}

// copyPage moves page i of src onto the end of out. Each page is copied on
// its own so one bad page cannot sink the rest; resources shared between
// pages are merged again by CombineDuplicates.
var copyPage = func(out, src *document.Document, i int) error {
	pages, err := out.CopyPages(src, []int{i})
	if err != nil {
		return err
	}
	return out.AddPage(pages[0])
}

// reconstruct copies every page into a fresh document. Pages that fail to
// attach are skipped and reported.
func (e *Engine) reconstruct(ctx context.Context, file validation.File, q Quality) (*strategyResult, error) {
	defer e.release(file)
	src, err := e.load(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := e.midpoint("compress"); err != nil {
		return nil, err
	}
	out := document.NewEmpty()
	if q.stripsMetadata() {
		out.SetMetadata(document.Metadata{Creator: Producer, Producer: Producer})
	} else {
		out.SetMetadata(src.Metadata())
	}

	var skipped []PageOutcome
	for i := range src.PageCount() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := copyPage(out, src, i); err != nil {
			e.logger.Warn("failed to copy page during reconstruction",
				observability.Int("page", i), observability.Error("error", err))
			skipped = append(skipped, PageOutcome{Index: i, Err: pdferr.PageFailure("compress", i, err)})
			continue
		}
		if (i+1)%memoryCheckEvery == 0 {
			if err := e.midpoint("compress"); err != nil {
				return nil, err
			}
		}
	}
	if out.PageCount() == 0 {
		return nil, pdferr.Processingf("compress", "no pages could be reconstructed")
	}

	rep, err := optimize.New(optimize.Config{
		CombineDuplicates: true,
		CompressStreams:   true,
		CompressionLevel:  inPlaceByQuality[q].level,
		Filters:           out.Filters(),
		Logger:            e.logger,
	}).Optimize(ctx, out.Raw())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("optimization incomplete", observability.Error("error", err))
	}

	data, err := e.save(ctx, "compress", out, document.SaveOptions{
		UseObjectStreams:       true,
		ObjectsPerTick:         reconstructTick[q],
		UpdateFieldAppearances: q == QualityHigh,
	})
	if err != nil {
		return nil, err
	}
	return &strategyResult{strategy: StrategyReconstruction, data: data, skipped: skipped, report: rep}, nil
}
