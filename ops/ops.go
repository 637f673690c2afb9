// Package ops implements the document transforms: merge, split, rotate,
// watermark and compress. Every operation validates its options before
// touching any input, runs under the governor's budget for its kind,
// reports monotonic progress and returns a typed error on failure.
package ops

import (
	"context"
	"time"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/governor"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

// Producer is written as Creator and Producer of documents the engine builds.
const Producer = "PDF Tools"

// memoryCheckEvery is how many pages pass between midpoint memory checks.
const memoryCheckEvery = 10

// PageOutcome records the result of processing one page. Err is nil on
// success.
type PageOutcome struct {
	Index int
	Err   error
}

// Engine runs operations with shared limits, budgets and logging.
type Engine struct {
	gov           *governor.Governor
	logger        observability.Logger
	limits        map[string]validation.Limits
	lenient       bool
	deterministic bool
}

type Option func(*Engine)

func WithGovernor(g *governor.Governor) Option { return func(e *Engine) { e.gov = g } }
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) { e.logger = observability.OrNop(l) }
}

// WithLimits overrides the input limits of op.
func WithLimits(op string, l validation.Limits) Option {
	return func(e *Engine) { e.limits[op] = l }
}

// WithLenientLoading repairs damaged inputs instead of rejecting them.
func WithLenientLoading(on bool) Option { return func(e *Engine) { e.lenient = on } }

// WithDeterministicOutput makes output bytes depend only on the input.
func WithDeterministicOutput(on bool) Option { return func(e *Engine) { e.deterministic = on } }

func New(opts ...Option) *Engine {
	e := &Engine{
		logger: observability.NopLogger{},
		limits: make(map[string]validation.Limits),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.gov == nil {
		e.gov = governor.New(governor.WithLogger(e.logger))
	}
	return e
}

func (e *Engine) Governor() *governor.Governor { return e.gov }

func (e *Engine) limitsFor(op string) validation.Limits {
	if l, ok := e.limits[op]; ok {
		return l
	}
	return validation.DefaultLimits(op)
}

func (e *Engine) validatePDFs(op string, files []validation.File) error {
	return validation.Files(files, e.limitsFor(op), validation.KindPDF)
}

// load parses f, charging its size to the governor. Failures are
// DocumentLoad errors naming the file.
func (e *Engine) load(ctx context.Context, f validation.File) (*document.Document, error) {
	e.gov.Charge(f.Size())
	doc, err := document.Load(ctx, f.Data, document.LoadOptions{Lenient: e.lenient, Logger: e.logger})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pdferr.Load(f.Name, err)
	}
	return doc, nil
}

func (e *Engine) release(files ...validation.File) {
	for _, f := range files {
		e.gov.Release(f.Size())
	}
}

// midpoint fails when memory is above the op's midpoint threshold.
func (e *Engine) midpoint(op string) error {
	return e.gov.Check(e.gov.Budget(op).Midpoint)
}

func (e *Engine) save(ctx context.Context, op string, doc *document.Document, opts document.SaveOptions) ([]byte, error) {
	opts.Deterministic = opts.Deterministic || e.deterministic
	data, err := doc.Save(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pdferr.Processing(op, err)
	}
	return data, nil
}

// run executes fn under op's governor budget, closing tracker according to
// the outcome and logging start and completion.
func run[T any](ctx context.Context, e *Engine, op string, tracker *progress.Tracker, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	e.logger.Debug("operation started", observability.String("op", op))
	v, err := governor.Run(ctx, e.gov, op, fn)
	if err != nil {
		tracker.Fail()
		e.logger.Warn("operation failed",
			observability.String("op", op),
			observability.String("kind", pdferr.KindOf(err).String()),
			observability.Error("error", err))
		return v, err
	}
	tracker.Done()
	e.logger.Info("operation completed",
		observability.String("op", op),
		observability.Duration("elapsed", time.Since(start)))
	return v, nil
}

// checkPageIndices reports the first index outside [0,count).
func checkPageIndices(indices []int, count int) error {
	for _, i := range indices {
		if i < 0 || i >= count {
			return pdferr.Validationf("Invalid page number: %d. PDF has %d pages.", i+1, count)
		}
	}
	return nil
}

func allPages(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// compressionRatio is the size reduction in percent, never negative.
func compressionRatio(original, compressed int64) int {
	if original <= 0 {
		return 0
	}
	r := int((float64(original-compressed)/float64(original))*100 + 0.5)
	if original-compressed < 0 || r < 0 {
		return 0
	}
	return r
}

func fileStem(name string) string { return validation.BaseName(name) }
