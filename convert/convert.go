// Package convert turns images into PDFs and PDFs into images and text,
// and lays out plain, Markdown or HTML text as new PDF documents.
package convert

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

// budgetOp is the governor operation every conversion runs under.
const budgetOp = "convert"

// Producer is written as Creator and Producer of generated documents.
const Producer = "PDF Tools"

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func (q Quality) valid() bool {
	return q == QualityLow || q == QualityMedium || q == QualityHigh
}

// PageOutcome records the result of converting one page or input. Err is
// nil on success.
type PageOutcome struct {
	Index int
	Err   error
}

// Converter runs conversions with shared limits, budgets and logging.
type Converter struct {
	gov        *governor.Governor
	logger     observability.Logger
	limits     map[string]validation.Limits
	lenient    bool
	rasterizer Rasterizer
}

type Option func(*Converter)

func WithGovernor(g *governor.Governor) Option { return func(c *Converter) { c.gov = g } }
func WithLogger(l observability.Logger) Option {
	return func(c *Converter) { c.logger = observability.OrNop(l) }
}

// WithLimits overrides the input limits of op ("convert" or "image-convert").
func WithLimits(op string, l validation.Limits) Option {
	return func(c *Converter) { c.limits[op] = l }
}

func WithLenientLoading(on bool) Option { return func(c *Converter) { c.lenient = on } }

// WithRasterizer replaces the page rasterizer. A nil rasterizer makes every
// page render as a placeholder.
func WithRasterizer(r Rasterizer) Option { return func(c *Converter) { c.rasterizer = r } }

func New(opts ...Option) *Converter {
	c := &Converter{
		logger:     observability.NopLogger{},
		limits:     make(map[string]validation.Limits),
		rasterizer: NewVectorRasterizer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.gov == nil {
		c.gov = governor.New(governor.WithLogger(c.logger))
	}
	return c
}

func (c *Converter) limitsFor(op string) validation.Limits {
	if l, ok := c.limits[op]; ok {
		return l
	}
	return validation.DefaultLimits(op)
}

func (c *Converter) load(ctx context.Context, f validation.File) (*document.Document, error) {
	c.gov.Charge(f.Size())
	doc, err := document.Load(ctx, f.Data, document.LoadOptions{Lenient: c.lenient, Logger: c.logger})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pdferr.Load(f.Name, err)
	}
	return doc, nil
}

// midpoint checks memory pressure between expensive steps.
func (c *Converter) midpoint() error {
	return c.gov.Check(c.gov.Budget(budgetOp).Midpoint)
}

func (c *Converter) release(files ...validation.File) {
	for _, f := range files {
		c.gov.Release(f.Size())
	}
}

func (c *Converter) save(ctx context.Context, op string, doc *document.Document, tracker *progress.Tracker) ([]byte, error) {
	data, err := doc.Save(ctx, document.SaveOptions{Progress: tracker.Band(90, 99)})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, pdferr.Processing(op, err)
	}
	return data, nil
}

// run executes fn under the conversion budget and closes tracker
// according to the outcome.
func run[T any](ctx context.Context, c *Converter, op string, tracker *progress.Tracker, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	c.logger.Debug("conversion started", observability.String("op", op))
	v, err := governor.Run(ctx, c.gov, budgetOp, fn)
	if err != nil {
		tracker.Fail()
		c.logger.Warn("conversion failed",
			observability.String("op", op),
			observability.String("kind", pdferr.KindOf(err).String()),
			observability.Error("error", err))
		return v, err
	}
	tracker.Done()
	c.logger.Info("conversion completed",
		observability.String("op", op),
		observability.Duration("elapsed", time.Since(start)))
	return v, nil
}

func stem(name string) string { return validation.BaseName(name) }
