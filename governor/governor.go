// Package governor guards operations with memory-pressure checks and
// wall-clock budgets.
package governor

import (
	"context"
	"errors"
	"time"

	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
)

const (
	DefaultStartThreshold    = 0.8
	DefaultMidpointThreshold = 0.9
)

// Budget is the resource allowance of one operation kind.
type Budget struct {
	Timeout time.Duration
	// Start is checked before any work; Midpoint at expensive steps.
	Start    float64
	Midpoint float64
}

var defaultTimeouts = map[string]time.Duration{
	"merge":     30 * time.Second,
	"split":     30 * time.Second,
	"rotate":    45 * time.Second,
	"watermark": 60 * time.Second,
	"compress":  60 * time.Second,
	"convert":   90 * time.Second,
}

// DefaultBudget returns the stock budget for op. Unknown operations get 60s.
func DefaultBudget(op string) Budget {
	timeout, ok := defaultTimeouts[op]
	if !ok {
		timeout = 60 * time.Second
	}
	return Budget{Timeout: timeout, Start: DefaultStartThreshold, Midpoint: DefaultMidpointThreshold}
}

type Governor struct {
	sampler Sampler
	budgets map[string]Budget
	logger  observability.Logger
}

type Option func(*Governor)

func WithSampler(s Sampler) Option { return func(g *Governor) { g.sampler = s } }
func WithBudget(op string, b Budget) Option {
	return func(g *Governor) { g.budgets[op] = b }
}
func WithLogger(l observability.Logger) Option {
	return func(g *Governor) { g.logger = observability.OrNop(l) }
}

// New returns a governor. Without WithSampler it samples the Go heap against
// the runtime memory limit.
func New(opts ...Option) *Governor {
	g := &Governor{
		sampler: RuntimeSampler{},
		budgets: make(map[string]Budget),
		logger:  observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Budget returns the configured budget for op, falling back to the default.
func (g *Governor) Budget(op string) Budget {
	if b, ok := g.budgets[op]; ok {
		return b
	}
	return DefaultBudget(op)
}

// MemoryUsageFraction reports approximate used/available memory.
func (g *Governor) MemoryUsageFraction() float64 {
	return g.sampler.Usage()
}

func (g *Governor) IsOverThreshold(threshold float64) bool {
	return g.MemoryUsageFraction() > threshold
}

// Check fails with a MemoryExceeded error when usage is above threshold.
func (g *Governor) Check(threshold float64) error {
	usage := g.MemoryUsageFraction()
	if usage > threshold {
		g.logger.Warn("memory threshold exceeded",
			observability.Float("usage", usage),
			observability.Float("threshold", threshold))
		return pdferr.Memory(usage, threshold)
	}
	return nil
}

// Charge accounts n bytes against the sampler when it tracks allocations.
func (g *Governor) Charge(n int64) {
	if c, ok := g.sampler.(Charger); ok {
		c.Charge(n)
	}
}

func (g *Governor) Release(n int64) {
	if c, ok := g.sampler.(Charger); ok {
		c.Release(n)
	}
}

// WithTimeout runs fn under a deadline of budget. fn receives a context that
// is cancelled when the budget elapses and is expected to check it between
// units of work. When the deadline wins, the result is discarded and a
// Timeout error carrying the budget is returned without waiting for fn.
func WithTimeout[T any](ctx context.Context, budget time.Duration, msg string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if budget <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(tctx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, pdferr.Timeout(budget, msg)
		}
		return out.val, out.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, pdferr.Timeout(budget, msg)
	}
}

// Run checks the start threshold of op's budget and then runs fn under its
// timeout.
func Run[T any](ctx context.Context, g *Governor, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	b := g.Budget(op)
	if err := g.Check(b.Start); err != nil {
		return zero, err
	}
	start := time.Now()
	v, err := WithTimeout(ctx, b.Timeout, op+" operation timed out", fn)
	g.logger.Debug("operation finished",
		observability.String("op", op),
		observability.Duration("elapsed", time.Since(start)),
		observability.Bool("ok", err == nil))
	return v, err
}
