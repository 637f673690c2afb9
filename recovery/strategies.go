package recovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfengine/observability"
)

// StrictStrategy implements a fail-fast recovery strategy.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy { return &StrictStrategy{} }

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy repairs damaged cross-reference data and skips objects
// that cannot be parsed. Every decision is logged and recorded.
type LenientStrategy struct {
	Logger observability.Logger

	mu     sync.Mutex
	errors []error
}

func NewLenientStrategy(logger observability.Logger) *LenientStrategy {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &LenientStrategy{Logger: logger}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	if ctx.Err() != nil {
		return ActionFail
	}
	action := ActionSkip
	if location.Component == "xref" {
		action = ActionFix
	}
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Errorf("[%s] offset %d: %w", location.Component, location.ByteOffset, err))
	s.mu.Unlock()
	s.Logger.Warn("recovering from malformed structure",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("object", location.ObjectNum),
		observability.String("action", action.String()),
		observability.Error("error", err),
	)
	return action
}

// Errors returns the faults recovered so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errors...)
}
