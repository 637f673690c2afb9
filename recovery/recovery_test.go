package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrictAlwaysFails(t *testing.T) {
	s := NewStrictStrategy()
	assert.Equal(t, ActionFail, s.OnError(context.Background(), errors.New("x"), Location{Component: "xref"}))
}

func TestLenientFixesXRefAndSkipsObjects(t *testing.T) {
	s := NewLenientStrategy(nil)
	ctx := context.Background()

	assert.Equal(t, ActionFix, s.OnError(ctx, errors.New("bad table"), Location{Component: "xref"}))
	assert.Equal(t, ActionSkip, s.OnError(ctx, errors.New("bad dict"), Location{Component: "object", ObjectNum: 4}))
	assert.Len(t, s.Errors(), 2)
	assert.Contains(t, s.Errors()[1].Error(), "[object]")
}

func TestLenientFailsOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ActionFail, NewLenientStrategy(nil).OnError(ctx, errors.New("x"), Location{}))
}
