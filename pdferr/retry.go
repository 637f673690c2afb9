package pdferr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits delay×n before the n-th retry.
type linearBackOff struct {
	delay time.Duration
	n     int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.delay * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Retry calls fn up to attempts+1 times, sleeping delay×(n+1) after the
// n-th failure. Validation errors are returned immediately.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	var b backoff.BackOff = &linearBackOff{delay: delay}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(attempts, 0))), ctx)
	return backoff.Retry(func() error {
		err := fn(ctx)
		if Is(err, KindValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
