package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
)

func collect(t *testing.T, id uuid.UUID, ch <-chan Message) []Message {
	t.Helper()
	var msgs []Message
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return msgs
			}
			assert.Equal(t, id, m.JobID())
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatal("job did not finish")
		}
	}
}

func TestSubmitReportsProgressThenDone(t *testing.T) {
	var p Pool
	id, ch := p.Submit(context.Background(), func(ctx context.Context, report progress.Func) (any, error) {
		for _, v := range []int{10, 5, 40, 40, 100} {
			report(v)
		}
		return "ok", nil
	})
	msgs := collect(t, id, ch)
	require.NotEmpty(t, msgs)

	var values []int
	for _, m := range msgs[:len(msgs)-1] {
		pm, ok := m.(Progress)
		require.True(t, ok, "only the last message is terminal")
		values = append(values, pm.Value)
	}
	assert.Equal(t, []int{10, 40, 100}, values)
	last := msgs[len(msgs)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, Done{ID: id, Result: "ok"}, last)
}

func TestSubmitFailureAndPanic(t *testing.T) {
	var p Pool
	boom := pdferr.Validationf("bad input")
	_, ch := p.Submit(context.Background(), func(context.Context, progress.Func) (any, error) { return nil, boom })
	_, err := Await(ch, nil)
	assert.Same(t, boom, err)

	_, ch = p.Submit(context.Background(), func(context.Context, progress.Func) (any, error) { panic("kaboom") })
	_, err = Await(ch, nil)
	require.Error(t, err)
	assert.True(t, pdferr.Is(err, pdferr.KindDocumentProcessing))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestPoolLimitsConcurrency(t *testing.T) {
	p := Pool{Workers: 2}
	var running, peak atomic.Int32
	job := func(ctx context.Context, report progress.Func) (any, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}
	var chans []<-chan Message
	for i := 0; i < 6; i++ {
		_, ch := p.Submit(context.Background(), job)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		_, err := Await(ch, nil)
		require.NoError(t, err)
	}
	p.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestQueuedJobCancelled(t *testing.T) {
	p := Pool{Workers: 1}
	started, release := make(chan struct{}), make(chan struct{})
	_, busy := p.Submit(context.Background(), func(context.Context, progress.Func) (any, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	_, queued := p.Submit(ctx, func(context.Context, progress.Func) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	cancel()
	_, err := Await(queued, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())

	close(release)
	v, err := Await(busy, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestProgressNeverCrowdsOutTerminal(t *testing.T) {
	var p Pool
	_, ch := p.Submit(context.Background(), func(ctx context.Context, report progress.Func) (any, error) {
		for v := 1; v <= 100; v++ {
			report(v)
		}
		return nil, errors.New("late failure")
	})
	// nothing is read until the job has finished
	p.Wait()
	var seen []int
	_, err := Await(ch, func(v int) { seen = append(seen, v) })
	assert.EqualError(t, err, "late failure")
	assert.Len(t, seen, Buffer-reserved)
	assert.IsIncreasing(t, seen)
}

func TestCrowdedSuccessStillEndsAt100(t *testing.T) {
	var p Pool
	_, ch := p.Submit(context.Background(), func(ctx context.Context, report progress.Func) (any, error) {
		for v := 0; v <= 100; v++ {
			report(v)
		}
		return "ok", nil
	})
	p.Wait()
	var seen []int
	res, err := Await(ch, func(v int) { seen = append(seen, v) })
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	require.Len(t, seen, Buffer-1)
	assert.IsIncreasing(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestSuccessWithoutFinalReportGets100(t *testing.T) {
	var p Pool
	id, ch := p.Submit(context.Background(), func(ctx context.Context, report progress.Func) (any, error) {
		report(30)
		return 7, nil
	})
	msgs := collect(t, id, ch)
	assert.Equal(t, []Message{Progress{ID: id, Value: 30}, Progress{ID: id, Value: 100}, Done{ID: id, Result: 7}}, msgs)
}
