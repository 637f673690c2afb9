// Package worker runs engine operations off the caller's goroutine and
// reports their progress and outcome as messages on a channel.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
)

// Job is one operation. It reports progress through report and returns the
// operation's result.
type Job func(ctx context.Context, report progress.Func) (any, error)

// Message is sent on a job's channel. Every job produces zero or more
// Progress messages with non-decreasing values followed by exactly one Done
// or Failed, after which the channel is closed.
type Message interface {
	JobID() uuid.UUID
	Terminal() bool
}

type Progress struct {
	ID    uuid.UUID
	Value int
}

type Done struct {
	ID     uuid.UUID
	Result any
}

type Failed struct {
	ID  uuid.UUID
	Err error
}

func (m Progress) JobID() uuid.UUID { return m.ID }
func (m Done) JobID() uuid.UUID     { return m.ID }
func (m Failed) JobID() uuid.UUID   { return m.ID }

func (Progress) Terminal() bool { return false }
func (Done) Terminal() bool     { return true }
func (Failed) Terminal() bool   { return true }

// Buffer is the capacity of each job's message channel. Progress that
// arrives while the channel is nearly full is held back and superseded by
// later values; a successful job always ends with Progress 100 then Done.
const Buffer = 16

// reserved slots: the final Progress 100 and the terminal message.
const reserved = 2

// Pool runs at most Workers jobs at once. The zero value runs one job per
// CPU and logs nothing.
type Pool struct {
	Workers int
	Logger  observability.Logger

	once sync.Once
	sem  chan struct{}
	wg   sync.WaitGroup
}

func (p *Pool) init() {
	p.once.Do(func() {
		n := p.Workers
		if n <= 0 {
			n = runtime.NumCPU()
		}
		p.sem = make(chan struct{}, n)
		p.Logger = observability.OrNop(p.Logger)
	})
}

// Submit queues job and returns its id and message channel. A job still
// waiting for a free worker when ctx ends fails with the context error.
func (p *Pool) Submit(ctx context.Context, job Job) (uuid.UUID, <-chan Message) {
	p.init()
	id := uuid.New()
	out := make(chan Message, Buffer)
	s := &sink{id: id, out: out, last: -1}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			s.finish(nil, ctx.Err())
			return
		}
		defer func() { <-p.sem }()

		log := p.Logger.With(observability.String("job", id.String()))
		log.Debug("job started")
		result, err := run(ctx, job, s.report)
		if err != nil {
			log.Warn("job failed",
				observability.String("kind", pdferr.KindOf(err).String()),
				observability.Error("error", err))
		} else {
			log.Debug("job done")
		}
		s.finish(result, err)
	}()
	return id, out
}

// Wait blocks until every submitted job has sent its terminal message.
func (p *Pool) Wait() { p.wg.Wait() }

// run calls job and turns a panic into a processing error.
func run(ctx context.Context, job Job, report progress.Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, pdferr.Processing("worker", fmt.Errorf("job panicked: %v", r))
		}
	}()
	return job(ctx, report)
}

type sink struct {
	mu   sync.Mutex
	id   uuid.UUID
	out  chan Message
	last int
	done bool
}

func (s *sink) report(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || v <= s.last {
		return
	}
	if len(s.out) >= cap(s.out)-reserved {
		return
	}
	s.last = v
	s.out <- Progress{ID: s.id, Value: v}
}

func (s *sink) finish(result any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if err != nil {
		s.out <- Failed{ID: s.id, Err: err}
		return
	}
	if s.last < 100 {
		s.last = 100
		s.out <- Progress{ID: s.id, Value: 100}
	}
	s.out <- Done{ID: s.id, Result: result}
}

// Await drains ch, calling onProgress for each progress value, and returns
// the job's result.
func Await(ch <-chan Message, onProgress progress.Func) (any, error) {
	for msg := range ch {
		switch m := msg.(type) {
		case Progress:
			if onProgress != nil {
				onProgress(m.Value)
			}
		case Done:
			return m.Result, nil
		case Failed:
			return nil, m.Err
		}
	}
	return nil, pdferr.Processingf("worker", "job ended without a result")
}
