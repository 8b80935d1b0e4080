// Package processing runs pipeline tasks on an in-process goroutine pool. It
// backs the single-binary mode and the API tests; production uses asynq.
package processing

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

// Handler executes one task.
type Handler func(ctx context.Context, t pipeline.Task) error

// Pool consumes tasks from a buffered channel.
type Pool struct {
	queue   chan pipeline.Task
	workers int
	log     zerolog.Logger

	mu      sync.Mutex
	handler Handler
	ctx     context.Context
	pending sync.WaitGroup
}

var _ pipeline.Submitter = (*Pool)(nil)

// New builds a Pool with queue capacity tied to worker count.
func New(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:   make(chan pipeline.Task, workers*64),
		workers: workers,
		log:     log.With().Str("component", "pool").Logger(),
	}
}

// Start launches worker goroutines that run handler until ctx is cancelled.
func (p *Pool) Start(ctx context.Context, handler Handler) {
	p.mu.Lock()
	p.handler = handler
	p.ctx = ctx
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

// Submit queues a task. It never blocks: when the buffer is full the task is
// handed to a goroutine of its own, since dropping a task would strand the
// file in a transient status.
func (p *Pool) Submit(_ context.Context, t pipeline.Task) error {
	p.pending.Add(1)
	select {
	case p.queue <- t:
	default:
		p.log.Warn().Str("task", string(t.Kind)).Msg("pool queue full, running task on overflow goroutine")
		go p.run(t)
	}
	return nil
}

// Wait blocks until every submitted task, including tasks submitted by
// running tasks, has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

func (p *Pool) run(t pipeline.Task) {
	defer p.pending.Done()
	p.mu.Lock()
	handler, ctx := p.handler, p.ctx
	p.mu.Unlock()
	if handler == nil {
		p.log.Error().Str("task", string(t.Kind)).Msg("pool not started, dropping task")
		return
	}
	if err := handler(ctx, t); err != nil {
		p.log.Error().Err(err).
			Str("task", string(t.Kind)).
			Str("file_id", t.FileID).
			Msg("task failed")
	}
}
