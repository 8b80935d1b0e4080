// Package worker plugs the pipeline into the asynq server loop.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/queue"
)

// TaskHandler executes a decoded pipeline task.
type TaskHandler interface {
	Handle(ctx context.Context, t pipeline.Task) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	pipe TaskHandler
	log  zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(pipe TaskHandler, log zerolog.Logger) *Processor {
	return &Processor{pipe: pipe, log: log.With().Str("component", "worker").Logger()}
}

// Handler registers a handler for every pipeline task kind.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, kind := range pipeline.TaskKinds {
		mux.HandleFunc(string(kind), p.handle)
	}
	return mux
}

func (p *Processor) handle(ctx context.Context, task *asynq.Task) error {
	t, err := queue.Decode(task)
	if err != nil {
		p.log.Error().Err(err).Str("task", task.Type()).Msg("undecodable task")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With().Str("task", string(t.Kind)).Str("file_id", t.FileID).Logger()
	if err := p.pipe.Handle(ctx, t); err != nil {
		log.Error().Err(err).Msg("task failed")
		// Failures are already recorded on the file or image.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log.Debug().Msg("task done")
	return nil
}
