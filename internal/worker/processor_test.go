package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/queue"
)

type recorder struct {
	got []pipeline.Task
	err error
}

func (r *recorder) Handle(_ context.Context, t pipeline.Task) error {
	r.got = append(r.got, t)
	return r.err
}

func TestProcessorDispatchesEveryKind(t *testing.T) {
	rec := &recorder{}
	mux := NewProcessor(rec, zerolog.Nop()).Handler()

	for _, kind := range pipeline.TaskKinds {
		task, err := queue.NewTask(pipeline.Task{Kind: kind, FileID: "f1"})
		require.NoError(t, err)
		require.NoError(t, mux.ProcessTask(context.Background(), task))
	}
	require.Len(t, rec.got, len(pipeline.TaskKinds))
	assert.Equal(t, pipeline.TaskRebuild, rec.got[len(rec.got)-1].Kind)
}

func TestProcessorSkipsRetryOnFailure(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	mux := NewProcessor(rec, zerolog.Nop()).Handler()

	task, err := queue.NewTask(pipeline.Task{Kind: pipeline.TaskExtract, FileID: "f1"})
	require.NoError(t, err)
	err = mux.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = mux.ProcessTask(context.Background(), asynq.NewTask(string(pipeline.TaskExtract), []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
