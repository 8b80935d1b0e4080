// Package queue turns pipeline tasks into durable asynq tasks and back.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

// Queue names. Callbacks get their own queue so a large classification does
// not starve file-level work.
const (
	QueueDefault   = "default"
	QueueCallbacks = "callbacks"
)

// Queues is the weighted queue configuration for asynq.Config.
var Queues = map[string]int{
	QueueDefault:   3,
	QueueCallbacks: 6,
}

// Enqueuer submits pipeline tasks to Redis through asynq.
type Enqueuer struct {
	client *asynq.Client
}

var _ pipeline.Submitter = (*Enqueuer)(nil)

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// NewTask encodes a pipeline task. Pipeline tasks are never retried by the
// queue: a failure is recorded on the file or image instead.
func NewTask(t pipeline.Task) (*asynq.Task, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	queue := QueueDefault
	if t.Kind == pipeline.TaskImageClassified || t.Kind == pipeline.TaskRegenerate {
		queue = QueueCallbacks
	}
	return asynq.NewTask(string(t.Kind), data, asynq.MaxRetry(0), asynq.Queue(queue)), nil
}

// Decode reads a pipeline task back from an asynq task.
func Decode(task *asynq.Task) (pipeline.Task, error) {
	var t pipeline.Task
	if err := json.Unmarshal(task.Payload(), &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", task.Type(), err)
	}
	t.Kind = pipeline.TaskKind(task.Type())
	return t, nil
}

func (e *Enqueuer) Submit(ctx context.Context, t pipeline.Task) error {
	task, err := NewTask(t)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s task: %w", t.Kind, err)
	}
	return nil
}
