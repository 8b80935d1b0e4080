package queue

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

func TestEnqueuerRoutesQueues(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION not set")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	opt := asynq.RedisClientOpt{Addr: fmt.Sprintf("%s:%s", host, port.Port())}

	client := asynq.NewClient(opt)
	defer client.Close()
	enq := NewEnqueuer(client)

	require.NoError(t, enq.Submit(ctx, pipeline.Task{Kind: pipeline.TaskClassify, FileID: "f1"}))
	require.NoError(t, enq.Submit(ctx, pipeline.Task{Kind: pipeline.TaskImageClassified, FileID: "f1", ImageID: "i1"}))
	require.NoError(t, enq.Submit(ctx, pipeline.Task{Kind: pipeline.TaskRegenerate, FileID: "f1", ProductID: "p1"}))

	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	pending, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, string(pipeline.TaskClassify), pending[0].Type)
	assert.Equal(t, 0, pending[0].MaxRetry)

	callbacks, err := inspector.ListPendingTasks(QueueCallbacks)
	require.NoError(t, err)
	assert.Len(t, callbacks, 2)

	decoded, err := Decode(asynq.NewTask(callbacks[0].Type, callbacks[0].Payload))
	require.NoError(t, err)
	assert.Equal(t, "f1", decoded.FileID)
}
