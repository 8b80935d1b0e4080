package queue

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

func TestTaskRoundTrip(t *testing.T) {
	resp := vision.Annotated("zh", "中文")
	in := pipeline.Task{
		Kind:            pipeline.TaskImageClassified,
		FileID:          "f1",
		ImageID:         "i1",
		ExcludedLocales: []string{"zh"},
		Response:        &resp,
	}
	task, err := NewTask(in)
	require.NoError(t, err)
	assert.Equal(t, "image:classified", task.Type())

	out, err := Decode(task)
	require.NoError(t, err)
	assert.Equal(t, in.Kind, out.Kind)
	assert.Equal(t, in.ImageID, out.ImageID)
	require.NotNil(t, out.Response)
	assert.Equal(t, vision.KindAnnotated, out.Response.Kind)
	assert.Equal(t, "zh", out.Response.Locale)
	assert.JSONEq(t, string(resp.Raw), string(out.Response.Raw))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(asynq.NewTask(string(pipeline.TaskExtract), []byte("{")))
	assert.Error(t, err)
}
