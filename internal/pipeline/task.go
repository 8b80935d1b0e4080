package pipeline

import (
	"context"

	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

// TaskKind names a unit of async pipeline work.
type TaskKind string

const (
	TaskExtract         TaskKind = "file:extract"
	TaskClassify        TaskKind = "file:classify"
	TaskImageClassified TaskKind = "image:classified"
	TaskGenerate        TaskKind = "file:generate"
	TaskRegenerate      TaskKind = "product:regenerate"
	TaskRebuild         TaskKind = "file:rebuild"
)

// TaskKinds lists every kind a worker must serve.
var TaskKinds = []TaskKind{
	TaskExtract,
	TaskClassify,
	TaskImageClassified,
	TaskGenerate,
	TaskRegenerate,
	TaskRebuild,
}

// Task is the payload handed to a Submitter. Only the fields relevant to Kind
// are set.
type Task struct {
	Kind            TaskKind         `json:"-"`
	FileID          string           `json:"file_id,omitempty"`
	ProductID       string           `json:"product_id,omitempty"`
	ImageID         string           `json:"image_id,omitempty"`
	ExcludedLocales []string         `json:"excluded_locales,omitempty"`
	Response        *vision.Response `json:"response,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Submitter hands a task to whatever runs async work. It must not block on
// the task being executed.
type Submitter interface {
	Submit(ctx context.Context, t Task) error
}

