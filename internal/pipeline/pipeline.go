// Package pipeline drives a spreadsheet through extraction, image
// classification and regeneration. Boundary operations only validate and
// enqueue; Handle executes the queued work.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

const (
	DefaultBatchSize = 5
	DefaultURLTTL    = 15 * time.Minute

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Options configures a Pipeline. Store, Blobs, Submitter and Classifier are
// required.
type Options struct {
	Store      Store
	Blobs      Blobs
	Submitter  Submitter
	Classifier vision.Client
	// Schema defaults to spreadsheet.DefaultSchema.
	Schema          *spreadsheet.Schema
	ExcludedLocales []string
	BatchSize       int
	URLTTL          time.Duration
	Logger          zerolog.Logger
	Now             func() time.Time
}

type Pipeline struct {
	store      Store
	blobs      Blobs
	submit     Submitter
	classifier vision.Client
	schema     *spreadsheet.Schema
	excluded   []string
	batchSize  int
	urlTTL     time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:      opts.Store,
		blobs:      opts.Blobs,
		submit:     opts.Submitter,
		classifier: opts.Classifier,
		schema:     opts.Schema,
		excluded:   opts.ExcludedLocales,
		batchSize:  opts.BatchSize,
		urlTTL:     opts.URLTTL,
		log:        opts.Logger.With().Str("component", "pipeline").Logger(),
		now:        opts.Now,
	}
	if p.schema == nil {
		p.schema = spreadsheet.DefaultSchema()
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.urlTTL <= 0 {
		p.urlTTL = DefaultURLTTL
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Handle executes one queued task.
func (p *Pipeline) Handle(ctx context.Context, t Task) error {
	var err error
	switch t.Kind {
	case TaskExtract:
		err = p.Extract(ctx, t.FileID)
	case TaskClassify:
		err = p.Classify(ctx, t.FileID, t.ExcludedLocales)
	case TaskImageClassified:
		err = p.RecordImage(ctx, t)
	case TaskGenerate:
		err = p.Generate(ctx, t.FileID)
	case TaskRegenerate:
		err = p.Regenerate(ctx, t.ProductID)
	case TaskRebuild:
		err = p.Rebuild(ctx, t.FileID)
	default:
		err = fmt.Errorf("unknown task kind %q", t.Kind)
	}
	metrics.Task(string(t.Kind), err)
	return err
}

func (p *Pipeline) stale(kind TaskKind, f *model.File) error {
	p.log.Warn().
		Str("task", string(kind)).
		Str("file_id", f.ID).
		Stringer("status", f.Status).
		Msg("dropping task for file that has moved on")
	return nil
}

func statusIn(s model.FileStatus, allowed []model.FileStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
