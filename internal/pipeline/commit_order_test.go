package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/storage"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

// committedView serves GetFile from the last committed state only, the way a
// plain read in another database session would. Writes go straight through.
type committedView struct {
	*storage.MemoryStore

	mu    sync.Mutex
	files map[string]model.File
}

func newCommittedView() *committedView {
	return &committedView{MemoryStore: storage.NewMemoryStore(), files: map[string]model.File{}}
}

func (c *committedView) GetFile(_ context.Context, id string) (*model.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return nil, model.ErrFileNotFound
	}
	return &f, nil
}

// commit refreshes the snapshots after a write has returned.
func (c *committedView) commit(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.files {
		f, err := c.MemoryStore.GetFile(ctx, id)
		if errors.Is(err, model.ErrFileNotFound) {
			delete(c.files, id)
			continue
		}
		if err == nil {
			c.files[id] = *f
		}
	}
}

func (c *committedView) CreateFile(ctx context.Context, f *model.File) error {
	if err := c.MemoryStore.CreateFile(ctx, f); err != nil {
		return err
	}
	c.mu.Lock()
	c.files[f.ID] = *f
	c.mu.Unlock()
	return nil
}

func (c *committedView) UpdateFile(ctx context.Context, id string, fn func(f *model.File) error) error {
	defer c.commit(ctx)
	return c.MemoryStore.UpdateFile(ctx, id, fn)
}

func (c *committedView) DeleteFile(ctx context.Context, id string, guard func(f *model.File) error) error {
	defer c.commit(ctx)
	return c.MemoryStore.DeleteFile(ctx, id, guard)
}

func (c *committedView) RegisterProducts(ctx context.Context, fileID string, products []model.Product, images []model.Image, fn func(f *model.File) error) error {
	defer c.commit(ctx)
	return c.MemoryStore.RegisterProducts(ctx, fileID, products, images, fn)
}

func (c *committedView) SaveRegeneration(ctx context.Context, productID, filtered string, changed bool, settle pipeline.SettleFunc) (bool, error) {
	defer c.commit(ctx)
	return c.MemoryStore.SaveRegeneration(ctx, productID, filtered, changed, settle)
}

func (c *committedView) RecordClassification(ctx context.Context, imageID string, out model.ImageOutcome, settle pipeline.SettleFunc) (bool, error) {
	defer c.commit(ctx)
	return c.MemoryStore.RecordClassification(ctx, imageID, out, settle)
}

func (c *committedView) SettleClassification(ctx context.Context, fileID string, settle pipeline.SettleFunc) error {
	defer c.commit(ctx)
	return c.MemoryStore.SettleClassification(ctx, fileID, settle)
}

// immediate runs every task as soon as it is submitted, like a worker that
// dequeues before the submitter has returned.
type immediate struct {
	t    *testing.T
	pipe *pipeline.Pipeline
}

func (i *immediate) Submit(ctx context.Context, task pipeline.Task) error {
	if err := i.pipe.Handle(ctx, task); err != nil {
		i.t.Logf("%s: %v", task.Kind, err)
	}
	return nil
}

func TestTasksSeeCommittedStatus(t *testing.T) {
	ctx := context.Background()
	store := newCommittedView()
	blobs := storage.NewMemoryBlobs()
	fake := vision.NewFake()
	fake.Responses["a.png"] = vision.Annotated("zh", "中文")
	sub := &immediate{t: t}
	pipe := pipeline.New(pipeline.Options{
		Store:           store,
		Blobs:           blobs,
		Submitter:       sub,
		Classifier:      fake,
		ExcludedLocales: []string{"zh", "ja"},
		BatchSize:       2,
		Logger:          zerolog.Nop(),
	})
	sub.pipe = pipe

	fx := &fixture{ctx: ctx, store: store.MemoryStore, blobs: blobs, pipe: pipe}
	f := fx.upload(t, standardRows()...)

	require.True(t, pipe.RequestValidate(ctx, f.ID).OK)
	got := fx.file(t, f.ID)
	require.Equal(t, model.StatusRegistered, got.Status)
	assert.Equal(t, 2, *got.ProductCount)
	assert.Equal(t, 3, *got.ImageCount)

	require.True(t, pipe.RequestClassify(ctx, f.ID).OK)
	require.Equal(t, model.StatusClassified, fx.file(t, f.ID).Status)

	require.True(t, pipe.RequestGenerate(ctx, f.ID).OK)
	require.Equal(t, model.StatusGenerated, fx.file(t, f.ID).Status)
	out := fx.generated(t, f.ID)
	assert.NotContains(t, out["1001"], "a.png")
	assert.Contains(t, out["1001"], "b.png")
	assert.Contains(t, out["1002"], "c.png")
}

func TestRefusedSubmissionRevertsErrorCode(t *testing.T) {
	fx := newFixture(t)
	f := fx.upload(t, standardRows()...)
	fx.run(t, fx.pipe.RequestValidate(fx.ctx, f.ID))
	fx.run(t, fx.pipe.RequestClassify(fx.ctx, f.ID))

	code := model.ErrorSchemaMismatch
	require.NoError(t, fx.store.UpdateFile(fx.ctx, f.ID, func(f *model.File) error {
		f.ErrorCode = &code
		return nil
	}))
	fx.queue.refuse[pipeline.TaskGenerate] = true

	res := fx.pipe.RequestGenerate(fx.ctx, f.ID)
	assert.False(t, res.OK)
	got := fx.file(t, f.ID)
	assert.Equal(t, model.StatusClassified, got.Status)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, model.ErrorSchemaMismatch, *got.ErrorCode)
}
