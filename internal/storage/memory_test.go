package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/model"
)

func seed(t *testing.T, m *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.CreateFile(ctx, &model.File{ID: "f1", Status: model.StatusValidating}))
	products := []model.Product{{ID: "p1", FileID: "f1", ProductCode: "1"}, {ID: "p2", FileID: "f1", ProductCode: "2"}}
	images := []model.Image{
		{ID: "i1", ProductID: "p1", URI: "a.png"},
		{ID: "i2", ProductID: "p1", URI: "b.png"},
		{ID: "i3", ProductID: "p2", URI: "c.png"},
	}
	require.NoError(t, m.RegisterProducts(ctx, "f1", products, images, func(f *model.File) error {
		f.Status = model.StatusClassifying
		return nil
	}))
}

func TestClaimAndRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seed(t, m)

	claimed, err := m.ClaimImages(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	again, err := m.ClaimImages(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, again)

	var seen []int
	settle := func(f *model.File, pending int) error {
		seen = append(seen, pending)
		return nil
	}
	for _, id := range []string{"i2", "i1", "i3"} {
		ok, err := m.RecordClassification(ctx, id, model.ImageOutcome{Type: model.ImageIncluded}, settle)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := m.RecordClassification(ctx, "i1", model.ImageOutcome{Type: model.ImageExcluded}, settle)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int{2, 1, 0}, seen)

	counts, err := m.CountImages(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, map[model.ImageType]int{model.ImageIncluded: 3}, counts)

	only, err := m.ListImages(ctx, model.ImageQuery{FileID: "f1", ProductID: "p2"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "c.png", only[0].URI)
}

func TestSaveRegenerationCountsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seed(t, m)

	var seen []int
	settle := func(f *model.File, pending int) error {
		seen = append(seen, pending)
		return nil
	}
	ok, err := m.SaveRegeneration(ctx, "p1", "x", true, settle)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.SaveRegeneration(ctx, "p1", "x", true, settle)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = m.SaveRegeneration(ctx, "p2", "y", false, settle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 0}, seen)

	require.NoError(t, m.ResetRegeneration(ctx, "f1"))
	p, err := m.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p.Changed)
	assert.Nil(t, p.FilteredDescription)
}

func TestUpdateFileRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seed(t, m)

	err := m.UpdateFile(ctx, "f1", func(f *model.File) error {
		f.Status = model.StatusGenerated
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	f, err := m.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassifying, f.Status)

	assert.ErrorIs(t, m.DeleteFile(ctx, "nope", func(*model.File) error { return nil }), model.ErrFileNotFound)
}
