package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/processing"
	"github.com/dharsanguruparan/imagefilter/internal/storage"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

// counter reads one sample of a registered counter vector.
func counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func transitions(t *testing.T, from, to model.FileStatus) float64 {
	return counter(t, "imagefilter_file_transitions_total", map[string]string{"from": from.String(), "to": to.String()})
}

func rebuilds(t *testing.T) float64 {
	return counter(t, "imagefilter_tasks_total", map[string]string{"kind": string(pipeline.TaskRebuild), "result": "ok"})
}

func TestConcurrentCallbacksSettleOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := processing.New(8, zerolog.Nop())
	fake := vision.NewFake()
	store := storage.NewMemoryStore()
	pipe := pipeline.New(pipeline.Options{
		Store:           store,
		Blobs:           storage.NewMemoryBlobs(),
		Submitter:       pool,
		Classifier:      fake,
		ExcludedLocales: []string{"zh", "ja"},
		BatchSize:       1,
		Logger:          zerolog.Nop(),
	})
	pool.Start(ctx, pipe.Handle)
	fx := &fixture{ctx: ctx, store: store, pipe: pipe}

	var rows [][]string
	for p := 0; p < 7; p++ {
		desc := ""
		for i := 0; i < 3; i++ {
			uri := fmt.Sprintf("p%d-%d.png", p, i)
			desc += fmt.Sprintf(`<img src="%s">`, uri)
			if i == 0 {
				fake.Responses[uri] = vision.Annotated("ja", "日本語")
			}
		}
		rows = append(rows, []string{fmt.Sprint(2000 + p), fmt.Sprintf("item %d", p), desc, "100"})
	}

	for round := 0; round < 5; round++ {
		f := fx.upload(t, rows...)

		require.True(t, pipe.RequestValidate(ctx, f.ID).OK)
		pool.Wait()

		classified := transitions(t, model.StatusClassifying, model.StatusClassified)
		require.True(t, pipe.RequestClassify(ctx, f.ID).OK)
		pool.Wait()
		require.Equal(t, model.StatusClassified, fx.file(t, f.ID).Status)
		assert.Equal(t, classified+1, transitions(t, model.StatusClassifying, model.StatusClassified), "round %d", round)

		summary, err := pipe.Summary(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, pipeline.Summary{Total: 21, Included: 14, Excluded: 7}, summary)

		generated := transitions(t, model.StatusGenerating, model.StatusGenerated)
		rebuilt := rebuilds(t)
		require.True(t, pipe.RequestGenerate(ctx, f.ID).OK)
		pool.Wait()
		require.Equal(t, model.StatusGenerated, fx.file(t, f.ID).Status)
		assert.Equal(t, generated+1, transitions(t, model.StatusGenerating, model.StatusGenerated), "round %d", round)
		assert.Equal(t, rebuilt+1, rebuilds(t), "round %d", round)

		products, err := pipe.Products(ctx, f.ID)
		require.NoError(t, err)
		for _, p := range products {
			require.NotNil(t, p.Changed)
			assert.True(t, *p.Changed)
			require.NotNil(t, p.FilteredDescription)
			assert.NotContains(t, *p.FilteredDescription, "-0.png")
		}
	}
}
