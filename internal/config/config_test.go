package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, QueueAsynq, cfg.QueueMode)
	assert.Equal(t, []string{"zh"}, cfg.ExcludedLocales)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.VisionTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("IMAGEFILTER_EXCLUDED_LOCALES", "zh, ja ,")
	t.Setenv("IMAGEFILTER_BATCH_SIZE", "0")
	t.Setenv("IMAGEFILTER_QUEUE_MODE", "Inline")
	t.Setenv("IMAGEFILTER_SIGNED_URL_TTL", "2m")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"zh", "ja"}, cfg.ExcludedLocales)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, QueueInline, cfg.QueueMode)
	assert.Equal(t, 2*time.Minute, cfg.SignedURLTTL)
}

func TestFromEnvRejectsUnknownQueueMode(t *testing.T) {
	t.Setenv("IMAGEFILTER_QUEUE_MODE", "kafka")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvMemoryStoreNeedsInlineQueue(t *testing.T) {
	t.Setenv("IMAGEFILTER_STORE", "memory")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("IMAGEFILTER_QUEUE_MODE", "inline")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreMode)
}
