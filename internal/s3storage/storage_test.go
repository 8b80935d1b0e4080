package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dharsanguruparan/imagefilter/internal/config"
)

func TestStorageRoundTrip(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION not set")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	store, err := New(&config.Config{
		S3Endpoint:      fmt.Sprintf("%s:%s", host, port.Port()),
		S3AccessKey:     "minioadmin",
		S3SecretKey:     "minioadmin",
		S3Region:        "us-east-1",
		OriginalBucket:  "originals",
		GeneratedBucket: "generated",
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBuckets(ctx))
	require.NoError(t, store.EnsureBuckets(ctx))

	require.NoError(t, store.UploadOriginal(ctx, "originals/f1/book.xlsx", bytes.NewReader([]byte("original")), -1, "application/octet-stream"))
	got, err := store.DownloadOriginal(ctx, "originals/f1/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	require.NoError(t, store.UploadGenerated(ctx, "generated/f1/book_filtered.xlsx", []byte("filtered"), "application/octet-stream"))
	url, err := store.PresignGeneratedURL(ctx, "generated/f1/book_filtered.xlsx", time.Minute)
	require.NoError(t, err)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "book_filtered.xlsx")

	require.NoError(t, store.RemoveOriginal(ctx, "originals/f1/book.xlsx"))
	_, err = store.DownloadOriginal(ctx, "originals/f1/book.xlsx")
	assert.Error(t, err)
}
