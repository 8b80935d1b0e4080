// Package s3storage keeps original uploads and generated workbooks in MinIO or
// any S3-compatible store.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

var _ pipeline.Blobs = (*Storage)(nil)

// Storage wraps MinIO/S3 interactions for original and generated workbooks.
type Storage struct {
	client          *minio.Client
	originalBucket  string
	generatedBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		originalBucket:  cfg.OriginalBucket,
		generatedBucket: cfg.GeneratedBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.originalBucket, s.generatedBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// UploadOriginal streams an uploaded workbook into the originals bucket. A
// negative size makes minio buffer the stream in parts.
func (s *Storage) UploadOriginal(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if size <= 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, s.originalBucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload original object: %w", err)
	}
	return nil
}

func (s *Storage) DownloadOriginal(ctx context.Context, key string) ([]byte, error) {
	return s.download(ctx, s.originalBucket, key)
}

func (s *Storage) RemoveOriginal(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.originalBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove original object: %w", err)
	}
	return nil
}

// UploadGenerated stores a rebuilt workbook. Rebuilding the same file
// overwrites the previous output.
func (s *Storage) UploadGenerated(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.generatedBucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload generated object: %w", err)
	}
	return nil
}

func (s *Storage) DownloadGenerated(ctx context.Context, key string) ([]byte, error) {
	return s.download(ctx, s.generatedBucket, key)
}

// PresignGeneratedURL returns a signed GET URL that downloads under the
// output file name.
func (s *Storage) PresignGeneratedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	u, err := s.client.PresignedGetObject(ctx, s.generatedBucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign generated object: %w", err)
	}
	return u.String(), nil
}

func (s *Storage) download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	return buf, nil
}
