package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/dharsanguruparan/imagefilter/internal/model"
)

// SettleFunc runs under the owning file's lock after a unit of async work has
// been recorded. pending is the number of units of the same stage still
// outstanding for the file. Changes made to f are persisted with the unit; an
// error rolls both back. Follow-up work is submitted by the caller once the
// store method has returned, never from inside the callback.
type SettleFunc func(f *model.File, pending int) error

// Store persists files, products and images. Every method that receives a
// callback holds an exclusive lock on the file row while the callback runs,
// so guard-check-and-mutate sequences never interleave.
type Store interface {
	CreateFile(ctx context.Context, f *model.File) error
	GetFile(ctx context.Context, id string) (*model.File, error)
	// UpdateFile locks the file, applies fn and saves the result.
	UpdateFile(ctx context.Context, id string, fn func(f *model.File) error) error
	// DeleteFile locks the file and, if guard passes, removes its images,
	// then its products, then the file.
	DeleteFile(ctx context.Context, id string, guard func(f *model.File) error) error

	// RegisterProducts inserts products and images in one unit together with
	// the file changes made by fn.
	RegisterProducts(ctx context.Context, fileID string, products []model.Product, images []model.Image, fn func(f *model.File) error) error
	ListProducts(ctx context.Context, fileID string) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	// ResetRegeneration clears the filtered description and change flag of
	// every product of the file.
	ResetRegeneration(ctx context.Context, fileID string) error
	// SaveRegeneration stores a product's regenerated description. It reports
	// whether the product was still pending; settle runs only in that case,
	// with pending counting products whose change flag is still unset.
	SaveRegeneration(ctx context.Context, productID, filtered string, changed bool, settle SettleFunc) (bool, error)

	ListImages(ctx context.Context, q model.ImageQuery) ([]model.Image, error)
	GetImage(ctx context.Context, id string) (*model.Image, error)
	// UpdateImage applies fn to the image under its file's lock.
	UpdateImage(ctx context.Context, id string, fn func(img *model.Image) error) error
	// ClaimImages moves every UNCLASSIFIED image of the file to IN_PROGRESS
	// and returns the claimed images.
	ClaimImages(ctx context.Context, fileID string) ([]model.Image, error)
	// RecordClassification writes out onto the image if it is IN_PROGRESS and
	// reports whether it did. settle runs only in that case, with pending
	// counting images still UNCLASSIFIED or IN_PROGRESS.
	RecordClassification(ctx context.Context, imageID string, out model.ImageOutcome, settle SettleFunc) (bool, error)
	// SettleClassification runs settle for a file without recording anything.
	SettleClassification(ctx context.Context, fileID string, settle SettleFunc) error
	CountImages(ctx context.Context, fileID string) (map[model.ImageType]int, error)
}

// Blobs stores the original uploads and the generated workbooks.
type Blobs interface {
	UploadOriginal(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	DownloadOriginal(ctx context.Context, key string) ([]byte, error)
	RemoveOriginal(ctx context.Context, key string) error
	UploadGenerated(ctx context.Context, key string, data []byte, contentType string) error
	DownloadGenerated(ctx context.Context, key string) ([]byte, error)
	PresignGeneratedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
