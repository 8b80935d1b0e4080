package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
)

// Result is the outcome of a boundary operation.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (p *Pipeline) result(err error, ok string) Result {
	if err != nil {
		return Result{OK: false, Message: Message(err)}
	}
	return Result{OK: true, Message: ok}
}

// UploadRequest describes a spreadsheet handed in by an operator.
type UploadRequest struct {
	Owner       string
	Title       string
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// SupportedWorkbook reports whether name carries an OOXML workbook extension.
func SupportedWorkbook(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Upload stores the original spreadsheet and registers it as UPLOADED.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*model.File, error) {
	name := path.Base(filepath.ToSlash(req.Name))
	if !SupportedWorkbook(name) {
		return nil, ErrUnsupportedFormat
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = xlsxContentType
	}
	id := uuid.NewString()
	key := fmt.Sprintf("originals/%s/%s", id, name)
	if err := p.blobs.UploadOriginal(ctx, key, req.Body, req.Size, contentType); err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}
	now := p.now()
	f := &model.File{
		ID:           id,
		Owner:        req.Owner,
		Title:        title,
		OriginalName: name,
		OriginalKey:  key,
		Status:       model.StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.CreateFile(ctx, f); err != nil {
		if rmErr := p.blobs.RemoveOriginal(ctx, key); rmErr != nil {
			p.log.Warn().Err(rmErr).Str("key", key).Msg("remove orphaned original")
		}
		return nil, fmt.Errorf("create file: %w", err)
	}
	p.log.Info().Str("file_id", id).Str("owner", f.Owner).Str("name", name).Msg("file uploaded")
	return f, nil
}

// RequestValidate moves an UPLOADED file to VALIDATING and enqueues extraction.
func (p *Pipeline) RequestValidate(ctx context.Context, fileID string) Result {
	err := p.transition(ctx, fileID, "validated",
		[]model.FileStatus{model.StatusUploaded}, model.StatusValidating,
		Task{Kind: TaskExtract, FileID: fileID})
	return p.result(err, "validation requested")
}

// RequestClassify moves a REGISTERED file to CLASSIFYING and enqueues
// classification.
func (p *Pipeline) RequestClassify(ctx context.Context, fileID string) Result {
	err := p.transition(ctx, fileID, "classified",
		[]model.FileStatus{model.StatusRegistered}, model.StatusClassifying,
		Task{Kind: TaskClassify, FileID: fileID, ExcludedLocales: p.excluded})
	return p.result(err, "classification requested")
}

// RequestGenerate moves a CLASSIFIED file to GENERATING and enqueues
// regeneration.
func (p *Pipeline) RequestGenerate(ctx context.Context, fileID string) Result {
	err := p.transition(ctx, fileID, "generated",
		[]model.FileStatus{model.StatusClassified}, model.StatusGenerating,
		Task{Kind: TaskGenerate, FileID: fileID})
	return p.result(err, "generation requested")
}

// transition performs a guarded status change and submits task once the
// change is committed. A refused submission puts the previous status back.
func (p *Pipeline) transition(ctx context.Context, fileID, verb string, from []model.FileStatus, to model.FileStatus, task Task) error {
	var prev model.FileStatus
	var prevCode *model.ErrorCode
	err := p.store.UpdateFile(ctx, fileID, func(f *model.File) error {
		if !statusIn(f.Status, from) {
			return &TransitionError{Verb: verb, Current: f.Status, Allowed: from}
		}
		prev, prevCode = f.Status, f.ErrorCode
		f.Status = to
		f.ErrorCode = nil
		return nil
	})
	if err != nil {
		p.log.Debug().Err(err).Str("file_id", fileID).Msg("transition refused")
		return err
	}
	if err := p.submit.Submit(ctx, task); err != nil {
		p.revert(ctx, fileID, to, prev, prevCode)
		return fmt.Errorf("enqueue %s: %w", task.Kind, err)
	}
	metrics.FileTransition(prev, to)
	p.log.Info().Str("file_id", fileID).Stringer("from", prev).Stringer("to", to).Msg("file status changed")
	return nil
}

// revert undoes a transition whose task never reached the queue. It leaves
// the file alone if anything moved it since.
func (p *Pipeline) revert(ctx context.Context, fileID string, to, prev model.FileStatus, prevCode *model.ErrorCode) {
	err := p.store.UpdateFile(ctx, fileID, func(f *model.File) error {
		if f.Status != to {
			return errStale
		}
		f.Status = prev
		f.ErrorCode = prevCode
		return nil
	})
	if err != nil {
		p.log.Error().Err(err).Str("file_id", fileID).Stringer("status", to).Msg("revert refused transition")
	}
}

var deletableStatuses = []model.FileStatus{
	model.StatusUploaded,
	model.StatusValidationFailed,
	model.StatusRegistered,
}

// RequestDelete removes a file with its products and images.
func (p *Pipeline) RequestDelete(ctx context.Context, fileID string) Result {
	var originalKey string
	err := p.store.DeleteFile(ctx, fileID, func(f *model.File) error {
		if !f.Status.Deletable() {
			return &TransitionError{Verb: "deleted", Current: f.Status, Allowed: deletableStatuses}
		}
		originalKey = f.OriginalKey
		return nil
	})
	if err != nil {
		return p.result(err, "")
	}
	if originalKey != "" {
		if rmErr := p.blobs.RemoveOriginal(ctx, originalKey); rmErr != nil {
			p.log.Warn().Err(rmErr).Str("key", originalKey).Msg("remove original")
		}
	}
	p.log.Info().Str("file_id", fileID).Msg("file deleted")
	return p.result(nil, "file deleted")
}

// OverrideImageType lets an operator replace the type of a settled image.
func (p *Pipeline) OverrideImageType(ctx context.Context, imageID string, to model.ImageType) Result {
	if to != model.ImageExcluded && to != model.ImageIncluded {
		return p.result(&OverrideError{Requested: to}, "")
	}
	var from model.ImageType
	err := p.store.UpdateImage(ctx, imageID, func(img *model.Image) error {
		if !img.Type.Overridable() {
			return &OverrideError{Current: img.Type, Requested: to}
		}
		from = img.Type
		img.Type = to
		return nil
	})
	if err == nil {
		p.log.Info().Str("image_id", imageID).Stringer("from", from).Stringer("to", to).Msg("image type overridden")
	}
	return p.result(err, "image type changed")
}

// File returns the file if owner may see it. An empty owner skips the check.
func (p *Pipeline) File(ctx context.Context, fileID, owner string) (*model.File, error) {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if owner != "" && !f.OwnedBy(owner) {
		return nil, model.ErrFileNotFound
	}
	return f, nil
}

// Products lists the products of a file.
func (p *Pipeline) Products(ctx context.Context, fileID string) ([]model.Product, error) {
	return p.store.ListProducts(ctx, fileID)
}

// Images lists the images matching q.
func (p *Pipeline) Images(ctx context.Context, q model.ImageQuery) ([]model.Image, error) {
	return p.store.ListImages(ctx, q)
}

// Image returns one image.
func (p *Pipeline) Image(ctx context.Context, imageID string) (*model.Image, error) {
	return p.store.GetImage(ctx, imageID)
}

// FileOfImage returns the file an image was extracted from.
func (p *Pipeline) FileOfImage(ctx context.Context, imageID string) (*model.File, error) {
	img, err := p.store.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	prod, err := p.store.GetProduct(ctx, img.ProductID)
	if err != nil {
		return nil, err
	}
	return p.store.GetFile(ctx, prod.FileID)
}

// ProductSummary is a product with the counts shown in product listings.
type ProductSummary struct {
	model.Product
	Images   int `json:"images"`
	Excluded int `json:"excluded"`
}

// ProductSummaries lists a file's products with their image counts.
func (p *Pipeline) ProductSummaries(ctx context.Context, fileID string) ([]ProductSummary, error) {
	products, err := p.store.ListProducts(ctx, fileID)
	if err != nil {
		return nil, err
	}
	images, err := p.store.ListImages(ctx, model.ImageQuery{FileID: fileID})
	if err != nil {
		return nil, err
	}
	total := make(map[string]int, len(products))
	excluded := make(map[string]int, len(products))
	for _, img := range images {
		total[img.ProductID]++
		if img.Type == model.ImageExcluded {
			excluded[img.ProductID]++
		}
	}
	out := make([]ProductSummary, len(products))
	for i, prod := range products {
		out[i] = ProductSummary{Product: prod, Images: total[prod.ID], Excluded: excluded[prod.ID]}
	}
	return out, nil
}

// Summary counts a file's images by classification state.
type Summary struct {
	Total        int `json:"total"`
	Included     int `json:"included"`
	Excluded     int `json:"excluded"`
	Failed       int `json:"failed"`
	InProgress   int `json:"inProgress"`
	Unclassified int `json:"unclassified"`
}

func (p *Pipeline) Summary(ctx context.Context, fileID string) (Summary, error) {
	if _, err := p.store.GetFile(ctx, fileID); err != nil {
		return Summary{}, err
	}
	counts, err := p.store.CountImages(ctx, fileID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Included:     counts[model.ImageIncluded],
		Excluded:     counts[model.ImageExcluded],
		Failed:       counts[model.ImageFailed],
		InProgress:   counts[model.ImageInProgress],
		Unclassified: counts[model.ImageUnclassified],
	}
	s.Total = s.Included + s.Excluded + s.Failed + s.InProgress + s.Unclassified
	return s, nil
}

// ErrNotGenerated is returned when the output of a file is requested before
// it exists.
var ErrNotGenerated = errors.New("file has not been generated")

// GeneratedURL returns a time-limited download URL for the output workbook.
func (p *Pipeline) GeneratedURL(ctx context.Context, fileID string) (string, error) {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if f.Status != model.StatusGenerated || !f.Generated() {
		return "", ErrNotGenerated
	}
	return p.blobs.PresignGeneratedURL(ctx, *f.GeneratedKey, p.urlTTL)
}

// GeneratedFile returns the output workbook and its file name.
func (p *Pipeline) GeneratedFile(ctx context.Context, fileID string) ([]byte, string, error) {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if f.Status != model.StatusGenerated || !f.Generated() {
		return nil, "", ErrNotGenerated
	}
	data, err := p.blobs.DownloadGenerated(ctx, *f.GeneratedKey)
	if err != nil {
		return nil, "", err
	}
	return data, model.FilteredName(f.OriginalName), nil
}
