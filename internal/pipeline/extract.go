package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/imagefilter/internal/htmlimg"
	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
)

// Extract reads the uploaded workbook and registers its products and images.
// The file ends REGISTERED, or VALIDATION_FAILED carrying an error code.
func (p *Pipeline) Extract(ctx context.Context, fileID string) error {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status != model.StatusValidating {
		return p.stale(TaskExtract, f)
	}

	data, err := p.blobs.DownloadOriginal(ctx, f.OriginalKey)
	if err != nil {
		return p.failValidation(ctx, fileID, model.ErrorRead, fmt.Errorf("download original: %w", err))
	}
	rows, err := spreadsheet.ReadProducts(bytes.NewReader(data), p.schema)
	if err != nil {
		var fe *spreadsheet.FormatError
		if errors.As(err, &fe) {
			return p.failValidation(ctx, fileID, model.ErrorRead, err)
		}
		return p.failValidation(ctx, fileID, model.ErrorUnknown, err)
	}

	products, images, err := buildProducts(fileID, rows)
	if err != nil {
		return p.failValidation(ctx, fileID, model.ErrorExtraction, err)
	}

	err = p.store.RegisterProducts(ctx, fileID, products, images, func(f *model.File) error {
		if f.Status != model.StatusValidating {
			return errStale
		}
		np, ni := len(products), len(images)
		f.Status = model.StatusRegistered
		f.ErrorCode = nil
		f.ProductCount = &np
		f.ImageCount = &ni
		return nil
	})
	if errors.Is(err, errStale) {
		return p.stale(TaskExtract, f)
	}
	if err != nil {
		return p.failValidation(ctx, fileID, model.ErrorUnknown, fmt.Errorf("register products: %w", err))
	}
	metrics.FileTransition(model.StatusValidating, model.StatusRegistered)
	p.log.Info().
		Str("file_id", fileID).
		Int("products", len(products)).
		Int("images", len(images)).
		Msg("file registered")
	return nil
}

func buildProducts(fileID string, rows []spreadsheet.Row) ([]model.Product, []model.Image, error) {
	products := make([]model.Product, 0, len(rows))
	var images []model.Image
	for _, row := range rows {
		uris, err := htmlimg.ExtractImages(row.Description)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", row.Line, err)
		}
		prod := model.Product{
			ID:                  uuid.NewString(),
			FileID:              fileID,
			ProductCode:         row.ProductCode,
			Name:                row.Name,
			OriginalDescription: row.Description,
		}
		for _, uri := range uris {
			images = append(images, model.Image{
				ID:        uuid.NewString(),
				ProductID: prod.ID,
				URI:       uri,
				Type:      model.ImageUnclassified,
			})
		}
		products = append(products, prod)
	}
	return products, images, nil
}

func (p *Pipeline) failValidation(ctx context.Context, fileID string, code model.ErrorCode, cause error) error {
	p.log.Error().Err(cause).Str("file_id", fileID).Stringer("code", code).Msg("validation failed")
	err := p.store.UpdateFile(ctx, fileID, func(f *model.File) error {
		if f.Status != model.StatusValidating {
			return errStale
		}
		f.Fail(model.StatusValidationFailed, code)
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		return errors.Join(cause, fmt.Errorf("flag validation failure: %w", err))
	}
	if err == nil {
		metrics.FileTransition(model.StatusValidating, model.StatusValidationFailed)
	}
	return cause
}
