package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dharsanguruparan/imagefilter/internal/htmlimg"
	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
)

// Generate resets every product of the file and queues one regeneration per
// product. The last regeneration queues the rebuild.
func (p *Pipeline) Generate(ctx context.Context, fileID string) error {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status != model.StatusGenerating {
		return p.stale(TaskGenerate, f)
	}
	if err := p.store.ResetRegeneration(ctx, fileID); err != nil {
		return p.failGeneration(ctx, fileID, model.ErrorUnknown, fmt.Errorf("reset products: %w", err))
	}
	products, err := p.store.ListProducts(ctx, fileID)
	if err != nil {
		return p.failGeneration(ctx, fileID, model.ErrorUnknown, fmt.Errorf("list products: %w", err))
	}
	if len(products) == 0 {
		if err := p.submit.Submit(ctx, Task{Kind: TaskRebuild, FileID: fileID}); err != nil {
			return p.failGeneration(ctx, fileID, model.ErrorUnknown, fmt.Errorf("enqueue rebuild: %w", err))
		}
		return nil
	}
	p.log.Info().Str("file_id", fileID).Int("products", len(products)).Msg("regeneration started")
	for _, prod := range products {
		t := Task{Kind: TaskRegenerate, FileID: fileID, ProductID: prod.ID}
		if err := p.submit.Submit(ctx, t); err != nil {
			p.log.Warn().Err(err).Str("product_id", prod.ID).Msg("enqueue regeneration refused, running inline")
			if err := p.Regenerate(ctx, prod.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegenerateDescription removes every image listed in excluded from an
// original description. changed reports whether any image was excluded.
func RegenerateDescription(original string, excluded []string) (string, bool, error) {
	if len(excluded) == 0 {
		return original, false, nil
	}
	filtered, _, err := htmlimg.StripImages(original, excluded)
	if err != nil {
		return "", false, err
	}
	return filtered, true, nil
}

// Regenerate rebuilds one product's description from its original and the
// current image types. It is idempotent; only the first save after a reset
// counts towards completion.
func (p *Pipeline) Regenerate(ctx context.Context, productID string) error {
	prod, err := p.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	f, err := p.store.GetFile(ctx, prod.FileID)
	if err != nil {
		return err
	}
	if f.Status != model.StatusGenerating {
		return p.stale(TaskRegenerate, f)
	}
	excluded, err := p.store.ListImages(ctx, model.ImageQuery{
		FileID:    prod.FileID,
		ProductID: prod.ID,
		Types:     []model.ImageType{model.ImageExcluded},
	})
	if err != nil {
		return p.failGeneration(ctx, prod.FileID, model.ErrorUnknown, fmt.Errorf("list excluded images: %w", err))
	}
	uris := make([]string, len(excluded))
	for i, img := range excluded {
		uris[i] = img.URI
	}
	filtered, changed, err := RegenerateDescription(prod.OriginalDescription, uris)
	if err != nil {
		return p.failGeneration(ctx, prod.FileID, model.ErrorExtraction, fmt.Errorf("product %s: %w", prod.ProductCode, err))
	}

	last := false
	recorded, err := p.store.SaveRegeneration(ctx, productID, filtered, changed, func(f *model.File, pending int) error {
		last = pending == 0 && f.Status == model.StatusGenerating
		return nil
	})
	if err != nil {
		return p.failGeneration(ctx, prod.FileID, model.ErrorUnknown, err)
	}
	if !recorded {
		p.log.Debug().Str("product_id", productID).Msg("product already regenerated")
		return nil
	}
	if !last {
		return nil
	}
	// The save above is committed, so the rebuild sees every product.
	if err := p.submit.Submit(ctx, Task{Kind: TaskRebuild, FileID: prod.FileID}); err != nil {
		p.log.Warn().Err(err).Str("file_id", prod.FileID).Msg("enqueue rebuild refused, running inline")
		return p.Rebuild(ctx, prod.FileID)
	}
	return nil
}

// Rebuild writes the output workbook: the original with each changed
// product's description replaced. Layout drift against the schema reverts the
// file to CLASSIFIED with a schema-mismatch error.
func (p *Pipeline) Rebuild(ctx context.Context, fileID string) error {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status != model.StatusGenerating {
		return p.stale(TaskRebuild, f)
	}

	data, err := p.blobs.DownloadOriginal(ctx, f.OriginalKey)
	if err != nil {
		return p.failGeneration(ctx, fileID, model.ErrorUnknown, fmt.Errorf("download original: %w", err))
	}
	out, replaced, err := p.rebuild(ctx, fileID, data)
	if err != nil {
		var sm *spreadsheet.SchemaMismatchError
		if errors.As(err, &sm) {
			return p.failGeneration(ctx, fileID, model.ErrorSchemaMismatch, err)
		}
		return p.failGeneration(ctx, fileID, model.ErrorUnknown, err)
	}

	key := fmt.Sprintf("generated/%s/%s", fileID, model.FilteredName(f.OriginalName))
	if err := p.blobs.UploadGenerated(ctx, key, out, xlsxContentType); err != nil {
		return p.failGeneration(ctx, fileID, model.ErrorUnknown, fmt.Errorf("store output: %w", err))
	}
	err = p.store.UpdateFile(ctx, fileID, func(f *model.File) error {
		if f.Status != model.StatusGenerating {
			return errStale
		}
		f.Status = model.StatusGenerated
		f.GeneratedKey = &key
		f.ErrorCode = nil
		return nil
	})
	if errors.Is(err, errStale) {
		return p.stale(TaskRebuild, f)
	}
	if err != nil {
		return fmt.Errorf("mark generated: %w", err)
	}
	metrics.FileTransition(model.StatusGenerating, model.StatusGenerated)
	p.log.Info().Str("file_id", fileID).Int("replaced", replaced).Str("key", key).Msg("file generated")
	return nil
}

func (p *Pipeline) rebuild(ctx context.Context, fileID string, original []byte) ([]byte, int, error) {
	wb, err := spreadsheet.Open(bytes.NewReader(original), p.schema)
	if err != nil {
		return nil, 0, err
	}
	defer wb.Close()

	products, err := p.store.ListProducts(ctx, fileID)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	byCode := make(map[string]string)
	for _, prod := range products {
		if prod.Changed != nil && *prod.Changed && prod.FilteredDescription != nil {
			byCode[prod.ProductCode] = *prod.FilteredDescription
		}
	}
	replaced, err := wb.ReplaceDescriptions(byCode)
	if err != nil {
		return nil, 0, err
	}
	out, err := wb.Bytes()
	if err != nil {
		return nil, 0, err
	}
	return out, replaced, nil
}

func (p *Pipeline) failGeneration(ctx context.Context, fileID string, code model.ErrorCode, cause error) error {
	p.log.Error().Err(cause).Str("file_id", fileID).Stringer("code", code).Msg("generation failed")
	err := p.store.UpdateFile(ctx, fileID, func(f *model.File) error {
		if f.Status != model.StatusGenerating {
			return errStale
		}
		f.Fail(model.StatusClassified, code)
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		return errors.Join(cause, fmt.Errorf("flag generation failure: %w", err))
	}
	if err == nil {
		metrics.FileTransition(model.StatusGenerating, model.StatusClassified)
	}
	return cause
}
