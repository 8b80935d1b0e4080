package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

// NeedsReview is stored on images whose response matched no known shape.
const NeedsReview = "needs review: unrecognized text-detection response"

// Classify claims the file's unclassified images, sends them to the text
// detector in batches and queues one callback per image. A file without
// images settles immediately.
func (p *Pipeline) Classify(ctx context.Context, fileID string, excluded []string) error {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.Status != model.StatusClassifying {
		return p.stale(TaskClassify, f)
	}
	if len(excluded) == 0 {
		excluded = p.excluded
	}

	claimed, err := p.store.ClaimImages(ctx, fileID)
	if err != nil {
		return fmt.Errorf("claim images: %w", err)
	}
	if len(claimed) == 0 {
		var done bool
		if err := p.store.SettleClassification(ctx, fileID, classificationSettler(&done)); err != nil {
			return fmt.Errorf("settle classification: %w", err)
		}
		if done {
			p.classified(fileID)
		}
		return nil
	}
	p.log.Info().Str("file_id", fileID).Int("images", len(claimed)).Msg("classification started")

	for start := 0; start < len(claimed); start += p.batchSize {
		end := min(start+p.batchSize, len(claimed))
		p.classifyBatch(ctx, fileID, claimed[start:end], excluded)
	}
	return nil
}

func (p *Pipeline) classifyBatch(ctx context.Context, fileID string, batch []model.Image, excluded []string) {
	uris := make([]string, len(batch))
	for i, img := range batch {
		uris[i] = img.URI
	}
	began := time.Now()
	responses, err := p.classifier.Annotate(ctx, uris)
	if err == nil && len(responses) != len(batch) {
		err = fmt.Errorf("text detection returned %d responses for %d images", len(responses), len(batch))
	}
	metrics.VisionBatch(time.Since(began), err)
	if err != nil {
		p.log.Warn().Err(err).Str("file_id", fileID).Int("images", len(batch)).Msg("text detection batch failed")
	}

	for i, img := range batch {
		t := Task{Kind: TaskImageClassified, FileID: fileID, ImageID: img.ID, ExcludedLocales: excluded}
		if err != nil {
			t.Error = err.Error()
		} else {
			r := responses[i]
			t.Response = &r
		}
		if subErr := p.submit.Submit(ctx, t); subErr != nil {
			// An image left IN_PROGRESS would hold the file forever.
			p.log.Warn().Err(subErr).Str("image_id", img.ID).Msg("enqueue callback refused, recording inline")
			if recErr := p.RecordImage(ctx, t); recErr != nil {
				p.log.Error().Err(recErr).Str("image_id", img.ID).Msg("record classification")
			}
		}
	}
}

// RecordImage stores one classification callback and completes the file once
// no image is pending. Repeated callbacks for the same image are ignored.
func (p *Pipeline) RecordImage(ctx context.Context, t Task) error {
	out := Decide(t.Response, t.Error, t.ExcludedLocales)
	out.ClassifiedAt = p.now()
	var done bool
	recorded, err := p.store.RecordClassification(ctx, t.ImageID, out, classificationSettler(&done))
	if err != nil {
		return fmt.Errorf("record classification of %s: %w", t.ImageID, err)
	}
	if !recorded {
		p.log.Debug().Str("image_id", t.ImageID).Msg("duplicate classification callback ignored")
		return nil
	}
	metrics.ImageOutcome(out.Type)
	if done {
		p.classified(t.FileID)
	}
	return nil
}

// classificationSettler completes a CLASSIFYING file once nothing is pending.
// done is set when it did; the caller reports it after the commit.
func classificationSettler(done *bool) SettleFunc {
	return func(f *model.File, pending int) error {
		*done = false
		if pending > 0 || f.Status != model.StatusClassifying {
			return nil
		}
		f.Status = model.StatusClassified
		*done = true
		return nil
	}
}

func (p *Pipeline) classified(fileID string) {
	metrics.FileTransition(model.StatusClassifying, model.StatusClassified)
	p.log.Info().Str("file_id", fileID).Msg("file classified")
}

// Decide maps a text-detection result to an image outcome. callErr is the
// failure of the batch call itself and wins over resp.
func Decide(resp *vision.Response, callErr string, excluded []string) model.ImageOutcome {
	if callErr != "" {
		return model.ImageOutcome{Type: model.ImageFailed, Error: callErr}
	}
	if resp == nil {
		return model.ImageOutcome{Type: model.ImageFailed, Error: NeedsReview}
	}
	out := model.ImageOutcome{ExtractedText: resp.Raw}
	switch resp.Kind {
	case vision.KindAnnotated:
		out.Type = model.ImageIncluded
		if localeExcluded(resp.Locale, excluded) {
			out.Type = model.ImageExcluded
		}
	case vision.KindEmpty:
		out.Type = model.ImageIncluded
	case vision.KindServiceError:
		code := resp.Code
		out.Type = model.ImageFailed
		out.Error = resp.Message
		if out.Error == "" {
			out.Error = fmt.Sprintf("text detection error %d", code)
		}
		out.ServiceErrorCode = &code
		out.ServiceErrorMessage = resp.Message
	default:
		out.Type = model.ImageFailed
		out.Error = NeedsReview
	}
	return out
}

func localeExcluded(locale string, excluded []string) bool {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return false
	}
	for _, l := range excluded {
		if strings.EqualFold(locale, strings.TrimSpace(l)) {
			return true
		}
	}
	return false
}
