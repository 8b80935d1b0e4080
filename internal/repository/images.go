package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

const imageColumns = `i.id, i.product_id, i.uri, i.type, i.extracted_text, i.error, i.service_error_code, i.service_error_message, i.classified_at`

// pendingTypes are the image types that still owe a classification result.
var pendingTypes = []int16{int16(model.ImageUnclassified), int16(model.ImageInProgress)}

func scanImage(row rowScanner) (model.Image, error) {
	var (
		img  model.Image
		typ  int16
		text []byte
	)
	err := row.Scan(&img.ID, &img.ProductID, &img.URI, &typ, &text, &img.Error,
		&img.ServiceErrorCode, &img.ServiceErrorMessage, &img.ClassifiedAt)
	img.Type = model.ImageType(typ)
	if len(text) > 0 {
		img.ExtractedText = text
	}
	return img, err
}

func (r *Repository) ListImages(ctx context.Context, q model.ImageQuery) ([]model.Image, error) {
	types := make([]int16, len(q.Types))
	for i, t := range q.Types {
		types[i] = int16(t)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+imageColumns+`
		FROM images i JOIN products p ON p.id = i.product_id
		WHERE p.file_id = $1
			AND ($2::text = '' OR i.product_id = $2)
			AND (cardinality($3::smallint[]) = 0 OR i.type = ANY($3))
		ORDER BY p.seq, i.seq
	`, q.FileID, q.ProductID, types)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	images, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Image, error) {
		return scanImage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan images: %w", err)
	}
	return images, nil
}

func (r *Repository) GetImage(ctx context.Context, id string) (*model.Image, error) {
	return getImage(ctx, r.pool, id)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getImage(ctx context.Context, q querier, id string) (*model.Image, error) {
	img, err := scanImage(q.QueryRow(ctx, `SELECT `+imageColumns+` FROM images i WHERE i.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrImageNotFound
		}
		return nil, fmt.Errorf("select image: %w", err)
	}
	return &img, nil
}

// lockImage locks the file that owns the image and returns the image.
func lockImage(ctx context.Context, tx pgx.Tx, id string) (*model.Image, string, error) {
	var fileID string
	err := tx.QueryRow(ctx, `
		SELECT p.file_id FROM images i JOIN products p ON p.id = i.product_id WHERE i.id=$1
	`, id).Scan(&fileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", model.ErrImageNotFound
		}
		return nil, "", fmt.Errorf("select image file: %w", err)
	}
	if _, err := lockFile(ctx, tx, fileID); err != nil {
		return nil, "", err
	}
	img, err := getImage(ctx, tx, id)
	if err != nil {
		return nil, "", err
	}
	return img, fileID, nil
}

func saveImage(ctx context.Context, tx pgx.Tx, img *model.Image) error {
	var text []byte
	if len(img.ExtractedText) > 0 {
		text = img.ExtractedText
	}
	_, err := tx.Exec(ctx, `
		UPDATE images
		SET type=$1,
			extracted_text=$2,
			error=$3,
			service_error_code=$4,
			service_error_message=$5,
			classified_at=$6
		WHERE id=$7
	`, int16(img.Type), text, img.Error, img.ServiceErrorCode, img.ServiceErrorMessage, img.ClassifiedAt, img.ID)
	if err != nil {
		return fmt.Errorf("update image: %w", err)
	}
	return nil
}

func (r *Repository) UpdateImage(ctx context.Context, id string, fn func(img *model.Image) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		img, _, err := lockImage(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(img); err != nil {
			return err
		}
		return saveImage(ctx, tx, img)
	})
}

func (r *Repository) ClaimImages(ctx context.Context, fileID string) ([]model.Image, error) {
	var claimed []model.Image
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockFile(ctx, tx, fileID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			UPDATE images i SET type=$2
			FROM products p
			WHERE p.id = i.product_id AND p.file_id = $1 AND i.type = $3
			RETURNING `+imageColumns,
			fileID, int16(model.ImageInProgress), int16(model.ImageUnclassified))
		if err != nil {
			return fmt.Errorf("claim images: %w", err)
		}
		claimed, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Image, error) {
			return scanImage(row)
		})
		if err != nil {
			return fmt.Errorf("scan claimed images: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func countPendingImages(ctx context.Context, tx pgx.Tx, fileID, exceptID string) (int, error) {
	var pending int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM images i JOIN products p ON p.id = i.product_id
		WHERE p.file_id = $1 AND i.type = ANY($2) AND i.id <> $3
	`, fileID, pendingTypes, exceptID).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("count pending images: %w", err)
	}
	return pending, nil
}

func (r *Repository) RecordClassification(ctx context.Context, imageID string, out model.ImageOutcome, fn pipeline.SettleFunc) (bool, error) {
	recorded := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		img, fileID, err := lockImage(ctx, tx, imageID)
		if err != nil {
			return err
		}
		if img.Type != model.ImageInProgress {
			return nil
		}
		pending, err := countPendingImages(ctx, tx, fileID, imageID)
		if err != nil {
			return err
		}
		if err := settle(ctx, tx, fileID, pending, fn); err != nil {
			return err
		}
		out.Apply(img)
		if err := saveImage(ctx, tx, img); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func (r *Repository) SettleClassification(ctx context.Context, fileID string, fn pipeline.SettleFunc) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockFile(ctx, tx, fileID); err != nil {
			return err
		}
		pending, err := countPendingImages(ctx, tx, fileID, "")
		if err != nil {
			return err
		}
		return settle(ctx, tx, fileID, pending, fn)
	})
}

func (r *Repository) CountImages(ctx context.Context, fileID string) (map[model.ImageType]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.type, count(*) FROM images i JOIN products p ON p.id = i.product_id
		WHERE p.file_id = $1 GROUP BY i.type
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.ImageType]int)
	for rows.Next() {
		var typ int16
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan image count: %w", err)
		}
		counts[model.ImageType(typ)] = n
	}
	return counts, rows.Err()
}
