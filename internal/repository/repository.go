// Package repository is the Postgres implementation of pipeline.Store. Every
// state-changing method runs in one transaction that first locks the owning
// file row with SELECT ... FOR UPDATE.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

var _ pipeline.Store = (*Repository)(nil)

// Repository wraps all SQL used by the API and the worker.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const fileColumns = `id, owner, title, original_name, original_key, generated_key, status, error_code, product_count, image_count, created_at, updated_at`

func scanFile(row rowScanner) (*model.File, error) {
	var (
		f      model.File
		status int16
		code   *int16
	)
	err := row.Scan(&f.ID, &f.Owner, &f.Title, &f.OriginalName, &f.OriginalKey, &f.GeneratedKey,
		&status, &code, &f.ProductCount, &f.ImageCount, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrFileNotFound
		}
		return nil, fmt.Errorf("select file: %w", err)
	}
	f.Status = model.FileStatus(status)
	if code != nil {
		c := model.ErrorCode(*code)
		f.ErrorCode = &c
	}
	return &f, nil
}

func (r *Repository) CreateFile(ctx context.Context, f *model.File) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, f.ID, f.Owner, f.Title, f.OriginalName, f.OriginalKey, f.GeneratedKey,
		int16(f.Status), errorCode(f.ErrorCode), f.ProductCount, f.ImageCount, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id string) (*model.File, error) {
	return scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1`, id))
}

// lockFile reads the file row and holds its lock until tx ends.
func lockFile(ctx context.Context, tx pgx.Tx, id string) (*model.File, error) {
	return scanFile(tx.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1 FOR UPDATE`, id))
}

func saveFile(ctx context.Context, tx pgx.Tx, f *model.File) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE files
		SET title=$1,
			generated_key=$2,
			status=$3,
			error_code=$4,
			product_count=$5,
			image_count=$6,
			updated_at=$7
		WHERE id=$8
	`, f.Title, f.GeneratedKey, int16(f.Status), errorCode(f.ErrorCode), f.ProductCount, f.ImageCount, f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

func errorCode(c *model.ErrorCode) *int16 {
	if c == nil {
		return nil
	}
	v := int16(*c)
	return &v
}

func (r *Repository) UpdateFile(ctx context.Context, id string, fn func(f *model.File) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := lockFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		return saveFile(ctx, tx, f)
	})
}

func (r *Repository) DeleteFile(ctx context.Context, id string, guard func(f *model.File) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := lockFile(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := guard(f); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM images USING products p
			WHERE images.product_id = p.id AND p.file_id = $1
		`, id); err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM products WHERE file_id=$1`, id); err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE id=$1`, id); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
		return nil
	})
}

// settle locks the file, runs fn with the pending count produced by count and
// saves the file.
func settle(ctx context.Context, tx pgx.Tx, fileID string, pending int, fn pipeline.SettleFunc) error {
	f, err := lockFile(ctx, tx, fileID)
	if err != nil {
		return err
	}
	if err := fn(f, pending); err != nil {
		return err
	}
	return saveFile(ctx, tx, f)
}
