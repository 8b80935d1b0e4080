package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/imagefilter/internal/model"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
)

const productColumns = `id, file_id, product_code, name, original_description, filtered_description, changed`

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.FileID, &p.ProductCode, &p.Name, &p.OriginalDescription, &p.FilteredDescription, &p.Changed)
	return p, err
}

// RegisterProducts bulk-loads products and images with COPY inside the file's
// transaction.
func (r *Repository) RegisterProducts(ctx context.Context, fileID string, products []model.Product, images []model.Image, fn func(f *model.File) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := lockFile(ctx, tx, fileID)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
		if err := saveFile(ctx, tx, f); err != nil {
			return err
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"products"},
			[]string{"id", "file_id", "seq", "product_code", "name", "original_description"},
			pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
				p := products[i]
				return []any{p.ID, fileID, i, p.ProductCode, p.Name, p.OriginalDescription}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy products: %w", err)
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"images"},
			[]string{"id", "product_id", "seq", "uri", "type"},
			pgx.CopyFromSlice(len(images), func(i int) ([]any, error) {
				img := images[i]
				return []any{img.ID, img.ProductID, i, img.URI, int16(img.Type)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy images: %w", err)
		}
		return nil
	})
}

func (r *Repository) ListProducts(ctx context.Context, fileID string) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE file_id=$1 ORDER BY seq`, fileID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

func (r *Repository) ResetRegeneration(ctx context.Context, fileID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE products SET filtered_description=NULL, changed=NULL WHERE file_id=$1
	`, fileID)
	if err != nil {
		return fmt.Errorf("reset products: %w", err)
	}
	return nil
}

func (r *Repository) SaveRegeneration(ctx context.Context, productID, filtered string, changed bool, fn pipeline.SettleFunc) (bool, error) {
	recorded := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var fileID string
		err := tx.QueryRow(ctx, `SELECT file_id FROM products WHERE id=$1`, productID).Scan(&fileID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrProductNotFound
			}
			return fmt.Errorf("select product: %w", err)
		}
		if _, err := lockFile(ctx, tx, fileID); err != nil {
			return err
		}
		var done bool
		var pending int
		err = tx.QueryRow(ctx, `
			SELECT
				(SELECT changed IS NOT NULL FROM products WHERE id=$2),
				(SELECT count(*) FROM products WHERE file_id=$1 AND changed IS NULL AND id<>$2)
		`, fileID, productID).Scan(&done, &pending)
		if err != nil {
			return fmt.Errorf("count pending products: %w", err)
		}
		if done {
			return nil
		}
		if err := settle(ctx, tx, fileID, pending, fn); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE products SET filtered_description=$1, changed=$2 WHERE id=$3
		`, filtered, changed, productID); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}
