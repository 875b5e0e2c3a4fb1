package product

import (
	"context"
	"database/sql"
	"fmt"

	"digistore-be/internal/logger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Repository is the read side of the catalog used during checkout.
type Repository interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectProduct = `
	SELECT id, title, description, price, image, download_url, category, created_at
	FROM products
`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*Product, error) {
	var p Product
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Price,
		&p.Image,
		&p.DownloadURL,
		&p.Category,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns the products that exist, keyed by id. Missing ids are absent from the map.
func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Product, error) {
	out := make(map[uuid.UUID]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	rows, err := r.db.QueryContext(ctx, selectProduct+` WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		logger.FromCtx(ctx).Error("failed to query products",
			zap.String("layer", "repository"),
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}

	return out, rows.Err()
}
