package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"digistore-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// Upsert inserts link unless a link for the same product exists, and
	// returns whichever row is stored.
	Upsert(ctx context.Context, link *Link) (*Link, error)
	// FindItemLink resolves the link attached to one item of a user's order.
	FindItemLink(ctx context.Context, orderID, itemID, userID uuid.UUID) (*Link, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, link *Link) (*Link, error) {
	// the no-op DO UPDATE makes RETURNING yield the existing row on conflict
	query := `
		INSERT INTO download_links (id, product_id, link, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id) DO UPDATE SET product_id = EXCLUDED.product_id
		RETURNING id, product_id, link, expires_at, created_at, updated_at
	`

	var out Link
	err := r.db.QueryRowContext(ctx, query,
		link.ID,
		link.ProductID,
		link.URL,
		link.ExpiresAt,
	).Scan(
		&out.ID,
		&out.ProductID,
		&out.URL,
		&out.ExpiresAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to upsert download link",
			zap.String("layer", "repository"),
			zap.String("product_id", link.ProductID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("upsert download link: %w", err)
	}

	return &out, nil
}

func (r *repository) FindItemLink(ctx context.Context, orderID, itemID, userID uuid.UUID) (*Link, error) {
	query := `
		SELECT
			oi.id,
			dl.id,
			dl.product_id,
			dl.link,
			dl.expires_at,
			dl.created_at,
			dl.updated_at
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id AND oi.id = $2
		LEFT JOIN download_links dl ON dl.id = oi.download_link_id
		WHERE o.id = $1 AND o.user_id = $3
	`

	var (
		foundItem uuid.NullUUID
		linkID    uuid.NullUUID
		productID uuid.NullUUID
		url       sql.NullString
		expiresAt sql.NullTime
		createdAt sql.NullTime
		updatedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, orderID, itemID, userID).Scan(
		&foundItem,
		&linkID,
		&productID,
		&url,
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to find item download link",
			zap.String("layer", "repository"),
			zap.String("order_id", orderID.String()),
			zap.String("item_id", itemID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("find item download link: %w", err)
	}

	if !foundItem.Valid {
		return nil, ErrOrderItemNotFound
	}
	if !linkID.Valid {
		return nil, ErrLinkNotFound
	}

	return &Link{
		ID:        linkID.UUID,
		ProductID: productID.UUID,
		URL:       url.String,
		ExpiresAt: expiresAt.Time,
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}, nil
}
