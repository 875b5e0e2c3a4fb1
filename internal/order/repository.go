package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"digistore-be/internal/download"
	"digistore-be/internal/logger"
	"digistore-be/internal/product"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	// CreateOrderTx writes the order and all of its items in one transaction.
	CreateOrderTx(ctx context.Context, order *Order) error
	// FetchOrders lists a user's orders, newest first.
	FetchOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error)
	// FetchOrderItems returns items grouped by order, with product and link joined.
	FetchOrderItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]*OrderItem, error)
	// GetByID returns nil, nil when the order does not exist.
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	// UpdateStatus sets the status only if it is still from; it reports whether a row changed.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status, at time.Time) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, order *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_id", order.ID.String()),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin tx", zap.Error(err))
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, total_amount, status,
			payment_method, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.Status,
		order.PaymentMethod,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, quantity,
				price, download_link_id, purchase_date
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID,
			order.ID,
			i,
			item.ProductID,
			item.Quantity,
			item.Price,
			uuid.NullUUID{UUID: derefUUID(item.DownloadLinkID), Valid: item.DownloadLinkID != nil},
			item.PurchaseDate,
		)
		if err != nil {
			log.Error("failed to insert order item", zap.Int("position", i), zap.Error(err))
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order", zap.Error(err))
		return fmt.Errorf("commit order: %w", err)
	}

	return nil
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

const selectOrder = `
	SELECT id, user_id, total_amount, status, payment_method, created_at, updated_at
	FROM orders
`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var o Order
	if err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) FetchOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "FetchOrders"),
		zap.String("user_id", userID.String()),
	)

	rows, err := r.db.QueryContext(ctx,
		selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	log.Debug("fetched orders", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) FetchOrderItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]*OrderItem, error) {
	result := make(map[uuid.UUID][]*OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "FetchOrderItems"),
		zap.Int("orders", len(orderIDs)),
	)

	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT
			oi.id,
			oi.order_id,
			oi.product_id,
			oi.quantity,
			oi.price,
			oi.download_link_id,
			oi.purchase_date,
			p.id,
			p.title,
			p.description,
			p.price,
			p.image,
			p.download_url,
			p.category,
			p.created_at,
			dl.id,
			dl.product_id,
			dl.link,
			dl.expires_at,
			dl.created_at,
			dl.updated_at
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		LEFT JOIN download_links dl ON dl.id = oi.download_link_id
		WHERE oi.order_id = ANY($1::uuid[])
		ORDER BY oi.order_id, oi.position
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		log.Error("failed to query order items", zap.Error(err))
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item OrderItem
			link uuid.NullUUID

			pID          uuid.NullUUID
			pTitle       sql.NullString
			pDescription sql.NullString
			pPrice       decimal.NullDecimal
			pImage       sql.NullString
			pDownloadURL sql.NullString
			pCategory    sql.NullString
			pCreatedAt   sql.NullTime

			dlID        uuid.NullUUID
			dlProductID uuid.NullUUID
			dlURL       sql.NullString
			dlExpiresAt sql.NullTime
			dlCreatedAt sql.NullTime
			dlUpdatedAt sql.NullTime
		)

		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&link,
			&item.PurchaseDate,
			&pID,
			&pTitle,
			&pDescription,
			&pPrice,
			&pImage,
			&pDownloadURL,
			&pCategory,
			&pCreatedAt,
			&dlID,
			&dlProductID,
			&dlURL,
			&dlExpiresAt,
			&dlCreatedAt,
			&dlUpdatedAt,
		); err != nil {
			log.Error("failed to scan order item", zap.Error(err))
			return nil, fmt.Errorf("scan order item: %w", err)
		}

		if link.Valid {
			id := link.UUID
			item.DownloadLinkID = &id
		}

		if pID.Valid {
			item.Product = &product.Product{
				ID:          pID.UUID,
				Title:       pTitle.String,
				Description: pDescription.String,
				Price:       pPrice.Decimal,
				Image:       pImage.String,
				DownloadURL: pDownloadURL.String,
				Category:    product.Category(pCategory.String),
				CreatedAt:   pCreatedAt.Time,
			}
		}

		if dlID.Valid {
			item.DownloadLink = &download.Link{
				ID:        dlID.UUID,
				ProductID: dlProductID.UUID,
				URL:       dlURL.String,
				ExpiresAt: dlExpiresAt.Time,
				CreatedAt: dlCreatedAt.Time,
				UpdatedAt: dlUpdatedAt.Time,
			}
		}

		result[item.OrderID] = append(result[item.OrderID], &item)
	}

	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	return result, nil
}

func (r *repository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to get order",
			zap.String("layer", "repository"),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, to, at, orderID, from)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update order status",
			zap.String("layer", "repository"),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return false, fmt.Errorf("update order status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
