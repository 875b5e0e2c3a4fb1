package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"digistore-be/internal/download"
	"digistore-be/internal/logger"
	"digistore-be/internal/metrics"
	"digistore-be/internal/product"
	"digistore-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrders(ctx context.Context) ([]*Order, error)
	GetDownloadURL(ctx context.Context, orderID, itemID uuid.UUID) (string, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*Order, error)
}

type service struct {
	repo     Repository
	products product.Repository
	links    download.Issuer
	events   EventPublisher
	now      func() time.Time
}

// NewService wires the order flow. A nil publisher drops events.
func NewService(repo Repository, products product.Repository, links download.Issuer, events EventPublisher) Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &service{
		repo:     repo,
		products: products,
		links:    links,
		events:   events,
		now:      time.Now,
	}
}

// totals are stored as NUMERIC(12, 2)
const totalScale = 2

func validateInput(input CreateOrderInput) error {
	if len(input.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range input.Items {
		if it.Product == nil || it.Product.ID == uuid.Nil {
			return ErrMissingProduct
		}
		if it.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}

	if !input.TotalAmount.Valid {
		return ErrMissingTotal
	}
	amount := input.TotalAmount.Decimal
	if amount.IsNegative() || !amount.Equal(amount.Round(totalScale)) {
		return ErrInvalidTotal
	}
	return nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
	)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		log.Warn("unauthorized create order attempt")
		return nil, ErrUnauthorized
	}
	log = log.With(zap.String("user_id", userID.String()))

	if err := validateInput(input); err != nil {
		log.Info("rejecting order", zap.Error(err))
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, it := range input.Items {
		productIDs = append(productIDs, it.Product.ID)
	}

	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		log.Error("failed to load products", zap.Error(err))
		return nil, fmt.Errorf("load products: %w", err)
	}
	for _, id := range productIDs {
		if products[id] == nil {
			log.Info("rejecting order with unknown product", zap.String("product_id", id.String()))
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
	}

	now := s.now()
	paymentMethod := strings.TrimSpace(input.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	order := &Order{
		ID:            uuid.New(),
		UserID:        userID,
		TotalAmount:   input.TotalAmount.Decimal,
		Status:        StatusPending,
		PaymentMethod: paymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         make([]*OrderItem, 0, len(input.Items)),
	}

	for _, it := range input.Items {
		p := products[it.Product.ID]

		link, err := s.links.Issue(ctx, p.ID)
		if err != nil {
			log.Error("failed to issue download link",
				zap.String("product_id", p.ID.String()),
				zap.Error(err),
			)
			return nil, fmt.Errorf("issue download link: %w", err)
		}

		linkID := link.ID
		order.Items = append(order.Items, &OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			Quantity:       it.Quantity,
			Price:          p.Price,
			DownloadLinkID: &linkID,
			PurchaseDate:   now,
			Product:        p,
			DownloadLink:   link,
		})
	}

	if sum := order.ItemsTotal(); !sum.Equal(order.TotalAmount) {
		log.Warn("order total does not match line items",
			zap.String("total_amount", order.TotalAmount.String()),
			zap.String("items_total", sum.String()),
		)
	}

	// payment is settled by the client before submission
	for _, next := range []Status{StatusProcessing, StatusCompleted} {
		if err := order.TransitionTo(next); err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateOrderTx(ctx, order); err != nil {
		return nil, err
	}

	metrics.Inc("orders_created_total")
	log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(order.Items)),
	)

	s.publishCompleted(ctx, order)

	return order, nil
}

func (s *service) publishCompleted(ctx context.Context, o *Order) {
	log := logger.FromCtx(ctx).With(zap.String("order_id", o.ID.String()))

	msg, err := newOrderCompletedEvent(o, utils.GetUserEmailFromContext(ctx), s.now())
	if err != nil {
		log.Warn("failed to encode order event", zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, []byte(o.ID.String()), msg); err != nil {
		log.Warn("failed to publish order event", zap.Error(err))
	}
}

func (s *service) GetOrders(ctx context.Context) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "GetOrders"),
	)

	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	orders, err := s.repo.FetchOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	items, err := s.repo.FetchOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []*OrderItem{}
		}
	}

	log.Debug("orders fetched", zap.Int("count", len(orders)))
	return orders, nil
}

func (s *service) GetDownloadURL(ctx context.Context, orderID, itemID uuid.UUID) (string, error) {
	userID, ok := utils.GetUserIDFromContext(ctx)
	if !ok {
		return "", ErrUnauthorized
	}
	return s.links.Lookup(ctx, orderID, itemID, userID)
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateOrderStatus"),
		zap.String("order_id", orderID.String()),
	)

	if _, ok := utils.GetUserIDFromContext(ctx); !ok {
		return nil, ErrUnauthorized
	}
	if !utils.IsAdmin(ctx) {
		log.Warn("non-admin status update attempt")
		return nil, ErrForbidden
	}

	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}

	from := o.Status
	if err := o.TransitionTo(next); err != nil {
		log.Info("rejected status transition", zap.String("from", string(from)), zap.String("to", string(next)))
		return nil, err
	}

	o.UpdatedAt = s.now()
	changed, err := s.repo.UpdateStatus(ctx, orderID, from, next, o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if !changed {
		// someone else moved the order first
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}

	items, err := s.repo.FetchOrderItems(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]

	log.Info("order status updated", zap.String("from", string(from)), zap.String("to", string(next)))
	return o, nil
}
