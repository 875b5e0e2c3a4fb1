package order

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"digistore-be/internal/download"
	"digistore-be/internal/kafka"
	"digistore-be/internal/logger"
	"digistore-be/internal/product"
	"digistore-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateOrderTx(ctx context.Context, order *Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockRepository) FetchOrders(ctx context.Context, userID uuid.UUID) ([]*Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Order), args.Error(1)
}

func (m *MockRepository) FetchOrderItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]*OrderItem, error) {
	args := m.Called(ctx, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]*OrderItem), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status, at time.Time) (bool, error) {
	args := m.Called(ctx, orderID, from, to, at)
	return args.Bool(0), args.Error(1)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*product.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*product.Product), args.Error(1)
}

type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Issue(ctx context.Context, productID uuid.UUID) (*download.Link, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*download.Link), args.Error(1)
}

func (m *MockIssuer) Lookup(ctx context.Context, orderID, itemID, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, orderID, itemID, userID)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

// --- Helpers ---

type fixture struct {
	repo     *MockRepository
	products *MockProductRepository
	issuer   *MockIssuer
	events   *MockPublisher
	svc      *service
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		repo:     new(MockRepository),
		products: new(MockProductRepository),
		issuer:   new(MockIssuer),
		events:   new(MockPublisher),
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.products, f.issuer, f.events).(*service)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func userCtx(role string) (context.Context, uuid.UUID) {
	userID := uuid.New()
	return utils.SetUserContext(context.Background(), userID, "buyer@example.com", role), userID
}

func newProduct(price string) *product.Product {
	return &product.Product{
		ID:       uuid.New(),
		Title:    "Item",
		Price:    decimal.RequireFromString(price),
		Category: product.CategoryEbook,
	}
}

func itemInput(p *product.Product, qty int) ItemInput {
	return ItemInput{Product: &ProductRef{ID: p.ID}, Quantity: qty}
}

func total(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// --- Tests ---

func TestService_CreateOrder(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture()
		ctx, userID := userCtx("USER")
		ebook, software := newProduct("9.99"), newProduct("25.00")

		f.products.On("GetByIDs", ctx, []uuid.UUID{ebook.ID, software.ID}).
			Return(map[uuid.UUID]*product.Product{ebook.ID: ebook, software.ID: software}, nil)

		ebookLink := &download.Link{ID: uuid.New(), ProductID: ebook.ID}
		softwareLink := &download.Link{ID: uuid.New(), ProductID: software.ID}
		f.issuer.On("Issue", ctx, ebook.ID).Return(ebookLink, nil).Once()
		f.issuer.On("Issue", ctx, software.ID).Return(softwareLink, nil).Once()

		f.repo.On("CreateOrderTx", ctx, mock.MatchedBy(func(o *Order) bool {
			return o.Status == StatusCompleted && len(o.Items) == 2
		})).Return(nil)
		f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil)

		input := CreateOrderInput{
			Items:       []ItemInput{itemInput(ebook, 2), itemInput(software, 1)},
			TotalAmount: total("44.98"),
		}

		o, err := f.svc.CreateOrder(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, userID, o.UserID)
		assert.Equal(t, StatusCompleted, o.Status)
		assert.Equal(t, DefaultPaymentMethod, o.PaymentMethod)
		assert.True(t, input.TotalAmount.Decimal.Equal(o.TotalAmount))
		require.Len(t, o.Items, 2)
		assert.Equal(t, ebook.ID, o.Items[0].ProductID)
		assert.True(t, ebook.Price.Equal(o.Items[0].Price))
		assert.Equal(t, ebookLink.ID, *o.Items[0].DownloadLinkID)
		assert.Equal(t, softwareLink.ID, *o.Items[1].DownloadLinkID)
		assert.Equal(t, f.now, o.Items[1].PurchaseDate)

		f.repo.AssertExpectations(t)
		f.issuer.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})

	t.Run("Keeps caller payment method and total on mismatch", func(t *testing.T) {
		core, observed := observer.New(zapcore.WarnLevel)
		restore := logger.Replace(zap.New(core))
		defer restore()

		f := newFixture()
		ctx, _ := userCtx("USER")
		p := newProduct("10.00")

		f.products.On("GetByIDs", ctx, []uuid.UUID{p.ID}).Return(map[uuid.UUID]*product.Product{p.ID: p}, nil)
		f.issuer.On("Issue", ctx, p.ID).Return(&download.Link{ID: uuid.New(), ProductID: p.ID}, nil)
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil)

		o, err := f.svc.CreateOrder(ctx, CreateOrderInput{
			Items:         []ItemInput{itemInput(p, 1)},
			TotalAmount:   total("1.00"),
			PaymentMethod: "Stripe",
		})

		require.NoError(t, err)
		assert.Equal(t, "Stripe", o.PaymentMethod)
		assert.True(t, decimal.RequireFromString("1.00").Equal(o.TotalAmount))
		assert.Equal(t, 1, observed.FilterMessage("order total does not match line items").Len())
	})

	t.Run("Validation errors never touch the store", func(t *testing.T) {
		p := newProduct("1.00")
		one := []ItemInput{itemInput(p, 1)}
		cases := []struct {
			name  string
			items []ItemInput
			total decimal.NullDecimal
			want  error
		}{
			{"empty", nil, total("1.00"), ErrNoItems},
			{"missing product", []ItemInput{{Quantity: 1}}, total("1.00"), ErrMissingProduct},
			{"nil product id", []ItemInput{{Product: &ProductRef{}, Quantity: 1}}, total("1.00"), ErrMissingProduct},
			{"zero quantity", []ItemInput{itemInput(p, 0)}, total("1.00"), ErrInvalidQuantity},
			{"negative quantity", []ItemInput{itemInput(p, 1), itemInput(p, -2)}, total("1.00"), ErrInvalidQuantity},
			{"missing total", one, decimal.NullDecimal{}, ErrMissingTotal},
			{"negative total", one, total("-1.00"), ErrInvalidTotal},
			{"total finer than cents", one, total("1.005"), ErrInvalidTotal},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newFixture()
				ctx, _ := userCtx("USER")

				_, err := f.svc.CreateOrder(ctx, CreateOrderInput{Items: tc.items, TotalAmount: tc.total})

				assert.ErrorIs(t, err, tc.want)
				f.products.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
				f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
				f.repo.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("Unknown product rejects whole order", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")
		known, unknown := newProduct("1.00"), newProduct("2.00")

		f.products.On("GetByIDs", ctx, []uuid.UUID{known.ID, unknown.ID}).
			Return(map[uuid.UUID]*product.Product{known.ID: known}, nil)

		_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
			Items:       []ItemInput{itemInput(known, 1), itemInput(unknown, 1)},
			TotalAmount: total("3.00"),
		})

		assert.ErrorIs(t, err, ErrProductNotFound)
		f.issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
		f.repo.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
	})

	t.Run("Product lookup fails", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")
		p := newProduct("1.00")

		f.products.On("GetByIDs", ctx, mock.Anything).Return(nil, errors.New("db down"))

		_, err := f.svc.CreateOrder(ctx, CreateOrderInput{Items: []ItemInput{itemInput(p, 1)}, TotalAmount: total("1.00")})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("Issuance failure writes no order", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")
		a, b := newProduct("1.00"), newProduct("2.00")

		f.products.On("GetByIDs", ctx, mock.Anything).
			Return(map[uuid.UUID]*product.Product{a.ID: a, b.ID: b}, nil)
		f.issuer.On("Issue", ctx, a.ID).Return(&download.Link{ID: uuid.New()}, nil)
		f.issuer.On("Issue", ctx, b.ID).Return(nil, errors.New("db down"))

		_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
			Items:       []ItemInput{itemInput(a, 1), itemInput(b, 1)},
			TotalAmount: total("2.00"),
		})

		assert.Error(t, err)
		f.repo.AssertNotCalled(t, "CreateOrderTx", mock.Anything, mock.Anything)
		f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Store failure", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")
		p := newProduct("1.00")

		f.products.On("GetByIDs", ctx, mock.Anything).Return(map[uuid.UUID]*product.Product{p.ID: p}, nil)
		f.issuer.On("Issue", ctx, p.ID).Return(&download.Link{ID: uuid.New()}, nil)
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(errors.New("tx failed"))

		_, err := f.svc.CreateOrder(ctx, CreateOrderInput{Items: []ItemInput{itemInput(p, 1)}, TotalAmount: total("1.00")})

		assert.Error(t, err)
		f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Publish failure does not fail the order", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")
		p := newProduct("1.00")

		f.products.On("GetByIDs", ctx, mock.Anything).Return(map[uuid.UUID]*product.Product{p.ID: p}, nil)
		f.issuer.On("Issue", ctx, p.ID).Return(&download.Link{ID: uuid.New()}, nil)
		f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil)
		f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(kafka.ErrProducerClosed)

		o, err := f.svc.CreateOrder(ctx, CreateOrderInput{Items: []ItemInput{itemInput(p, 1)}, TotalAmount: total("1.00")})

		require.NoError(t, err)
		assert.NotNil(t, o)
	})
}

func TestService_CreateOrder_PublishesEvent(t *testing.T) {
	f := newFixture()
	ctx, userID := userCtx("USER")
	p := newProduct("4.50")
	linkID := uuid.New()

	f.products.On("GetByIDs", ctx, mock.Anything).Return(map[uuid.UUID]*product.Product{p.ID: p}, nil)
	f.issuer.On("Issue", ctx, p.ID).Return(&download.Link{ID: linkID, ProductID: p.ID}, nil)
	f.repo.On("CreateOrderTx", ctx, mock.Anything).Return(nil)

	var sent []byte
	var key []byte
	f.events.On("Publish", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			key = args.Get(1).([]byte)
			sent = args.Get(2).([]byte)
		}).
		Return(nil)

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		Items:       []ItemInput{itemInput(p, 2)},
		TotalAmount: total("9.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, o.ID.String(), string(key))

	var env Envelope
	require.NoError(t, json.Unmarshal(sent, &env))
	assert.Equal(t, EventOrderCompleted, env.EventType)
	assert.Equal(t, o.ID.String(), env.CorrelationID)

	payload, err := kafka.UnwrapPayload[OrderCompletedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), payload.UserID)
	assert.Equal(t, "buyer@example.com", payload.UserEmail)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, linkID.String(), payload.Items[0].DownloadLinkID)
	assert.Equal(t, 2, payload.Items[0].Quantity)
}

func TestService_GetOrders(t *testing.T) {
	t.Run("Attaches items in order", func(t *testing.T) {
		f := newFixture()
		ctx, userID := userCtx("USER")
		newer := &Order{ID: uuid.New(), UserID: userID}
		older := &Order{ID: uuid.New(), UserID: userID}
		item := &OrderItem{ID: uuid.New(), OrderID: newer.ID}

		f.repo.On("FetchOrders", ctx, userID).Return([]*Order{newer, older}, nil)
		f.repo.On("FetchOrderItems", ctx, []uuid.UUID{newer.ID, older.ID}).
			Return(map[uuid.UUID][]*OrderItem{newer.ID: {item}}, nil)

		orders, err := f.svc.GetOrders(ctx)

		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, newer.ID, orders[0].ID)
		assert.Equal(t, []*OrderItem{item}, orders[0].Items)
		assert.NotNil(t, orders[1].Items)
		assert.Empty(t, orders[1].Items)
	})

	t.Run("No orders skips item query", func(t *testing.T) {
		f := newFixture()
		ctx, userID := userCtx("USER")
		f.repo.On("FetchOrders", ctx, userID).Return([]*Order{}, nil)

		orders, err := f.svc.GetOrders(ctx)

		require.NoError(t, err)
		assert.Empty(t, orders)
		f.repo.AssertNotCalled(t, "FetchOrderItems", mock.Anything, mock.Anything)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.GetOrders(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("Repository error", func(t *testing.T) {
		f := newFixture()
		ctx, userID := userCtx("USER")
		f.repo.On("FetchOrders", ctx, userID).Return(nil, errors.New("db error"))

		_, err := f.svc.GetOrders(ctx)
		assert.Error(t, err)
	})
}

func TestService_GetDownloadURL(t *testing.T) {
	f := newFixture()
	ctx, userID := userCtx("USER")
	orderID, itemID := uuid.New(), uuid.New()

	f.issuer.On("Lookup", ctx, orderID, itemID, userID).Return("https://dl/x", nil).Once()
	url, err := f.svc.GetDownloadURL(ctx, orderID, itemID)
	require.NoError(t, err)
	assert.Equal(t, "https://dl/x", url)

	f.issuer.On("Lookup", ctx, orderID, itemID, userID).Return("", download.ErrLinkExpired).Once()
	_, err = f.svc.GetDownloadURL(ctx, orderID, itemID)
	assert.ErrorIs(t, err, download.ErrLinkExpired)

	_, err = f.svc.GetDownloadURL(context.Background(), orderID, itemID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestService_UpdateOrderStatus(t *testing.T) {
	t.Run("Admin moves pending to processing", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx(utils.RoleAdmin)
		o := &Order{ID: uuid.New(), Status: StatusPending}

		f.repo.On("GetByID", ctx, o.ID).Return(o, nil)
		f.repo.On("UpdateStatus", ctx, o.ID, StatusPending, StatusProcessing, f.now).Return(true, nil)
		f.repo.On("FetchOrderItems", ctx, []uuid.UUID{o.ID}).Return(map[uuid.UUID][]*OrderItem{}, nil)

		updated, err := f.svc.UpdateOrderStatus(ctx, o.ID, "PROCESSING")

		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, updated.Status)
		assert.Equal(t, f.now, updated.UpdatedAt)
	})

	t.Run("Terminal order cannot move", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx(utils.RoleAdmin)
		o := &Order{ID: uuid.New(), Status: StatusCompleted}

		f.repo.On("GetByID", ctx, o.ID).Return(o, nil)

		_, err := f.svc.UpdateOrderStatus(ctx, o.ID, "cancelled")

		assert.ErrorIs(t, err, ErrInvalidTransition)
		f.repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Concurrent change", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx(utils.RoleAdmin)
		o := &Order{ID: uuid.New(), Status: StatusPending}

		f.repo.On("GetByID", ctx, o.ID).Return(o, nil)
		f.repo.On("UpdateStatus", ctx, o.ID, StatusPending, StatusCancelled, f.now).Return(false, nil)

		_, err := f.svc.UpdateOrderStatus(ctx, o.ID, "cancelled")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Unknown status", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx(utils.RoleAdmin)

		_, err := f.svc.UpdateOrderStatus(ctx, uuid.New(), "shipped")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("Order not found", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx(utils.RoleAdmin)
		id := uuid.New()
		f.repo.On("GetByID", ctx, id).Return(nil, nil)

		_, err := f.svc.UpdateOrderStatus(ctx, id, "cancelled")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("Non-admin forbidden", func(t *testing.T) {
		f := newFixture()
		ctx, _ := userCtx("USER")

		_, err := f.svc.UpdateOrderStatus(ctx, uuid.New(), "cancelled")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("Anonymous", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.UpdateOrderStatus(context.Background(), uuid.New(), "cancelled")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}
