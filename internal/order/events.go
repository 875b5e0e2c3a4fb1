package order

import (
	"context"
	"encoding/json"
	"time"

	"digistore-be/internal/kafka"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCompleted = "OrderCompleted"
	eventProducer       = "digistore-api"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type CompletedItem struct {
	ItemID         string          `json:"item_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	DownloadLinkID string          `json:"download_link_id,omitempty"`
}

type OrderCompletedPayload struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []CompletedItem `json:"items"`
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// NopPublisher drops events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []byte, []byte) error { return nil }

// newOrderCompletedEvent builds the envelope; email is the buyer's address from the token.
func newOrderCompletedEvent(o *Order, email string, at time.Time) ([]byte, error) {
	items := make([]CompletedItem, 0, len(o.Items))
	for _, it := range o.Items {
		ci := CompletedItem{
			ItemID:    it.ID.String(),
			ProductID: it.ProductID.String(),
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
		if it.DownloadLinkID != nil {
			ci.DownloadLinkID = it.DownloadLinkID.String()
		}
		items = append(items, ci)
	}

	payload, err := kafka.Marshal(OrderCompletedPayload{
		OrderID:       o.ID.String(),
		UserID:        o.UserID.String(),
		UserEmail:     email,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		return nil, err
	}

	return kafka.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCompleted,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      eventProducer,
		CorrelationID: o.ID.String(),
		Payload:       payload,
	})
}
