package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"digistore-be/internal/download"
	"digistore-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultPaymentMethod = "Razorpay"

type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Items         []*OrderItem
	TotalAmount   decimal.Decimal
	Status        Status
	PaymentMethod string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ProductID      uuid.UUID
	Quantity       int
	Price          decimal.Decimal
	DownloadLinkID *uuid.UUID
	PurchaseDate   time.Time

	// joined for display, nil when the row is gone
	Product      *product.Product
	DownloadLink *download.Link
}

// TransitionTo moves the order along the status machine.
func (o *Order) TransitionTo(next Status) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// ItemsTotal sums price x quantity over the line items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

type CreateOrderInput struct {
	Items []ItemInput `json:"items"`
	// TotalAmount is invalid when the field is absent or null.
	TotalAmount   decimal.NullDecimal `json:"totalAmount"`
	PaymentMethod string              `json:"paymentMethod"`
}

type ItemInput struct {
	Product  *ProductRef `json:"product"`
	Quantity int         `json:"quantity"`
}

// ProductRef accepts either {"_id": "..."} or a bare id string.
type ProductRef struct {
	ID uuid.UUID `json:"_id"`
}

func (p *ProductRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid product id: %w", err)
		}
		p.ID = id
		return nil
	}

	var obj struct {
		ID uuid.UUID `json:"_id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.ID = obj.ID
	return nil
}

type UpdateStatusInput struct {
	Status string `json:"status"`
}
