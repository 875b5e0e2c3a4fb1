package order

import (
	"time"

	"digistore-be/internal/download"
	"digistore-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderResponse struct {
	ID            uuid.UUID       `json:"_id"`
	User          uuid.UUID       `json:"user"`
	Items         []*ItemResponse `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type ItemResponse struct {
	ID             uuid.UUID        `json:"_id"`
	Product        *product.Product `json:"product"`
	Quantity       int              `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	DownloadLinkID *uuid.UUID       `json:"downloadLinkId,omitempty"`
	DownloadLink   *download.Link   `json:"downloadLink,omitempty"`
	PurchaseDate   time.Time        `json:"purchaseDate"`
}

func ToItemResponse(i *OrderItem) *ItemResponse {
	return &ItemResponse{
		ID:             i.ID,
		Product:        i.Product,
		Quantity:       i.Quantity,
		Price:          i.Price,
		DownloadLinkID: i.DownloadLinkID,
		DownloadLink:   i.DownloadLink,
		PurchaseDate:   i.PurchaseDate,
	}
}

func ToResponse(o *Order) *OrderResponse {
	if o == nil {
		return nil
	}

	items := make([]*ItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, ToItemResponse(item))
	}

	return &OrderResponse{
		ID:            o.ID,
		User:          o.UserID,
		Items:         items,
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func ToResponses(orders []*Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, ToResponse(o))
	}
	return out
}
