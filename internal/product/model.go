package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryEbook    Category = "ebook"
	CategorySoftware Category = "software"
	CategoryGraphic  Category = "graphic"
)

type Product struct {
	ID          uuid.UUID       `json:"_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	DownloadURL string          `json:"downloadUrl"`
	Category    Category        `json:"category"`
	CreatedAt   time.Time       `json:"createdAt"`
}
