package download

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTTL = 24 * time.Hour

type State string

const (
	StateValid   State = "valid"
	StateExpired State = "expired"
)

// Link is a time-limited download reference, one per product.
type Link struct {
	ID        uuid.UUID `json:"_id"`
	ProductID uuid.UUID `json:"product"`
	URL       string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State is a pure function of the wall clock; a link is expired from ExpiresAt on.
func (l *Link) State(now time.Time) State {
	if now.Before(l.ExpiresAt) {
		return StateValid
	}
	return StateExpired
}
