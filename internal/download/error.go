package download

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderItemNotFound = errors.New("order item not found")
	ErrLinkNotFound      = errors.New("download link not found")
	ErrLinkExpired       = errors.New("download link has expired")
)
