package download

import (
	"context"
	"fmt"
	"time"

	"digistore-be/internal/logger"
	"digistore-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkCache is a read-through cache of issued links keyed by product.
// Get returns nil, nil on a miss.
type LinkCache interface {
	Get(ctx context.Context, productID uuid.UUID) (*Link, error)
	Set(ctx context.Context, link *Link) error
}

type Issuer interface {
	Issue(ctx context.Context, productID uuid.UUID) (*Link, error)
	Lookup(ctx context.Context, orderID, itemID, userID uuid.UUID) (string, error)
}

type issuer struct {
	repo    Repository
	cache   LinkCache
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer wires the link store. cache may be nil; ttl <= 0 means DefaultTTL.
func NewIssuer(repo Repository, cache LinkCache, baseURL string, ttl time.Duration) Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &issuer{
		repo:    repo,
		cache:   cache,
		baseURL: baseURL,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *issuer) linkURL(productID, linkID uuid.UUID) string {
	return fmt.Sprintf("%s/downloads/%s?token=%s", s.baseURL, productID, linkID)
}

// Issue returns the product's link, creating it on first use. Existing links
// are returned as stored, expired or not; issuance never extends them.
func (s *issuer) Issue(ctx context.Context, productID uuid.UUID) (*Link, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Issue"),
		zap.String("product_id", productID.String()),
	)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, productID)
		if err != nil {
			log.Warn("download link cache read failed", zap.Error(err))
		} else if cached != nil {
			log.Debug("download link served from cache", zap.String("link_id", cached.ID.String()))
			metrics.Inc("download_link_cache_hits_total")
			return cached, nil
		}
	}

	linkID := uuid.New()
	candidate := &Link{
		ID:        linkID,
		ProductID: productID,
		URL:       s.linkURL(productID, linkID),
		ExpiresAt: s.now().Add(s.ttl),
	}

	link, err := s.repo.Upsert(ctx, candidate)
	if err != nil {
		log.Error("failed to issue download link", zap.Error(err))
		return nil, err
	}

	if link.ID == candidate.ID {
		metrics.Inc("download_links_created_total")
		log.Info("download link created",
			zap.String("link_id", link.ID.String()),
			zap.Time("expires_at", link.ExpiresAt),
		)
	} else {
		metrics.Inc("download_links_reused_total")
		log.Debug("download link reused", zap.String("link_id", link.ID.String()))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, link); err != nil {
			log.Warn("download link cache write failed", zap.Error(err))
		}
	}

	return link, nil
}

// Lookup returns the URL for an order item owned by userID.
// Expired links yield ErrLinkExpired; they are never deleted.
func (s *issuer) Lookup(ctx context.Context, orderID, itemID, userID uuid.UUID) (string, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Lookup"),
		zap.String("order_id", orderID.String()),
		zap.String("item_id", itemID.String()),
	)

	link, err := s.repo.FindItemLink(ctx, orderID, itemID, userID)
	if err != nil {
		log.Info("download link lookup failed", zap.Error(err))
		return "", err
	}

	if link.State(s.now()) == StateExpired {
		metrics.Inc("download_lookups_expired_total")
		log.Info("download link expired",
			zap.String("link_id", link.ID.String()),
			zap.Time("expires_at", link.ExpiresAt),
		)
		return "", ErrLinkExpired
	}

	return link.URL, nil
}
