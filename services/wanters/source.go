package wanters

import (
	"cardbuff/services/catalog"
	"context"
	"log/slog"
)

// RemoteSource is anything that can resolve a wanters count over the
// network. Counter is the production implementation.
type RemoteSource interface {
	WantersCount(ctx context.Context, cardID int64) (int, error)
}

// Source answers wanters lookups from the cache, falling back to the
// remote scan on a miss. Every remote result is written back to the
// cache, whatever the caller ends up deciding about the card.
type Source struct {
	Cache  *Cache
	Remote RemoteSource
}

func (s Source) Lookup(ctx context.Context, card catalog.CardRecord) (int, error) {
	count, ok := s.Cache.Get(card.CardID)
	if ok {
		slog.DebugContext(ctx, "wanters cache hit", "card_id", card.CardID, "count", count)
		return count, nil
	}

	count, err := s.Remote.WantersCount(ctx, card.CardID)
	if err != nil {
		return 0, err
	}

	err = s.Cache.Set(card.CardID, count, card)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist wanters cache", "card_id", card.CardID, "err", err)
	}
	return count, nil
}

// MaybeSweep forwards to the cache's amortized cleanup.
func (s Source) MaybeSweep() {
	s.Cache.MaybeSweep()
}
