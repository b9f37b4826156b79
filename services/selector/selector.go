// Package selector picks which of our own cards to offer a partner in
// exchange for the card we want from them.
package selector

import (
	"cardbuff/services/catalog"
	"context"
	"errors"
	"log/slog"
	"math/rand"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.selector")

var (
	// ErrNoMatchingRank means the inventory holds no tradeable card of
	// the target's rank at all.
	ErrNoMatchingRank = errors.New("no tradeable card of the required rank")
	// ErrNoSuitableCard means same-rank cards exist but every wanters
	// lookup failed, so nothing could be ranked against the target.
	ErrNoSuitableCard = errors.New("no suitable card to offer")
)

// Wanters resolves demand counts for card designs. wanters.Source is
// the production implementation.
type Wanters interface {
	Lookup(ctx context.Context, card catalog.CardRecord) (int, error)
	MaybeSweep()
}

type Selector struct {
	Wanters Wanters

	// shuffle is swapped out in tests for a deterministic order.
	shuffle func(n int, swap func(i, j int))
}

func New(wanters Wanters) *Selector {
	return &Selector{Wanters: wanters, shuffle: rand.Shuffle}
}

// Pick chooses a card from inventory to give away for target. The card
// must match the target's rank and should be in no more demand than
// the target itself: candidates are visited in random order and the
// first one whose wanters count is at or below targetWanters wins. If
// none qualifies, the candidate whose count sits closest to
// targetWanters is returned instead, so a trade is always proposed
// when same-rank cards exist.
func (s *Selector) Pick(
	ctx context.Context,
	inventory []catalog.CardRecord,
	target catalog.CardRecord,
	targetWanters int,
) (catalog.CardRecord, error) {
	ctx, span := tracer.Start(ctx, "selector:Pick")
	defer span.End()

	defer s.Wanters.MaybeSweep()

	candidates := sameRank(inventory, target.Rank)
	if len(candidates) == 0 {
		span.SetStatus(codes.Error, ErrNoMatchingRank.Error())
		return catalog.CardRecord{}, ErrNoMatchingRank
	}

	if s.shuffle == nil {
		s.shuffle = rand.Shuffle
	}
	s.shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	var (
		closest     catalog.CardRecord
		closestDiff = -1
	)
	for _, card := range candidates {
		count, err := s.Wanters.Lookup(ctx, card)
		if err != nil {
			slog.WarnContext(ctx, "wanters lookup failed, skipping candidate",
				"card_id", card.CardID, "err", err)
			span.RecordError(err)
			continue
		}

		if count <= targetWanters {
			slog.DebugContext(ctx, "picked offer card",
				"card_id", card.CardID, "wanters", count, "target_wanters", targetWanters)
			return card, nil
		}

		diff := count - targetWanters
		if closestDiff < 0 || diff < closestDiff {
			closest = card
			closestDiff = diff
		}
	}

	if closestDiff < 0 {
		span.SetStatus(codes.Error, ErrNoSuitableCard.Error())
		return catalog.CardRecord{}, ErrNoSuitableCard
	}

	slog.DebugContext(ctx, "no candidate under target demand, using closest match",
		"card_id", closest.CardID, "diff", closestDiff)
	return closest, nil
}

func sameRank(inventory []catalog.CardRecord, rank string) []catalog.CardRecord {
	var out []catalog.CardRecord
	for _, card := range inventory {
		if !card.Tradeable() {
			continue
		}
		if card.Rank == rank {
			out = append(out, card)
		}
	}
	return out
}
