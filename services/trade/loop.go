package trade

import (
	"cardbuff/services/catalog"
	"context"
	"log/slog"
	"time"
)

const (
	defaultPassInterval = 5 * time.Second
	// idleBackoff applies after a pass that found no owners at all,
	// so an empty listing is not hammered.
	idleBackoff = time.Minute
)

// Loop runs trading passes back to back against the current boost
// target. Between passes it drains the boost monitor's update channel,
// so a club card change redirects the very next pass, and a change
// arriving mid-pause cuts the pause short.
type Loop struct {
	Runner Runner
	// Inventory resolves the cards available to give away, refreshed
	// before every pass.
	Inventory func(ctx context.Context) ([]catalog.CardRecord, error)
	// Updates delivers refreshed targets; nil means the target never
	// changes.
	Updates <-chan catalog.TargetCard

	// Interval separates passes that saw owners, Backoff separates
	// passes that saw none. Zero takes the default.
	Interval time.Duration
	Backoff  time.Duration
}

// Run repeats trading passes until ctx is cancelled. A failed pass is
// logged and retried after the backoff; only cancellation ends the
// loop.
func (l *Loop) Run(ctx context.Context, target catalog.TargetCard) error {
	interval := l.Interval
	if interval == 0 {
		interval = defaultPassInterval
	}
	backoff := l.Backoff
	if backoff == 0 {
		backoff = idleBackoff
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case fresh := <-l.Updates:
			target = l.retarget(ctx, target, fresh)
		default:
		}

		cards, err := l.Inventory(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "inventory refresh failed", "err", err)
			if err := l.pause(ctx, backoff, &target); err != nil {
				return err
			}
			continue
		}

		stats, err := l.Runner.Run(ctx, target, cards)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "trading pass failed", "card_id", target.CardID, "err", err)
		}
		slog.InfoContext(ctx, "trading pass finished",
			"card_id", target.CardID,
			"owners_seen", stats.OwnersSeen,
			"trades_attempted", stats.TradesAttempted,
			"trades_succeeded", stats.TradesSucceeded)

		wait := interval
		if stats.OwnersSeen == 0 {
			wait = backoff
		}
		if err := l.pause(ctx, wait, &target); err != nil {
			return err
		}
	}
}

// pause sleeps between passes but wakes early on a fresh target.
func (l *Loop) pause(ctx context.Context, d time.Duration, target *catalog.TargetCard) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case fresh := <-l.Updates:
		*target = l.retarget(ctx, *target, fresh)
		return nil
	case <-timer.C:
		return nil
	}
}

func (l *Loop) retarget(ctx context.Context, old, fresh catalog.TargetCard) catalog.TargetCard {
	if fresh.CardID != old.CardID {
		slog.InfoContext(ctx, "target card changed",
			"old_card_id", old.CardID, "card_id", fresh.CardID, "name", fresh.Name)
	}
	return fresh
}
