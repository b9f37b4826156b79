// Package trade drives one full pass over a card's owners: locate the
// card in each owner's inventory, pick one of ours to give away, and
// dispatch the offer.
package trade

import (
	"cardbuff/services/catalog"
	"cardbuff/services/owners"
	"cardbuff/services/partner"
	"cardbuff/services/selector"
	"cardbuff/services/tradelog"
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("cardbuff.services.trade")

// Stats accumulates over one run and is reported at the end.
type Stats struct {
	PagesChecked          int
	OwnersSeen            int
	TradesAttempted       int
	TradesSucceeded       int
	SkippedSelf           int
	SkippedNoInstance     int
	SkippedNoRank         int
	SkippedNoSuitableCard int
}

type PartnerLocator interface {
	Find(ctx context.Context, st *partner.State, partnerID int64, target catalog.CardRecord) (int64, error)
}

type CardPicker interface {
	Pick(ctx context.Context, inventory []catalog.CardRecord, target catalog.CardRecord, targetWanters int) (catalog.CardRecord, error)
}

type Sender interface {
	Send(ctx context.Context, receiverID, myInstance, theirInstance int64) error
}

type OwnerPages interface {
	Pages(ctx context.Context, cardID int64, maxPages int, fn func(owners.Page) bool) error
}

type Runner struct {
	SelfID  int64
	Pages   OwnerPages
	Locator PartnerLocator
	Picker  CardPicker
	Sender  Sender

	// MaxPages caps the owner listing walk; 0 means no cap.
	MaxPages int
	// DryRun is recorded on the run log entry; the Sender decides what
	// it actually does with it.
	DryRun bool
	// Log, when non-nil, records the run and every attempt.
	Log *tradelog.Store
}

// Run works through every owner page for the target card. A single
// owner's failure never aborts the pass; the pass ends when the page
// source is exhausted or ctx is cancelled between owners.
func (r *Runner) Run(ctx context.Context, target catalog.TargetCard, inventory []catalog.CardRecord) (Stats, error) {
	ctx, span := tracer.Start(ctx, "trade:Run")
	defer span.End()
	span.SetAttributes(attribute.Int64("card_id", target.CardID))

	var stats Stats
	st := partner.NewState()
	record := catalog.CardRecord{
		CardID: target.CardID,
		Rank:   target.Rank,
		Name:   target.Name,
	}

	var runID int64
	if r.Log != nil {
		id, err := r.Log.StartRun(ctx, target.CardID, r.DryRun)
		if err != nil {
			slog.WarnContext(ctx, "could not open run log entry", "err", err)
		} else {
			runID = id
		}
	}

	err := r.Pages.Pages(ctx, target.CardID, r.MaxPages, func(page owners.Page) bool {
		stats.PagesChecked++
		slog.InfoContext(ctx, "processing owner page",
			"page", page.Number, "owners", len(page.Owners))

		for _, ownerID := range page.Owners {
			if ctx.Err() != nil {
				return false
			}
			r.processOwner(ctx, st, runID, ownerID, record, target.WantersCount, inventory, &stats)
		}
		return ctx.Err() == nil
	})

	if r.Log != nil && runID != 0 {
		logErr := r.Log.FinishRun(ctx, runID, tradelog.RunSummary{
			PagesChecked:    stats.PagesChecked,
			OwnersSeen:      stats.OwnersSeen,
			TradesAttempted: stats.TradesAttempted,
			TradesSucceeded: stats.TradesSucceeded,
		})
		if logErr != nil {
			slog.WarnContext(ctx, "could not close run log entry", "err", logErr)
		}
	}

	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

func (r *Runner) processOwner(
	ctx context.Context,
	st *partner.State,
	runID int64,
	ownerID int64,
	record catalog.CardRecord,
	targetWanters int,
	inventory []catalog.CardRecord,
	stats *Stats,
) {
	stats.OwnersSeen++

	if ownerID == r.SelfID {
		stats.SkippedSelf++
		return
	}

	theirInstance, err := r.Locator.Find(ctx, st, ownerID, record)
	if err != nil {
		stats.SkippedNoInstance++
		slog.DebugContext(ctx, "partner has no tradeable instance",
			"owner_id", ownerID, "err", err)
		return
	}

	mine, err := r.Picker.Pick(ctx, inventory, record, targetWanters)
	if err != nil {
		if errors.Is(err, selector.ErrNoMatchingRank) {
			stats.SkippedNoRank++
		} else {
			stats.SkippedNoSuitableCard++
		}
		slog.DebugContext(ctx, "nothing to offer", "owner_id", ownerID, "err", err)
		return
	}

	stats.TradesAttempted++
	err = r.Sender.Send(ctx, ownerID, mine.InstanceID, theirInstance)
	if err == nil {
		stats.TradesSucceeded++
		slog.InfoContext(ctx, "trade attempt succeeded",
			"owner_id", ownerID, "my_instance", mine.InstanceID, "their_instance", theirInstance)
	} else {
		slog.WarnContext(ctx, "trade attempt failed", "owner_id", ownerID, "err", err)
	}

	if r.Log != nil && runID != 0 {
		failure := ""
		if err != nil {
			failure = err.Error()
		}
		logErr := r.Log.RecordAttempt(ctx, runID, ownerID, mine.InstanceID, theirInstance, err == nil, failure)
		if logErr != nil {
			slog.WarnContext(ctx, "could not record trade attempt", "err", logErr)
		}
	}
}
