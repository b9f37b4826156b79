// Package inventory keeps a fresh snapshot of the operating user's
// tradeable cards on disk.
package inventory

import (
	"cardbuff/lib/osutil"
	"cardbuff/services/catalog"
	"cardbuff/services/session"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.inventory")

const (
	snapshotName = "my_cards.json"
	// reuseWindow is how long a snapshot on disk is trusted before
	// Ensure refetches.
	reuseWindow = 5 * time.Minute

	pageSizeHint = 60
	maxPages     = 500
	pageDelay    = 250 * time.Millisecond
)

var ErrEmptyInventory = errors.New("inventory came back empty")

type Store struct {
	client *session.Client
	dir    string

	sleep func(time.Duration)
}

func NewStore(client *session.Client, dir string) *Store {
	return &Store{client: client, dir: dir, sleep: time.Sleep}
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.dir, snapshotName)
}

// Ensure returns the current inventory, reusing the on-disk snapshot
// when it is younger than the reuse window. force skips the reuse
// check.
func (s *Store) Ensure(ctx context.Context, force bool) ([]catalog.CardRecord, error) {
	if !force {
		cards, ok := s.loadRecent()
		if ok {
			slog.DebugContext(ctx, "reusing inventory snapshot", "cards", len(cards))
			return cards, nil
		}
	}
	return s.Fetch(ctx)
}

func (s *Store) loadRecent() ([]catalog.CardRecord, bool) {
	info, err := os.Stat(s.snapshotPath())
	if err != nil || time.Since(info.ModTime()) >= reuseWindow {
		return nil, false
	}
	raw, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		return nil, false
	}
	var cards []catalog.CardRecord
	if json.Unmarshal(raw, &cards) != nil || len(cards) == 0 {
		return nil, false
	}
	return cards, true
}

// Fetch pages the user's own availableCardsLoad listing from a zero
// offset until a short page, an empty page, or the page cap, then
// persists the snapshot atomically.
func (s *Store) Fetch(ctx context.Context) ([]catalog.CardRecord, error) {
	ctx, span := tracer.Start(ctx, "inventory:Fetch")
	defer span.End()

	userID := s.client.Profile.UserID
	path := fmt.Sprintf("/trades/%d/availableCardsLoad", userID)
	referer := fmt.Sprintf("%s/trades/%d", s.client.BaseURL, userID)

	var all []catalog.CardRecord
	offset := 0
	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := s.client.Http.R().
			SetContext(ctx).
			SetHeader("referer", referer).
			SetHeader("accept", "application/json, text/javascript, */*; q=0.01").
			SetFormData(map[string]string{"offset": strconv.Itoa(offset)}).
			Post(path)
		if err != nil {
			slog.WarnContext(ctx, "inventory page fetch failed", "offset", offset, "err", err)
			span.RecordError(err)
			break
		}
		if resp.StatusCode() != http.StatusOK {
			slog.WarnContext(ctx, "unexpected inventory status",
				"offset", offset, "status", resp.StatusCode())
			break
		}

		cards := catalog.DecodeList(resp.Body())
		if len(cards) == 0 {
			break
		}
		all = append(all, cards...)

		offset += len(cards)
		if len(cards) < pageSizeHint {
			break
		}
		s.sleep(pageDelay)
	}

	if len(all) == 0 {
		span.SetStatus(codes.Error, ErrEmptyInventory.Error())
		return nil, ErrEmptyInventory
	}

	err := s.persist(all)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist inventory snapshot", "err", err)
		span.RecordError(err)
	}

	slog.InfoContext(ctx, "inventory refreshed", "cards", len(all))
	return all, nil
}

func (s *Store) persist(cards []catalog.CardRecord) error {
	raw, err := json.MarshalIndent(cards, "", "  ")
	if err != nil {
		return err
	}
	return osutil.WriteFileAtomic(s.snapshotPath(), raw)
}
