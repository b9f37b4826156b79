// Package club discovers which card the club currently solicits, the
// trade target everything else revolves around.
package club

import (
	"cardbuff/lib/htmlutil"
	"cardbuff/lib/osutil"
	"cardbuff/lib/textutil"
	"cardbuff/services/catalog"
	"cardbuff/services/session"
	"cardbuff/services/wanters"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.club")

const targetFileName = "card_for_boost.json"

var ErrNoBoostCard = errors.New("boost page names no card")

var cardHref = regexp.MustCompile(`/cards/(\d+)`)

type Finder struct {
	client  *session.Client
	counter wanters.Counter
	dir     string
}

func NewFinder(client *session.Client, dir string) *Finder {
	return &Finder{
		client:  client,
		counter: wanters.NewCounter(client),
		dir:     dir,
	}
}

// FindBoostCard resolves the club's current target card: the boost
// page names the design, the card page fills in name and rank, and the
// owner and wanter tallies come from their listings. The result is
// persisted atomically so later runs can start without re-scraping.
func (f *Finder) FindBoostCard(ctx context.Context, boostURL string) (catalog.TargetCard, error) {
	ctx, span := tracer.Start(ctx, "club:FindBoostCard")
	defer span.End()

	var target catalog.TargetCard

	cardID, err := f.boostCardID(ctx, boostURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return target, err
	}

	name, rank, err := f.cardPageInfo(ctx, cardID)
	if err != nil {
		// counts can still identify the card, so keep going
		slog.WarnContext(ctx, "could not read card page", "card_id", cardID, "err", err)
		span.RecordError(err)
	}

	ownersCount, err := f.counter.OwnersCount(ctx, cardID)
	if err != nil {
		slog.WarnContext(ctx, "owners count failed", "card_id", cardID, "err", err)
		span.RecordError(err)
	}
	wantersCount, err := f.counter.WantersCount(ctx, cardID)
	if err != nil {
		slog.WarnContext(ctx, "wanters count failed", "card_id", cardID, "err", err)
		span.RecordError(err)
	}

	target = catalog.TargetCard{
		CardID:       cardID,
		Rank:         rank,
		Name:         name,
		WantersCount: wantersCount,
		OwnersCount:  ownersCount,
		CardURL:      fmt.Sprintf("%s/cards/%d/users", f.client.BaseURL, cardID),
		UpdatedAt:    time.Now().Unix(),
	}

	err = SaveTarget(f.dir, target)
	if err != nil {
		slog.WarnContext(ctx, "failed to persist target card", "err", err)
		span.RecordError(err)
	}

	slog.InfoContext(ctx, "boost card resolved",
		"card_id", cardID, "name", name, "rank", rank,
		"owners", ownersCount, "wanters", wantersCount)
	return target, nil
}

func (f *Finder) boostCardID(ctx context.Context, boostURL string) (int64, error) {
	resp, err := f.client.Http.R().SetContext(ctx).Get(boostURL)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("boost page: status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return 0, err
	}

	href, ok := doc.Find(`a.button.button--block[href*="/cards/"]`).First().Attr("href")
	if !ok {
		return 0, ErrNoBoostCard
	}
	m := cardHref.FindStringSubmatch(href)
	if m == nil {
		return 0, ErrNoBoostCard
	}
	return int64(textutil.SafeInt(m[1])), nil
}

func (f *Finder) cardPageInfo(ctx context.Context, cardID int64) (name, rank string, err error) {
	resp, err := f.client.Http.R().SetContext(ctx).Get(fmt.Sprintf("/cards/%d", cardID))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode() != http.StatusOK {
		return "", "", fmt.Errorf("card page: status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return "", "", err
	}

	title := doc.Find(`h1.card-show__title, h1[class*="title"], .card-show__name`).First()
	name = htmlutil.CleanText(title.Text())

	grade := doc.Find(`.card-show__grade, .card-grade, [class*="grade"], [data-rank]`).First()
	if v, ok := grade.Attr("data-rank"); ok {
		rank = textutil.NormalizeRank(v)
	} else {
		rank = textutil.NormalizeRank(grade.Text())
	}
	return name, rank, nil
}

func targetPath(dir string) string {
	return filepath.Join(dir, targetFileName)
}

func SaveTarget(dir string, target catalog.TargetCard) error {
	raw, err := json.MarshalIndent(target, "", "  ")
	if err != nil {
		return err
	}
	return osutil.WriteFileAtomic(targetPath(dir), raw)
}

// LoadTarget reads the persisted target card from an earlier run.
func LoadTarget(dir string) (catalog.TargetCard, error) {
	var target catalog.TargetCard
	raw, err := os.ReadFile(targetPath(dir))
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(raw, &target)
	if err != nil {
		return target, err
	}
	if target.CardID == 0 {
		return target, errors.New("target card file has no card id")
	}
	return target, nil
}
