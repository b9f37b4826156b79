// Package boostmon polls the club boost page in the background,
// donating the target card when the club accepts one and signaling the
// orchestrator whenever the target changes. It never touches the
// trade dispatch path itself.
package boostmon

import (
	"cardbuff/services/catalog"
	"cardbuff/services/club"
	"cardbuff/services/session"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("cardbuff.services.boostmon")

const (
	defaultPollInterval = 5 * time.Second
	// donatePause gives the server a moment to re-render the boost
	// page after a donation before the new target is read.
	donatePause = 2 * time.Second
)

var (
	changesPattern = regexp.MustCompile(`(\d+)\s*/\s*\d+`)
	cardHref       = regexp.MustCompile(`/cards/(\d+)`)

	donatePhrases = []string{"внесли вклад", "успеш", "принят"}
	donateWords   = []string{"пожертв", "отдать", "внести", "добав"}
)

var ErrDonateRejected = errors.New("donate request was not confirmed")

// PageState is one observation of the boost page.
type PageState struct {
	Changes   int
	CardID    int64
	CanDonate bool
}

type Monitor struct {
	client   *session.Client
	finder   *club.Finder
	boostURL string
	interval time.Duration

	currentCardID int64
	updates       chan catalog.TargetCard

	sleep func(time.Duration)
}

func New(client *session.Client, finder *club.Finder, boostURL string) *Monitor {
	return &Monitor{
		client:   client,
		finder:   finder,
		boostURL: boostURL,
		interval: defaultPollInterval,
		updates:  make(chan catalog.TargetCard, 1),
		sleep:    time.Sleep,
	}
}

// Updates delivers the refreshed target card after a detected change
// or a successful donation. Only the latest value is retained.
func (m *Monitor) Updates() <-chan catalog.TargetCard {
	return m.updates
}

// Run polls until ctx is cancelled. Poll failures are logged and the
// loop keeps going.
func (m *Monitor) Run(ctx context.Context) {
	slog.InfoContext(ctx, "boost monitor started", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "boost monitor stopped")
			return
		case <-ticker.C:
			err := m.check(ctx)
			if err != nil {
				slog.WarnContext(ctx, "boost check failed", "err", err)
			}
		}
	}
}

func (m *Monitor) check(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "boostmon:check")
	defer span.End()

	state, err := m.ParseBoostPage(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	changed := state.CardID != 0 && state.CardID != m.currentCardID
	if changed {
		slog.InfoContext(ctx, "club target card changed",
			"previous", m.currentCardID, "current", state.CardID)
		m.currentCardID = state.CardID
	}

	if state.CanDonate {
		err = m.Donate(ctx)
		if err != nil {
			slog.WarnContext(ctx, "donation failed", "err", err)
			span.RecordError(err)
		} else {
			m.sleep(donatePause)
			changed = true
		}
	}

	if !changed {
		return nil
	}

	target, err := m.finder.FindBoostCard(ctx, m.boostURL)
	if err != nil {
		span.RecordError(err)
		return err
	}
	m.currentCardID = target.CardID
	m.publish(target)
	return nil
}

func (m *Monitor) publish(target catalog.TargetCard) {
	// drop the stale value if nobody picked it up yet
	select {
	case <-m.updates:
	default:
	}
	m.updates <- target
}

// ParseBoostPage reads the current boost page state: how many target
// swaps remain, which card is solicited, and whether a donate control
// is rendered for us.
func (m *Monitor) ParseBoostPage(ctx context.Context) (PageState, error) {
	var state PageState

	resp, err := m.client.Http.R().SetContext(ctx).Get(m.boostURL)
	if err != nil {
		return state, err
	}
	if resp.StatusCode() != http.StatusOK {
		return state, fmt.Errorf("boost page: status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return state, err
	}

	if text := doc.Find(".club-boost__change div, .club-boost__change span").First().Text(); text != "" {
		if matched := changesPattern.FindStringSubmatch(text); matched != nil {
			fmt.Sscanf(matched[1], "%d", &state.Changes)
		}
	}

	if href, ok := doc.Find(`a.button.button--block[href*="/cards/"]`).First().Attr("href"); ok {
		if matched := cardHref.FindStringSubmatch(href); matched != nil {
			fmt.Sscanf(matched[1], "%d", &state.CardID)
		}
	}

	doc.Find("button").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		for _, word := range donateWords {
			if strings.Contains(text, word) {
				state.CanDonate = true
				return false
			}
		}
		return true
	})

	return state, nil
}

// Donate posts the empty-bodied contribution request. Success is only
// claimed when the response carries a known confirmation phrase.
func (m *Monitor) Donate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "boostmon:Donate")
	defer span.End()

	resp, err := m.client.Http.R().
		SetContext(ctx).
		SetHeader("referer", m.boostURL).
		Post("/clubs/boost")
	if err != nil {
		span.RecordError(err)
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("donate: status %d", resp.StatusCode())
	}

	body := strings.ToLower(resp.String())
	for _, phrase := range donatePhrases {
		if strings.Contains(body, phrase) {
			slog.InfoContext(ctx, "card donated to club")
			return nil
		}
	}
	return ErrDonateRejected
}
