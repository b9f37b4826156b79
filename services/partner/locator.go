// Package partner finds a tradeable instance of the target card in a
// remote user's offerable inventory, trying cheap lookups before
// expensive ones and penalizing partners whose endpoints keep timing
// out.
package partner

import (
	"cardbuff/lib/textutil"
	"cardbuff/services/catalog"
	"cardbuff/services/session"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.partner")

const (
	// hugeListThreshold guards against degenerate payloads: a response
	// claiming this many cards in one batch is not a real inventory.
	hugeListThreshold = 1000
	pageSize          = 60
	pageDelay         = 120 * time.Millisecond
	scanCeiling       = 30000

	offerPageTimeout      = 5 * time.Second
	finalOfferPageTimeout = 8 * time.Second

	// maxContentBytes caps how large a partner response may be before
	// it is worth parsing at all. Anything bigger is treated like a
	// huge list: the partner is blocked and the payload discarded.
	maxContentBytes = 2 << 20

	// nameSimilarity is the Jaro-Winkler score a search result's name
	// must reach to count as the target when it carries no card id.
	nameSimilarity = 0.93
)

var (
	ErrNotFound       = errors.New("partner does not offer the card")
	ErrPartnerBlocked = errors.New("partner is blocked for this run")
)

type Locator struct {
	client *session.Client

	sleep func(time.Duration)
}

func NewLocator(client *session.Client) *Locator {
	return &Locator{client: client, sleep: time.Sleep}
}

// Find resolves a tradeable instance id of target in the partner's
// inventory. Strategies run in order of cost, stopping at the first
// hit: the rendered offer page, a targeted name search, an offset
// scan of the full listing, then the offer page once more with a
// longer timeout. Timeouts feed the partner's counter in st; a
// blocked partner is refused without any network traffic.
func (l *Locator) Find(ctx context.Context, st *State, partnerID int64, target catalog.CardRecord) (int64, error) {
	ctx, span := tracer.Start(ctx, "partner:Find")
	defer span.End()

	if st.IsBlocked(partnerID) {
		return 0, ErrPartnerBlocked
	}

	inst, err := l.scanOfferPage(ctx, partnerID, target.CardID, offerPageTimeout)
	if err == nil {
		st.ClearTimeout(partnerID)
		slog.DebugContext(ctx, "found on offer page", "partner_id", partnerID, "instance_id", inst)
		return inst, nil
	}
	if isTimeout(err) {
		st.MarkTimeout(partnerID)
		span.SetStatus(codes.Error, "offer page timed out")
		return 0, ErrNotFound
	}

	if len(textutil.NormalizeName(target.Name)) > 2 {
		inst, err = l.searchByName(ctx, st, partnerID, target)
		if err == nil {
			st.ClearTimeout(partnerID)
			slog.DebugContext(ctx, "found by name search", "partner_id", partnerID, "instance_id", inst)
			return inst, nil
		}
		if errors.Is(err, ErrPartnerBlocked) {
			span.SetStatus(codes.Error, err.Error())
			return 0, err
		}
	}

	inst, err = l.scanPaged(ctx, st, partnerID, target)
	if err == nil {
		slog.DebugContext(ctx, "found while paging", "partner_id", partnerID, "instance_id", inst)
		return inst, nil
	}
	if errors.Is(err, ErrPartnerBlocked) || errors.Is(err, context.Canceled) {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	inst, err = l.scanOfferPage(ctx, partnerID, target.CardID, finalOfferPageTimeout)
	if err == nil {
		st.ClearTimeout(partnerID)
		slog.DebugContext(ctx, "found on final offer page", "partner_id", partnerID, "instance_id", inst)
		return inst, nil
	}
	if isTimeout(err) {
		st.MarkTimeout(partnerID)
	}
	if st.IsBlocked(partnerID) {
		return 0, ErrPartnerBlocked
	}
	return 0, ErrNotFound
}

func (l *Locator) scanOfferPage(ctx context.Context, partnerID, cardID int64, timeout time.Duration) (int64, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := l.client.Http.R().
		SetContext(tctx).
		Get(fmt.Sprintf("/trades/offers/%d", partnerID))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, ErrNotFound
	}

	if oversized(resp) {
		return 0, ErrNotFound
	}

	cards := catalog.ParseCardsHTML(resp.String())
	if inst, ok := matchInstance(cards, cardID); ok {
		return inst, nil
	}
	return 0, ErrNotFound
}

func (l *Locator) searchByName(ctx context.Context, st *State, partnerID int64, target catalog.CardRecord) (int64, error) {
	resp, err := l.client.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id": strconv.FormatInt(partnerID, 10),
			"offset":  "0",
			"q":       target.Name,
		}).
		Get("/search/cards")
	if err != nil {
		if isTimeout(err) {
			st.MarkTimeout(partnerID)
			if st.IsBlocked(partnerID) {
				return 0, ErrPartnerBlocked
			}
		}
		return 0, ErrNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, ErrNotFound
	}

	if oversized(resp) {
		st.Block(partnerID)
		return 0, ErrPartnerBlocked
	}

	cards := catalog.DecodeList(resp.Body())
	if len(cards) > hugeListThreshold {
		st.Block(partnerID)
		return 0, ErrPartnerBlocked
	}
	if inst, ok := matchInstance(cards, target.CardID); ok {
		return inst, nil
	}
	// search results sometimes render without a design id, leaving the
	// name as the only handle on them
	if inst, ok := matchName(cards, target); ok {
		return inst, nil
	}
	return 0, ErrNotFound
}

func (l *Locator) scanPaged(ctx context.Context, st *State, partnerID int64, target catalog.CardRecord) (int64, error) {
	offset := 0
	scanned := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if st.IsBlocked(partnerID) {
			return 0, ErrPartnerBlocked
		}

		cards, err := l.loadBatch(ctx, st, partnerID, target.Rank, offset)
		if err != nil {
			return 0, err
		}
		if len(cards) == 0 {
			return 0, ErrNotFound
		}

		if inst, ok := matchInstance(cards, target.CardID); ok {
			return inst, nil
		}

		scanned += len(cards)
		if len(cards) < pageSize || scanned > scanCeiling {
			return 0, ErrNotFound
		}
		offset += len(cards)
		l.sleep(pageDelay)
	}
}

// loadBatch posts one availableCardsLoad page. The endpoint's accepted
// parameter names drift, so a few payload spellings are tried until
// one yields cards.
func (l *Locator) loadBatch(ctx context.Context, st *State, partnerID int64, rank string, offset int) ([]catalog.CardRecord, error) {
	url := fmt.Sprintf("/trades/%d/availableCardsLoad", partnerID)
	referer := fmt.Sprintf("%s/trades/offers/%d", l.client.BaseURL, partnerID)

	for _, payload := range batchPayloads(rank, offset) {
		resp, err := l.client.Http.R().
			SetContext(ctx).
			SetHeader("referer", referer).
			SetHeader("accept", "application/json, text/javascript, */*; q=0.01").
			SetFormData(payload).
			Post(url)
		if err != nil {
			if isTimeout(err) {
				st.MarkTimeout(partnerID)
				if st.IsBlocked(partnerID) {
					return nil, ErrPartnerBlocked
				}
			}
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			continue
		}

		if oversized(resp) {
			st.Block(partnerID)
			return nil, ErrPartnerBlocked
		}

		cards := catalog.DecodeList(resp.Body())
		if len(cards) > hugeListThreshold {
			st.Block(partnerID)
			return nil, ErrPartnerBlocked
		}
		st.ClearTimeout(partnerID)
		if len(cards) > 0 {
			return cards, nil
		}
	}
	return nil, nil
}

func oversized(resp *resty.Response) bool {
	return len(resp.Body()) > maxContentBytes
}

func batchPayloads(rank string, offset int) []map[string]string {
	off := strconv.Itoa(offset)
	limit := strconv.Itoa(pageSize)

	var payloads []map[string]string
	if rank != "" {
		payloads = append(payloads,
			map[string]string{"rank": rank, "side": "receiver", "limit": limit, "offset": off},
			map[string]string{"rank": rank, "tab": "receiver", "limit": limit, "offset": off},
		)
	}
	payloads = append(payloads,
		map[string]string{"side": "receiver", "limit": limit, "offset": off},
		map[string]string{"tab": "receiver", "limit": limit, "offset": off},
		map[string]string{"limit": limit, "offset": off},
	)
	return payloads
}

func matchInstance(cards []catalog.CardRecord, cardID int64) (int64, bool) {
	for _, c := range cards {
		if c.CardID == cardID && c.Tradeable() {
			return c.InstanceID, true
		}
	}
	return 0, false
}

func matchName(cards []catalog.CardRecord, target catalog.CardRecord) (int64, bool) {
	want := textutil.NormalizeName(target.Name)
	if len(want) <= 2 {
		return 0, false
	}
	for _, c := range cards {
		if c.CardID != 0 || !c.Tradeable() {
			continue
		}
		got := textutil.NormalizeName(c.Name)
		if got == "" {
			continue
		}
		if target.Rank != "" && c.Rank != "" && c.Rank != target.Rank {
			continue
		}
		if matchr.JaroWinkler(got, want, true) >= nameSimilarity {
			return c.InstanceID, true
		}
	}
	return 0, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
