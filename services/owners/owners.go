// Package owners streams pages of a card's owner list, filtered down
// to users who are online and not trade-locked.
package owners

import (
	"cardbuff/lib/htmlutil"
	"cardbuff/lib/textutil"
	"cardbuff/services/session"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("cardbuff.services.owners")

const pageDelay = 200 * time.Millisecond

var userHref = regexp.MustCompile(`/users/(\d+)`)

// Page is one fetched slice of the owner listing.
type Page struct {
	Number int
	Owners []int64
}

type Source struct {
	client *session.Client

	// limiter paces page fetches so the walk does not hammer the
	// listing endpoint.
	limiter *rate.Limiter
}

func NewSource(client *session.Client) *Source {
	return &Source{client: client, limiter: rate.NewLimiter(rate.Every(pageDelay), 1)}
}

// Pages walks /cards/{id}/users page by page, in order, calling fn
// with each page's online unlocked owners. fn returning false stops
// the walk. maxPages of 0 means no cap beyond the site's own last
// page. Fetch errors end the stream rather than failing it; owners
// already yielded stay processed.
func (s *Source) Pages(ctx context.Context, cardID int64, maxPages int, fn func(Page) bool) error {
	ctx, span := tracer.Start(ctx, "owners:Pages")
	defer span.End()

	path := fmt.Sprintf("/cards/%d/users", cardID)

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	doc, err := s.fetch(ctx, path, 1)
	if err != nil {
		span.RecordError(err)
		return err
	}

	lastPage := htmlutil.LastPageNumber(doc)
	if maxPages > 0 && lastPage > maxPages {
		lastPage = maxPages
	}

	if !fn(Page{Number: 1, Owners: ParseOnlineUnlocked(doc)}) {
		return nil
	}

	for page := 2; page <= lastPage; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		doc, err := s.fetch(ctx, path, page)
		if err != nil {
			slog.WarnContext(ctx, "owner page fetch failed, ending stream",
				"card_id", cardID, "page", page, "err", err)
			span.RecordError(err)
			return nil
		}
		if !fn(Page{Number: page, Owners: ParseOnlineUnlocked(doc)}) {
			return nil
		}
	}
	return nil
}

func (s *Source) fetch(ctx context.Context, path string, page int) (*goquery.Document, error) {
	resp, err := s.client.Http.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s page %d: status %d", path, page, resp.StatusCode())
	}
	return goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
}

// ParseOnlineUnlocked extracts owner user ids that carry an online
// marker and no trade-lock marker. The markup drifts, so the container
// and both markers are probed through several selector spellings.
func ParseOnlineUnlocked(doc *goquery.Document) []int64 {
	container := doc.Find("div.card-show__owner-wrapper div.card-show__owners").First()
	if container.Length() == 0 {
		container = doc.Find("div.card-show__owner-wrapper").First()
	}
	if container.Length() == 0 {
		container = doc.Find("div.card-show__owners").First()
	}
	if container.Length() == 0 {
		return nil
	}

	var out []int64
	seen := map[int64]struct{}{}

	container.Find(`[class*="card-show__owner"], a[href^="/users/"]`).Each(func(_ int, node *goquery.Selection) {
		anchor := node
		if !isUserAnchor(node) {
			anchor = node.Find(`a[href^="/users/"]`).First()
			if anchor.Length() == 0 {
				return
			}
		}

		href, _ := anchor.Attr("href")
		m := userHref.FindStringSubmatch(href)
		if m == nil {
			return
		}
		uid := int64(textutil.SafeInt(m[1]))
		if uid == 0 {
			return
		}
		if _, ok := seen[uid]; ok {
			return
		}

		if !isOnline(node) && !isOnline(anchor) {
			return
		}
		if isLocked(node) || isLocked(anchor) {
			return
		}

		seen[uid] = struct{}{}
		out = append(out, uid)
	})
	return out
}

func isUserAnchor(sel *goquery.Selection) bool {
	if !sel.Is("a") {
		return false
	}
	href, _ := sel.Attr("href")
	return strings.HasPrefix(href, "/users/")
}

func isOnline(sel *goquery.Selection) bool {
	if classContains(sel, "online") {
		return true
	}
	if sel.Find(".online, .is-online, .user-online, .avatar__online, .status--online, .badge--online").Length() > 0 {
		return true
	}
	// the online modifier sometimes sits on an enclosing wrapper
	parent := sel.Parent()
	for i := 0; i < 3 && parent.Length() > 0; i++ {
		if classContains(parent, "online") {
			return true
		}
		parent = parent.Parent()
	}
	return false
}

func isLocked(sel *goquery.Selection) bool {
	if classContains(sel, "lock") {
		return true
	}
	if v, ok := sel.Attr("data-locked"); ok && strings.TrimSpace(v) == "1" {
		return true
	}
	return sel.Find(".card-show__owner-icon--trade-lock, .trade-lock, .icon-lock, .icon--lock, .locked").Length() > 0
}

func classContains(sel *goquery.Selection, substr string) bool {
	class, _ := sel.Attr("class")
	return strings.Contains(strings.ToLower(class), substr)
}
