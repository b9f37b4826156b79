package wanters

import (
	"bytes"
	"cardbuff/lib/htmlutil"
	"cardbuff/services/session"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cardbuff.services.wanters")

// the site exposes no numeric counters, only paginated listings; the
// count is (pages-1)*pageSize + len(last page)
const wantersPageSize = 60
const ownersPageSize = 36

var wantersSelectors = []string{
	"a.profile__friends-item",
	`a[class*="profile__friends-item"]`,
	"a.profile_friends-item",
	`a[class*="profile_friends-item"]`,
}

var ownersSelectors = []string{
	"a.card-show__owner",
	`a[class*="card-show__owner"]`,
	"a.card-show_owner",
	`a[class*="card-show_owner"]`,
}

// Counter resolves wanters/owners counts by scanning the remote
// paginated listings.
type Counter struct {
	client *session.Client
}

func NewCounter(client *session.Client) Counter {
	return Counter{client: client}
}

func (c Counter) WantersCount(ctx context.Context, cardID int64) (int, error) {
	ctx, span := tracer.Start(ctx, "counter:WantersCount")
	defer span.End()

	n, err := c.countByLastPage(
		ctx,
		fmt.Sprintf("/cards/%d/offers/want", cardID),
		wantersSelectors,
		wantersPageSize,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count wanters")
		return 0, err
	}
	return n, nil
}

func (c Counter) OwnersCount(ctx context.Context, cardID int64) (int, error) {
	ctx, span := tracer.Start(ctx, "counter:OwnersCount")
	defer span.End()

	n, err := c.countByLastPage(
		ctx,
		fmt.Sprintf("/cards/%d/users", cardID),
		ownersSelectors,
		ownersPageSize,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count owners")
		return 0, err
	}
	return n, nil
}

func (c Counter) countByLastPage(ctx context.Context, path string, selectors []string, perPage int) (int, error) {
	doc, err := c.fetchPage(ctx, path, 1)
	if err != nil {
		return 0, err
	}

	lastPage := htmlutil.LastPageNumber(doc)
	firstCount := countMatches(doc, selectors)
	if lastPage <= 1 {
		return firstCount, nil
	}

	doc, err = c.fetchPage(ctx, path, lastPage)
	if err != nil {
		return 0, err
	}
	return (lastPage-1)*perPage + countMatches(doc, selectors), nil
}

func (c Counter) fetchPage(ctx context.Context, path string, page int) (*goquery.Document, error) {
	res, err := c.client.Http.R().
		SetContext(ctx).
		SetQueryParam("page", fmt.Sprint(page)).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status %d for %s", res.StatusCode(), path)
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func countMatches(doc *goquery.Document, selectors []string) int {
	for _, sel := range selectors {
		n := doc.Find(sel).Length()
		if n > 0 {
			return n
		}
	}
	return 0
}
