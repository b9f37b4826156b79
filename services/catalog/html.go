package catalog

import (
	"cardbuff/lib/htmlutil"
	"cardbuff/lib/textutil"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var cardHref = regexp.MustCompile(`/cards/(\d+)`)

// ParseCardsHTML extracts card records from a server-rendered fragment.
// The markup is not stable: instance and design ids may live in data
// attributes under a few spellings, or only in an anchor href.
func ParseCardsHTML(html string) []CardRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var records []CardRecord
	seen := map[int64]bool{}

	doc.Find("[data-id], [data-card-id]").Each(func(_ int, sel *goquery.Selection) {
		rec := CardRecord{
			InstanceID: attrInt(sel, "data-id", "data-instance-id"),
			CardID:     attrInt(sel, "data-card-id"),
			Rank:       textutil.NormalizeRank(sel.AttrOr("data-rank", sel.AttrOr("data-grade", ""))),
			Name:       htmlutil.CleanText(sel.AttrOr("data-name", sel.AttrOr("title", ""))),
		}

		if rec.CardID == 0 {
			if href, ok := sel.Attr("href"); ok {
				rec.CardID = hrefCardID(href)
			}
		}
		if rec.CardID == 0 {
			sel.Find(`a[href*="/cards/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
				rec.CardID = hrefCardID(a.AttrOr("href", ""))
				return rec.CardID == 0
			})
		}
		if rec.Name == "" {
			rec.Name = htmlutil.CleanText(sel.Find(".card__name, .card-item__name").First().Text())
		}

		if rec.InstanceID == 0 && rec.CardID == 0 {
			return
		}
		if rec.InstanceID != 0 && seen[rec.InstanceID] {
			return
		}
		if rec.InstanceID != 0 {
			seen[rec.InstanceID] = true
		}
		records = append(records, rec)
	})

	return records
}

func attrInt(sel *goquery.Selection, keys ...string) int64 {
	for _, k := range keys {
		v, ok := sel.Attr(k)
		if !ok {
			continue
		}
		n := textutil.SafeInt(v)
		if n != 0 {
			return int64(n)
		}
	}
	return 0
}

func hrefCardID(href string) int64 {
	m := cardHref.FindStringSubmatch(href)
	if len(m) != 2 {
		return 0
	}
	return int64(textutil.SafeInt(m[1]))
}
