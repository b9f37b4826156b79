// Package catalog converts the remote site's many card representations
// into one canonical record all other services operate on.
package catalog

// CardRecord is a single owned copy of a card.
//
// InstanceID identifies the physical copy and is required for the copy
// to participate in any trade. CardID identifies the design and is
// shared across owners.
type CardRecord struct {
	InstanceID int64  `json:"instance_id"`
	CardID     int64  `json:"card_id"`
	Rank       string `json:"rank"`
	Name       string `json:"name"`
}

// Tradeable reports whether the record can be offered in a trade.
func (c CardRecord) Tradeable() bool {
	return c.InstanceID != 0
}

// TargetCard is the card currently being acquired for the club. It is
// discovered from the club boost page and refreshed whenever that page
// starts pointing at a different design.
type TargetCard struct {
	CardID       int64  `json:"card_id"`
	Rank         string `json:"rank"`
	Name         string `json:"name"`
	WantersCount int    `json:"wanters_count"`
	OwnersCount  int    `json:"owners_count"`
	CardURL      string `json:"card_url"`
	UpdatedAt    int64  `json:"updated_at"`
}

// FilterTradeable drops records without an instance id.
func FilterTradeable(records []CardRecord) []CardRecord {
	out := make([]CardRecord, 0, len(records))
	for _, r := range records {
		if r.Tradeable() {
			out = append(out, r)
		}
	}
	return out
}
