package catalog

import (
	"encoding/json"
)

// listPayload covers the shapes the card-listing endpoints are known to
// return: a JSON array of entries under "cards", a rendered HTML string
// under "cards", or the fragment under one of the view keys.
type listPayload struct {
	Cards   json.RawMessage `json:"cards"`
	HTML    string          `json:"html"`
	View    string          `json:"view"`
	Content string          `json:"content"`
}

// DecodeList turns a raw response body into card records, whatever
// shape the endpoint chose to reply with. A body that is not JSON at
// all is treated as raw HTML.
func DecodeList(body []byte) []CardRecord {
	var payload listPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		return ParseCardsHTML(string(body))
	}

	if len(payload.Cards) > 0 {
		var entries []map[string]any
		if json.Unmarshal(payload.Cards, &entries) == nil {
			return NormalizeAll(entries)
		}
		var fragment string
		if json.Unmarshal(payload.Cards, &fragment) == nil {
			return ParseCardsHTML(fragment)
		}
	}

	for _, fragment := range []string{payload.HTML, payload.View, payload.Content} {
		if fragment == "" {
			continue
		}
		records := ParseCardsHTML(fragment)
		if len(records) > 0 {
			return records
		}
	}

	return nil
}
