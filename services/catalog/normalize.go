package catalog

import (
	"cardbuff/lib/textutil"
	"encoding/json"
	"strings"
)

// the remote site renders inventory entries in several layouts depending
// on which endpoint produced them: flat objects, objects with the design
// nested under "card", and several alternate key spellings. Normalize
// flattens all of them into a CardRecord.
func Normalize(raw map[string]any) CardRecord {
	var rec CardRecord

	rec.InstanceID = intField(raw, "instance_id", "id", "user_card_id")

	rec.CardID = intField(raw, "card_id", "cardId")
	nested, _ := raw["card"].(map[string]any)
	if rec.CardID == 0 && nested != nil {
		rec.CardID = intField(nested, "id", "card_id")
	}

	rec.Rank = strField(raw, "rank", "grade")
	if rec.Rank == "" && nested != nil {
		rec.Rank = strField(nested, "rank", "grade")
	}
	rec.Rank = textutil.NormalizeRank(rec.Rank)

	rec.Name = strField(raw, "name", "title")
	if rec.Name == "" && nested != nil {
		rec.Name = strField(nested, "name", "title")
	}
	rec.Name = strings.TrimSpace(rec.Name)

	return rec
}

// NormalizeAll maps Normalize over a raw entry list, keeping every
// result; callers decide whether untradeable entries matter.
func NormalizeAll(entries []map[string]any) []CardRecord {
	records := make([]CardRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, Normalize(e))
	}
	return records
}

func intField(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			if v != 0 {
				return int64(v)
			}
		case json.Number:
			n, err := v.Int64()
			if err == nil && n != 0 {
				return n
			}
		case string:
			n := textutil.SafeInt(v)
			if n != 0 {
				return int64(n)
			}
		case int:
			if v != 0 {
				return int64(v)
			}
		case int64:
			if v != 0 {
				return v
			}
		}
	}
	return 0
}

func strField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		s, ok := m[k].(string)
		if ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
