// Package wanters tracks how many users want a given card design. The
// count is expensive to resolve (a paginated remote scan per card), so
// results are kept in a small file-backed cache with a fixed lifetime.
package wanters

import (
	"cardbuff/lib/osutil"
	"cardbuff/services/catalog"
	"encoding/json"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// entries older than this are treated as absent and purged on access
const EntryLifetime = time.Hour * 24

// chance that a lookup triggers a full sweep of expired entries
const sweepChance = 0.1

type Entry struct {
	CardID    int64  `json:"card_id"`
	Name      string `json:"name"`
	Rank      string `json:"rank"`
	Count     int    `json:"wanters_count"`
	Timestamp int64  `json:"timestamp"`
}

type Cache struct {
	path    string
	entries map[string]Entry

	now func() time.Time
}

func NewCache(dir string) (*Cache, error) {
	c := &Cache{
		path:    filepath.Join(dir, "card_wanters_cache.json"),
		entries: map[string]Entry{},
		now:     time.Now,
	}

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	// a corrupt cache file is not worth failing over, start empty
	if json.Unmarshal(raw, &c.entries) != nil {
		c.entries = map[string]Entry{}
	}
	return c, nil
}

func (c *Cache) expired(e Entry) bool {
	return c.now().Unix()-e.Timestamp > int64(EntryLifetime/time.Second)
}

// Get returns the cached count for a card design. An expired entry is
// evicted and reported as a miss.
func (c *Cache) Get(cardID int64) (int, bool) {
	key := strconv.FormatInt(cardID, 10)
	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		if err := c.persist(); err != nil {
			slog.Warn("failed to persist wanters cache after eviction", "card_id", cardID, "err", err)
		}
		return 0, false
	}
	return e.Count, true
}

// Set overwrites the entry for a card design, stamping the current
// time, and persists the whole cache atomically.
func (c *Cache) Set(cardID int64, count int, meta catalog.CardRecord) error {
	key := strconv.FormatInt(cardID, 10)
	c.entries[key] = Entry{
		CardID:    cardID,
		Name:      meta.Name,
		Rank:      meta.Rank,
		Count:     count,
		Timestamp: c.now().Unix(),
	}
	return c.persist()
}

// Sweep removes every expired entry.
func (c *Cache) Sweep() error {
	removed := false
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return c.persist()
}

// MaybeSweep runs Sweep on a small fraction of calls, amortizing the
// cleanup over regular use.
func (c *Cache) MaybeSweep() {
	if rand.Float64() < sweepChance {
		c.Sweep()
	}
}

func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) persist() error {
	raw, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return err
	}
	return osutil.WriteFileAtomic(c.path, raw)
}
