package guard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/BlediN/hobby-hub/internal/storage"
)

// Escalating block durations: repeat offenders inside the counting window
// get progressively longer blocks.
const (
	Block15Min  = 15 * time.Minute // 1st offense
	Block1Hour  = 1 * time.Hour    // 2nd offense
	Block24Hour = 24 * time.Hour   // 3rd+ offense

	// offenseWindow is how long an offense counter keeps accumulating.
	// A fingerprint with no new offenses for this long starts over.
	offenseWindow = 24 * time.Hour

	offensePrefix = "offenses:"
)

// escalationDuration returns the block duration for a given offense count.
func escalationDuration(count int) time.Duration {
	switch {
	case count <= 1:
		return Block15Min
	case count == 2:
		return Block1Hour
	default:
		return Block24Hour
	}
}

// offenseRecord is the persisted counter state for one fingerprint.
type offenseRecord struct {
	Count int   `json:"count"`
	First int64 `json:"first"` // epoch-ms of the first offense in the window
}

// offenseCounter tracks per-fingerprint offense counts in the durable
// store. The window is fixed at the first offense and does not slide.
type offenseCounter struct {
	store storage.KV
}

func newOffenseCounter(store storage.KV) *offenseCounter {
	return &offenseCounter{store: store}
}

// increment bumps the counter for fp and returns the new count. A counter
// older than the window resets before counting. Storage failures degrade to
// a count of 1 — a first offense — so the guard still blocks, just without
// escalation.
func (c *offenseCounter) increment(ctx context.Context, fp string, now time.Time) int {
	key := offensePrefix + fp

	rec := offenseRecord{First: now.UnixMilli()}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("[guard] offense counter get fp=%s: %v", fp, err)
		return 1
	}
	if ok {
		var stored offenseRecord
		if err := json.Unmarshal([]byte(raw), &stored); err == nil {
			if now.Sub(time.UnixMilli(stored.First)) <= offenseWindow {
				rec = stored
			}
		}
	}

	rec.Count++
	data, _ := json.Marshal(rec)
	if err := c.store.Set(ctx, key, string(data)); err != nil {
		log.Printf("[guard] offense counter set fp=%s: %v", fp, err)
	}
	return rec.Count
}

// count returns the current in-window offense count for fp.
func (c *offenseCounter) count(ctx context.Context, fp string, now time.Time) int {
	raw, ok, err := c.store.Get(ctx, offensePrefix+fp)
	if err != nil || !ok {
		return 0
	}
	var rec offenseRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return 0
	}
	if now.Sub(time.UnixMilli(rec.First)) > offenseWindow {
		return 0
	}
	return rec.Count
}
