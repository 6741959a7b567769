// Package blocklist maintains the fingerprint block registry: a persisted
// list of block entries with per-entry expiry. Eviction is lazy — expired
// entries are swept on read, not by a background timer — so correctness
// depends on every read path performing the sweep before testing membership.
package blocklist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/BlediN/hobby-hub/internal/storage"
)

// StoreKey is the durable-store key holding the JSON array of block entries.
const StoreKey = "blockedFingerprints"

// DefaultDuration is how long a fingerprint stays blocked when the caller
// does not choose a duration.
const DefaultDuration = time.Hour

// DefaultReason labels blocks applied by automated bot detection.
const DefaultReason = "Bot detection"

// Entry is one block record. The JSON field names are the persisted wire
// contract; timestamps are epoch-milliseconds. Entries are never mutated
// after creation — they are removed by the expiry sweep or an explicit
// clear, nothing else.
type Entry struct {
	Fingerprint string `json:"fingerprint"`
	BlockedAt   int64  `json:"blockedAt"`
	ExpiresAt   int64  `json:"expiresAt"`
	Reason      string `json:"reason"`
}

// Active reports whether the entry is unexpired at the given instant.
func (e Entry) Active(now time.Time) bool {
	return e.ExpiresAt > now.UnixMilli()
}

// Registry stores block entries in a KV store.
type Registry struct {
	store storage.KV
	now   func() time.Time
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(store storage.KV) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Block appends a block entry for fingerprint expiring after duration.
func (r *Registry) Block(ctx context.Context, fp string, duration time.Duration, reason string) error {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if reason == "" {
		reason = DefaultReason
	}

	entries := r.load(ctx)
	now := r.now()
	entries = append(entries, Entry{
		Fingerprint: fp,
		BlockedAt:   now.UnixMilli(),
		ExpiresAt:   now.Add(duration).UnixMilli(),
		Reason:      reason,
	})

	if err := r.save(ctx, entries); err != nil {
		return fmt.Errorf("blocklist: block %s: %w", fp, err)
	}
	log.Printf("[blocklist] fingerprint blocked fp=%s duration=%s reason=%q", fp, duration, reason)
	return nil
}

// IsBlocked sweeps expired entries, persists the pruned list, then tests
// whether fingerprint has an active entry. Storage failures degrade to "not
// blocked" so a broken store never locks out legitimate users.
func (r *Registry) IsBlocked(ctx context.Context, fp string) bool {
	entries := r.load(ctx)
	active := prune(entries, r.now())

	// Persist the sweep so every reader shares the pruned list. Best
	// effort: membership is answered from the in-memory copy either way.
	if len(active) != len(entries) {
		if err := r.save(ctx, active); err != nil {
			log.Printf("[blocklist] sweep persist failed: %v", err)
		}
	}

	for _, e := range active {
		if e.Fingerprint == fp {
			return true
		}
	}
	return false
}

// ListActive returns the unexpired entries without rewriting the store.
func (r *Registry) ListActive(ctx context.Context) []Entry {
	return prune(r.load(ctx), r.now())
}

// ClearAll unconditionally empties the registry.
func (r *Registry) ClearAll(ctx context.Context) error {
	if err := r.store.Remove(ctx, StoreKey); err != nil {
		return fmt.Errorf("blocklist: clear: %w", err)
	}
	return nil
}

// prune returns the entries still active at now, preserving order.
func prune(entries []Entry, now time.Time) []Entry {
	active := entries[:0:0]
	for _, e := range entries {
		if e.Active(now) {
			active = append(active, e)
		}
	}
	return active
}

// load reads and decodes the persisted entry list. An absent key, a storage
// failure, or corrupt JSON all degrade to an empty list.
func (r *Registry) load(ctx context.Context) []Entry {
	raw, ok, err := r.store.Get(ctx, StoreKey)
	if err != nil {
		log.Printf("[blocklist] store get: %v (treating as empty)", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("[blocklist] corrupt block list: %v (treating as empty)", err)
		return nil
	}
	return entries
}

func (r *Registry) save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, StoreKey, string(data))
}
