// Package audit keeps the append-only log of suspicious events. The log is
// a capacity-bounded FIFO persisted in the durable store: once it holds 100
// entries the oldest is evicted on the next write. Entries are enriched at
// write time with the submitting client's fingerprint and environment.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/fingerprint"
	"github.com/BlediN/hobby-hub/internal/storage"
)

// StoreKey is the durable-store key holding the JSON array of entries.
const StoreKey = "suspiciousActivityLogs"

// MaxEntries caps the log length. Oldest entries are evicted first.
const MaxEntries = 100

// Entry is one audit record. It is an open map rather than a fixed struct
// because callers attach arbitrary context (action, reason, verdict) on top
// of the reserved enrichment fields; caller fields win on key collision.
type Entry map[string]any

// Client carries the submitting client's environment, captured per request
// and stamped onto every entry recorded for it.
type Client struct {
	Attributes fingerprint.Attributes
	URL        string
}

// Log records suspicious events. The block registry is consulted only by
// ExportJSON, which bundles the active block list into the export document.
type Log struct {
	store  storage.KV
	blocks *blocklist.Registry
	now    func() time.Time
}

// NewLog creates a Log over the given store. blocks may be nil, in which
// case exports carry an empty block list.
func NewLog(store storage.KV, blocks *blocklist.Registry) *Log {
	return &Log{store: store, blocks: blocks, now: time.Now}
}

// Record appends an entry built from the client environment plus the
// caller-supplied fields, evicting the oldest entry when the log is full.
func (l *Log) Record(ctx context.Context, client Client, fields map[string]any) error {
	entry := Entry{
		"id":          uuid.NewString(),
		"timestamp":   l.now().UTC().Format(time.RFC3339),
		"fingerprint": fingerprint.Basic(client.Attributes),
		"userAgent":   client.Attributes.UserAgent,
		"url":         client.URL,
	}
	for k, v := range fields {
		entry[k] = v
	}

	entries := l.load(ctx)
	entries = append(entries, entry)
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}

	if err := l.save(ctx, entries); err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	log.Printf("[audit] suspicious activity recorded fp=%v reason=%v", entry["fingerprint"], entry["reason"])
	return nil
}

// ListAll returns every entry in insertion order, oldest first.
func (l *Log) ListAll(ctx context.Context) []Entry {
	return l.load(ctx)
}

// Clear empties the log.
func (l *Log) Clear(ctx context.Context) error {
	if err := l.store.Remove(ctx, StoreKey); err != nil {
		return fmt.Errorf("audit: clear: %w", err)
	}
	return nil
}

// Export is the document shape produced by ExportJSON. The field names are
// a contract with offline review tooling and must not change.
type Export struct {
	ExportDate          string            `json:"exportDate"`
	SuspiciousActivity  []Entry           `json:"suspiciousActivity"`
	BlockedFingerprints []blocklist.Entry `json:"blockedFingerprints"`
}

// ExportJSON serializes the current log and the active block list as a
// pretty-printed document for offline review.
func (l *Log) ExportJSON(ctx context.Context) (string, error) {
	doc := Export{
		ExportDate:          l.now().UTC().Format(time.RFC3339),
		SuspiciousActivity:  l.load(ctx),
		BlockedFingerprints: []blocklist.Entry{},
	}
	if doc.SuspiciousActivity == nil {
		doc.SuspiciousActivity = []Entry{}
	}
	if l.blocks != nil {
		if active := l.blocks.ListActive(ctx); active != nil {
			doc.BlockedFingerprints = active
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: export: %w", err)
	}
	return string(data), nil
}

// load reads the persisted entries. A missing key, storage failure, or
// corrupt JSON degrades to an empty log.
func (l *Log) load(ctx context.Context) []Entry {
	raw, ok, err := l.store.Get(ctx, StoreKey)
	if err != nil {
		log.Printf("[audit] store get: %v (treating as empty)", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("[audit] corrupt log: %v (treating as empty)", err)
		return nil
	}
	return entries
}

func (l *Log) save(ctx context.Context, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return l.store.Set(ctx, StoreKey, string(data))
}
