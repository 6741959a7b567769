// Package ratelimit enforces a minimum interval between submissions per
// named action. The last-submission instant is persisted in the durable
// store as epoch-milliseconds, so the cooldown survives reloads. Check and
// Record are deliberately separate calls: callers record only after the
// guarded action actually succeeded.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/BlediN/hobby-hub/internal/storage"
)

// Rule defines a rate limiting policy: the storage key holding the
// last-submission timestamp and the minimum interval between submissions.
type Rule struct {
	Key         string
	MinInterval time.Duration
}

// Standard rules for the guarded actions.
var (
	// RulePost throttles new post submissions.
	RulePost = Rule{Key: "lastPostSubmission", MinInterval: 2 * time.Second}

	// RuleComment throttles comment submissions.
	RuleComment = Rule{Key: "lastCommentSubmission", MinInterval: 2 * time.Second}
)

// Result is the outcome of a rate check. SecondsRemaining is only reported
// when blocking; an allowed result always carries zero.
type Result struct {
	Allowed          bool `json:"allowed"`
	SecondsRemaining int  `json:"secondsRemaining,omitempty"`
}

// Limiter performs interval checks against a KV store.
type Limiter struct {
	store storage.KV
	now   func() time.Time
}

// NewLimiter creates a Limiter backed by the given store.
func NewLimiter(store storage.KV) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check reports whether an action governed by rule may proceed. The first
// ever check for a key is always allowed. On storage errors or a corrupt
// stored timestamp the limiter fails open so a store outage does not block
// legitimate traffic.
func (l *Limiter) Check(ctx context.Context, rule Rule) Result {
	raw, ok, err := l.store.Get(ctx, rule.Key)
	if err != nil {
		log.Printf("[ratelimit] store get key=%s: %v (failing open)", rule.Key, err)
		return Result{Allowed: true}
	}
	if !ok {
		return Result{Allowed: true}
	}

	lastMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("[ratelimit] corrupt timestamp key=%s value=%q (failing open)", rule.Key, raw)
		return Result{Allowed: true}
	}

	elapsed := l.now().Sub(time.UnixMilli(lastMs))
	if elapsed >= rule.MinInterval {
		return Result{Allowed: true}
	}

	// Round the remaining wait up to whole seconds so the caller never
	// retries early.
	remaining := rule.MinInterval - elapsed
	seconds := int((remaining + time.Second - 1) / time.Second)
	return Result{Allowed: false, SecondsRemaining: seconds}
}

// Record persists now as the last-submission instant for rule's key. Call it
// only after the guarded action succeeded, otherwise failed attempts would
// extend the cooldown.
func (l *Limiter) Record(ctx context.Context, rule Rule) error {
	ms := strconv.FormatInt(l.now().UnixMilli(), 10)
	if err := l.store.Set(ctx, rule.Key, ms); err != nil {
		log.Printf("[ratelimit] store set key=%s: %v", rule.Key, err)
		return err
	}
	return nil
}
