// Package guard composes the classifier, rate limiter, and block registry
// into the single decision made before accepting a post or comment. The
// pipeline short-circuits on the first failure; every failure is written to
// the audit log, published as an alert, and may add a block entry for the
// submitting fingerprint.
package guard

import (
	"context"
	"log"
	"time"

	"github.com/BlediN/hobby-hub/internal/alerts"
	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/classifier"
	"github.com/BlediN/hobby-hub/internal/fingerprint"
	"github.com/BlediN/hobby-hub/internal/metrics"
	"github.com/BlediN/hobby-hub/internal/ratelimit"
	"github.com/BlediN/hobby-hub/internal/storage"
)

// Verdict names the outcome class of a submission check.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictBot         Verdict = "bot"
	VerdictRateLimited Verdict = "rate_limited"
	VerdictBlocked     Verdict = "blocked"
)

// Decision is the structured result of a submission check. Nothing in the
// pipeline is reported as an error to the submitting caller: a rejection is
// a value, with a human-readable reason, and rate-limit rejections carry the
// wait before a retry may succeed.
type Decision struct {
	Allowed          bool    `json:"allowed"`
	Verdict          Verdict `json:"verdict"`
	Reason           string  `json:"reason,omitempty"`
	SecondsRemaining int     `json:"secondsRemaining,omitempty"`
}

// Request is one guarded submission attempt. Client is optional: without
// client attributes the fingerprint and user-agent stages are skipped and
// only classification plus rate limiting apply.
type Request struct {
	Action     string
	Submission classifier.Submission
	Rule       ratelimit.Rule
	Client     *audit.Client
}

// Guard is the submission decision pipeline.
type Guard struct {
	classifier *classifier.Classifier
	limiter    *ratelimit.Limiter
	blocks     *blocklist.Registry
	auditLog   *audit.Log
	publisher  alerts.Publisher

	offenses *offenseCounter
	now      func() time.Time
}

// New assembles a Guard. durable backs the offense counters used for
// escalating block durations; publisher may be alerts.Noop{}.
func New(
	cls *classifier.Classifier,
	limiter *ratelimit.Limiter,
	blocks *blocklist.Registry,
	auditLog *audit.Log,
	durable storage.KV,
	publisher alerts.Publisher,
) *Guard {
	return &Guard{
		classifier: cls,
		limiter:    limiter,
		blocks:     blocks,
		auditLog:   auditLog,
		publisher:  publisher,
		offenses:   newOffenseCounter(durable),
		now:        time.Now,
	}
}

// CheckSubmission runs the decision pipeline for one submission attempt.
// Stages run cheapest first and the first failure wins: heuristic
// classification, then the per-action cooldown, then (when client
// attributes are present) the block registry and user-agent checks.
func (g *Guard) CheckSubmission(ctx context.Context, req Request) Decision {
	action := req.Action
	if action == "" {
		action = req.Rule.Key
	}

	// Stage 1: heuristic classification.
	if res := g.classifier.Classify(req.Submission); res.IsBot {
		metrics.ClassifierRejections.WithLabelValues(res.Reason).Inc()
		g.reject(ctx, req, action, res.Reason)
		return g.decide(VerdictBot, res.Reason, 0)
	}

	// Stage 2: per-action cooldown.
	if res := g.limiter.Check(ctx, req.Rule); !res.Allowed {
		metrics.RateLimitDenials.WithLabelValues(req.Rule.Key).Inc()
		g.audit(ctx, req, map[string]any{
			"action":           action,
			"reason":           "Rate limit exceeded",
			"secondsRemaining": res.SecondsRemaining,
		})
		return g.decide(VerdictRateLimited, "Rate limit exceeded", res.SecondsRemaining)
	}

	// Stage 3: identity checks, only possible with client attributes.
	if req.Client != nil {
		fp := fingerprint.Basic(req.Client.Attributes)

		if g.blocks.IsBlocked(ctx, fp) {
			g.audit(ctx, req, map[string]any{
				"action": action,
				"reason": "Fingerprint is blocked",
			})
			return g.decide(VerdictBlocked, "Fingerprint is blocked", 0)
		}

		if fingerprint.BotUserAgent(req.Client.Attributes.UserAgent) {
			metrics.EnvironmentFlags.WithLabelValues("bot_ua").Inc()
			g.reject(ctx, req, action, "Automated user agent detected")
			return g.decide(VerdictBot, "Automated user agent detected", 0)
		}
	}

	return g.decide(VerdictOK, "", 0)
}

// RecordSubmission persists the cooldown timestamp for a submission that
// actually went through. Skipping this for failed submissions is what keeps
// the limiter from punishing rejected attempts.
func (g *Guard) RecordSubmission(ctx context.Context, rule ratelimit.Rule) error {
	return g.limiter.Record(ctx, rule)
}

// OffenseCount reports the in-window offense count for a fingerprint, for
// the admin dashboard.
func (g *Guard) OffenseCount(ctx context.Context, fp string) int {
	return g.offenses.count(ctx, fp, g.now())
}

// reject handles a bot verdict: audit it, publish it, and block the
// fingerprint with a duration that escalates with repeat offenses inside
// the counting window.
func (g *Guard) reject(ctx context.Context, req Request, action, reason string) {
	fields := map[string]any{
		"action": action,
		"reason": reason,
	}

	if req.Client == nil {
		g.audit(ctx, req, fields)
		return
	}

	fp := fingerprint.Basic(req.Client.Attributes)
	count := g.offenses.increment(ctx, fp, g.now())
	duration := escalationDuration(count)
	fields["offenseCount"] = count
	fields["blockDuration"] = duration.String()

	g.audit(ctx, req, fields)

	if err := g.blocks.Block(ctx, fp, duration, reason); err != nil {
		log.Printf("[guard] block fp=%s: %v", fp, err)
		return
	}
	metrics.ActiveBlocks.Set(float64(len(g.blocks.ListActive(ctx))))
	g.publisher.PublishBlocked(alerts.Alert{
		Fingerprint: fp,
		UserAgent:   req.Client.Attributes.UserAgent,
		URL:         req.Client.URL,
		Action:      action,
		Reason:      reason,
		Ts:          g.now().UnixMilli(),
		Details:     map[string]any{"offenseCount": count, "duration": duration.String()},
	})
}

// audit records the event and mirrors it onto the alert bus. A nil client
// still produces an audit entry, just without meaningful enrichment.
func (g *Guard) audit(ctx context.Context, req Request, fields map[string]any) {
	client := audit.Client{}
	if req.Client != nil {
		client = *req.Client
	}

	if err := g.auditLog.Record(ctx, client, fields); err != nil {
		log.Printf("[guard] audit record: %v", err)
	}
	metrics.AuditEntries.Set(float64(len(g.auditLog.ListAll(ctx))))

	reason, _ := fields["reason"].(string)
	action, _ := fields["action"].(string)
	g.publisher.PublishSuspicious(alerts.Alert{
		Fingerprint: fingerprint.Basic(client.Attributes),
		UserAgent:   client.Attributes.UserAgent,
		URL:         client.URL,
		Action:      action,
		Reason:      reason,
		Ts:          g.now().UnixMilli(),
	})
}

func (g *Guard) decide(v Verdict, reason string, wait int) Decision {
	metrics.SubmissionsTotal.WithLabelValues(string(v)).Inc()
	return Decision{
		Allowed:          v == VerdictOK,
		Verdict:          v,
		Reason:           reason,
		SecondsRemaining: wait,
	}
}
