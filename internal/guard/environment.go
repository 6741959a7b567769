package guard

import (
	"context"

	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/fingerprint"
	"github.com/BlediN/hobby-hub/internal/metrics"
)

// EnvironmentReport is the outcome of the pre-flight client check run at
// page load, before any submission exists.
type EnvironmentReport struct {
	Fingerprint    string               `json:"fingerprint"`
	Extended       fingerprint.Extended `json:"advancedFingerprint"`
	BotUserAgent   bool                 `json:"isBotUA"`
	HeadlessCanvas bool                 `json:"hasCanvasIssue"`
	MissingWebGL   bool                 `json:"hasWebGLIssue"`
	Blocked        bool                 `json:"isBlocked"`
}

// Suspicious reports whether any automation signal tripped. A blocked
// fingerprint alone is not suspicious — the block already handles it.
func (r EnvironmentReport) Suspicious() bool {
	return r.BotUserAgent || r.HeadlessCanvas || r.MissingWebGL
}

// CheckEnvironment derives both fingerprints, probes the rendering
// capabilities, and checks the block registry. Tripped signals are counted,
// audited, and published; the caller decides what to do with the report.
func (g *Guard) CheckEnvironment(ctx context.Context, client audit.Client, prober fingerprint.Prober) EnvironmentReport {
	ext := fingerprint.Advanced(client.Attributes, prober)

	report := EnvironmentReport{
		Fingerprint:    ext.Basic,
		Extended:       ext,
		BotUserAgent:   fingerprint.BotUserAgent(client.Attributes.UserAgent),
		HeadlessCanvas: ext.HeadlessCanvas(),
		MissingWebGL:   ext.MissingWebGL(),
		Blocked:        g.blocks.IsBlocked(ctx, ext.Basic),
	}

	if report.BotUserAgent {
		metrics.EnvironmentFlags.WithLabelValues("bot_ua").Inc()
	}
	if report.HeadlessCanvas {
		metrics.EnvironmentFlags.WithLabelValues("headless_canvas").Inc()
	}
	if report.MissingWebGL {
		metrics.EnvironmentFlags.WithLabelValues("missing_webgl").Inc()
	}

	if report.Suspicious() {
		g.audit(ctx, Request{Client: &client}, map[string]any{
			"action":         "environment_check",
			"reason":         "Advanced bot detection triggered",
			"isBotUA":        report.BotUserAgent,
			"hasCanvasIssue": report.HeadlessCanvas,
			"hasWebGLIssue":  report.MissingWebGL,
		})
	}

	return report
}
