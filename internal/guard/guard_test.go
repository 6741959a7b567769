package guard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BlediN/hobby-hub/internal/alerts"
	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/classifier"
	"github.com/BlediN/hobby-hub/internal/fingerprint"
	"github.com/BlediN/hobby-hub/internal/ratelimit"
	"github.com/BlediN/hobby-hub/internal/storage"
)

// recorder captures published alerts for assertions.
type recorder struct {
	mu         sync.Mutex
	suspicious []alerts.Alert
	blocked    []alerts.Alert
}

func (r *recorder) PublishSuspicious(a alerts.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspicious = append(r.suspicious, a)
}

func (r *recorder) PublishBlocked(a alerts.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, a)
}

type fixture struct {
	guard    *Guard
	blocks   *blocklist.Registry
	auditLog *audit.Log
	store    *storage.Memory
	alerts   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemory()
	blocks := blocklist.NewRegistry(mem)
	auditLog := audit.NewLog(mem, blocks)
	rec := &recorder{}
	g := New(
		classifier.New(),
		ratelimit.NewLimiter(mem),
		blocks,
		auditLog,
		mem,
		rec,
	)
	return &fixture{guard: g, blocks: blocks, auditLog: auditLog, store: mem, alerts: rec}
}

var browserClient = audit.Client{
	Attributes: fingerprint.Attributes{
		UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Language:              "en-US",
		TimezoneOffsetMinutes: -60,
		ScreenWidth:           2560,
		ScreenHeight:          1440,
		HardwareConcurrency:   12,
	},
	URL: "https://hobbyhub.example/create",
}

func cleanRequest(ruleKey string) Request {
	c := browserClient
	return Request{
		Action: "create_post",
		Submission: classifier.Submission{
			Title:   "Getting Started with Photography",
			Content: "A long enough valid hobby post body here.",
		},
		Rule:   ratelimit.Rule{Key: ruleKey, MinInterval: 2 * time.Second},
		Client: &c,
	}
}

func TestCheckSubmission_CleanAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got := f.guard.CheckSubmission(ctx, cleanRequest("rl1"))
	if !got.Allowed || got.Verdict != VerdictOK {
		t.Fatalf("clean submission rejected: %+v", got)
	}
	if got.Reason != "" || got.SecondsRemaining != 0 {
		t.Errorf("clean decision carries rejection data: %+v", got)
	}
	if len(f.auditLog.ListAll(ctx)) != 0 {
		t.Error("clean submission produced an audit entry")
	}
	if len(f.alerts.suspicious) != 0 {
		t.Error("clean submission published an alert")
	}
}

func TestCheckSubmission_BotShortCircuitsAndBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := cleanRequest("rl2")
	req.Submission.Honeypot = "filled"
	got := f.guard.CheckSubmission(ctx, req)

	if got.Allowed || got.Verdict != VerdictBot {
		t.Fatalf("honeypot submission not rejected as bot: %+v", got)
	}
	if got.Reason != "Honeypot field filled" {
		t.Errorf("reason = %q", got.Reason)
	}

	// First offense: blocked for 15 minutes.
	fp := fingerprint.Basic(browserClient.Attributes)
	if !f.blocks.IsBlocked(ctx, fp) {
		t.Error("bot fingerprint not blocked")
	}
	active := f.blocks.ListActive(ctx)
	if len(active) != 1 {
		t.Fatalf("active blocks = %d, want 1", len(active))
	}
	gotDur := time.Duration(active[0].ExpiresAt-active[0].BlockedAt) * time.Millisecond
	if gotDur != Block15Min {
		t.Errorf("first-offense duration = %s, want %s", gotDur, Block15Min)
	}

	// Audited and alerted.
	entries := f.auditLog.ListAll(ctx)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0]["reason"] != "Honeypot field filled" {
		t.Errorf("audit reason = %v", entries[0]["reason"])
	}
	if len(f.alerts.suspicious) != 1 || len(f.alerts.blocked) != 1 {
		t.Errorf("alerts = %d suspicious, %d blocked; want 1 and 1",
			len(f.alerts.suspicious), len(f.alerts.blocked))
	}
}

func TestCheckSubmission_EscalatingDurations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := cleanRequest("rl3")
	req.Submission.Honeypot = "x"

	wants := []time.Duration{Block15Min, Block1Hour, Block24Hour, Block24Hour}
	for i, want := range wants {
		f.guard.CheckSubmission(ctx, req)

		active := f.blocks.ListActive(ctx)
		last := active[len(active)-1]
		gotDur := time.Duration(last.ExpiresAt-last.BlockedAt) * time.Millisecond
		if gotDur != want {
			t.Errorf("offense %d: duration = %s, want %s", i+1, gotDur, want)
		}
	}

	fp := fingerprint.Basic(browserClient.Attributes)
	if got := f.guard.OffenseCount(ctx, fp); got != len(wants) {
		t.Errorf("OffenseCount() = %d, want %d", got, len(wants))
	}
}

func TestCheckSubmission_RateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := cleanRequest("rl4")

	if got := f.guard.CheckSubmission(ctx, req); !got.Allowed {
		t.Fatalf("first submission rejected: %+v", got)
	}
	if err := f.guard.RecordSubmission(ctx, req.Rule); err != nil {
		t.Fatalf("RecordSubmission() error: %v", err)
	}

	got := f.guard.CheckSubmission(ctx, req)
	if got.Allowed || got.Verdict != VerdictRateLimited {
		t.Fatalf("second submission inside cooldown = %+v, want rate_limited", got)
	}
	if got.SecondsRemaining < 1 {
		t.Errorf("SecondsRemaining = %d, want >= 1", got.SecondsRemaining)
	}

	// Rate limiting audits but never blocks the fingerprint.
	fp := fingerprint.Basic(browserClient.Attributes)
	if f.blocks.IsBlocked(ctx, fp) {
		t.Error("rate-limited fingerprint was blocked")
	}
	if len(f.auditLog.ListAll(ctx)) != 1 {
		t.Error("rate limit rejection not audited")
	}
}

func TestCheckSubmission_BlockedFingerprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	fp := fingerprint.Basic(browserClient.Attributes)
	f.blocks.Block(ctx, fp, time.Hour, "manual")

	got := f.guard.CheckSubmission(ctx, cleanRequest("rl5"))
	if got.Allowed || got.Verdict != VerdictBlocked {
		t.Fatalf("blocked client passed: %+v", got)
	}
}

func TestCheckSubmission_BotUserAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := cleanRequest("rl6")
	c := *req.Client
	c.Attributes.UserAgent = "curl/8.4.0"
	req.Client = &c

	got := f.guard.CheckSubmission(ctx, req)
	if got.Allowed || got.Verdict != VerdictBot {
		t.Fatalf("curl client passed: %+v", got)
	}
	if got.Reason != "Automated user agent detected" {
		t.Errorf("reason = %q", got.Reason)
	}
	if !f.blocks.IsBlocked(ctx, fingerprint.Basic(c.Attributes)) {
		t.Error("automated client not blocked")
	}
}

func TestCheckSubmission_NoClientSkipsIdentityStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := cleanRequest("rl7")
	req.Client = nil
	if got := f.guard.CheckSubmission(ctx, req); !got.Allowed {
		t.Fatalf("client-less clean submission rejected: %+v", got)
	}

	// A bot verdict without a client still audits, but cannot block.
	req.Submission.Honeypot = "x"
	got := f.guard.CheckSubmission(ctx, req)
	if got.Verdict != VerdictBot {
		t.Fatalf("verdict = %v, want bot", got.Verdict)
	}
	if len(f.blocks.ListActive(ctx)) != 0 {
		t.Error("block applied without a fingerprint")
	}
	if len(f.auditLog.ListAll(ctx)) != 1 {
		t.Error("client-less bot verdict not audited")
	}
}

func TestCheckEnvironment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	healthy := stubProber{
		canvas: fingerprint.Available("data:image/png;base64,ok"),
		webgl:  fingerprint.Available("ANGLE (Intel Iris)"),
	}
	report := f.guard.CheckEnvironment(ctx, browserClient, healthy)
	if report.Suspicious() {
		t.Errorf("healthy environment flagged: %+v", report)
	}
	if report.Blocked {
		t.Error("unblocked fingerprint reported blocked")
	}
	if report.Fingerprint != fingerprint.Basic(browserClient.Attributes) {
		t.Error("report fingerprint mismatch")
	}
	if len(f.auditLog.ListAll(ctx)) != 0 {
		t.Error("healthy environment produced an audit entry")
	}

	headless := stubProber{canvas: fingerprint.Errored(), webgl: fingerprint.Unavailable()}
	report = f.guard.CheckEnvironment(ctx, browserClient, headless)
	if !report.HeadlessCanvas || !report.MissingWebGL || !report.Suspicious() {
		t.Errorf("headless environment not flagged: %+v", report)
	}
	entries := f.auditLog.ListAll(ctx)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0]["reason"] != "Advanced bot detection triggered" {
		t.Errorf("audit reason = %v", entries[0]["reason"])
	}
}

func TestOffenseWindowResets(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := newOffenseCounter(mem)

	base := time.Now()
	if got := c.increment(ctx, "fp", base); got != 1 {
		t.Fatalf("first increment = %d, want 1", got)
	}
	if got := c.increment(ctx, "fp", base.Add(time.Hour)); got != 2 {
		t.Fatalf("second increment = %d, want 2", got)
	}

	// Past the window the counter starts over.
	if got := c.increment(ctx, "fp", base.Add(25*time.Hour)); got != 1 {
		t.Fatalf("post-window increment = %d, want 1", got)
	}
	if got := c.count(ctx, "fp", base.Add(25*time.Hour)); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestOffenseCounterCorruptValue(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	c := newOffenseCounter(mem)

	mem.Set(ctx, offensePrefix+"fp", "garbage")
	if got := c.increment(ctx, "fp", time.Now()); got != 1 {
		t.Errorf("increment over corrupt record = %d, want 1", got)
	}
	if got := c.count(ctx, "other", time.Now()); got != 0 {
		t.Errorf("count of unknown fp = %d, want 0", got)
	}
}

// stubProber returns fixed probe results.
type stubProber struct {
	canvas fingerprint.Probe
	webgl  fingerprint.Probe
}

func (s stubProber) Canvas() fingerprint.Probe { return s.canvas }
func (s stubProber) WebGL() fingerprint.Probe  { return s.webgl }
