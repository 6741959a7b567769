package main

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BlediN/hobby-hub/internal/alerts"
	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/classifier"
	"github.com/BlediN/hobby-hub/internal/config"
	"github.com/BlediN/hobby-hub/internal/guard"
	"github.com/BlediN/hobby-hub/internal/ratelimit"
	"github.com/BlediN/hobby-hub/internal/storage"
	"github.com/BlediN/hobby-hub/internal/stream"
)

// newTestServer wires the full API over in-memory storage.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	mem := storage.NewMemory()
	tabs := storage.NewMemory()

	hub := stream.NewHub()
	t.Cleanup(hub.Close)

	blocks := blocklist.NewRegistry(mem)
	auditLog := audit.NewLog(mem, blocks)
	limiter := ratelimit.NewLimiter(mem)
	g := guard.New(classifier.New(), limiter, blocks, auditLog, mem, alerts.Noop{})

	srv := &api{
		cfg:         cfg,
		guard:       g,
		blocks:      blocks,
		auditLog:    auditLog,
		hub:         hub,
		durable:     mem,
		tabs:        tabs,
		rulePost:    ratelimit.RulePost,
		ruleComment: ratelimit.RuleComment,
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// newClient returns an HTTP client that carries the session cookie.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func postJSON(t *testing.T, client *http.Client, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func getJSON(t *testing.T, client *http.Client, url string) (int, map[string]any) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestCheckRejectsHoneypot(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	status, out := postJSON(t, client, ts.URL+"/api/check", `{
		"action": "post",
		"submission": {"title": "My hobby post", "content": "A perfectly ordinary post body.", "honeypot": "gotcha"}
	}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out["allowed"] != false || out["verdict"] != "bot" {
		t.Errorf("decision = %v", out)
	}
	if out["reason"] != "Honeypot field filled" {
		t.Errorf("reason = %v", out["reason"])
	}
}

func TestCheckAllowsValidSubmission(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	status, out := postJSON(t, client, ts.URL+"/api/check", `{
		"action": "post",
		"submission": {"title": "Getting Started with Photography", "content": "A long enough valid hobby post body here."}
	}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out["allowed"] != true {
		t.Errorf("decision = %v", out)
	}
}

func TestSubmittedThenCheckRateLimits(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	if status, _ := postJSON(t, client, ts.URL+"/api/submitted", `{"action": "post"}`); status != http.StatusOK {
		t.Fatalf("submitted status = %d", status)
	}

	_, out := postJSON(t, client, ts.URL+"/api/check", `{
		"action": "post",
		"submission": {"title": "Another fine title", "content": "Another perfectly fine post body."}
	}`)
	if out["allowed"] != false || out["verdict"] != "rate_limited" {
		t.Errorf("decision = %v", out)
	}
	if out["secondsRemaining"].(float64) < 1 {
		t.Errorf("secondsRemaining = %v", out["secondsRemaining"])
	}
}

func TestLoginSessionAndPermissions(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	status, out := postJSON(t, client, ts.URL+"/api/session/login", `{"username": "  alice  "}`)
	if status != http.StatusOK {
		t.Fatalf("login status = %d body = %v", status, out)
	}
	if out["username"] != "alice" || out["role"] != "plain" {
		t.Errorf("login = %v", out)
	}

	_, sess := getJSON(t, client, ts.URL+"/api/session")
	if sess["loggedIn"] != true || sess["isAdminViewer"] != false {
		t.Errorf("session = %v", sess)
	}

	_, own := getJSON(t, client, ts.URL+"/api/session/permissions?author=ALICE")
	if own["canEdit"] != true || own["canDelete"] != true {
		t.Errorf("own-post permissions = %v", own)
	}
	_, other := getJSON(t, client, ts.URL+"/api/session/permissions?author=bob")
	if other["canEdit"] != false || other["canDelete"] != false {
		t.Errorf("other-post permissions = %v", other)
	}
}

func TestAdminLoginGeneratesPasswordOnce(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	status, first := postJSON(t, client, ts.URL+"/api/session/login", `{"username": "admin"}`)
	if status != http.StatusOK {
		t.Fatalf("first login status = %d body = %v", status, first)
	}
	generated, ok := first["generatedPassword"].(string)
	if !ok || generated == "" {
		t.Fatalf("no generated password in %v", first)
	}
	if first["role"] != "admin" {
		t.Errorf("role = %v", first["role"])
	}

	// Second login must require the generated password.
	fresh := newClient(t)
	status, _ = postJSON(t, fresh, ts.URL+"/api/session/login", `{"username": "admin", "password": "wrong"}`)
	if status != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", status)
	}
	status, again := postJSON(t, fresh, ts.URL+"/api/session/login",
		`{"username": "admin", "password": "`+generated+`"}`)
	if status != http.StatusOK {
		t.Fatalf("correct password status = %d body = %v", status, again)
	}
	if _, leaked := again["generatedPassword"]; leaked {
		t.Error("password disclosed again on second login")
	}
}

func TestAdminRoutesAreGated(t *testing.T) {
	ts := newTestServer(t)

	// Anonymous callers are rejected.
	anon := newClient(t)
	if status, _ := getJSON(t, anon, ts.URL+"/api/admin/logs"); status != http.StatusForbidden {
		t.Errorf("anonymous logs status = %d", status)
	}

	// Teacher can view but not clear.
	teacher := newClient(t)
	if status, _ := postJSON(t, teacher, ts.URL+"/api/session/login", `{"username": "teacher"}`); status != http.StatusOK {
		t.Fatalf("teacher login status = %d", status)
	}
	resp, err := teacher.Get(ts.URL + "/api/admin/logs")
	if err != nil {
		t.Fatalf("teacher logs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("teacher logs status = %d", resp.StatusCode)
	}
	if status, _ := postJSON(t, teacher, ts.URL+"/api/admin/logs/clear", `{}`); status != http.StatusForbidden {
		t.Errorf("teacher clear status = %d", status)
	}

	// Admin can clear.
	admin := newClient(t)
	if status, _ := postJSON(t, admin, ts.URL+"/api/session/login", `{"username": "admin"}`); status != http.StatusOK {
		t.Fatalf("admin login status = %d", status)
	}
	if status, _ := postJSON(t, admin, ts.URL+"/api/admin/logs/clear", `{}`); status != http.StatusOK {
		t.Errorf("admin clear status = %d", status)
	}
}

func TestManualBlockAndList(t *testing.T) {
	ts := newTestServer(t)
	admin := newClient(t)
	if status, _ := postJSON(t, admin, ts.URL+"/api/session/login", `{"username": "admin"}`); status != http.StatusOK {
		t.Fatal("admin login failed")
	}

	if status, _ := postJSON(t, admin, ts.URL+"/api/admin/block",
		`{"fingerprint": "1a2b3c", "reason": "manual review"}`); status != http.StatusOK {
		t.Fatalf("block status = %d", status)
	}

	resp, err := admin.Get(ts.URL + "/api/admin/blocked")
	if err != nil {
		t.Fatalf("blocked list: %v", err)
	}
	defer resp.Body.Close()

	var entries []blocklist.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode blocked list: %v", err)
	}
	if len(entries) != 1 || entries[0].Fingerprint != "1a2b3c" || entries[0].Reason != "manual review" {
		t.Errorf("blocked = %+v", entries)
	}
}
