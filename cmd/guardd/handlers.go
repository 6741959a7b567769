package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BlediN/hobby-hub/internal/audit"
	"github.com/BlediN/hobby-hub/internal/blocklist"
	"github.com/BlediN/hobby-hub/internal/classifier"
	"github.com/BlediN/hobby-hub/internal/config"
	"github.com/BlediN/hobby-hub/internal/fingerprint"
	"github.com/BlediN/hobby-hub/internal/guard"
	"github.com/BlediN/hobby-hub/internal/ratelimit"
	"github.com/BlediN/hobby-hub/internal/session"
	"github.com/BlediN/hobby-hub/internal/storage"
	"github.com/BlediN/hobby-hub/internal/stream"
)

// sessionCookie names the cookie carrying the browsing-session token. The
// token only namespaces the tab-scoped store; it is not an authentication
// credential.
const sessionCookie = "hh_session"

// api holds the wired guard components behind the HTTP surface consumed by
// the UI layer.
type api struct {
	cfg      config.Config
	guard    *guard.Guard
	blocks   *blocklist.Registry
	auditLog *audit.Log
	hub      *stream.Hub

	durable storage.KV
	tabs    storage.KV // TTL-bearing store backing per-session namespaces

	rulePost    ratelimit.Rule
	ruleComment ratelimit.Rule
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/check", a.handleCheck)
	mux.HandleFunc("POST /api/submitted", a.handleSubmitted)
	mux.HandleFunc("POST /api/environment", a.handleEnvironment)

	mux.HandleFunc("POST /api/session/login", a.handleLogin)
	mux.HandleFunc("POST /api/session/logout", a.handleLogout)
	mux.HandleFunc("GET /api/session", a.handleSession)
	mux.HandleFunc("GET /api/session/permissions", a.handlePermissions)
	mux.HandleFunc("GET /api/session/csrf", a.handleCSRF)

	mux.HandleFunc("POST /api/admin/password/change", a.handleChangePassword)
	mux.HandleFunc("GET /api/admin/logs", a.handleLogs)
	mux.HandleFunc("POST /api/admin/logs/clear", a.handleClearLogs)
	mux.HandleFunc("GET /api/admin/export", a.handleExport)
	mux.HandleFunc("GET /api/admin/blocked", a.handleBlocked)
	mux.HandleFunc("POST /api/admin/block", a.handleBlock)
	mux.HandleFunc("POST /api/admin/blocked/clear", a.handleClearBlocked)

	mux.Handle("GET /ws/audit", a.requireViewer(a.hub))
}

// sessions returns the session manager bound to the request's tab-scoped
// namespace, minting a session token cookie when absent.
func (a *api) sessions(w http.ResponseWriter, r *http.Request) *session.Manager {
	token := ""
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		token = c.Value
	}
	if token == "" {
		token = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	tab := storage.Namespace(a.tabs, "tab:"+token+":")
	return session.NewManager(tab, a.durable, session.Options{
		AdminName:              a.cfg.Roles.AdminName,
		TeacherName:            a.cfg.Roles.TeacherName,
		RequireTeacherPassword: a.cfg.Roles.RequireTeacherPassword,
	})
}

// ---------------------------------------------------------------------------
// Submission guarding
// ---------------------------------------------------------------------------

// clientPayload is the client environment as reported by the browser.
type clientPayload struct {
	Attributes fingerprint.Attributes `json:"attributes"`
	URL        string                 `json:"url"`
}

func (c *clientPayload) audit(r *http.Request) *audit.Client {
	if c == nil {
		return nil
	}
	out := audit.Client{Attributes: c.Attributes, URL: c.URL}
	if out.Attributes.UserAgent == "" {
		out.Attributes.UserAgent = r.UserAgent()
	}
	return &out
}

type checkRequest struct {
	Action     string                `json:"action"` // "post" or "comment"
	Submission classifier.Submission `json:"submission"`
	Client     *clientPayload        `json:"client"`
}

func (a *api) ruleFor(action string) ratelimit.Rule {
	if action == "comment" {
		return a.ruleComment
	}
	return a.rulePost
}

func (a *api) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	decision := a.guard.CheckSubmission(r.Context(), guard.Request{
		Action:     req.Action,
		Submission: req.Submission,
		Rule:       a.ruleFor(req.Action),
		Client:     req.Client.audit(r),
	})
	writeJSON(w, http.StatusOK, decision)
}

func (a *api) handleSubmitted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.guard.RecordSubmission(r.Context(), a.ruleFor(req.Action)); err != nil {
		httpError(w, http.StatusInternalServerError, "could not record submission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

// probePayload carries one capability probe outcome from the browser.
// State is "available", "unavailable", or "errored".
type probePayload struct {
	State string `json:"state"`
	Value string `json:"value,omitempty"`
}

func (p probePayload) probe() fingerprint.Probe {
	switch p.State {
	case "available":
		return fingerprint.Available(p.Value)
	case "errored":
		return fingerprint.Errored()
	default:
		return fingerprint.Unavailable()
	}
}

// jsonProber adapts reported probe outcomes to the fingerprint.Prober
// interface.
type jsonProber struct {
	canvas probePayload
	webgl  probePayload
}

func (p jsonProber) Canvas() fingerprint.Probe { return p.canvas.probe() }
func (p jsonProber) WebGL() fingerprint.Probe  { return p.webgl.probe() }

func (a *api) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Client clientPayload `json:"client"`
		Canvas probePayload  `json:"canvas"`
		WebGL  probePayload  `json:"webgl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	client := req.Client.audit(r)
	report := a.guard.CheckEnvironment(r.Context(), *client, jsonProber{
		canvas: req.Canvas,
		webgl:  req.WebGL,
	})
	writeJSON(w, http.StatusOK, report)
}

// ---------------------------------------------------------------------------
// Session / RBAC
// ---------------------------------------------------------------------------

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()
	mgr := a.sessions(w, r)

	resp := map[string]any{}
	if mgr.RequiresPassword(req.Username) {
		// First privileged login generates the secret and discloses it
		// once, for out-of-band delivery.
		ensured, err := mgr.EnsureAdminPassword(ctx)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "password store unavailable")
			return
		}
		if ensured.Created {
			resp["generatedPassword"] = ensured.Password
		} else if !mgr.VerifyAdminPassword(ctx, req.Password) {
			httpError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
	}

	user, err := mgr.Login(ctx, req.Username)
	if errors.Is(err, session.ErrEmptyUsername) {
		httpError(w, http.StatusBadRequest, "username is required")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}

	resp["username"] = user.Name
	resp["role"] = user.Role.String()
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions(w, r).Logout(r.Context()); err != nil {
		httpError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := a.sessions(w, r)

	user, ok := mgr.Current(ctx)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn":      true,
		"username":      user.Name,
		"role":          user.Role.String(),
		"isAdmin":       user.Role == session.RoleAdmin,
		"isTeacher":     user.Role == session.RoleTeacher,
		"isAdminViewer": mgr.IsAdminViewer(ctx),
	})
}

func (a *api) handlePermissions(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		httpError(w, http.StatusBadRequest, "author is required")
		return
	}
	ctx := r.Context()
	mgr := a.sessions(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{
		"canEdit":   mgr.CanEdit(ctx, author),
		"canDelete": mgr.CanDelete(ctx, author),
	})
}

func (a *api) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := a.sessions(w, r).GenerateCSRFToken(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *api) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current"`
		New     string `json:"new"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()
	mgr := a.sessions(w, r)
	if !mgr.IsAdmin(ctx) {
		httpError(w, http.StatusForbidden, "admin role required")
		return
	}

	err := mgr.ChangeAdminPassword(ctx, req.Current, req.New)
	switch {
	case errors.Is(err, session.ErrInvalidCredential):
		httpError(w, http.StatusUnauthorized, "current password is incorrect")
	case errors.Is(err, session.ErrPolicyViolation):
		httpError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		httpError(w, http.StatusInternalServerError, "password store unavailable")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"changed": true})
	}
}

// ---------------------------------------------------------------------------
// Admin review
// ---------------------------------------------------------------------------

// requireViewer admits admin and teacher; requireAdmin admits admin only.
// Teacher's dashboard visibility without write capability is the role
// model's deliberate asymmetry.
func (a *api) requireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.sessions(w, r).IsAdminViewer(r.Context()) {
			httpError(w, http.StatusForbidden, "admin or teacher role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !a.sessions(w, r).IsAdmin(r.Context()) {
		httpError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func (a *api) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !a.sessions(w, r).IsAdminViewer(r.Context()) {
		httpError(w, http.StatusForbidden, "admin or teacher role required")
		return
	}
	entries := a.auditLog.ListAll(r.Context())
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	if err := a.auditLog.Clear(r.Context()); err != nil {
		httpError(w, http.StatusInternalServerError, "could not clear logs")
		return
	}
	log.Printf("[api] audit log cleared by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	if !a.sessions(w, r).IsAdminViewer(r.Context()) {
		httpError(w, http.StatusForbidden, "admin or teacher role required")
		return
	}
	doc, err := a.auditLog.ExportJSON(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=bot-detection-logs.json")
	w.Write([]byte(doc))
}

func (a *api) handleBlocked(w http.ResponseWriter, r *http.Request) {
	if !a.sessions(w, r).IsAdminViewer(r.Context()) {
		httpError(w, http.StatusForbidden, "admin or teacher role required")
		return
	}
	active := a.blocks.ListActive(r.Context())
	if active == nil {
		active = []blocklist.Entry{}
	}
	writeJSON(w, http.StatusOK, active)
}

func (a *api) handleBlock(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	var req struct {
		Fingerprint     string `json:"fingerprint"`
		DurationSeconds int    `json:"durationSeconds"`
		Reason          string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Fingerprint == "" {
		httpError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	duration := a.cfg.Guard.BlockDuration
	if req.DurationSeconds > 0 {
		duration = time.Duration(req.DurationSeconds) * time.Second
	}
	if err := a.blocks.Block(r.Context(), req.Fingerprint, duration, req.Reason); err != nil {
		httpError(w, http.StatusInternalServerError, "could not apply block")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"blocked": true})
}

func (a *api) handleClearBlocked(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	if err := a.blocks.ClearAll(r.Context()); err != nil {
		httpError(w, http.StatusInternalServerError, "could not clear blocks")
		return
	}
	log.Printf("[api] block registry cleared by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
