// Package session tracks the active username for one browsing session and
// answers the role-based permission checks gating edit, delete, and admin
// routes. The active user lives in a tab-scoped ephemeral store under a
// single key; the admin secret lives in the durable store. Roles are never
// persisted — they are derived from the username against the reserved names
// at read time, in exactly one place.
package session

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/BlediN/hobby-hub/internal/storage"
)

// CurrentUserKey is the tab-scoped store key holding the active username.
const CurrentUserKey = "currentUser"

// MaxUsernameLen caps stored usernames.
const MaxUsernameLen = 50

// ErrEmptyUsername is returned by Login for blank usernames.
var ErrEmptyUsername = errors.New("session: username is empty")

// Role is the access level derived from the active username.
type Role int

const (
	// RolePlain is any user who is not a reserved name. Plain users may
	// edit and delete their own posts only.
	RolePlain Role = iota

	// RoleAdmin has full control over every post and the admin dashboard.
	RoleAdmin

	// RoleTeacher shares the admin dashboard view but is read-only: it can
	// neither edit nor delete anything, including its own posts.
	RoleTeacher
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	default:
		return "plain"
	}
}

// User is the resolved session identity: the stored username plus its role.
type User struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Options configures the reserved role names and whether the teacher role is
// password-gated like admin. Zero values fall back to the defaults.
type Options struct {
	AdminName              string
	TeacherName            string
	RequireTeacherPassword bool
}

// Manager owns the active-user slot and the admin secret. It composes with
// the guard pipeline only at the call site; nothing here touches the block
// registry or the audit log.
type Manager struct {
	tab     storage.KV // ephemeral, one browsing session
	durable storage.KV // shared, holds the admin secret

	adminName      string
	teacherName    string
	teacherGated   bool
	generateSecret func(length int) string
}

// NewManager creates a Manager over the given tab-scoped and durable stores.
func NewManager(tab, durable storage.KV, opts Options) *Manager {
	if opts.AdminName == "" {
		opts.AdminName = "admin"
	}
	if opts.TeacherName == "" {
		opts.TeacherName = "teacher"
	}
	return &Manager{
		tab:            tab,
		durable:        durable,
		adminName:      normalize(opts.AdminName),
		teacherName:    normalize(opts.TeacherName),
		teacherGated:   opts.RequireTeacherPassword,
		generateSecret: generatePassword,
	}
}

// Login activates username for this session. The name is trimmed and capped
// at MaxUsernameLen characters; empty names are rejected. Password
// verification for privileged names is the caller's responsibility (see
// RequiresPassword and VerifyAdminPassword) — Login itself only binds the
// identity.
func (m *Manager) Login(ctx context.Context, username string) (User, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return User{}, ErrEmptyUsername
	}
	if len(name) > MaxUsernameLen {
		name = name[:MaxUsernameLen]
	}

	if err := m.tab.Set(ctx, CurrentUserKey, name); err != nil {
		return User{}, err
	}
	u := User{Name: name, Role: m.roleOf(name)}
	log.Printf("[session] login user=%s role=%s", u.Name, u.Role)
	return u, nil
}

// Logout clears the active user. Logging out while anonymous is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	return m.tab.Remove(ctx, CurrentUserKey)
}

// CurrentUser returns the active username, or ok=false when anonymous.
func (m *Manager) CurrentUser(ctx context.Context) (string, bool) {
	u, ok := m.Current(ctx)
	return u.Name, ok
}

// Current resolves the active user and role. Storage failures degrade to
// anonymous: a broken session store must never grant access.
func (m *Manager) Current(ctx context.Context) (User, bool) {
	name, ok, err := m.tab.Get(ctx, CurrentUserKey)
	if err != nil {
		log.Printf("[session] store get: %v (treating as anonymous)", err)
		return User{}, false
	}
	if !ok || name == "" {
		return User{}, false
	}
	return User{Name: name, Role: m.roleOf(name)}, true
}

// IsAdmin reports whether the active user holds the admin role.
func (m *Manager) IsAdmin(ctx context.Context) bool {
	u, ok := m.Current(ctx)
	return ok && u.Role == RoleAdmin
}

// IsTeacher reports whether the active user holds the teacher role.
func (m *Manager) IsTeacher(ctx context.Context) bool {
	u, ok := m.Current(ctx)
	return ok && u.Role == RoleTeacher
}

// IsAdminViewer reports whether the active user may see the admin
// dashboard. Teacher shares the view but not admin's write capabilities.
func (m *Manager) IsAdminViewer(ctx context.Context) bool {
	u, ok := m.Current(ctx)
	return ok && (u.Role == RoleAdmin || u.Role == RoleTeacher)
}

// CanEdit reports whether the active user may edit a post by postAuthor.
// Admin edits anything; teacher edits nothing; a plain user edits only
// their own posts, matched case-insensitively.
func (m *Manager) CanEdit(ctx context.Context, postAuthor string) bool {
	return m.canModify(ctx, postAuthor)
}

// CanDelete reports whether the active user may delete a post by
// postAuthor. Same asymmetry as CanEdit.
func (m *Manager) CanDelete(ctx context.Context, postAuthor string) bool {
	return m.canModify(ctx, postAuthor)
}

func (m *Manager) canModify(ctx context.Context, postAuthor string) bool {
	u, ok := m.Current(ctx)
	if !ok {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		// Read-only by design, even for the teacher's own posts.
		return false
	default:
		return strings.EqualFold(u.Name, postAuthor)
	}
}

// RequiresPassword reports whether logging in as username needs secret
// verification first. Admin always does; teacher only when the deployment
// gates it.
func (m *Manager) RequiresPassword(username string) bool {
	switch m.roleOf(username) {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return m.teacherGated
	default:
		return false
	}
}

// roleOf derives the role for a username.
func (m *Manager) roleOf(username string) Role {
	switch normalize(username) {
	case m.adminName:
		return RoleAdmin
	case m.teacherName:
		return RoleTeacher
	default:
		return RolePlain
	}
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
