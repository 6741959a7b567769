package session

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
)

// CSRFTokenKey is the tab-scoped store key holding the form token.
const CSRFTokenKey = "csrfToken"

// GenerateCSRFToken mints a random form token and stores it for this
// session, replacing any previous token.
func (m *Manager) GenerateCSRFToken(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := cryptorand.Read(buf); err != nil {
		return "", fmt.Errorf("session: csrf token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := m.tab.Set(ctx, CSRFTokenKey, token); err != nil {
		return "", fmt.Errorf("session: csrf token: %w", err)
	}
	return token, nil
}

// ValidateCSRFToken checks token against the stored one by exact match.
// An absent stored token validates nothing.
func (m *Manager) ValidateCSRFToken(ctx context.Context, token string) bool {
	stored, ok, err := m.tab.Get(ctx, CSRFTokenKey)
	if err != nil {
		return false
	}
	return ok && token != "" && token == stored
}
