package session

import (
	"context"
	cryptorand "crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	mathrand "math/rand"
	"strings"
)

// AdminPasswordKey is the durable-store key holding the admin secret.
const AdminPasswordKey = "adminPassword"

// passwordAlphabet excludes lookalike characters (I, l, 0, 1, O) so a
// generated secret can be read out loud without ambiguity.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%"

// GeneratedPasswordLen is the length of an auto-generated admin secret.
const GeneratedPasswordLen = 12

// MinPasswordLen is the shortest acceptable replacement secret.
const MinPasswordLen = 8

var (
	// ErrInvalidCredential is returned when the presented current password
	// does not match the stored secret. No lockout or backoff applies;
	// the caller may simply retry.
	ErrInvalidCredential = errors.New("session: current password is incorrect")

	// ErrPolicyViolation is returned when a replacement password fails the
	// minimum-length policy.
	ErrPolicyViolation = fmt.Errorf("session: new password must be at least %d characters", MinPasswordLen)
)

// EnsureResult reports the outcome of EnsureAdminPassword. Password is set
// only when Created is true — the plaintext is disclosed exactly once, at
// generation time, for out-of-band delivery to the admin.
type EnsureResult struct {
	Created  bool
	Password string
}

// EnsureAdminPassword lazily creates the admin secret on first use. If a
// secret already exists it is left untouched and the plaintext is not
// returned.
func (m *Manager) EnsureAdminPassword(ctx context.Context) (EnsureResult, error) {
	_, ok, err := m.durable.Get(ctx, AdminPasswordKey)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("session: ensure password: %w", err)
	}
	if ok {
		return EnsureResult{Created: false}, nil
	}

	password := m.generateSecret(GeneratedPasswordLen)
	if err := m.durable.Set(ctx, AdminPasswordKey, password); err != nil {
		return EnsureResult{}, fmt.Errorf("session: ensure password: %w", err)
	}
	log.Printf("[session] admin password generated")
	return EnsureResult{Created: true, Password: password}, nil
}

// HasAdminPassword reports whether a secret has been created yet.
func (m *Manager) HasAdminPassword(ctx context.Context) bool {
	_, ok, err := m.durable.Get(ctx, AdminPasswordKey)
	if err != nil {
		log.Printf("[session] store get: %v", err)
		return false
	}
	return ok
}

// VerifyAdminPassword checks candidate against the stored secret by exact
// match. A missing secret verifies nothing.
func (m *Manager) VerifyAdminPassword(ctx context.Context, candidate string) bool {
	stored, ok, err := m.durable.Get(ctx, AdminPasswordKey)
	if err != nil {
		log.Printf("[session] store get: %v (refusing verification)", err)
		return false
	}
	return ok && candidate == stored
}

// ChangeAdminPassword replaces the secret after verifying the current one.
// Fails with ErrInvalidCredential on a wrong current password and
// ErrPolicyViolation when the trimmed replacement is shorter than
// MinPasswordLen.
func (m *Manager) ChangeAdminPassword(ctx context.Context, current, replacement string) error {
	if !m.VerifyAdminPassword(ctx, current) {
		return ErrInvalidCredential
	}

	replacement = strings.TrimSpace(replacement)
	if len(replacement) < MinPasswordLen {
		return ErrPolicyViolation
	}

	if err := m.durable.Set(ctx, AdminPasswordKey, replacement); err != nil {
		return fmt.Errorf("session: change password: %w", err)
	}
	log.Printf("[session] admin password changed")
	return nil
}

// generatePassword draws length characters from the password alphabet using
// a cryptographically strong source, falling back to math/rand if the
// system source is unavailable.
func generatePassword(length int) string {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(passwordAlphabet)))

	for i := 0; i < length; i++ {
		n, err := cryptorand.Int(cryptorand.Reader, max)
		if err != nil {
			log.Printf("[session] crypto/rand unavailable: %v (falling back)", err)
			return weakPassword(length)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String()
}

func weakPassword(length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(passwordAlphabet[mathrand.Intn(len(passwordAlphabet))])
	}
	return b.String()
}
