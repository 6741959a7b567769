// Package storage abstracts the two key-value stores the guard core writes
// through: a durable cross-session store (block list, audit log, rate-limit
// timestamps, admin secret) and an ephemeral tab-scoped store (current user,
// CSRF token). Business logic only ever sees the KV interface, so tests run
// against the in-memory implementation and production runs against Redis.
package storage

import "context"

// KV is a minimal string key-value store. Get reports presence explicitly so
// callers can distinguish "absent" from "empty value".
type KV interface {
	// Get returns the value for key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// namespaced prefixes every key with a fixed string. It is how each browser
// session gets its own tab-scoped keyspace on top of a shared backing store.
type namespaced struct {
	kv     KV
	prefix string
}

// Namespace returns a view of kv in which every key is prefixed with prefix.
func Namespace(kv KV, prefix string) KV {
	return &namespaced{kv: kv, prefix: prefix}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.kv.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value string) error {
	return n.kv.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.kv.Remove(ctx, n.prefix+key)
}
