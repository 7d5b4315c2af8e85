package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const defaultNamespace = "pd"

// Keyspace builds the Redis key names owned by the cart service. Values that
// come from clients (guest tokens, idempotency keys) are hashed so that raw
// credentials never show up in key listings or slowlogs.
type Keyspace struct {
	namespace string
}

// NewKeyspace returns a keyspace rooted at namespace, falling back to "pd".
func NewKeyspace(namespace string) Keyspace {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{namespace: namespace}
}

// Idempotency keys are scoped by owner and route; the client key is hashed.
func (k Keyspace) Idempotency(scope, id string) string {
	return k.join("idem", scope, digest(id))
}

// RateLimit keys hold fixed-window counters.
func (k Keyspace) RateLimit(scope string) string {
	return k.join("rl", scope)
}

// Lock keys back the cron leader lock.
func (k Keyspace) Lock(name string) string {
	return k.join("lock", name)
}

// GuestSession keys mark a live guest session token.
func (k Keyspace) GuestSession(token string) string {
	return k.join("guest", digest(token))
}

func (k Keyspace) join(kind string, parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func digest(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:16])
}
