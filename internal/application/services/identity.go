package services

import (
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
)

// AnonymousClient is the shared bucket for callers without any identity.
const AnonymousClient = "anonymous"

// ResolveClientKey picks the strongest identity signal: API key, then user ID,
// then network address. API keys are hashed so that raw secrets never reach
// the window store.
func ResolveClientKey(id ratelimit.ClientIdentity) string {
	if k := strings.TrimSpace(id.APIKey); k != "" {
		sum := blake2b.Sum256([]byte(k))
		return "key:" + hex.EncodeToString(sum[:16])
	}
	if u := strings.TrimSpace(id.UserID); u != "" {
		return "user:" + u
	}
	if addr := clientAddress(id.RemoteAddress); addr != "" {
		return "ip:" + addr
	}
	return AnonymousClient
}

// clientAddress takes the first hop of a forwarded list and strips the port.
func clientAddress(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(first); err == nil {
		return host
	}
	return first
}
