package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avatarctic/scripture-cache/internal/application/services"
	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
)

func TestResolveClientKey_Precedence(t *testing.T) {
	all := ratelimit.ClientIdentity{APIKey: "secret-key", UserID: "42", RemoteAddress: "10.0.0.1"}
	key := services.ResolveClientKey(all)
	require.True(t, strings.HasPrefix(key, "key:"))
	require.NotContains(t, key, "secret-key")
	require.Equal(t, key, services.ResolveClientKey(ratelimit.ClientIdentity{APIKey: "secret-key"}))

	require.Equal(t, "user:42", services.ResolveClientKey(ratelimit.ClientIdentity{UserID: "42", RemoteAddress: "10.0.0.1"}))
	require.Equal(t, "ip:10.0.0.1", services.ResolveClientKey(ratelimit.ClientIdentity{RemoteAddress: "10.0.0.1"}))
	require.Equal(t, services.AnonymousClient, services.ResolveClientKey(ratelimit.ClientIdentity{}))
}

func TestResolveClientKey_Address(t *testing.T) {
	require.Equal(t, "ip:203.0.113.7", services.ResolveClientKey(ratelimit.ClientIdentity{RemoteAddress: " 203.0.113.7, 10.0.0.1"}))
	require.Equal(t, "ip:203.0.113.7", services.ResolveClientKey(ratelimit.ClientIdentity{RemoteAddress: "203.0.113.7:5555"}))
	require.Equal(t, "ip:::1", services.ResolveClientKey(ratelimit.ClientIdentity{RemoteAddress: "[::1]:8080"}))
}
