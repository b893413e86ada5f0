package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bdevloed/graph-login-service/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_DISCOVERY_URL", "https://idp.example.com/.well-known/openid-configuration")
	t.Setenv("AUTH_CLIENT_ID", "login-service")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr())
	require.Equal(t, "http://mu.semte.ch/graphs/sessions", cfg.SessionGraph)
	require.Equal(t, "sub", cfg.UserIDClaim)
	require.Equal(t, 5*time.Second, cfg.AuthRequestTimeout)
	require.Equal(t, 30*time.Second, cfg.SparqlRequestTimeout)
	require.Equal(t, cfg.SparqlEndpoint, cfg.SparqlUpdateEndpoint, "update endpoint falls back to the query endpoint")
	require.False(t, cfg.DebugLogClaims)
}

func TestLoadRequiresDiscoveryURL(t *testing.T) {
	t.Setenv("AUTH_DISCOVERY_URL", "")
	t.Setenv("AUTH_CLIENT_ID", "login-service")

	_, err := config.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AUTH_DISCOVERY_URL")
}

func TestLoadRequiresClientID(t *testing.T) {
	t.Setenv("AUTH_DISCOVERY_URL", "https://idp.example.com")
	t.Setenv("AUTH_CLIENT_ID", "")

	_, err := config.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AUTH_CLIENT_ID")
}

func TestLoadRejectsUnknownIntrospectionAuth(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTH_INTROSPECTION_AUTH", "private_key_jwt")

	_, err := config.Load()
	require.Error(t, err)
}

func TestGraphTemplateForGroup(t *testing.T) {
	template := config.GraphTemplate("http://mu.semte.ch/graphs/organizations/{{groupId}}")
	require.Equal(t, "http://mu.semte.ch/graphs/organizations/abc", template.ForGroup("abc"))

	noPlaceholder := config.GraphTemplate("http://mu.semte.ch/graphs/shared")
	require.Equal(t, "http://mu.semte.ch/graphs/shared", noPlaceholder.ForGroup("abc"))
}

func TestListenAddrAcceptsColonPrefix(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", ":9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr())
}
