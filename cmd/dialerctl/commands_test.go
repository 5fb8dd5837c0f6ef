package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-dialer/internal/auth"
	"power-dialer/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNumbers_PrintsNormalizedList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("Number\n15551112222\n+15553334444\n"), 0o600))

	out, err := run(t, "numbers", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551112222", "+15553334444"}, strings.Fields(out))
}

func TestNumbers_NoValidNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.csv")
	require.NoError(t, os.WriteFile(path, []byte("name\nann\n"), 0o600))

	_, err := run(t, "numbers", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list.csv")
}

func TestToken_RejectsUnknownRole(t *testing.T) {
	_, err := run(t, "token", "--email", "ops@example.com", "--role", "owner")
	require.Error(t, err)
}

func TestToken_MintsVerifiableAccessToken(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PUBLIC_BASE_URL", "https://dialer.example.com")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "pw")
	t.Setenv("TELEPHONY_PROVIDER", "sandbox")

	out, err := run(t, "token", "--email", "ops@example.com", "--role", "admin", "--ttl", "5m")
	require.NoError(t, err)

	cfg, err := config.Load()
	require.NoError(t, err)
	m, err := auth.NewManager(cfg.Auth)
	require.NoError(t, err)
	claims, err := m.Verify(strings.TrimSpace(out), auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}
