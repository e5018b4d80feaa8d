package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-reactions/internal/auth"
	"github.com/2389/coven-reactions/internal/config"
	"github.com/2389/coven-reactions/internal/gateway"
	"github.com/2389/coven-reactions/internal/reactions"
)

func init() {
	color.NoColor = true
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// initConfig writes a fresh config into a temp dir and returns its path.
func initConfig(t *testing.T, name string, extra ...string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	args := append([]string{"--config", path, "init", "--db", filepath.Join(dir, "data", "reactions.db")}, extra...)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Created config")
	return path
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COVEN_REACTIONS_CONFIG", "/etc/coven/reactions.toml")
	assert.Equal(t, "/etc/coven/reactions.toml", getConfigPath())

	t.Setenv("COVEN_REACTIONS_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "coven", "reactions.yaml"), getConfigPath())
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := initConfig(t, "reactions.yaml", "--multi", "--types", "like,love")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Reactions.AllowMultiple)
	assert.Equal(t, []string{"like", "love"}, cfg.Reactions.Types)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), auth.MinSecretLength)
	assert.Equal(t, config.Default().Idempotency.TTL, cfg.Idempotency.TTL)
	assert.Equal(t, config.Default().Auth.TokenTTL, cfg.Auth.TokenTTL)
}

func TestInit_TOML(t *testing.T) {
	path := initConfig(t, "reactions.toml")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Reactions.AllowMultiple)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
}

func TestInit_RefusesToOverwrite(t *testing.T) {
	path := initConfig(t, "reactions.yaml")

	_, err := execute(t, "--config", path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	first, err := config.Load(path)
	require.NoError(t, err)

	_, err = execute(t, "--config", path, "init", "--force", "--db", first.Database.Path)
	require.NoError(t, err)

	second, err := config.Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, first.Auth.JWTSecret, second.Auth.JWTSecret)
}

func TestToken_VerifiesWithConfiguredSecret(t *testing.T) {
	path := initConfig(t, "reactions.yaml")

	out, err := execute(t, "--config", path, "token", "--user", "alice")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)

	userID, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestToken_RequiresUser(t *testing.T) {
	path := initConfig(t, "reactions.yaml")

	_, err := execute(t, "--config", path, "token")
	assert.Error(t, err)

	_, err = execute(t, "--config", path, "token", "--user", "  ")
	assert.Error(t, err)
}

func TestCounts(t *testing.T) {
	path := initConfig(t, "reactions.yaml", "--multi")

	out, err := execute(t, "--config", path, "counts", "Post", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Post/p1 has no reactions")

	// Seed the database the way the server would.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	st, err := gateway.OpenStore(cfg, logger)
	require.NoError(t, err)
	engine, err := reactions.New(st, cfg.Reactions.EngineConfig(), reactions.WithLogger(logger))
	require.NoError(t, err)

	ctx := context.Background()
	ref := reactions.Ref{Type: "Post", ID: "p1"}
	for _, r := range []struct{ user, kind string }{
		{"alice", "like"}, {"bob", "like"}, {"alice", "love"},
	} {
		_, err := engine.React(ctx, ref, r.user, r.kind, nil)
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	out, err = execute(t, "--config", path, "counts", "Post", "p1")
	require.NoError(t, err)
	want := fmt.Sprintf("%-12s 2\n%-12s 1\n%-12s 3\n", "like", "love", "total")
	assert.Equal(t, want, out)

	out, err = execute(t, "--config", path, "counts", "--json", "Post", "p1")
	require.NoError(t, err)
	var resp gateway.CountsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]int{"like": 2, "love": 1}, resp.Counts)
	assert.Equal(t, 3, resp.Total)
}

func TestCounts_WrongArgs(t *testing.T) {
	path := initConfig(t, "reactions.yaml")

	_, err := execute(t, "--config", path, "counts", "Post")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health/ready" {
			w.WriteHeader(int(status.Load()))
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	path := initConfig(t, "reactions.yaml", "--http-addr", strings.TrimPrefix(srv.URL, "http://"))

	out, err := execute(t, "--config", path, "health")
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)

	status.Store(http.StatusServiceUnavailable)
	_, err = execute(t, "--config", path, "health", "--ready")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "token", "--user", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "reaction", "like")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "like", rec["reaction"])
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("component", "reactions").WithGroup("req").Debug("reacted", "user", "alice")
	logger.Error("failed")

	out := buf.String()
	assert.Contains(t, out, "DBG reacted component=reactions req.user=alice\n")
	assert.Contains(t, out, "ERR failed\n")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
