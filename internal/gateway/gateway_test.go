// ABOUTME: Tests for the Gateway orchestrator lifecycle and health endpoints
// ABOUTME: Uses a real SQLite store and a real listener for Run/Shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/coven-reactions/internal/config"
	"github.com/2389/coven-reactions/internal/store"
)

const testJWTSecret = "gateway-test-secret-32-bytes-ok!"

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	cfg := config.Default()
	cfg.Server.HTTPAddr = httpAddr
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database.Path = filepath.Join(t.TempDir(), "reactions.db")
	cfg.Auth.JWTSecret = testJWTSecret
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.Engine() == nil {
		t.Error("engine should not be nil")
	}
	if gw.replay == nil {
		t.Error("idempotency cache should be enabled by default")
	}
}

func TestGatewayNew_ModeMismatch(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	gw.Shutdown(context.Background())

	// Reopen the same database in multi mode.
	cfg.Reactions.AllowMultiple = true
	_, err = New(cfg, testLogger())
	if !errors.Is(err, store.ErrModeMismatch) {
		t.Fatalf("New() error = %v, want ErrModeMismatch", err)
	}
}

func TestGatewayNew_WeakSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"

	_, err := NewWithStore(cfg, store.NewMockStore(store.ModeSingle), testLogger())
	if err == nil {
		t.Fatal("NewWithStore() should reject a short secret")
	}
}

func TestGatewayNew_IdempotencyDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Idempotency.TTL = 0

	gw, err := NewWithStore(cfg, store.NewMockStore(store.ModeSingle), testLogger())
	if err != nil {
		t.Fatalf("NewWithStore() failed: %v", err)
	}
	if gw.replay != nil {
		t.Error("idempotency cache should be disabled with a zero TTL")
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Wait for the listener to come up
	healthURL := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.HTTPAddr = ln.Addr().String()

	gw, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := gw.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when the address is taken")
	}
}

func TestHealthEndpoint(t *testing.T) {
	gw := newTestGateway(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", rec.Body.String())
	}
}

func TestReadyEndpoint(t *testing.T) {
	gw, mock := newTestGatewayWithMock(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "multi") {
		t.Errorf("expected mode in body, got %q", rec.Body.String())
	}

	mock.FailWith = fmt.Errorf("ping: %w", store.ErrTransient)
	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}
