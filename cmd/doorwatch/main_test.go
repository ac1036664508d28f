package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // released for the server
	return port
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("DOORWATCH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config", err)
	}
}

// TestRun_MissingJWTSecret verifies validation runs before anything opens.
func TestRun_MissingJWTSecret(t *testing.T) {
	t.Setenv("DOORWATCH_CONFIG", writeConfig(t, `
facility:
  id: test-facility
database:
  path: "`+filepath.Join(t.TempDir(), "doorwatch.db")+`"
`))
	t.Setenv("DOORWATCH_JWT_SECRET", "")

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Errorf("run() error = %v, want jwt secret validation", err)
	}
}

// TestRun_ServesUntilCancelled starts the full server without MQTT,
// InfluxDB or the simulator and checks it answers and shuts down cleanly.
func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	dbPath := filepath.Join(t.TempDir(), "doorwatch.db")
	t.Setenv("DOORWATCH_CONFIG", writeConfig(t, fmt.Sprintf(`
facility:
  id: test-facility
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: %d
simulator:
  enabled: false
logging:
  level: error
  format: text
  output: stderr
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`, dbPath, port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/health", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:gosec,noctx // test against a local server
		if err == nil {
			resp.Body.Close() //nolint:errcheck // test
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d", resp.StatusCode)
			}
			break
		}
		select {
		case runErr := <-done:
			t.Fatalf("run() exited early: %v", runErr)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("DOORWATCH_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("DOORWATCH_CONFIG", "/etc/doorwatch.yaml")
	if got := getConfigPath(); got != "/etc/doorwatch.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}
