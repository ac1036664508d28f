package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
)

// fakeInflux answers /ping and records /api/v2/write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
	health int
}

func newFakeInflux(t *testing.T) (*fakeInflux, *httptest.Server) {
	t.Helper()
	f := &fakeInflux{health: http.StatusNoContent}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			f.mu.Lock()
			code := f.health
			f.mu.Unlock()
			w.WriteHeader(code)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "doorwatch-test-token",
		Org:           "doorwatch",
		Bucket:        "doors",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if _, err := Connect(testConfig("http://127.0.0.1:1")); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_WritesDoorTelemetry(t *testing.T) {
	fake, srv := newFakeInflux(t)

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	battery := 78
	client.WriteDoorState(facility.Door{
		ID: "2", Name: "Side Door", Location: "Building B",
		Status: facility.StatusOpen, IsOnline: true, BatteryLevel: &battery,
	})
	client.WriteActivity(facility.Activity{
		UserID: "system", UserName: "System", DoorID: "2", DoorName: "Side Door",
		Action: facility.ActivityEntry, Method: facility.MethodSystem,
	})
	client.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(fake.body(), "door_activity") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	body := fake.body()
	for _, want := range []string{"door_state,", "status_code=1i", "battery_level=78i", "door_activity,", "method=system"} {
		if !strings.Contains(body, want) {
			t.Errorf("write body missing %q:\n%s", want, body)
		}
	}
}

func TestClose_StopsWrites(t *testing.T) {
	_, srv := newFakeInflux(t)

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	// Must not panic.
	client.WriteDoorState(facility.Door{ID: "1"})
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		status facility.DoorStatus
		want   int
	}{
		{facility.StatusClosed, 0},
		{facility.StatusOpen, 1},
		{facility.StatusLocked, 2},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.status); got != tt.want {
			t.Errorf("StatusCode(%q) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestDoorStatePoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("with battery", func(t *testing.T) {
		battery := 92
		line := write.PointToLineProtocol(doorStatePoint(facility.Door{
			ID: "1", Name: "Main Entrance", Location: "Building A",
			Status: facility.StatusLocked, IsOnline: true, BatteryLevel: &battery, LastUpdate: ts,
		}, time.Now()), time.Nanosecond)

		for _, want := range []string{
			"door_state,", "door_id=1", `name=Main\ Entrance`, `location=Building\ A`,
			"status_code=2i", "online=true", "battery_level=92i", `status="locked"`,
		} {
			if !strings.Contains(line, want) {
				t.Errorf("line %q missing %q", line, want)
			}
		}
		if !strings.HasSuffix(strings.TrimSpace(line), "1772355600000000000") {
			t.Errorf("line %q does not use LastUpdate as timestamp", line)
		}
	})

	t.Run("without battery", func(t *testing.T) {
		line := write.PointToLineProtocol(doorStatePoint(facility.Door{
			ID: "3", Name: "Emergency Exit", Location: "Building C", Status: facility.StatusClosed,
		}, ts), time.Nanosecond)
		if strings.Contains(line, "battery_level") {
			t.Errorf("line %q has battery_level for a door without one", line)
		}
		if !strings.Contains(line, "online=false") {
			t.Errorf("line %q missing online=false", line)
		}
	})
}

func TestActivityPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	line := write.PointToLineProtocol(activityPoint(facility.Activity{
		UserID: "admin", UserName: "Admin User", DoorID: "3", DoorName: "Emergency Exit",
		Action: facility.ActivityEntry, Method: facility.MethodAdmin,
	}, ts), time.Nanosecond)

	for _, want := range []string{"door_activity,", "action=entry", "method=admin", "door_id=3", `user_name="Admin User"`, "count=1i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}
