package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/doorwatch/doorwatch-core/internal/control"
	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// Dialer opens the push channel.
type Dialer interface {
	Dial(ctx context.Context, url string) (Channel, error)
}

// Channel is one open push connection. Read blocks until a message arrives
// or the channel fails; Close unblocks it.
type Channel interface {
	Read() ([]byte, error)
	Write(msg []byte) error
	Close() error
}

// Fetcher reads authoritative state and carries commands over the
// Mutation API when there is no push channel.
type Fetcher interface {
	FetchDoors(ctx context.Context) ([]facility.Door, error)
	FetchStats(ctx context.Context) (facility.Stats, error)
	FetchActivities(ctx context.Context) ([]facility.Activity, error)
	SendCommand(ctx context.Context, cmd envelope.Command) error
}

// ─── WebSocket ───────────────────────────────────────────────────

const handshakeTimeout = 10 * time.Second

// WebSocketDialer dials the hub with gorilla/websocket.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

// NewWebSocketDialer returns a Dialer with a bounded handshake.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}}
}

// Dial opens url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake body is never read
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsChannel) Read() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsChannel) Write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsChannel) Close() error {
	c.writeMu.Lock()
	//nolint:errcheck // best effort, the peer may already be gone
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// ─── HTTP ────────────────────────────────────────────────────────

const httpTimeout = 10 * time.Second

// HTTPFetcher talks to the Mutation API under baseURL (e.g.
// "http://localhost:3001").
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewHTTPFetcher creates a Fetcher. token, if set, is sent as a bearer token.
func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: httpTimeout},
		token:   token,
	}
}

// FetchDoors returns every door ordered by name.
func (f *HTTPFetcher) FetchDoors(ctx context.Context) ([]facility.Door, error) {
	var doors []facility.Door
	err := f.get(ctx, "/api/doors/statuses", &doors)
	return doors, err
}

// FetchStats returns the dashboard aggregate.
func (f *HTTPFetcher) FetchStats(ctx context.Context) (facility.Stats, error) {
	var stats facility.Stats
	err := f.get(ctx, "/api/dashboard/stats", &stats)
	return stats, err
}

// FetchActivities returns the latest activities, as many as a push
// user_activity message carries.
func (f *HTTPFetcher) FetchActivities(ctx context.Context) ([]facility.Activity, error) {
	var acts []facility.Activity
	err := f.get(ctx, fmt.Sprintf("/api/activities/recent?limit=%d", control.RecentActivityLimit), &acts)
	return acts, err
}

// SendCommand posts cmd's data to /api/{command}. door-control maps to
// the legacy /api/door-control route.
func (f *HTTPFetcher) SendCommand(ctx context.Context, cmd envelope.Command) error {
	body := cmd.Data
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/api/"+url.PathEscape(string(cmd.Name)), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", cmd.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, nil)
}

func (f *HTTPFetcher) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", path, err)
	}
	return f.do(req, dst)
}

func (f *HTTPFetcher) do(req *http.Request, dst any) error {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %w: %d", req.Method, req.URL.Path, ErrHTTPStatus, resp.StatusCode)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s: %w", req.URL.Path, err)
	}
	return nil
}

// PushURL derives the WebSocket endpoint from an http(s) server URL.
func PushURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}
