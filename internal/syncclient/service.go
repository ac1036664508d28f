package syncclient

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/clock"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

// Topic names a subscription stream.
type Topic string

// Topics and the value type their handlers receive.
const (
	TopicDoorStatus     Topic = "doorStatus"     // []facility.Door
	TopicUserActivity   Topic = "userActivity"   // []facility.Activity
	TopicDashboardStats Topic = "dashboardStats" // facility.Stats
	TopicConnection     Topic = "connection"     // ConnectionStatus
)

// Handler receives one notification.
type Handler func(data any)

// ConnectionType is the transport currently carrying updates.
type ConnectionType string

const (
	TypeWebSocket ConnectionType = "websocket"
	TypePolling   ConnectionType = "polling"
	TypeNone      ConnectionType = "none"
)

// LinkStatus is the health of the current transport.
type LinkStatus string

const (
	LinkConnected    LinkStatus = "connected"
	LinkDisconnected LinkStatus = "disconnected"
	LinkError        LinkStatus = "error"
)

// ConnectionStatus is what GetConnectionStatus returns and what
// TopicConnection handlers receive.
type ConnectionStatus struct {
	Type   ConnectionType `json:"type"`
	Status LinkStatus     `json:"status"`
}

// Defaults for zero config values.
const (
	DefaultServerURL          = "http://localhost:3001"
	DefaultReconnectBaseDelay = time.Second
	DefaultPollInterval       = 5 * time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the real clock for retry timers and polling.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clk = c }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

// WithFetcher replaces the HTTP Mutation API client.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) { s.fetcher = f }
}

// WithPushURL overrides the WebSocket URL derived from the server URL.
func WithPushURL(url string) Option {
	return func(s *Service) { s.pushURL = url }
}

// Service is one logical real-time connection with a polling fallback.
//
// All methods are safe for concurrent use. Handlers run one at a time;
// they may call Subscribe, SendCommand and Disconnect, but not Connect.
type Service struct {
	clk          clock.Clock
	dialer       Dialer
	fetcher      Fetcher
	pushURL      string
	pollInterval time.Duration
	logger       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	m  *machine
	// gen identifies the current dial or polling loop. Anything started
	// under an older generation has been superseded and is ignored.
	gen        uint64
	ch         Channel
	retry      *clock.Timer
	poller     *clock.Ticker
	pollFailed bool
	last       ConnectionStatus
	statusSeq  uint64

	subs    map[Topic]map[uint64]Handler
	nextSub uint64

	// dispatchMu runs handlers one at a time. It is never acquired while
	// mu is held.
	dispatchMu   sync.Mutex
	publishedSeq uint64 // guarded by dispatchMu
}

// statusChange is a connection status awaiting publication. seq orders
// changes made on different goroutines; zero means nothing changed.
type statusChange struct {
	status ConnectionStatus
	seq    uint64
}

// New creates a Service in the Disconnected state. Call Connect to start.
func New(cfg config.SyncClientConfig, logger *logging.Logger, opts ...Option) *Service {
	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	base := time.Duration(cfg.ReconnectBaseDelay) * time.Millisecond
	if base <= 0 {
		base = DefaultReconnectBaseDelay
	}
	poll := time.Duration(cfg.PollInterval) * time.Millisecond
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		clk:          clock.Real(),
		pollInterval: poll,
		logger:       logger.With("component", "syncclient"),
		ctx:          ctx,
		cancel:       cancel,
		m:            newMachine(base, cfg.MaxReconnectAttempts),
		last:         ConnectionStatus{Type: TypeNone, Status: LinkDisconnected},
		subs:         make(map[Topic]map[uint64]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pushURL == "" {
		u, err := PushURL(serverURL)
		if err != nil {
			s.logger.Error("invalid server url, push channel disabled", "url", serverURL, "error", err)
		}
		s.pushURL = u
	}
	if s.dialer == nil {
		s.dialer = NewWebSocketDialer()
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(serverURL, "")
	}
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.state
}

// Connect starts the push channel. It is a no-op unless the service is
// Disconnected, and returns ErrClosed after Disconnect.
func (s *Service) Connect() error {
	s.mu.Lock()
	if s.m.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	change := s.stepLocked(evConnect)
	s.mu.Unlock()

	s.publishStatus(change)
	return nil
}

// Disconnect closes the channel, stops every timer and drops all
// subscriptions. It is safe to call from any state, repeatedly, and from
// inside a handler.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.stepLocked(evDisconnect)
	s.mu.Unlock()
}

// GetConnectionStatus reports the transport and its health, computed from
// the current state.
func (s *Service) GetConnectionStatus() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Subscribe registers fn for topic. The returned function removes exactly
// this registration; calling it again does nothing.
func (s *Service) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.state == StateClosed {
		return func() {}
	}
	s.nextSub++
	id := s.nextSub
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[uint64]Handler)
	}
	s.subs[topic][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if hs := s.subs[topic]; hs != nil {
				delete(hs, id)
				if len(hs) == 0 {
					delete(s.subs, topic)
				}
			}
		})
	}
}

// SendCommand delivers a command. Over a live push channel it is written
// directly; otherwise it is posted to the Mutation API in the background,
// except refresh, which runs one poll cycle instead. Delivery failures are
// logged, not returned: a command that goes nowhere simply produces no
// update.
func (s *Service) SendCommand(name envelope.CommandName, payload any) error {
	cmd, err := envelope.NewCommand(name, payload)
	if err != nil {
		return err
	}
	msg, err := envelope.Encode(cmd)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.m.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	ch := s.ch
	gen := s.gen
	s.mu.Unlock()

	if ch != nil {
		if err := ch.Write(msg); err == nil {
			return nil
		}
		s.logger.Warn("push write failed, using HTTP", "command", string(name), "error", err)
	}

	if name == envelope.CommandRefresh {
		go s.poll(gen, false)
		return nil
	}
	go func() {
		if err := s.fetcher.SendCommand(s.ctx, cmd); err != nil {
			s.logger.Warn("HTTP command failed", "command", string(name), "error", err)
		}
	}()
	return nil
}

// ─── Transitions (mu held) ─────────────────────────────────────────

// stepLocked feeds ev to the machine, carries out its effects and returns
// the status change to publish once mu is released.
func (s *Service) stepLocked(ev event) statusChange {
	from := s.m.state
	effects := s.m.handle(ev)
	if s.m.state != from {
		s.logger.Debug("connection state changed",
			"event", ev.String(), "from", from.String(), "to", s.m.state.String())
	}

	for _, eff := range effects {
		switch eff.kind {
		case effDial:
			s.gen++
			s.retry = nil
			go s.dial(s.gen)
		case effScheduleRetry:
			s.closeChannelLocked()
			gen := s.gen
			s.logger.Info("push channel unavailable, retrying", "delay", eff.delay)
			s.retry = s.clk.AfterFunc(eff.delay, func() { s.fire(gen, evRetryDue) })
		case effStartPolling:
			s.closeChannelLocked()
			s.gen++
			s.logger.Warn("reconnect attempts exhausted, falling back to polling", "interval", s.pollInterval)
			s.poller = s.clk.NewTicker(s.pollInterval)
			go s.pollLoop(s.gen, s.poller)
		case effTeardown:
			s.gen++
			s.closeChannelLocked()
			if s.retry != nil {
				s.retry.Stop()
				s.retry = nil
			}
			if s.poller != nil {
				s.poller.Stop()
				s.poller = nil
			}
			s.cancel()
			clear(s.subs)
		}
	}

	return s.noteStatusLocked()
}

func (s *Service) noteStatusLocked() statusChange {
	status := s.statusLocked()
	if status == s.last {
		return statusChange{}
	}
	s.last = status
	s.statusSeq++
	return statusChange{status: status, seq: s.statusSeq}
}

func (s *Service) closeChannelLocked() {
	if s.ch == nil {
		return
	}
	if err := s.ch.Close(); err != nil {
		s.logger.Debug("closing push channel", "error", err)
	}
	s.ch = nil
}

func (s *Service) statusLocked() ConnectionStatus {
	switch s.m.state {
	case StateConnected:
		return ConnectionStatus{TypeWebSocket, LinkConnected}
	case StateConnecting:
		return ConnectionStatus{TypeWebSocket, LinkDisconnected}
	case StateReconnectWait:
		if s.m.failed {
			return ConnectionStatus{TypeWebSocket, LinkError}
		}
		return ConnectionStatus{TypeWebSocket, LinkDisconnected}
	case StatePolling:
		if s.pollFailed {
			return ConnectionStatus{TypePolling, LinkError}
		}
		return ConnectionStatus{TypePolling, LinkConnected}
	case StateDisconnected, StateClosed:
	}
	return ConnectionStatus{TypeNone, LinkDisconnected}
}

// fire delivers ev on behalf of generation gen, dropping it if superseded.
func (s *Service) fire(gen uint64, ev event) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	change := s.stepLocked(ev)
	s.mu.Unlock()

	s.publishStatus(change)
}

func (s *Service) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

// ─── Push channel ──────────────────────────────────────────────────

func (s *Service) dial(gen uint64) {
	ch, err := s.dialer.Dial(s.ctx, s.pushURL)
	if err != nil {
		s.logger.Debug("push dial failed", "url", s.pushURL, "error", err)
		s.fire(gen, evOpenFailed)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		ch.Close() //nolint:errcheck // superseded before it was used
		return
	}
	s.ch = ch
	change := s.stepLocked(evOpened)
	s.mu.Unlock()

	s.logger.Info("push channel connected", "url", s.pushURL)
	s.publishStatus(change)
	s.read(gen, ch)
}

// read dispatches every message from ch until it fails.
func (s *Service) read(gen uint64, ch Channel) {
	for {
		msg, err := ch.Read()
		if err != nil {
			if s.current(gen) {
				s.logger.Info("push channel lost", "error", err)
			}
			s.fire(gen, evLost)
			return
		}
		if !s.current(gen) {
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Service) handleMessage(msg []byte) {
	env, err := envelope.Decode(msg)
	if err != nil {
		s.logger.Warn("dropping malformed push message", "error", err)
		return
	}

	switch e := env.(type) {
	case envelope.DoorStatusUpdate:
		s.dispatch(TopicDoorStatus, e.Doors)
	case envelope.UserActivity:
		s.dispatch(TopicUserActivity, e.Activities)
	case envelope.DashboardStats:
		s.dispatch(TopicDashboardStats, e.Stats)
	case envelope.Command, envelope.Refresh:
		s.logger.Debug("ignoring client-bound command", "type", string(env.Type()))
	}
}

// ─── Polling ───────────────────────────────────────────────────────

func (s *Service) pollLoop(gen uint64, ticker *clock.Ticker) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.current(gen) {
				return
			}
			s.poll(gen, true)
		}
	}
}

// poll fetches doors, stats and activities and dispatches them as push
// messages would have been. track records the outcome in the polling
// status; one-off refreshes leave it alone.
func (s *Service) poll(gen uint64, track bool) {
	doors, stats, acts, err := s.fetchAll(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("poll failed", "error", err)
		s.pollResult(gen, track, true)
		return
	}
	if !s.current(gen) {
		return
	}

	s.pollResult(gen, track, false)
	s.dispatch(TopicDoorStatus, doors)
	s.dispatch(TopicDashboardStats, stats)
	s.dispatch(TopicUserActivity, acts)
}

func (s *Service) fetchAll(ctx context.Context) ([]facility.Door, facility.Stats, []facility.Activity, error) {
	doors, err := s.fetcher.FetchDoors(ctx)
	if err != nil {
		return nil, facility.Stats{}, nil, err
	}
	stats, err := s.fetcher.FetchStats(ctx)
	if err != nil {
		return nil, facility.Stats{}, nil, err
	}
	acts, err := s.fetcher.FetchActivities(ctx)
	if err != nil {
		return nil, facility.Stats{}, nil, err
	}
	return doors, stats, acts, nil
}

func (s *Service) pollResult(gen uint64, track, failed bool) {
	if !track {
		return
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.pollFailed = failed
	change := s.noteStatusLocked()
	s.mu.Unlock()

	s.publishStatus(change)
}

// ─── Dispatch ──────────────────────────────────────────────────────

// publishStatus notifies TopicConnection handlers of change unless a
// newer change has already been published.
func (s *Service) publishStatus(change statusChange) {
	if change.seq == 0 {
		return
	}
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if change.seq <= s.publishedSeq {
		return
	}
	s.publishedSeq = change.seq
	s.dispatchLocked(TopicConnection, change.status)
}

// dispatch runs topic's handlers in registration order. A panicking
// handler is logged and does not stop the others.
func (s *Service) dispatch(topic Topic, data any) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.dispatchLocked(topic, data)
}

func (s *Service) dispatchLocked(topic Topic, data any) {
	for _, fn := range s.handlers(topic) {
		s.invoke(topic, fn, data)
	}
}

func (s *Service) handlers(topic Topic) []Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs := s.subs[topic]
	ids := make([]uint64, 0, len(hs))
	for id := range hs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, hs[id])
	}
	return out
}

func (s *Service) invoke(topic Topic, fn Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "topic", string(topic), "panic", r)
		}
	}()
	fn(data)
}
