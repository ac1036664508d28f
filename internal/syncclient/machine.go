package syncclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is a connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectWait
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectWait:
		return "reconnect_wait"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type event int

const (
	evConnect event = iota
	evOpened
	evOpenFailed
	evLost
	evRetryDue
	evDisconnect
)

func (e event) String() string {
	return [...]string{"connect", "opened", "openFailed", "lost", "retryDue", "disconnect"}[e]
}

type effectKind int

const (
	effDial effectKind = iota
	effScheduleRetry
	effStartPolling
	effTeardown
)

type effect struct {
	kind  effectKind
	delay time.Duration // effScheduleRetry only
}

// linearBackOff waits base, 2×base, 3×base, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// machine is the transition table. It does no I/O: handle returns the
// effects the caller must carry out.
type machine struct {
	state  State
	policy backoff.BackOff
	// failed records whether the latest move into ReconnectWait came from
	// a failed open rather than a clean loss.
	failed bool
}

// newMachine builds the connection state machine. maxAttempts counts
// retries after the first dial, so a value of 5 allows 6 dials before
// Polling.
func newMachine(base time.Duration, maxAttempts int) *machine {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &machine{
		state:  StateDisconnected,
		policy: backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(maxAttempts)),
	}
}

// handle applies ev. Events that make no sense in the current state are
// ignored and produce no effects.
func (m *machine) handle(ev event) []effect {
	if ev == evDisconnect {
		if m.state == StateClosed {
			return nil
		}
		m.state = StateClosed
		return []effect{{kind: effTeardown}}
	}

	switch m.state {
	case StateDisconnected:
		if ev == evConnect {
			m.state = StateConnecting
			return []effect{{kind: effDial}}
		}
	case StateConnecting:
		switch ev {
		case evOpened:
			m.state = StateConnected
			m.policy.Reset()
			return nil
		case evOpenFailed:
			return m.retry(true)
		}
	case StateConnected:
		if ev == evLost {
			return m.retry(false)
		}
	case StateReconnectWait:
		if ev == evRetryDue {
			m.state = StateConnecting
			return []effect{{kind: effDial}}
		}
	case StatePolling, StateClosed:
	}
	return nil
}

func (m *machine) retry(failed bool) []effect {
	m.failed = failed
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.state = StatePolling
		return []effect{{kind: effStartPolling}}
	}
	m.state = StateReconnectWait
	return []effect{{kind: effScheduleRetry, delay: delay}}
}
