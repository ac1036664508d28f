package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/doorwatch/doorwatch-core/internal/control"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/clock"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/config"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

// Chooser is the random source. *rand.Rand from math/rand/v2 satisfies it.
type Chooser interface {
	Float64() float64
	IntN(n int) int
}

// DoorLister reads the current doors.
type DoorLister interface {
	ListDoors(ctx context.Context) ([]facility.Door, error)
}

// Mutator applies transitions and stats refreshes. control.Service
// implements it. SetDoorStatusFrom must refuse, with control.ErrStatusChanged,
// a door that left status from since it was listed.
type Mutator interface {
	SetDoorStatusFrom(ctx context.Context, doorID string, from, to facility.DoorStatus, actor facility.Actor) error
	BroadcastStats(ctx context.Context) error
}

// Simulator drives random door transitions on a fixed interval.
type Simulator struct {
	interval    time.Duration
	probability float64
	doors       DoorLister
	mut         Mutator
	clock       clock.Clock
	rand        Chooser
	logger      *logging.Logger
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Simulator) { s.clock = c }
}

// WithChooser replaces the random source.
func WithChooser(r Chooser) Option {
	return func(s *Simulator) { s.rand = r }
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// New creates a simulator from cfg. Enabled is the caller's concern.
func New(cfg config.SimulatorConfig, doors DoorLister, mut Mutator, logger *logging.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		interval:    time.Duration(cfg.Interval) * time.Second,
		probability: cfg.Probability,
		doors:       doors,
		mut:         mut,
		clock:       clock.Real(),
		rand:        globalRand{},
		logger:      logger.With("component", "simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until ctx is cancelled. The ticker is stopped before it returns.
func (s *Simulator) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("simulator started", "interval", s.interval, "probability", s.probability)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one simulation step and reports whether a door changed.
func (s *Simulator) Tick(ctx context.Context) bool {
	if s.rand.Float64() < s.probability {
		if s.transition(ctx) {
			return true
		}
	}
	if err := s.mut.BroadcastStats(ctx); err != nil {
		s.logger.Warn("stats broadcast failed", "error", err)
	}
	return false
}

// transition reports whether a door changed, in which case the control
// service has already broadcast stats.
func (s *Simulator) transition(ctx context.Context) bool {
	doors, err := s.doors.ListDoors(ctx)
	if err != nil {
		s.logger.Warn("listing doors failed", "error", err)
		return false
	}

	online := make([]facility.Door, 0, len(doors))
	for _, d := range doors {
		if d.IsOnline {
			online = append(online, d)
		}
	}
	if len(online) == 0 {
		return false
	}
	door := online[s.rand.IntN(len(online))]

	candidates := make([]facility.DoorStatus, 0, len(facility.AllStatuses)-1)
	for _, st := range facility.AllStatuses {
		if st != door.Status {
			candidates = append(candidates, st)
		}
	}
	status := candidates[s.rand.IntN(len(candidates))]

	err = s.mut.SetDoorStatusFrom(ctx, door.ID, door.Status, status, facility.SystemActor)
	if errors.Is(err, control.ErrStatusChanged) {
		s.logger.Debug("door changed before simulated transition", "door_id", door.ID, "error", err)
		return false
	}
	if err != nil {
		s.logger.Warn("simulated transition failed", "door_id", door.ID, "status", status, "error", err)
		return false
	}
	s.logger.Debug("simulated transition", "door_id", door.ID, "from", door.Status, "to", status)
	return true
}
