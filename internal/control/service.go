package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

// ErrStatusChanged reports that a conditional transition found the door in
// a different state than expected.
var ErrStatusChanged = errors.New("door status changed")

// RecentActivityLimit is how many activities a user_activity broadcast carries.
const RecentActivityLimit = 10

// Broadcaster receives every outbound envelope. The hub and the MQTT mirror
// both implement it.
type Broadcaster interface {
	Broadcast(env envelope.Envelope)
}

// Telemetry records door history. Implementations must not block.
type Telemetry interface {
	WriteDoorState(door facility.Door)
	WriteActivity(activity facility.Activity)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Repo         facility.Repository
	Broadcasters []Broadcaster
	Telemetry    Telemetry // optional
	Logger       *logging.Logger
}

// Service serialises mutations and their broadcasts.
type Service struct {
	mu     sync.Mutex
	repo   facility.Repository
	out    []Broadcaster
	tel    Telemetry
	logger *logging.Logger
}

// New creates a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   deps.Repo,
		out:    deps.Broadcasters,
		tel:    deps.Telemetry,
		logger: logger.With("component", "control"),
	}
}

// AddBroadcaster attaches another envelope sink. Used for sinks that are
// only available after the service has been built.
func (s *Service) AddBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, b)
}

// InitialBundle returns the door list, stats and recent activities as they
// stand now. It does not take the mutation lock; the hub orders it against
// broadcasts itself.
func (s *Service) InitialBundle(ctx context.Context) ([]envelope.Envelope, error) {
	doors, err := s.repo.ListDoors(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	activities, err := s.repo.RecentActivities(ctx, RecentActivityLimit)
	if err != nil {
		return nil, err
	}
	return []envelope.Envelope{
		envelope.DoorStatusUpdate{Doors: doors},
		envelope.DashboardStats{Stats: stats},
		envelope.UserActivity{Activities: activities},
	}, nil
}

// ControlDoor applies an operator action to a door.
func (s *Service) ControlDoor(ctx context.Context, doorID string, action facility.DoorAction, actor facility.Actor) error {
	status, err := action.TargetStatus()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionLocked(ctx, doorID, status, actor); err != nil {
		return err
	}
	s.logger.Info("door controlled", "door_id", doorID, "action", action, "user_id", actor.UserID)
	return nil
}

// SetDoorStatus moves a door to status on behalf of actor. The simulator and
// sensors use it directly.
func (s *Service) SetDoorStatus(ctx context.Context, doorID string, status facility.DoorStatus, actor facility.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(ctx, doorID, status, actor)
}

// SetDoorStatusFrom moves a door from one status to another. It returns
// ErrStatusChanged without writing anything when the door is no longer in
// status from or has gone offline.
func (s *Service) SetDoorStatusFrom(ctx context.Context, doorID string, from, to facility.DoorStatus, actor facility.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	door, err := s.repo.GetDoor(ctx, doorID)
	if err != nil {
		return err
	}
	if door.Status != from || !door.IsOnline {
		return fmt.Errorf("door %s is %s, expected %s: %w", doorID, door.Status, from, ErrStatusChanged)
	}
	return s.transitionLocked(ctx, doorID, to, actor)
}

// transitionLocked writes the new status, logs the activity and broadcasts
// doors, activity and stats in that order. A failing step stops the
// sequence.
func (s *Service) transitionLocked(ctx context.Context, doorID string, status facility.DoorStatus, actor facility.Actor) error {
	door, err := s.repo.SetDoorStatus(ctx, doorID, status)
	if err != nil {
		return fmt.Errorf("setting door %s to %s: %w", doorID, status, err)
	}
	if s.tel != nil {
		s.tel.WriteDoorState(*door)
	}
	if err := s.broadcastDoorsLocked(ctx); err != nil {
		return err
	}

	activity := &facility.Activity{
		UserID:   actor.UserID,
		UserName: actor.UserName,
		DoorID:   door.ID,
		DoorName: door.Name,
		Action:   facility.ActivityFor(status),
		Method:   actor.Method,
	}
	if err := s.repo.AppendActivity(ctx, activity); err != nil {
		return fmt.Errorf("recording activity for door %s: %w", doorID, err)
	}
	if s.tel != nil {
		s.tel.WriteActivity(*activity)
	}
	if err := s.broadcastActivitiesLocked(ctx); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// SensorReport is a partial door update from a physical sensor. Nil fields
// are left unchanged.
type SensorReport struct {
	Status       *facility.DoorStatus
	IsOnline     *bool
	BatteryLevel *int
}

// ApplySensorReport merges report into the door. A status change runs the
// full transition with the system actor; online or battery changes alone
// broadcast doors and stats.
func (s *Service) ApplySensorReport(ctx context.Context, doorID string, report SensorReport) error {
	if report.Status != nil && !report.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", facility.ErrInvalidDoor, string(*report.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	door, err := s.repo.GetDoor(ctx, doorID)
	if err != nil {
		return err
	}

	attrsChanged := false
	if report.IsOnline != nil && *report.IsOnline != door.IsOnline {
		door.IsOnline = *report.IsOnline
		attrsChanged = true
	}
	if report.BatteryLevel != nil && (door.BatteryLevel == nil || *door.BatteryLevel != *report.BatteryLevel) {
		level := *report.BatteryLevel
		door.BatteryLevel = &level
		attrsChanged = true
	}
	if attrsChanged {
		if err := s.repo.UpdateDoor(ctx, door); err != nil {
			return fmt.Errorf("updating door %s from sensor: %w", doorID, err)
		}
	}

	if report.Status != nil && *report.Status != door.Status {
		return s.transitionLocked(ctx, doorID, *report.Status, facility.SystemActor)
	}
	if !attrsChanged {
		return nil
	}

	if s.tel != nil {
		s.tel.WriteDoorState(*door)
	}
	if err := s.broadcastDoorsLocked(ctx); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// BroadcastStats recomputes and broadcasts the dashboard stats.
func (s *Service) BroadcastStats(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcastStatsLocked(ctx)
}

// ─── Door and user administration ─────────────────────────────────

// CreateDoor inserts d and broadcasts doors and stats.
func (s *Service) CreateDoor(ctx context.Context, d *facility.Door) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.CreateDoor(ctx, d); err != nil {
		return err
	}
	if s.tel != nil {
		s.tel.WriteDoorState(*d)
	}
	if err := s.broadcastDoorsLocked(ctx); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// PatchDoor applies patch to the stored door and writes the result, all
// under the mutation lock, so a transition landing between the read and
// the write is never reverted. Doors are broadcast, and stats follow when
// the online flag changed since they count online doors.
func (s *Service) PatchDoor(ctx context.Context, id string, patch func(*facility.Door)) (*facility.Door, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	door, err := s.repo.GetDoor(ctx, id)
	if err != nil {
		return nil, err
	}
	wasOnline := door.IsOnline
	patch(door)
	door.ID = id

	if err := s.repo.UpdateDoor(ctx, door); err != nil {
		return nil, err
	}
	if s.tel != nil {
		s.tel.WriteDoorState(*door)
	}
	if err := s.broadcastDoorsLocked(ctx); err != nil {
		return nil, err
	}
	if wasOnline != door.IsOnline {
		if err := s.broadcastStatsLocked(ctx); err != nil {
			return nil, err
		}
	}
	return door, nil
}

// DeleteDoor removes a door and broadcasts doors and stats.
func (s *Service) DeleteDoor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteDoor(ctx, id); err != nil {
		return err
	}
	if err := s.broadcastDoorsLocked(ctx); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// CreateUser inserts u and broadcasts stats.
func (s *Service) CreateUser(ctx context.Context, u *facility.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// DeleteUser removes a user and broadcasts stats.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	return s.broadcastStatsLocked(ctx)
}

// ─── Broadcast helpers (mu held) ──────────────────────────────────

func (s *Service) broadcastDoorsLocked(ctx context.Context) error {
	doors, err := s.repo.ListDoors(ctx)
	if err != nil {
		return err
	}
	s.emit(envelope.DoorStatusUpdate{Doors: doors})
	return nil
}

func (s *Service) broadcastActivitiesLocked(ctx context.Context) error {
	activities, err := s.repo.RecentActivities(ctx, RecentActivityLimit)
	if err != nil {
		return err
	}
	s.emit(envelope.UserActivity{Activities: activities})
	return nil
}

func (s *Service) broadcastStatsLocked(ctx context.Context) error {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return err
	}
	s.emit(envelope.DashboardStats{Stats: stats})
	return nil
}

func (s *Service) emit(env envelope.Envelope) {
	for _, b := range s.out {
		b.Broadcast(env)
	}
}
