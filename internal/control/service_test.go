package control_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/doorwatch/doorwatch-core/internal/control"
	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
	"github.com/doorwatch/doorwatch-core/internal/facility/facilitytest"
	"github.com/doorwatch/doorwatch-core/internal/infrastructure/logging"
)

type recorder struct {
	mu   sync.Mutex
	envs []envelope.Envelope
}

func (r *recorder) Broadcast(env envelope.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *recorder) all() []envelope.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]envelope.Envelope(nil), r.envs...)
}

func (r *recorder) types() []envelope.Type {
	var out []envelope.Type
	for _, e := range r.all() {
		out = append(out, e.Type())
	}
	return out
}

type telemetryRecorder struct {
	mu         sync.Mutex
	doors      []facility.Door
	activities []facility.Activity
}

func (t *telemetryRecorder) WriteDoorState(d facility.Door) {
	t.mu.Lock()
	t.doors = append(t.doors, d)
	t.mu.Unlock()
}

func (t *telemetryRecorder) WriteActivity(a facility.Activity) {
	t.mu.Lock()
	t.activities = append(t.activities, a)
	t.mu.Unlock()
}

func newService(t *testing.T) (*control.Service, *recorder, *telemetryRecorder, facility.Repository) {
	t.Helper()
	repo := facilitytest.NewRepository(t, nil)
	rec := &recorder{}
	tel := &telemetryRecorder{}
	svc := control.New(control.Deps{
		Repo:         repo,
		Broadcasters: []control.Broadcaster{rec},
		Telemetry:    tel,
		Logger:       logging.Discard(),
	})
	return svc, rec, tel, repo
}

func assertTypes(t *testing.T, got []envelope.Type, want ...envelope.Type) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("broadcast types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("broadcast types = %v, want %v", got, want)
		}
	}
}

func findDoor(doors []facility.Door, id string) *facility.Door {
	for i := range doors {
		if doors[i].ID == id {
			return &doors[i]
		}
	}
	return nil
}

func TestInitialBundle(t *testing.T) {
	svc, rec, _, _ := newService(t)

	bundle, err := svc.InitialBundle(context.Background())
	if err != nil {
		t.Fatalf("InitialBundle() error = %v", err)
	}
	if len(bundle) != 3 {
		t.Fatalf("bundle has %d envelopes, want 3", len(bundle))
	}

	doors, ok := bundle[0].(envelope.DoorStatusUpdate)
	if !ok || len(doors.Doors) != 4 {
		t.Errorf("bundle[0] = %#v, want 4 doors", bundle[0])
	}
	stats, ok := bundle[1].(envelope.DashboardStats)
	if !ok || stats.Stats.TotalUsers != 3 || stats.Stats.OnlineDoors != 3 || stats.Stats.OfflineDoors != 1 {
		t.Errorf("bundle[1] = %#v", bundle[1])
	}
	acts, ok := bundle[2].(envelope.UserActivity)
	if !ok || len(acts.Activities) != 3 {
		t.Errorf("bundle[2] = %#v, want 3 activities", bundle[2])
	}
	if len(rec.all()) != 0 {
		t.Error("InitialBundle broadcast something")
	}
}

func TestControlDoor_BroadcastSequence(t *testing.T) {
	svc, rec, tel, _ := newService(t)
	ctx := context.Background()

	before, err := svc.InitialBundle(ctx)
	if err != nil {
		t.Fatalf("InitialBundle() error = %v", err)
	}
	recentBefore := before[1].(envelope.DashboardStats).Stats.RecentActivityCount

	if err := svc.ControlDoor(ctx, facilitytest.EmergencyExit, facility.ActionOpen, facility.AdminActor); err != nil {
		t.Fatalf("ControlDoor() error = %v", err)
	}

	assertTypes(t, rec.types(),
		envelope.TypeDoorStatusUpdate, envelope.TypeUserActivity, envelope.TypeDashboardStats)
	envs := rec.all()

	door := findDoor(envs[0].(envelope.DoorStatusUpdate).Doors, facilitytest.EmergencyExit)
	if door == nil || door.Status != facility.StatusOpen {
		t.Errorf("door 3 in broadcast = %+v, want open", door)
	}

	acts := envs[1].(envelope.UserActivity).Activities
	if len(acts) == 0 {
		t.Fatal("user_activity broadcast is empty")
	}
	first := acts[0]
	if first.Action != facility.ActivityEntry || first.Method != facility.MethodAdmin ||
		first.UserName != "Admin User" || first.DoorID != facilitytest.EmergencyExit || first.DoorName != "Emergency Exit" {
		t.Errorf("newest activity = %+v", first)
	}

	stats := envs[2].(envelope.DashboardStats).Stats
	if stats.RecentActivityCount != recentBefore+1 {
		t.Errorf("RecentActivityCount = %d, want %d", stats.RecentActivityCount, recentBefore+1)
	}

	if len(tel.doors) != 1 || len(tel.activities) != 1 {
		t.Errorf("telemetry doors=%d activities=%d, want 1/1", len(tel.doors), len(tel.activities))
	}
}

func TestControlDoor_ActionMapping(t *testing.T) {
	tests := []struct {
		action     facility.DoorAction
		wantStatus facility.DoorStatus
		wantAct    facility.ActivityAction
	}{
		{facility.ActionOpen, facility.StatusOpen, facility.ActivityEntry},
		{facility.ActionClose, facility.StatusClosed, facility.ActivityExit},
		{facility.ActionLock, facility.StatusLocked, facility.ActivityExit},
		{facility.ActionUnlock, facility.StatusClosed, facility.ActivityExit},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			svc, rec, _, repo := newService(t)
			ctx := context.Background()

			if err := svc.ControlDoor(ctx, facilitytest.MainEntrance, tt.action, facility.AdminActor); err != nil {
				t.Fatalf("ControlDoor() error = %v", err)
			}
			door, err := repo.GetDoor(ctx, facilitytest.MainEntrance)
			if err != nil {
				t.Fatalf("GetDoor() error = %v", err)
			}
			if door.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", door.Status, tt.wantStatus)
			}
			acts := rec.all()[1].(envelope.UserActivity).Activities
			if acts[0].Action != tt.wantAct {
				t.Errorf("activity = %q, want %q", acts[0].Action, tt.wantAct)
			}
		})
	}
}

func TestControlDoor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		doorID  string
		action  facility.DoorAction
		wantErr error
	}{
		{"unknown door", "99", facility.ActionOpen, facility.ErrDoorNotFound},
		{"invalid action", facilitytest.MainEntrance, "smash", facility.ErrInvalidAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec, _, _ := newService(t)
			err := svc.ControlDoor(context.Background(), tt.doorID, tt.action, facility.AdminActor)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ControlDoor() error = %v, want %v", err, tt.wantErr)
			}
			if n := len(rec.all()); n != 0 {
				t.Errorf("failed mutation broadcast %d envelopes", n)
			}
		})
	}
}

func TestSetDoorStatus_SystemActor(t *testing.T) {
	svc, rec, _, _ := newService(t)

	if err := svc.SetDoorStatus(context.Background(), facilitytest.SideDoor, facility.StatusClosed, facility.SystemActor); err != nil {
		t.Fatalf("SetDoorStatus() error = %v", err)
	}
	acts := rec.all()[1].(envelope.UserActivity).Activities
	if acts[0].Action != facility.ActivityExit || acts[0].Method != facility.MethodSystem || acts[0].UserID != "system" {
		t.Errorf("newest activity = %+v, want exit/system", acts[0])
	}
}

func TestConcurrentMutations_DoNotInterleave(t *testing.T) {
	svc, rec, _, _ := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	actions := []facility.DoorAction{facility.ActionOpen, facility.ActionLock, facility.ActionClose, facility.ActionUnlock}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			//nolint:errcheck // every door exists
			svc.ControlDoor(ctx, facilitytest.MainEntrance, actions[i%len(actions)], facility.AdminActor)
		}(i)
	}
	wg.Wait()

	types := rec.types()
	if len(types) != 24 {
		t.Fatalf("got %d broadcasts, want 24", len(types))
	}
	for i := 0; i < len(types); i += 3 {
		assertTypes(t, types[i:i+3],
			envelope.TypeDoorStatusUpdate, envelope.TypeUserActivity, envelope.TypeDashboardStats)
	}
}

func TestApplySensorReport(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }
	intPtr := func(n int) *int { return &n }
	statusPtr := func(s facility.DoorStatus) *facility.DoorStatus { return &s }

	tests := []struct {
		name      string
		doorID    string
		report    control.SensorReport
		wantTypes []envelope.Type
		wantErr   error
	}{
		{
			name:   "status change runs full transition",
			doorID: facilitytest.MainEntrance,
			report: control.SensorReport{Status: statusPtr(facility.StatusOpen)},
			wantTypes: []envelope.Type{
				envelope.TypeDoorStatusUpdate, envelope.TypeUserActivity, envelope.TypeDashboardStats,
			},
		},
		{
			name:      "online flag change",
			doorID:    facilitytest.EmergencyExit,
			report:    control.SensorReport{IsOnline: boolPtr(true)},
			wantTypes: []envelope.Type{envelope.TypeDoorStatusUpdate, envelope.TypeDashboardStats},
		},
		{
			name:      "battery change",
			doorID:    facilitytest.BackDoor,
			report:    control.SensorReport{BatteryLevel: intPtr(12)},
			wantTypes: []envelope.Type{envelope.TypeDoorStatusUpdate, envelope.TypeDashboardStats},
		},
		{
			name:   "same values are a no-op",
			doorID: facilitytest.MainEntrance,
			report: control.SensorReport{
				Status:       statusPtr(facility.StatusClosed),
				IsOnline:     boolPtr(true),
				BatteryLevel: intPtr(92),
			},
		},
		{
			name:    "unknown status",
			doorID:  facilitytest.MainEntrance,
			report:  control.SensorReport{Status: statusPtr("ajar")},
			wantErr: facility.ErrInvalidDoor,
		},
		{
			name:    "unknown door",
			doorID:  "42",
			report:  control.SensorReport{IsOnline: boolPtr(false)},
			wantErr: facility.ErrDoorNotFound,
		},
		{
			name:    "battery out of range",
			doorID:  facilitytest.BackDoor,
			report:  control.SensorReport{BatteryLevel: intPtr(140)},
			wantErr: facility.ErrInvalidDoor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec, _, _ := newService(t)
			err := svc.ApplySensorReport(context.Background(), tt.doorID, tt.report)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ApplySensorReport() error = %v, want %v", err, tt.wantErr)
			}
			assertTypes(t, rec.types(), tt.wantTypes...)
		})
	}
}

func TestApplySensorReport_OnlineChangeUpdatesStats(t *testing.T) {
	svc, rec, _, _ := newService(t)
	online := true

	if err := svc.ApplySensorReport(context.Background(), facilitytest.EmergencyExit, control.SensorReport{IsOnline: &online}); err != nil {
		t.Fatalf("ApplySensorReport() error = %v", err)
	}
	stats := rec.all()[1].(envelope.DashboardStats).Stats
	if stats.OnlineDoors != 4 || stats.OfflineDoors != 0 || stats.ActiveDoors != 4 {
		t.Errorf("stats = %+v, want all four doors online", stats)
	}
}

func TestDoorAdministration(t *testing.T) {
	svc, rec, _, repo := newService(t)
	ctx := context.Background()

	door := &facility.Door{Name: "Loading Bay", Location: "Building E", IsOnline: true}
	if err := svc.CreateDoor(ctx, door); err != nil {
		t.Fatalf("CreateDoor() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate, envelope.TypeDashboardStats)
	if got := rec.all()[1].(envelope.DashboardStats).Stats.TotalDoors; got != 5 {
		t.Errorf("TotalDoors after create = %d, want 5", got)
	}

	rec.envs = nil
	if _, err := svc.PatchDoor(ctx, door.ID, func(d *facility.Door) { d.Location = "Building F" }); err != nil {
		t.Fatalf("PatchDoor() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate)

	rec.envs = nil
	if _, err := svc.PatchDoor(ctx, door.ID, func(d *facility.Door) { d.IsOnline = false }); err != nil {
		t.Fatalf("PatchDoor() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate, envelope.TypeDashboardStats)

	rec.envs = nil
	if err := svc.DeleteDoor(ctx, door.ID); err != nil {
		t.Fatalf("DeleteDoor() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate, envelope.TypeDashboardStats)
	if _, err := repo.GetDoor(ctx, door.ID); !errors.Is(err, facility.ErrDoorNotFound) {
		t.Errorf("GetDoor() after delete error = %v", err)
	}

	rec.envs = nil
	if err := svc.DeleteDoor(ctx, door.ID); !errors.Is(err, facility.ErrDoorNotFound) {
		t.Errorf("second DeleteDoor() error = %v, want ErrDoorNotFound", err)
	}
	if len(rec.all()) != 0 {
		t.Error("failed delete broadcast")
	}
}

func TestUserAdministration(t *testing.T) {
	svc, rec, _, _ := newService(t)
	ctx := context.Background()

	u := &facility.User{Name: "Ada Admin", Email: "ada@example.com", Role: facility.RoleUser}
	if err := svc.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDashboardStats)
	if got := rec.all()[0].(envelope.DashboardStats).Stats.TotalUsers; got != 4 {
		t.Errorf("TotalUsers = %d, want 4", got)
	}

	dup := &facility.User{Name: "Other", Email: "ADA@example.com", Role: facility.RoleUser}
	if err := svc.CreateUser(ctx, dup); !errors.Is(err, facility.ErrEmailExists) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrEmailExists", err)
	}

	rec.envs = nil
	if err := svc.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDashboardStats)
	if got := rec.all()[0].(envelope.DashboardStats).Stats.TotalUsers; got != 3 {
		t.Errorf("TotalUsers after delete = %d, want 3", got)
	}
}

func TestBroadcastStats(t *testing.T) {
	svc, rec, _, _ := newService(t)
	if err := svc.BroadcastStats(context.Background()); err != nil {
		t.Fatalf("BroadcastStats() error = %v", err)
	}
	assertTypes(t, rec.types(), envelope.TypeDashboardStats)
}

func TestAddBroadcaster(t *testing.T) {
	svc, rec, _, _ := newService(t)
	late := &recorder{}
	svc.AddBroadcaster(late)

	if err := svc.BroadcastStats(context.Background()); err != nil {
		t.Fatalf("BroadcastStats() error = %v", err)
	}
	if len(rec.all()) != 1 || len(late.all()) != 1 {
		t.Errorf("recorders got %d and %d envelopes, want 1 each", len(rec.all()), len(late.all()))
	}
}

func TestPatchDoor_KeepsConcurrentTransition(t *testing.T) {
	svc, rec, _, repo := newService(t)
	ctx := context.Background()

	stale, err := repo.GetDoor(ctx, facilitytest.SideDoor)
	if err != nil {
		t.Fatalf("GetDoor() error = %v", err)
	}
	if stale.Status != facility.StatusOpen {
		t.Fatalf("seeded Side Door status = %q, want open", stale.Status)
	}

	// A transition lands after the caller read the door but before its rename.
	if err := svc.SetDoorStatus(ctx, facilitytest.SideDoor, facility.StatusLocked, facility.SystemActor); err != nil {
		t.Fatalf("SetDoorStatus() error = %v", err)
	}
	rec.envs = nil

	door, err := svc.PatchDoor(ctx, facilitytest.SideDoor, func(d *facility.Door) { d.Name = "Side Gate" })
	if err != nil {
		t.Fatalf("PatchDoor() error = %v", err)
	}
	if door.Status != facility.StatusLocked || door.Name != "Side Gate" {
		t.Errorf("patched door = %q/%q, want Side Gate/locked", door.Name, door.Status)
	}

	stored, err := repo.GetDoor(ctx, facilitytest.SideDoor)
	if err != nil {
		t.Fatalf("GetDoor() error = %v", err)
	}
	if stored.Status != facility.StatusLocked {
		t.Errorf("stored status = %q, want locked", stored.Status)
	}
	assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate)
	for _, d := range rec.all()[0].(envelope.DoorStatusUpdate).Doors {
		if d.ID == facilitytest.SideDoor && d.Status != facility.StatusLocked {
			t.Errorf("broadcast Side Door status = %q, want locked", d.Status)
		}
	}
}

func TestPatchDoor_Errors(t *testing.T) {
	svc, rec, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.PatchDoor(ctx, "99", func(*facility.Door) {}); !errors.Is(err, facility.ErrDoorNotFound) {
		t.Errorf("PatchDoor(unknown) error = %v, want ErrDoorNotFound", err)
	}
	_, err := svc.PatchDoor(ctx, facilitytest.MainEntrance, func(d *facility.Door) { d.Name = "" })
	if !facility.IsValidation(err) {
		t.Errorf("PatchDoor(empty name) error = %v, want a validation error", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("failed patches broadcast %d envelopes", n)
	}
}

func TestSetDoorStatusFrom(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		from    facility.DoorStatus
		to      facility.DoorStatus
		wantErr error
		want    facility.DoorStatus
	}{
		{"matching status", facilitytest.SideDoor, facility.StatusOpen, facility.StatusClosed, nil, facility.StatusClosed},
		{"status moved on", facilitytest.SideDoor, facility.StatusClosed, facility.StatusLocked, control.ErrStatusChanged, facility.StatusOpen},
		{"offline door", facilitytest.EmergencyExit, facility.StatusLocked, facility.StatusOpen, control.ErrStatusChanged, facility.StatusLocked},
		{"unknown door", "99", facility.StatusOpen, facility.StatusClosed, facility.ErrDoorNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec, _, repo := newService(t)
			ctx := context.Background()

			err := svc.SetDoorStatusFrom(ctx, tt.id, tt.from, tt.to, facility.SystemActor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetDoorStatusFrom() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if n := len(rec.all()); n != 0 {
					t.Errorf("rejected transition broadcast %d envelopes", n)
				}
			} else {
				assertTypes(t, rec.types(), envelope.TypeDoorStatusUpdate, envelope.TypeUserActivity, envelope.TypeDashboardStats)
			}
			if tt.want == "" {
				return
			}
			door, err := repo.GetDoor(ctx, tt.id)
			if err != nil {
				t.Fatalf("GetDoor() error = %v", err)
			}
			if door.Status != tt.want {
				t.Errorf("status = %q, want %q", door.Status, tt.want)
			}
		})
	}
}
