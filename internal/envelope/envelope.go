// Package envelope defines the push-channel wire protocol.
//
// An Envelope is a closed set of message kinds. Decode rejects anything
// outside that set with ErrUnknownType, and code that switches over kinds
// handles each concrete type explicitly.
//
// Wire shapes:
//
//	{"type":"door_status_update","data":[Door...]}
//	{"type":"user_activity","data":[Activity...]}
//	{"type":"dashboard_stats","data":Stats}
//	{"type":"command","command":"door-control","data":{"doorId":"3","action":"open"}}
//	{"type":"refresh"}
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// Type is the discriminator carried in every message.
type Type string

const (
	TypeDoorStatusUpdate Type = "door_status_update"
	TypeUserActivity     Type = "user_activity"
	TypeDashboardStats   Type = "dashboard_stats"
	TypeCommand          Type = "command"
	TypeRefresh          Type = "refresh"
)

// CommandName identifies an inbound command.
type CommandName string

const (
	CommandDoorControl CommandName = "door-control"
	CommandRefresh     CommandName = "refresh"
)

// Protocol errors.
var (
	ErrMalformed      = errors.New("malformed envelope")
	ErrUnknownType    = errors.New("unknown envelope type")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid command payload")
)

// Envelope is implemented only by the message types in this package.
type Envelope interface {
	Type() Type
	sealed()
}

// DoorStatusUpdate carries the full door list.
type DoorStatusUpdate struct {
	Doors []facility.Door
}

// UserActivity carries the most recent activities, newest first.
type UserActivity struct {
	Activities []facility.Activity
}

// DashboardStats carries the current aggregate.
type DashboardStats struct {
	Stats facility.Stats
}

// Command is a client request. Data is decoded per command.
type Command struct {
	Name CommandName
	Data json.RawMessage
}

// Refresh asks the server to resend the initial bundle.
type Refresh struct{}

func (DoorStatusUpdate) Type() Type { return TypeDoorStatusUpdate }
func (UserActivity) Type() Type     { return TypeUserActivity }
func (DashboardStats) Type() Type   { return TypeDashboardStats }
func (Command) Type() Type          { return TypeCommand }
func (Refresh) Type() Type          { return TypeRefresh }

func (DoorStatusUpdate) sealed() {}
func (UserActivity) sealed()     {}
func (DashboardStats) sealed()   {}
func (Command) sealed()          {}
func (Refresh) sealed()          {}

type wire struct {
	Type    Type            `json:"type"`
	Command CommandName     `json:"command,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Encode serialises env to its wire form.
func Encode(env Envelope) ([]byte, error) {
	w := wire{Type: env.Type()}

	var data any
	switch e := env.(type) {
	case DoorStatusUpdate:
		data = nonNil(e.Doors)
	case UserActivity:
		data = nonNil(e.Activities)
	case DashboardStats:
		data = e.Stats
	case Command:
		w.Command = e.Name
		w.Data = e.Data
	case Refresh:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, env)
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s data: %w", w.Type, err)
		}
		w.Data = raw
	}

	out, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", w.Type, err)
	}
	return out, nil
}

// Decode parses one wire message.
func Decode(b []byte) (Envelope, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	switch w.Type {
	case TypeDoorStatusUpdate:
		var doors []facility.Door
		if err := decodeData(w, &doors); err != nil {
			return nil, err
		}
		return DoorStatusUpdate{Doors: nonNil(doors)}, nil
	case TypeUserActivity:
		var activities []facility.Activity
		if err := decodeData(w, &activities); err != nil {
			return nil, err
		}
		return UserActivity{Activities: nonNil(activities)}, nil
	case TypeDashboardStats:
		var stats facility.Stats
		if err := decodeData(w, &stats); err != nil {
			return nil, err
		}
		return DashboardStats{Stats: stats}, nil
	case TypeCommand:
		if w.Command == "" {
			return nil, fmt.Errorf("%w: command name missing", ErrMalformed)
		}
		return Command{Name: w.Command, Data: w.Data}, nil
	case TypeRefresh:
		return Refresh{}, nil
	case "":
		return nil, fmt.Errorf("%w: type missing", ErrMalformed)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(w.Type))
}

func decodeData(w wire, dst any) error {
	if len(w.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformed, w.Type)
	}
	if err := json.Unmarshal(w.Data, dst); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrMalformed, w.Type, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// DoorControl is the payload of a door-control command.
type DoorControl struct {
	DoorID string              `json:"doorId"`
	Action facility.DoorAction `json:"action"`
}

// UnmarshalJSON accepts doorId as either a string or a number.
func (d *DoorControl) UnmarshalJSON(b []byte) error {
	var raw struct {
		DoorID json.RawMessage     `json:"doorId"`
		Action facility.DoorAction `json:"action"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Action = raw.Action
	d.DoorID = ""

	id := bytes.TrimSpace(raw.DoorID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
	case id[0] == '"':
		if err := json.Unmarshal(id, &d.DoorID); err != nil {
			return err
		}
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("doorId: %w", err)
		}
		d.DoorID = n.String()
	}
	return nil
}

// Validate checks that the payload names a door and a known action.
func (d DoorControl) Validate() error {
	if strings.TrimSpace(d.DoorID) == "" {
		return fmt.Errorf("%w: doorId is required", ErrInvalidPayload)
	}
	if _, err := d.Action.TargetStatus(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// DoorControl decodes and validates the payload of a door-control command.
func (c Command) DoorControl() (DoorControl, error) {
	if c.Name != CommandDoorControl {
		return DoorControl{}, fmt.Errorf("%w: %q is not %s", ErrInvalidPayload, string(c.Name), CommandDoorControl)
	}
	var dc DoorControl
	if len(c.Data) == 0 {
		return dc, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(c.Data, &dc); err != nil {
		return dc, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := dc.Validate(); err != nil {
		return dc, err
	}
	return dc, nil
}

// NewCommand builds a command envelope with payload encoded as its data.
// A nil payload produces a command without data.
func NewCommand(name CommandName, payload any) (Command, error) {
	switch name {
	case CommandDoorControl, CommandRefresh:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, string(name))
	}
	cmd := Command{Name: name}
	if payload == nil {
		return cmd, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	cmd.Data = raw
	return cmd, nil
}
