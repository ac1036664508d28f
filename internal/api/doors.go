package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorwatch/doorwatch-core/internal/envelope"
	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// doorRequest is the body of POST and PUT /api/doors. Fields left out of a
// PUT keep their current value.
type doorRequest struct {
	Name         *string              `json:"name"`
	Location     *string              `json:"location"`
	Status       *facility.DoorStatus `json:"status"`
	IsOnline     *bool                `json:"isOnline"`
	BatteryLevel *int                 `json:"batteryLevel"`
}

func (req *doorRequest) applyTo(d *facility.Door) {
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Location != nil {
		d.Location = *req.Location
	}
	if req.Status != nil {
		d.Status = *req.Status
	}
	if req.IsOnline != nil {
		d.IsOnline = *req.IsOnline
	}
	if req.BatteryLevel != nil {
		level := *req.BatteryLevel
		d.BatteryLevel = &level
	}
}

// controlRequest is the body of POST /api/doors/{id}/control.
type controlRequest struct {
	Action facility.DoorAction `json:"action"`
}

func (s *Server) handleListDoors(w http.ResponseWriter, r *http.Request) {
	doors, err := s.repo.ListDoors(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doors)
}

func (s *Server) handleGetDoor(w http.ResponseWriter, r *http.Request) {
	door, err := s.repo.GetDoor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, door)
}

func (s *Server) handleCreateDoor(w http.ResponseWriter, r *http.Request) {
	var req doorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	door := &facility.Door{IsOnline: true}
	req.applyTo(door)
	if err := s.control.CreateDoor(r.Context(), door); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, door)
}

func (s *Server) handleUpdateDoor(w http.ResponseWriter, r *http.Request) {
	var req doorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	door, err := s.control.PatchDoor(r.Context(), chi.URLParam(r, "id"), req.applyTo)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, door)
}

func (s *Server) handleDeleteDoor(w http.ResponseWriter, r *http.Request) {
	if err := s.control.DeleteDoor(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleControlDoor(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.controlDoor(w, r, chi.URLParam(r, "id"), req.Action)
}

func (s *Server) handleLegacyDoorControl(w http.ResponseWriter, r *http.Request) {
	// Same payload as a door_control message, so doorId may be a number.
	var req envelope.DoorControl
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DoorID == "" {
		writeBadRequest(w, "doorId is required")
		return
	}
	s.controlDoor(w, r, req.DoorID, req.Action)
}

func (s *Server) controlDoor(w http.ResponseWriter, r *http.Request, doorID string, action facility.DoorAction) {
	if err := s.control.ControlDoor(r.Context(), doorID, action, actorFor(r)); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
