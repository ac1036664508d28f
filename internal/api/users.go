package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorwatch/doorwatch-core/internal/auth"
	"github.com/doorwatch/doorwatch-core/internal/facility"
)

// userRequest is the body of POST and PUT /api/users. Password is only
// read on create; PUT leaves unset fields unchanged.
type userRequest struct {
	Name     *string        `json:"name"`
	Email    *string        `json:"email"`
	Role     *facility.Role `json:"role"`
	Password string         `json:"password"`
}

func (req *userRequest) applyTo(u *facility.User) {
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user := &facility.User{}
	req.applyTo(user)
	if req.Password != "" {
		hash, ok := s.hashPassword(w, r, req.Password)
		if !ok {
			return
		}
		user.PasswordHash = hash
	}

	if err := s.control.CreateUser(r.Context(), user); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.repo.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	req.applyTo(user)
	if err := s.repo.UpdateUser(r.Context(), user); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.control.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hash, ok := s.hashPassword(w, r, req.Password)
	if !ok {
		return
	}
	if err := s.repo.UpdatePassword(r.Context(), chi.URLParam(r, "id"), hash); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password reset successfully"})
}

// hashPassword validates and hashes password, writing the error response
// itself when it returns false.
func (s *Server) hashPassword(w http.ResponseWriter, r *http.Request, password string) (string, bool) {
	if err := auth.ValidatePassword(password); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return "", false
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.writeStoreError(w, r, err)
		return "", false
	}
	return hash, true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	User        *facility.User `json:"user"`
}

// handleLogin exchanges email and password for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, user, err := s.authn.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeUnauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 60
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, //nolint:mnd // seconds
		User:        user,
	})
}
