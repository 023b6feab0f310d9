package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"chuckafile/apperr"
	"chuckafile/auth"
	"chuckafile/models"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := h.check(&req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.resp.Error(w, r, apperr.Internal("Registration failed", err))
		return
	}

	var user *models.User
	for attempt := 0; attempt < 3; attempt++ {
		code, err := auth.UniqueFriendCode(func(code string) (bool, error) {
			return h.users.FriendCodeExists(r.Context(), code)
		})
		if err != nil {
			h.resp.Error(w, r, apperr.Internal("Registration failed", err))
			return
		}

		user, err = h.users.CreateUser(r.Context(), req.Username, hash, code)
		if err == nil {
			break
		}
		// A code taken between the check and the insert is retried.
		if errors.Is(err, apperr.ErrUsernameTaken) || !apperr.HasCode(err, apperr.CodeConflict) {
			h.resp.Error(w, r, err)
			return
		}
	}
	if user == nil {
		h.resp.Error(w, r, apperr.Internal("Registration failed", auth.ErrNoFriendCode))
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.resp.Error(w, r, apperr.Internal("Registration failed", err))
		return
	}

	h.logger.Info("user registered", "user", user.ID, "username", user.Username)
	h.resp.OK(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    h.userResponse(user),
		"token":   token,
	})
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = apperr.ErrInvalidCredentials
		}
		h.resp.Error(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.resp.Error(w, r, apperr.ErrInvalidCredentials)
		return
	}

	if err := h.users.TouchLastLogin(r.Context(), user.ID); err != nil {
		h.logger.Warn("failed to record last login", "user", user.ID, "error", err)
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		h.resp.Error(w, r, apperr.Internal("Login failed", err))
		return
	}

	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"user":    h.userResponse(user),
		"token":   token,
	})
}

// Me returns the authenticated user; served at both verify and profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.resp.OK(w, http.StatusOK, map[string]interface{}{
		"user": h.userResponse(currentUser(r)),
	})
}

// AllUsers lists every account; admin only
func (h *Handler) AllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.GetAllUsers(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	out := make([]models.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, h.userResponse(&users[i]))
	}
	h.resp.OK(w, http.StatusOK, map[string]interface{}{"users": out})
}
