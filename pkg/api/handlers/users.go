package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// UserHandler serves the user service (/api/v1/users).
type UserHandler struct {
	users store.UserRepository
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users store.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// UserOut is a sanitized user representation for API responses.
type UserOut struct {
	UserID   string        `json:"user_id"`
	Username string        `json:"username"`
	Scopes   models.Scopes `json:"scopes"`
}

// UserCreateIn is the request body for POST /user/create.
type UserCreateIn struct {
	Username string        `json:"username" validate:"required,max=255"`
	Password string        `json:"password" validate:"required"`
	Scopes   models.Scopes `json:"scopes"`
}

// UsernameUpdateIn is the request body for PUT /user/{id}/update/username.
// Password confirms the change and is ignored for admins.
type UsernameUpdateIn struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password"`
}

// PasswordUpdateIn is the request body for PUT /user/{id}/update/password.
type PasswordUpdateIn struct {
	OldPassword string `json:"old_password" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

// ScopeUpdateIn is the request body for PUT /user/{id}/update/scopes.
type ScopeUpdateIn struct {
	Scopes models.Scopes `json:"scopes"`
}

func userToOut(u *models.User) UserOut {
	scopes := u.Scopes
	if scopes == nil {
		scopes = models.Scopes{}
	}
	return UserOut{UserID: u.ID, Username: u.Username, Scopes: scopes}
}

// List handles GET /.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]UserOut, len(all))
	for i, u := range all {
		out[i] = userToOut(u)
	}
	WriteJSONOK(w, out)
}

// Me handles GET /me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUserByUsername(r.Context(), principal(r).Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, userToOut(u))
}

// Get handles GET /user/{userID}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, userToOut(u))
}

// GetByUsername handles GET /user/username/{username}.
func (h *UserHandler) GetByUsername(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSONOK(w, userToOut(u))
}

// Create handles POST /user/create.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in UserCreateIn
	if !decodeAndValidate(w, r, &in) {
		return
	}
	if err := models.ValidatePassword(in.Password); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}
	hash, err := models.HashPassword(in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.users.AddUser(r.Context(), in.Username, hash, in.Scopes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "User created", logger.UserID(u.ID), logger.KeyUsername, u.Username)
	WriteJSONCreated(w, userToOut(u))
}

// self loads the target user of a self-service route. Only the user itself
// or an admin may continue.
func (h *UserHandler) self(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	caller := principal(r)
	id := chi.URLParam(r, "userID")
	if !caller.IsAdmin() && caller.UserID != id {
		Forbidden(w, "only the user or an admin may change this account")
		return nil, false
	}
	u, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return u, true
}

// UpdateUsername handles PUT /user/{userID}/update/username.
func (h *UserHandler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var in UsernameUpdateIn
	if !decodeAndValidate(w, r, &in) {
		return
	}
	u, ok := h.self(w, r)
	if !ok {
		return
	}
	if !principal(r).IsAdmin() && !models.VerifyPassword(in.Password, u.HashedPassword) {
		Unauthorized(w, "password does not match")
		return
	}

	u, err := h.users.ChangeUsername(r.Context(), u.ID, in.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Username changed", logger.UserID(u.ID), logger.KeyUsername, u.Username)
	WriteJSONOK(w, userToOut(u))
}

// UpdatePassword handles PUT /user/{userID}/update/password. The old
// password is required even for admins.
func (h *UserHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var in PasswordUpdateIn
	if !decodeAndValidate(w, r, &in) {
		return
	}
	u, ok := h.self(w, r)
	if !ok {
		return
	}
	if !models.VerifyPassword(in.OldPassword, u.HashedPassword) {
		Unauthorized(w, "old password does not match")
		return
	}
	if err := models.ValidatePassword(in.Password); err != nil {
		UnprocessableEntity(w, err.Error())
		return
	}
	hash, err := models.HashPassword(in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err = h.users.ChangePassword(r.Context(), u.ID, hash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Password changed", logger.UserID(u.ID))
	WriteJSONOK(w, userToOut(u))
}

// UpdateScopes handles PUT /user/{userID}/update/scopes.
func (h *UserHandler) UpdateScopes(w http.ResponseWriter, r *http.Request) {
	var in ScopeUpdateIn
	if !decodeJSONBody(w, r, &in) {
		return
	}

	u, err := h.users.ChangeScopes(r.Context(), chi.URLParam(r, "userID"), in.Scopes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Scopes changed", logger.UserID(u.ID), "scopes", u.Scopes)
	WriteJSONOK(w, userToOut(u))
}

// Delete handles DELETE /user/{userID}/delete.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "User deleted", logger.UserID(id))
	WriteNoContent(w)
}
