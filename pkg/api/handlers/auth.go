package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/eecworkbench/eec/internal/logger"
	"github.com/eecworkbench/eec/pkg/api/auth"
	"github.com/eecworkbench/eec/pkg/models"
	"github.com/eecworkbench/eec/pkg/store"
)

// AuthHandler serves the auth service (/api/v1/auth).
type AuthHandler struct {
	users      store.UserRepository
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users store.UserRepository, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, jwtService: jwtService}
}

// LoginRequest is the request body for POST /login. Both JSON and
// application/x-www-form-urlencoded bodies are accepted.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) decodeLogin(w http.ResponseWriter, r *http.Request) (*LoginRequest, bool) {
	var req LoginRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			BadRequest(w, "Invalid form body")
			return nil, false
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	default:
		if !decodeJSONBody(w, r, &req) {
			return nil, false
		}
	}
	if err := validate.Struct(&req); err != nil {
		BadRequest(w, "Username and password are required")
		return nil, false
	}
	return &req, true
}

// Login handles POST /login.
// Authenticates user credentials and returns an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeLogin(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logger.InfoCtx(r.Context(), "Login rejected", logger.KeyUsername, req.Username, "reason", "unknown user")
			Unauthorized(w, "Incorrect username or password")
			return
		}
		writeError(w, r, err)
		return
	}
	if !models.VerifyPassword(req.Password, user.HashedPassword) {
		logger.InfoCtx(r.Context(), "Login rejected", logger.KeyUsername, req.Username, "reason", "wrong password")
		Unauthorized(w, "Incorrect username or password")
		return
	}

	token, err := h.jwtService.GenerateToken(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.InfoCtx(r.Context(), "Login succeeded", logger.KeyUsername, user.Username)
	WriteJSONOK(w, token)
}

// Verify handles GET /verify. The token was already checked by the
// authentication middleware; Verify confirms the user still exists and
// answers with the user's current scopes.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	user, err := h.users.GetUserByUsername(r.Context(), p.Username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			Unauthorized(w, "User not found")
			return
		}
		writeError(w, r, err)
		return
	}

	scopes := user.Scopes
	if scopes == nil {
		scopes = models.Scopes{}
	}
	WriteJSONOK(w, &auth.Principal{UserID: user.ID, Username: user.Username, Scopes: scopes})
}
