package api

import (
	"errors"
	"net/http"

	"github.com/onnwee/beaconads/internal/auth"
	"github.com/onnwee/beaconads/internal/user"
	"github.com/onnwee/beaconads/internal/validate"
)

// RegisterRequest represents the request body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the request body for POST /auth/login. Login is a
// username or an email address.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RefreshRequest represents the request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// PasswordResetRequest represents the request body for POST /auth/password-reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest represents the request body for
// POST /auth/password-reset/confirm.
type PasswordResetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User   *user.User      `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthHandlers holds dependencies for account and token HTTP handlers.
type AuthHandlers struct {
	users  *user.Service
	tokens *auth.JWTService
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(users *user.Service, tokens *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{users: users, tokens: tokens}
}

// Register handles POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateUsername):
			WriteFieldErrors(w, r.Context(), validate.FieldErrors{"username": err.Error()})
		case errors.Is(err, user.ErrDuplicateEmail):
			WriteFieldErrors(w, r.Context(), validate.FieldErrors{"email": err.Error()})
		default:
			writeServiceError(w, r, err, "failed to register user")
		}
		return
	}
	h.issue(w, r, http.StatusCreated, u)
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeCodedError(w, r, ErrCodeAuthFailed, "Invalid username or password")
			return
		}
		writeServiceError(w, r, err, "failed to authenticate user")
		return
	}
	h.issue(w, r, http.StatusOK, u)
}

func (h *AuthHandlers) issue(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	pair, err := h.tokens.GenerateTokenPair(u.ID, u.Email)
	if err != nil {
		writeServiceError(w, r, err, "failed to issue tokens")
		return
	}
	writeJSON(w, r, status, AuthResponse{User: u, Tokens: pair})
}

// Refresh handles POST /auth/refresh: a valid refresh token buys a new pair.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID, err := h.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		writeCodedError(w, r, ErrCodeAuthFailed, "Invalid or expired refresh token")
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeCodedError(w, r, ErrCodeAuthFailed, "Invalid or expired refresh token")
			return
		}
		writeServiceError(w, r, err, "failed to load user")
		return
	}
	pair, err := h.tokens.GenerateTokenPair(u.ID, u.Email)
	if err != nil {
		writeServiceError(w, r, err, "failed to issue tokens")
		return
	}
	writeJSON(w, r, http.StatusOK, pair)
}

// RequestPasswordReset handles POST /auth/password-reset. The answer is the
// same whether or not the address has an account.
func (h *AuthHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err, "failed to start password reset")
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: "If the address has an account, a reset code has been sent"})
}

// ConfirmPasswordReset handles POST /auth/password-reset/confirm.
func (h *AuthHandlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.users.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		if errors.Is(err, user.ErrInvalidResetCode) {
			WriteFieldErrors(w, r.Context(), validate.FieldErrors{"code": err.Error()})
			return
		}
		writeServiceError(w, r, err, "failed to reset password")
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}
