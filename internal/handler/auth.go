package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/driveline/driveline/internal/auth"
	"github.com/driveline/driveline/internal/handler/dto"
	"github.com/driveline/driveline/internal/service"
)

// AuthHandler handles magic link sign-in and session endpoints.
type AuthHandler struct {
	svc         *service.AuthService
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. frontendURL is where the
// browser verify flow redirects; leave empty to disable redirects.
func NewAuthHandler(svc *service.AuthService, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// RequestMagicLink handles POST /api/auth/magic-link.
// Always returns 202 for well-formed emails so the endpoint does not
// reveal which addresses have accounts.
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req dto.MagicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	err := h.svc.RequestMagicLink(r.Context(), req.Email, req.Name)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "A valid email address is required")
		return
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many magic link requests, try again later")
		return
	default:
		h.logger.Error("magic link request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If the address is valid, a sign-in link has been sent",
	})
}

// Verify handles POST /api/auth/verify.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	token, user, err := h.svc.VerifyMagicLink(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired magic link")
			return
		}
		h.logger.Error("magic link verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.SessionResponse{
		Token:     token,
		ExpiresIn: int64(auth.SessionTTL.Seconds()),
		User:      dto.ToUserResponse(user),
	})
}

// VerifyRedirect handles GET /api/auth/verify. This is the browser flow:
// the emailed link lands here and the user is forwarded to the frontend
// callback with either a session token or an error flag.
func (h *AuthHandler) VerifyRedirect(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")

	token, user, err := h.svc.VerifyMagicLink(r.Context(), rawToken)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidToken) {
			h.logger.Error("magic link verification failed", "error", err)
		}
		if h.frontendURL == "" {
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired magic link")
			return
		}
		http.Redirect(w, r, h.frontendURL+"/auth/callback?error=invalid_token", http.StatusFound)
		return
	}

	if h.frontendURL == "" {
		writeJSON(w, http.StatusOK, dto.SessionResponse{
			Token:     token,
			ExpiresIn: int64(auth.SessionTTL.Seconds()),
			User:      dto.ToUserResponse(user),
		})
		return
	}

	http.Redirect(w, r, h.frontendURL+"/auth/callback?token="+url.QueryEscape(token), http.StatusFound)
}

// Logout handles POST /api/auth/logout. Sessions are stateless JWTs, so
// this only records the sign-out; clients drop the token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		h.logger.Info("user_signed_out", "user_id", identity.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustIdentityFromContext(r.Context())

	user, err := h.svc.CurrentUser(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "UNKNOWN_USER", "Account no longer exists")
			return
		}
		h.logger.Error("current user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// Status handles GET /api/auth/status. Works with or without a token.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       identity.UserID,
		"email":         identity.Email,
	})
}
