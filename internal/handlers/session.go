package handlers

import (
	"context"
	"net/http"

	"campus-social-backend/internal/middleware"

	"github.com/rs/zerolog/log"
)

// SessionRevoker ends a session given its token
type SessionRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// SessionHandler handles session HTTP requests
type SessionHandler struct {
	sessions   SessionRevoker
	cookieName string
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionRevoker, cookieName string) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		cookieName: cookieName,
	}
}

// Logout handles DELETE /api/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	token, ok := middleware.SessionToken(r, h.cookieName)
	if !ok {
		respondError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.sessions.Revoke(ctx, token); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to revoke session")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	log.Info().Int64("user_id", userID).Msg("Session revoked")
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
