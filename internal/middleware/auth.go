package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionResolver maps a session token to a user id
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (int64, error)
}

// PresenceTracker records that a user was just active
type PresenceTracker interface {
	Touch(ctx context.Context, userID int64) error
}

// AuthMiddleware authenticates requests by session token, read from the
// Authorization bearer header or the session cookie. presence may be nil.
func AuthMiddleware(sessions SessionResolver, cookieName string, presence PresenceTracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := SessionToken(r, cookieName)
			if !ok {
				respondError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected session")
				respondError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if presence != nil {
				if err := presence.Touch(r.Context(), userID); err != nil {
					log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to update presence")
				}
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken returns the session token carried by r, if any
func SessionToken(r *http.Request, cookieName string) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookieName == "" {
		return "", false
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// WithUserID stores the authenticated user id in ctx
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) int64 {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0
	}
	return userID
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
