package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionService issues and resolves login sessions. A session is a Redis key
// holding the user id; the client keeps a signed token naming that key.
type SessionService struct {
	rdb    redis.Cmdable
	secret []byte
	ttl    time.Duration
}

// NewSessionService creates a new session service
func NewSessionService(rdb redis.Cmdable, secret string, ttl time.Duration) *SessionService {
	return &SessionService{
		rdb:    rdb,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Issue starts a session for userID and returns its token
func (s *SessionService) Issue(ctx context.Context, userID int64) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	if err := s.rdb.Set(ctx, sessionKey(sessionID), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (s *SessionService) parse(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !token.Valid || claims.ID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Resolve returns the user id of a live session
func (s *SessionService) Resolve(ctx context.Context, tokenString string) (int64, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return 0, err
	}

	stored, err := s.rdb.Get(ctx, sessionKey(claims.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("session expired: %w", ErrInvalidSession)
		}
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	if stored != claims.Subject {
		return 0, fmt.Errorf("session subject mismatch: %w", ErrInvalidSession)
	}

	userID, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed session: %w", ErrInvalidSession)
	}
	return userID, nil
}

// Revoke ends the session named by the token
func (s *SessionService) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, sessionKey(claims.ID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
