package services

import (
	"context"
	"errors"

	"campus-social-backend/internal/models"
	"campus-social-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// Notifier records user-facing events for friend state transitions.
// It is best effort: failures are logged and never reach the caller.
type Notifier struct {
	profiles repository.ProfileStore
	sink     repository.NotificationStore
}

// NewNotifier creates a new notifier
func NewNotifier(profiles repository.ProfileStore, sink repository.NotificationStore) *Notifier {
	return &Notifier{
		profiles: profiles,
		sink:     sink,
	}
}

// FriendRequest tells recipientID that senderID sent request requestID
func (n *Notifier) FriendRequest(ctx context.Context, senderID, recipientID, requestID int64) {
	n.emit(ctx, senderID, recipientID, models.NotificationFriendRequest,
		func(p *models.Profile) string { return "👋 " + p.FullName() + " sent you a friend request!" },
		map[string]any{"request_id": requestID})
}

// FriendAccepted tells senderID that recipientID accepted their request
func (n *Notifier) FriendAccepted(ctx context.Context, recipientID, senderID int64) {
	n.emit(ctx, recipientID, senderID, models.NotificationFriendAccepted,
		func(p *models.Profile) string { return "✅ " + p.FullName() + " accepted your friend request!" },
		nil)
}

// FriendDeclined tells senderID that recipientID declined their request
func (n *Notifier) FriendDeclined(ctx context.Context, recipientID, senderID int64) {
	n.emit(ctx, recipientID, senderID, models.NotificationFriendDeclined,
		func(p *models.Profile) string { return p.FullName() + " declined your friend request." },
		nil)
}

// emit writes a notification from actorID to toID. Actors without an active
// profile produce no notification.
func (n *Notifier) emit(
	ctx context.Context,
	actorID, toID int64,
	kind models.NotificationType,
	message func(*models.Profile) string,
	data map[string]any,
) {
	if n == nil {
		return
	}
	logger := log.With().
		Int64("from_user_id", actorID).
		Int64("user_id", toID).
		Str("type", string(kind)).
		Logger()

	profile, err := n.profiles.GetActive(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Debug().Msg("Sender has no active profile, skipping notification")
			return
		}
		logger.Warn().Err(err).Msg("Failed to load sender profile for notification")
		return
	}

	notification := &models.Notification{
		UserID:     toID,
		FromUserID: &actorID,
		Type:       kind,
		Message:    message(profile),
		Data:       data,
	}
	if err := n.sink.Create(ctx, notification); err != nil {
		logger.Warn().Err(err).Msg("Failed to create notification")
		return
	}
	logger.Debug().Int64("notification_id", notification.ID).Msg("Notification created")
}
