package repository

import (
	"context"
	"fmt"

	"campus-social-backend/internal/models"
)

// NotificationRepository appends notifications
type NotificationRepository struct {
	db Querier
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db Querier) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification and fills its ID and timestamp
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, from_user_id, type, message, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	var data any
	if len(n.Data) > 0 {
		data = n.Data
	}
	err := r.db.QueryRow(ctx, query, n.UserID, n.FromUserID, string(n.Type), n.Message, data).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
