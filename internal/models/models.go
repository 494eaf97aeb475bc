package models

import "time"

// Profile is the active student form of a user. The friend core only reads it.
type Profile struct {
	UserID         int64     `json:"user_id"`
	Name           string    `json:"name"`
	Surname        string    `json:"surname"`
	Faculty        string    `json:"faculty"`
	Level          string    `json:"level"`
	PhotoPath      *string   `json:"photo_path,omitempty"`
	PhotoThumbPath *string   `json:"photo_thumb_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullName returns "name surname"
func (p *Profile) FullName() string {
	return p.Name + " " + p.Surname
}

// NotificationType tags a user-facing event
type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
	NotificationFriendDeclined NotificationType = "friend_declined"
)

// Notification represents a user-facing event appended by the friend core
type Notification struct {
	ID         int64            `json:"id"`
	UserID     int64            `json:"user_id"`
	FromUserID *int64           `json:"from_user_id,omitempty"`
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	Data       map[string]any   `json:"data,omitempty"`
	IsRead     bool             `json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
