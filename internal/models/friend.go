package models

import "time"

// RequestStatus is the lifecycle state of a directed friend request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// CanTransitionTo reports whether the request state machine allows s -> next.
// Only pending requests move, and only to accepted or declined.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == RequestPending && (next == RequestAccepted || next == RequestDeclined)
}

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestDeclined:
		return true
	}
	return false
}

// FriendRequest represents a directed request from one user to another
type FriendRequest struct {
	ID         int64         `json:"id"`
	FromUserID int64         `json:"from_user_id"`
	ToUserID   int64         `json:"to_user_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// SentBy reports whether userID authored the request
func (r *FriendRequest) SentBy(userID int64) bool {
	return r.FromUserID == userID
}

// Friendship represents a confirmed bidirectional relationship.
// User1ID is always lower than User2ID.
type Friendship struct {
	ID        int64     `json:"id"`
	User1ID   int64     `json:"user1_id"`
	User2ID   int64     `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the member of the friendship that is not userID
func (f *Friendship) Other(userID int64) int64 {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

// CanonicalPair orders two user ids so the pair is stored exactly once
func CanonicalPair(a, b int64) (lo, hi int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// FriendStatusKind is the relationship verdict between a viewer and another user
type FriendStatusKind string

const (
	StatusFriends         FriendStatusKind = "friends"
	StatusPendingSent     FriendStatusKind = "pending_sent"
	StatusPendingReceived FriendStatusKind = "pending_received"
	StatusNone            FriendStatusKind = "none"
)

// FriendStatus is a verdict plus the pending request it refers to, if any
type FriendStatus struct {
	Status    FriendStatusKind `json:"status"`
	RequestID *int64           `json:"request_id,omitempty"`
}
