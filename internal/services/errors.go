package services

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyFriends        = errors.New("already friends")
	ErrDuplicateRequest      = errors.New("friend request already sent")
	ErrIncomingRequestExists = errors.New("incoming friend request exists")
	ErrInvalidBatch          = errors.New("invalid batch")
	ErrInvalidSession        = errors.New("invalid session")
)

// PendingRequestError reports a pending request that already covers the pair.
// Incoming is true when the other user sent it.
type PendingRequestError struct {
	RequestID int64
	Incoming  bool
}

func (e *PendingRequestError) Error() string {
	if e.Incoming {
		return fmt.Sprintf("incoming friend request %d exists", e.RequestID)
	}
	return fmt.Sprintf("friend request %d already sent", e.RequestID)
}

// Is matches ErrIncomingRequestExists or ErrDuplicateRequest depending on direction
func (e *PendingRequestError) Is(target error) bool {
	if e.Incoming {
		return target == ErrIncomingRequestExists
	}
	return target == ErrDuplicateRequest
}
