package services

import (
	"errors"

	"campus-social-backend/internal/models"
	"campus-social-backend/internal/repository"
)

// Code is the machine-readable reason attached to a Result
type Code string

const (
	CodeOK                     Code = "ok"
	CodeInvalidOperation       Code = "invalid_operation"
	CodeAlreadyFriends         Code = "already_friends"
	CodeDuplicateRequest       Code = "duplicate_request"
	CodeIncomingRequestExists  Code = "incoming_request_exists"
	CodeNotFound               Code = "not_found"
	CodeConflict               Code = "conflict"
	CodeInvalidStateTransition Code = "invalid_state_transition"
)

// Result is the outcome of a relationship mutation. Expected business failures
// come back as a Result with Success false; only internal failures are errors.
type Result struct {
	Success   bool
	Code      Code
	Status    models.FriendStatusKind
	RequestID *int64
	Message   string
}

func succeeded(status models.FriendStatusKind, message string) *Result {
	return &Result{Success: true, Code: CodeOK, Status: status, Message: message}
}

func failed(code Code, message string) *Result {
	return &Result{Code: code, Message: message}
}

// resultFromError turns a domain error into a Result. Unknown errors are returned as is.
func resultFromError(err error, notFoundMessage string) (*Result, error) {
	var pending *PendingRequestError
	switch {
	case errors.As(err, &pending):
		id := pending.RequestID
		if pending.Incoming {
			return &Result{
				Code:      CodeIncomingRequestExists,
				Status:    models.StatusPendingReceived,
				RequestID: &id,
				Message:   "This user already sent you a friend request!",
			}, nil
		}
		return &Result{
			Code:      CodeDuplicateRequest,
			Status:    models.StatusPendingSent,
			RequestID: &id,
			Message:   "Friend request already sent",
		}, nil
	case errors.Is(err, ErrAlreadyFriends):
		r := failed(CodeAlreadyFriends, "Already friends")
		r.Status = models.StatusFriends
		return r, nil
	case errors.Is(err, repository.ErrInvalidOperation):
		return failed(CodeInvalidOperation, "Cannot add yourself"), nil
	case errors.Is(err, repository.ErrNotFound):
		return failed(CodeNotFound, notFoundMessage), nil
	case errors.Is(err, repository.ErrInvalidStateTransition):
		return failed(CodeInvalidStateTransition, "Request is no longer pending"), nil
	case errors.Is(err, repository.ErrConflict):
		return failed(CodeConflict, "Concurrent update, please retry"), nil
	}
	return nil, err
}
