package repository

import (
	"context"
	"errors"
	"fmt"

	"campus-social-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

// FriendRequestRepository handles database operations for friend requests
type FriendRequestRepository struct {
	db Querier
}

// NewFriendRequestRepository creates a new friend request repository
func NewFriendRequestRepository(db Querier) *FriendRequestRepository {
	return &FriendRequestRepository{db: db}
}

func scanRequest(row pgx.Row) (*models.FriendRequest, error) {
	var req models.FriendRequest
	var status string
	if err := row.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	if !req.Status.Valid() {
		return nil, fmt.Errorf("friend request %d has unknown status %q", req.ID, status)
	}
	return &req, nil
}

func statusStrings(statuses []models.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// GetForRecipient retrieves a request addressed to recipientID in one of statuses
func (r *FriendRequestRepository) GetForRecipient(ctx context.Context, id, recipientID int64, statuses ...models.RequestStatus) (*models.FriendRequest, error) {
	if len(statuses) == 0 {
		statuses = []models.RequestStatus{models.RequestPending}
	}
	query := `
		SELECT ` + requestColumns + `
		FROM friend_requests
		WHERE id = $1 AND to_user_id = $2 AND status = ANY($3)
	`
	req, err := scanRequest(r.db.QueryRow(ctx, query, id, recipientID, statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("failed to get friend request: %w", translateError(err))
	}
	return req, nil
}

// FindPendingBetween finds a pending request running in either direction
func (r *FriendRequestRepository) FindPendingBetween(ctx context.Context, userA, userB int64) (*models.FriendRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM friend_requests
		WHERE ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
		  AND status = 'pending'
		ORDER BY id
		LIMIT 1
	`
	req, err := scanRequest(r.db.QueryRow(ctx, query, userA, userB))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending request: %w", translateError(err))
	}
	return req, nil
}

// FindActiveDirected finds a pending or accepted request from fromID to toID
func (r *FriendRequestRepository) FindActiveDirected(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM friend_requests
		WHERE from_user_id = $1 AND to_user_id = $2 AND status IN ('pending', 'accepted')
	`
	req, err := scanRequest(r.db.QueryRow(ctx, query, fromID, toID))
	if err != nil {
		return nil, fmt.Errorf("failed to find active request: %w", translateError(err))
	}
	return req, nil
}

// Create inserts a new pending request
func (r *FriendRequestRepository) Create(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error) {
	if fromID == toID {
		return nil, fmt.Errorf("cannot send friend request to yourself: %w", ErrInvalidOperation)
	}
	query := `
		INSERT INTO friend_requests (from_user_id, to_user_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING ` + requestColumns
	req, err := scanRequest(r.db.QueryRow(ctx, query, fromID, toID))
	if err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", translateError(err))
	}
	return req, nil
}

// DeleteDeclinedFrom purges declined requests from fromID to toID
func (r *FriendRequestRepository) DeleteDeclinedFrom(ctx context.Context, fromID, toID int64) (int64, error) {
	query := `DELETE FROM friend_requests WHERE from_user_id = $1 AND to_user_id = $2 AND status = 'declined'`
	result, err := r.db.Exec(ctx, query, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete declined requests: %w", err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a request by ID
func (r *FriendRequestRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete friend request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("friend request %d: %w", id, ErrNotFound)
	}
	return nil
}

// Transition moves req to next. The update is guarded on the current status so a
// concurrent transition of the same row loses with ErrInvalidStateTransition.
func (r *FriendRequestRepository) Transition(ctx context.Context, req *models.FriendRequest, next models.RequestStatus) error {
	if !req.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", req.Status, next, ErrInvalidStateTransition)
	}
	query := `
		UPDATE friend_requests
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, req.ID, string(next), string(req.Status)).Scan(&req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("request %d is no longer %s: %w", req.ID, req.Status, ErrInvalidStateTransition)
		}
		return fmt.Errorf("failed to update friend request: %w", err)
	}
	req.Status = next
	return nil
}

// DeleteAcceptedBetween removes accepted requests in either direction
func (r *FriendRequestRepository) DeleteAcceptedBetween(ctx context.Context, userA, userB int64) (int64, error) {
	query := `
		DELETE FROM friend_requests
		WHERE ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
		  AND status = 'accepted'
	`
	result, err := r.db.Exec(ctx, query, userA, userB)
	if err != nil {
		return 0, fmt.Errorf("failed to delete accepted requests: %w", err)
	}
	return result.RowsAffected(), nil
}

// PendingSentTo lists pending requests from fromID to any of toIDs
func (r *FriendRequestRepository) PendingSentTo(ctx context.Context, fromID int64, toIDs []int64) ([]*models.FriendRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM friend_requests
		WHERE from_user_id = $1 AND to_user_id = ANY($2) AND status = 'pending'
	`
	return r.list(ctx, query, fromID, toIDs)
}

// PendingReceivedFrom lists pending requests to toID from any of fromIDs
func (r *FriendRequestRepository) PendingReceivedFrom(ctx context.Context, toID int64, fromIDs []int64) ([]*models.FriendRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM friend_requests
		WHERE to_user_id = $1 AND from_user_id = ANY($2) AND status = 'pending'
	`
	return r.list(ctx, query, toID, fromIDs)
}

func (r *FriendRequestRepository) list(ctx context.Context, query string, userID int64, others []int64) ([]*models.FriendRequest, error) {
	if len(others) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, query, userID, others)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.FriendRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend requests: %w", err)
	}
	return requests, nil
}
