package repository

import (
	"context"
	"fmt"

	"campus-social-backend/internal/models"
)

// FriendshipRepository handles database operations for friendships
type FriendshipRepository struct {
	db Querier
}

// NewFriendshipRepository creates a new friendship repository
func NewFriendshipRepository(db Querier) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Create inserts the canonical (lo, hi) row for the pair
func (r *FriendshipRepository) Create(ctx context.Context, userA, userB int64) (*models.Friendship, error) {
	if userA == userB {
		return nil, fmt.Errorf("cannot create friendship with yourself: %w", ErrInvalidOperation)
	}
	lo, hi := models.CanonicalPair(userA, userB)

	query := `
		INSERT INTO friendships (user1_id, user2_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	friendship := &models.Friendship{User1ID: lo, User2ID: hi}
	err := r.db.QueryRow(ctx, query, lo, hi).Scan(&friendship.ID, &friendship.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create friendship: %w", translateError(err))
	}
	return friendship, nil
}

// Exists checks whether the pair are friends
func (r *FriendshipRepository) Exists(ctx context.Context, userA, userB int64) (bool, error) {
	if userA == userB {
		return false, nil
	}
	lo, hi := models.CanonicalPair(userA, userB)

	query := `SELECT EXISTS(SELECT 1 FROM friendships WHERE user1_id = $1 AND user2_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, lo, hi).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// Find retrieves the friendship for the pair regardless of argument order
func (r *FriendshipRepository) Find(ctx context.Context, userA, userB int64) (*models.Friendship, error) {
	lo, hi := models.CanonicalPair(userA, userB)

	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM friendships
		WHERE user1_id = $1 AND user2_id = $2
	`
	var f models.Friendship
	err := r.db.QueryRow(ctx, query, lo, hi).Scan(&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get friendship: %w", translateError(err))
	}
	return &f, nil
}

// Delete removes a friendship row
func (r *FriendshipRepository) Delete(ctx context.Context, friendship *models.Friendship) error {
	query := `DELETE FROM friendships WHERE id = $1`
	result, err := r.db.Exec(ctx, query, friendship.ID)
	if err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("friendship %d: %w", friendship.ID, ErrNotFound)
	}
	return nil
}

// CountForUser counts the friendships the user is a member of
func (r *FriendshipRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM friendships WHERE user1_id = $1 OR user2_id = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count friendships: %w", err)
	}
	return count, nil
}

// ListFriendIDs returns the other member of every friendship of userID
func (r *FriendshipRepository) ListFriendIDs(ctx context.Context, userID int64, limit int) ([]int64, error) {
	query := `
		SELECT CASE WHEN user1_id = $1 THEN user2_id ELSE user1_id END
		FROM friendships
		WHERE user1_id = $1 OR user2_id = $1
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.queryIDs(ctx, query, args...)
}

// ListPage retrieves a page of the user's friendships with the total count
func (r *FriendshipRepository) ListPage(ctx context.Context, userID int64, limit, offset int) ([]*models.Friendship, int, error) {
	total, err := r.CountForUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM friendships
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list friendships: %w", err)
	}
	defer rows.Close()

	var friendships []*models.Friendship
	for rows.Next() {
		var f models.Friendship
		if err := rows.Scan(&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan friendship: %w", err)
		}
		friendships = append(friendships, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating friendships: %w", err)
	}

	return friendships, total, nil
}

// FriendsAmong returns the subset of candidates that are friends of userID
func (r *FriendshipRepository) FriendsAmong(ctx context.Context, userID int64, candidates []int64) ([]int64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	query := `
		SELECT CASE WHEN user1_id = $1 THEN user2_id ELSE user1_id END
		FROM friendships
		WHERE (user1_id = $1 AND user2_id = ANY($2))
		   OR (user2_id = $1 AND user1_id = ANY($2))
	`
	return r.queryIDs(ctx, query, userID, candidates)
}

func (r *FriendshipRepository) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friend ids: %w", err)
	}
	return ids, nil
}
