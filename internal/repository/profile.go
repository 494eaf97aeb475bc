package repository

import (
	"context"
	"fmt"

	"campus-social-backend/internal/models"
)

// ProfileRepository reads active profiles from the form table
type ProfileRepository struct {
	db Querier
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db Querier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `user_id, name, surname, faculty, level, photo_path, photo_thumb_path, created_at`

// GetActive retrieves the active profile of a user
func (r *ProfileRepository) GetActive(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM form
		WHERE user_id = $1 AND active = TRUE
		ORDER BY id
		LIMIT 1
	`
	var p models.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Name, &p.Surname, &p.Faculty, &p.Level,
		&p.PhotoPath, &p.PhotoThumbPath, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", translateError(err))
	}
	return &p, nil
}

// GetActiveMany retrieves active profiles keyed by user ID. Users without one are absent.
func (r *ProfileRepository) GetActiveMany(ctx context.Context, userIDs []int64) (map[int64]*models.Profile, error) {
	profiles := make(map[int64]*models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	query := `
		SELECT DISTINCT ON (user_id) ` + profileColumns + `
		FROM form
		WHERE user_id = ANY($1) AND active = TRUE
		ORDER BY user_id, id
	`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Profile
		err := rows.Scan(
			&p.UserID, &p.Name, &p.Surname, &p.Faculty, &p.Level,
			&p.PhotoPath, &p.PhotoThumbPath, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles[p.UserID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}
