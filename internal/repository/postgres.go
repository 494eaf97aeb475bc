package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

// PostgresStore implements RelationStore on top of pgx
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new postgres relation store
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Friendships returns the friendship repository bound to the pool
func (s *PostgresStore) Friendships() FriendshipStore {
	return NewFriendshipRepository(s.db)
}

// FriendRequests returns the friend request repository bound to the pool
func (s *PostgresStore) FriendRequests() FriendRequestStore {
	return NewFriendRequestRepository(s.db)
}

// WithTx runs fn inside a single database transaction. The transaction is
// rolled back when fn fails and committed otherwise.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Relations) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(pgRelations{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}
	return nil
}

type pgRelations struct {
	q Querier
}

func (r pgRelations) Friendships() FriendshipStore {
	return NewFriendshipRepository(r.q)
}

func (r pgRelations) FriendRequests() FriendRequestStore {
	return NewFriendRequestRepository(r.q)
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
