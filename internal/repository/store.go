package repository

import (
	"context"

	"campus-social-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pools and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions, such as *pgxpool.Pool
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// FriendshipStore holds confirmed friendships, one canonical row per pair.
// Every method normalizes the pair before touching storage.
type FriendshipStore interface {
	Create(ctx context.Context, userA, userB int64) (*models.Friendship, error)
	Exists(ctx context.Context, userA, userB int64) (bool, error)
	Find(ctx context.Context, userA, userB int64) (*models.Friendship, error)
	Delete(ctx context.Context, friendship *models.Friendship) error
	CountForUser(ctx context.Context, userID int64) (int, error)
	// ListFriendIDs returns the other member of every friendship of userID.
	// A non-positive limit means no cap.
	ListFriendIDs(ctx context.Context, userID int64, limit int) ([]int64, error)
	ListPage(ctx context.Context, userID int64, limit, offset int) ([]*models.Friendship, int, error)
	// FriendsAmong returns which of candidates are friends of userID
	FriendsAmong(ctx context.Context, userID int64, candidates []int64) ([]int64, error)
}

// FriendRequestStore holds directed friend requests, one row per directed pair
type FriendRequestStore interface {
	GetForRecipient(ctx context.Context, id, recipientID int64, statuses ...models.RequestStatus) (*models.FriendRequest, error)
	// FindPendingBetween looks in both directions; use SentBy to tell which way it runs
	FindPendingBetween(ctx context.Context, userA, userB int64) (*models.FriendRequest, error)
	FindActiveDirected(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error)
	Create(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error)
	DeleteDeclinedFrom(ctx context.Context, fromID, toID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
	Transition(ctx context.Context, req *models.FriendRequest, next models.RequestStatus) error
	DeleteAcceptedBetween(ctx context.Context, userA, userB int64) (int64, error)
	PendingSentTo(ctx context.Context, fromID int64, toIDs []int64) ([]*models.FriendRequest, error)
	PendingReceivedFrom(ctx context.Context, toID int64, fromIDs []int64) ([]*models.FriendRequest, error)
}

// Relations gives access to both relationship stores over one connection or transaction
type Relations interface {
	Friendships() FriendshipStore
	FriendRequests() FriendRequestStore
}

// RelationStore is Relations plus an atomic transaction boundary.
// If fn returns an error every write made through tx is discarded.
type RelationStore interface {
	Relations
	WithTx(ctx context.Context, fn func(tx Relations) error) error
}

// ProfileStore reads active student profiles
type ProfileStore interface {
	GetActive(ctx context.Context, userID int64) (*models.Profile, error)
	GetActiveMany(ctx context.Context, userIDs []int64) (map[int64]*models.Profile, error)
}

// NotificationStore appends notifications
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}
