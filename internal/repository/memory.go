package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"campus-social-backend/internal/models"
)

// MemoryStore keeps relations, profiles and notifications in process memory.
// It enforces the same uniqueness and ordering constraints as the SQL schema
// and serializes transactions, so it backs local development and tests.
type MemoryStore struct {
	mu            sync.Mutex
	state         *memState
	profiles      map[int64]*models.Profile
	notifications []*models.Notification
	nextNotifID   int64
	now           func() time.Time
}

type memState struct {
	requests         map[int64]models.FriendRequest
	friendships      map[int64]models.Friendship
	nextRequestID    int64
	nextFriendshipID int64
}

func (s *memState) clone() *memState {
	return &memState{
		requests:         maps.Clone(s.requests),
		friendships:      maps.Clone(s.friendships),
		nextRequestID:    s.nextRequestID,
		nextFriendshipID: s.nextFriendshipID,
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			requests:    make(map[int64]models.FriendRequest),
			friendships: make(map[int64]models.Friendship),
		},
		profiles: make(map[int64]*models.Profile),
		now:      time.Now,
	}
}

// Friendships returns a friendship store outside any transaction
func (s *MemoryStore) Friendships() FriendshipStore {
	return memFriendships{&memView{store: s}}
}

// FriendRequests returns a friend request store outside any transaction
func (s *MemoryStore) FriendRequests() FriendRequestStore {
	return memRequests{&memView{store: s}}
}

// WithTx runs fn against a private copy of the state and publishes it only when fn succeeds.
// The store lock is held for the duration of fn, so fn must not call back into
// the store outside tx.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Relations) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	draft := s.state.clone()
	if err := fn(memTx{view: &memView{store: s, tx: draft}}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// PutProfile stores or replaces the active profile of a user
func (s *MemoryStore) PutProfile(p *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

// GetActive implements ProfileStore
func (s *MemoryStore) GetActive(ctx context.Context, userID int64) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile for user %d: %w", userID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// GetActiveMany implements ProfileStore
func (s *MemoryStore) GetActiveMany(ctx context.Context, userIDs []int64) (map[int64]*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]*models.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

// Create implements NotificationStore
func (s *MemoryStore) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNotifID++
	n.ID = s.nextNotifID
	n.CreatedAt = s.now()
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

// Notifications returns the notifications addressed to userID, oldest first
func (s *MemoryStore) Notifications(userID int64) []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

type memTx struct {
	view *memView
}

func (t memTx) Friendships() FriendshipStore       { return memFriendships{t.view} }
func (t memTx) FriendRequests() FriendRequestStore { return memRequests{t.view} }

// memView reads and writes either the committed state (tx == nil, locking the
// store per call) or a transaction draft (already under the store lock).
type memView struct {
	store *MemoryStore
	tx    *memState
}

type memFriendships struct{ *memView }

type memRequests struct{ *memView }

func (v *memView) acquire() (*memState, func()) {
	if v.tx != nil {
		return v.tx, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}

func sortedFriendships(st *memState) []models.Friendship {
	out := make([]models.Friendship, 0, len(st.friendships))
	for _, id := range slices.Sorted(maps.Keys(st.friendships)) {
		out = append(out, st.friendships[id])
	}
	return out
}

func sortedRequests(st *memState) []models.FriendRequest {
	out := make([]models.FriendRequest, 0, len(st.requests))
	for _, id := range slices.Sorted(maps.Keys(st.requests)) {
		out = append(out, st.requests[id])
	}
	return out
}

func findFriendship(st *memState, userA, userB int64) (models.Friendship, bool) {
	lo, hi := models.CanonicalPair(userA, userB)
	for _, f := range st.friendships {
		if f.User1ID == lo && f.User2ID == hi {
			return f, true
		}
	}
	return models.Friendship{}, false
}

func (v memFriendships) Create(ctx context.Context, userA, userB int64) (*models.Friendship, error) {
	if userA == userB {
		return nil, fmt.Errorf("cannot create friendship with yourself: %w", ErrInvalidOperation)
	}
	st, release := v.acquire()
	defer release()

	if _, ok := findFriendship(st, userA, userB); ok {
		return nil, fmt.Errorf("failed to create friendship: %w: unique_friendship", ErrConflict)
	}
	lo, hi := models.CanonicalPair(userA, userB)
	st.nextFriendshipID++
	f := models.Friendship{ID: st.nextFriendshipID, User1ID: lo, User2ID: hi, CreatedAt: v.store.now()}
	st.friendships[f.ID] = f
	return &f, nil
}

func (v memFriendships) Exists(ctx context.Context, userA, userB int64) (bool, error) {
	if userA == userB {
		return false, nil
	}
	st, release := v.acquire()
	defer release()
	_, ok := findFriendship(st, userA, userB)
	return ok, nil
}

func (v memFriendships) Find(ctx context.Context, userA, userB int64) (*models.Friendship, error) {
	st, release := v.acquire()
	defer release()
	f, ok := findFriendship(st, userA, userB)
	if !ok {
		return nil, fmt.Errorf("failed to get friendship: %w", ErrNotFound)
	}
	return &f, nil
}

func (v memFriendships) Delete(ctx context.Context, friendship *models.Friendship) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.friendships[friendship.ID]; !ok {
		return fmt.Errorf("friendship %d: %w", friendship.ID, ErrNotFound)
	}
	delete(st.friendships, friendship.ID)
	return nil
}

func (v memFriendships) CountForUser(ctx context.Context, userID int64) (int, error) {
	st, release := v.acquire()
	defer release()
	count := 0
	for _, f := range st.friendships {
		if f.User1ID == userID || f.User2ID == userID {
			count++
		}
	}
	return count, nil
}

func (v memFriendships) ListFriendIDs(ctx context.Context, userID int64, limit int) ([]int64, error) {
	st, release := v.acquire()
	defer release()
	var ids []int64
	for _, f := range sortedFriendships(st) {
		if limit > 0 && len(ids) >= limit {
			break
		}
		if f.User1ID == userID || f.User2ID == userID {
			ids = append(ids, f.Other(userID))
		}
	}
	return ids, nil
}

func (v memFriendships) ListPage(ctx context.Context, userID int64, limit, offset int) ([]*models.Friendship, int, error) {
	st, release := v.acquire()
	defer release()
	var all []*models.Friendship
	for _, f := range sortedFriendships(st) {
		if f.User1ID == userID || f.User2ID == userID {
			all = append(all, &f)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (v memFriendships) FriendsAmong(ctx context.Context, userID int64, candidates []int64) ([]int64, error) {
	st, release := v.acquire()
	defer release()
	var ids []int64
	for _, f := range sortedFriendships(st) {
		if f.User1ID != userID && f.User2ID != userID {
			continue
		}
		if other := f.Other(userID); slices.Contains(candidates, other) {
			ids = append(ids, other)
		}
	}
	return ids, nil
}

func (v memRequests) GetForRecipient(ctx context.Context, id, recipientID int64, statuses ...models.RequestStatus) (*models.FriendRequest, error) {
	if len(statuses) == 0 {
		statuses = []models.RequestStatus{models.RequestPending}
	}
	st, release := v.acquire()
	defer release()
	req, ok := st.requests[id]
	if !ok || req.ToUserID != recipientID || !slices.Contains(statuses, req.Status) {
		return nil, fmt.Errorf("failed to get friend request: %w", ErrNotFound)
	}
	return &req, nil
}

func (v memRequests) FindPendingBetween(ctx context.Context, userA, userB int64) (*models.FriendRequest, error) {
	st, release := v.acquire()
	defer release()
	for _, req := range sortedRequests(st) {
		if req.Status != models.RequestPending {
			continue
		}
		if (req.FromUserID == userA && req.ToUserID == userB) || (req.FromUserID == userB && req.ToUserID == userA) {
			return &req, nil
		}
	}
	return nil, fmt.Errorf("failed to find pending request: %w", ErrNotFound)
}

func (v memRequests) FindActiveDirected(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error) {
	st, release := v.acquire()
	defer release()
	for _, req := range st.requests {
		if req.FromUserID == fromID && req.ToUserID == toID &&
			(req.Status == models.RequestPending || req.Status == models.RequestAccepted) {
			return &req, nil
		}
	}
	return nil, fmt.Errorf("failed to find active request: %w", ErrNotFound)
}

func (v memRequests) Create(ctx context.Context, fromID, toID int64) (*models.FriendRequest, error) {
	if fromID == toID {
		return nil, fmt.Errorf("cannot send friend request to yourself: %w", ErrInvalidOperation)
	}
	st, release := v.acquire()
	defer release()
	for _, req := range st.requests {
		if req.FromUserID == fromID && req.ToUserID == toID {
			return nil, fmt.Errorf("failed to create friend request: %w: unique_friend_request", ErrConflict)
		}
	}
	now := v.store.now()
	st.nextRequestID++
	req := models.FriendRequest{
		ID:         st.nextRequestID,
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     models.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	st.requests[req.ID] = req
	return &req, nil
}

func (v memRequests) DeleteDeclinedFrom(ctx context.Context, fromID, toID int64) (int64, error) {
	st, release := v.acquire()
	defer release()
	var n int64
	for id, req := range st.requests {
		if req.FromUserID == fromID && req.ToUserID == toID && req.Status == models.RequestDeclined {
			delete(st.requests, id)
			n++
		}
	}
	return n, nil
}

func (v memRequests) Delete(ctx context.Context, id int64) error {
	st, release := v.acquire()
	defer release()
	if _, ok := st.requests[id]; !ok {
		return fmt.Errorf("friend request %d: %w", id, ErrNotFound)
	}
	delete(st.requests, id)
	return nil
}

func (v memRequests) Transition(ctx context.Context, req *models.FriendRequest, next models.RequestStatus) error {
	if !req.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", req.Status, next, ErrInvalidStateTransition)
	}
	st, release := v.acquire()
	defer release()
	stored, ok := st.requests[req.ID]
	if !ok || stored.Status != req.Status {
		return fmt.Errorf("request %d is no longer %s: %w", req.ID, req.Status, ErrInvalidStateTransition)
	}
	stored.Status = next
	stored.UpdatedAt = v.store.now()
	st.requests[req.ID] = stored
	req.Status = stored.Status
	req.UpdatedAt = stored.UpdatedAt
	return nil
}

func (v memRequests) DeleteAcceptedBetween(ctx context.Context, userA, userB int64) (int64, error) {
	st, release := v.acquire()
	defer release()
	var n int64
	for id, req := range st.requests {
		if req.Status != models.RequestAccepted {
			continue
		}
		if (req.FromUserID == userA && req.ToUserID == userB) || (req.FromUserID == userB && req.ToUserID == userA) {
			delete(st.requests, id)
			n++
		}
	}
	return n, nil
}

func (v memRequests) PendingSentTo(ctx context.Context, fromID int64, toIDs []int64) ([]*models.FriendRequest, error) {
	st, release := v.acquire()
	defer release()
	var out []*models.FriendRequest
	for _, req := range sortedRequests(st) {
		if req.FromUserID == fromID && req.Status == models.RequestPending && slices.Contains(toIDs, req.ToUserID) {
			out = append(out, &req)
		}
	}
	return out, nil
}

func (v memRequests) PendingReceivedFrom(ctx context.Context, toID int64, fromIDs []int64) ([]*models.FriendRequest, error) {
	st, release := v.acquire()
	defer release()
	var out []*models.FriendRequest
	for _, req := range sortedRequests(st) {
		if req.ToUserID == toID && req.Status == models.RequestPending && slices.Contains(fromIDs, req.FromUserID) {
			out = append(out, &req)
		}
	}
	return out, nil
}
