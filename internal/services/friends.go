package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"campus-social-backend/internal/models"
	"campus-social-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	MaxBatchStatusIDs = 100
	DefaultPerPage    = 20
	MaxPerPage        = 50
)

// FriendService owns the friend request and friendship lifecycle.
// It is the only component that mutates both relation stores together.
type FriendService struct {
	store    repository.RelationStore
	profiles repository.ProfileStore
	notifier *Notifier
	cache    *FriendsCache
	presence *Presence
}

// NewFriendService creates a new friend service. cache and presence may be nil.
func NewFriendService(
	store repository.RelationStore,
	profiles repository.ProfileStore,
	notifier *Notifier,
	cache *FriendsCache,
	presence *Presence,
) *FriendService {
	return &FriendService{
		store:    store,
		profiles: profiles,
		notifier: notifier,
		cache:    cache,
		presence: presence,
	}
}

// inTx runs fn in a transaction and re-runs it once when it lost a uniqueness
// race, so the second attempt observes the committed winner.
func (s *FriendService) inTx(ctx context.Context, fn func(tx repository.Relations) error) error {
	err := s.store.WithTx(ctx, fn)
	if errors.Is(err, repository.ErrConflict) {
		log.Debug().Err(err).Msg("Retrying transaction after constraint conflict")
		err = s.store.WithTx(ctx, fn)
	}
	return err
}

// SendRequest creates a pending request from senderID to recipientID
func (s *FriendService) SendRequest(ctx context.Context, senderID, recipientID int64) (*Result, error) {
	if senderID == recipientID {
		return failed(CodeInvalidOperation, "Cannot add yourself"), nil
	}

	var created *models.FriendRequest
	err := s.inTx(ctx, func(tx repository.Relations) error {
		friends, err := tx.Friendships().Exists(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		if friends {
			return ErrAlreadyFriends
		}

		requests := tx.FriendRequests()
		pending, err := requests.FindPendingBetween(ctx, senderID, recipientID)
		if err == nil {
			return &PendingRequestError{RequestID: pending.ID, Incoming: pending.SentBy(recipientID)}
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		purged, err := requests.DeleteDeclinedFrom(ctx, senderID, recipientID)
		if err != nil {
			return err
		}
		if purged > 0 {
			log.Debug().
				Int64("user_id", senderID).
				Int64("to_user_id", recipientID).
				Int64("purged", purged).
				Msg("Purged declined friend requests")
		}

		// Not pending and not friends, so an active row here is accepted
		// history left behind by a friendship that no longer exists.
		stale, err := requests.FindActiveDirected(ctx, senderID, recipientID)
		switch {
		case err == nil:
			if err := requests.Delete(ctx, stale.ID); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		created, err = requests.Create(ctx, senderID, recipientID)
		return err
	})
	if err != nil {
		result, err := resultFromError(err, "User not found")
		if err != nil {
			log.Error().
				Err(err).
				Int64("user_id", senderID).
				Int64("to_user_id", recipientID).
				Msg("Failed to send friend request")
			return nil, fmt.Errorf("failed to send friend request: %w", err)
		}
		return result, nil
	}

	log.Info().
		Int64("user_id", senderID).
		Int64("to_user_id", recipientID).
		Int64("request_id", created.ID).
		Msg("Friend request sent")

	s.notifier.FriendRequest(ctx, senderID, recipientID, created.ID)

	result := succeeded(models.StatusPendingSent, "Friend request sent")
	result.RequestID = &created.ID
	return result, nil
}

// AcceptRequest accepts a request addressed to recipientID. Accepting an already
// accepted request, or one whose pair is already friends, succeeds without a
// second friendship.
func (s *FriendService) AcceptRequest(ctx context.Context, recipientID, requestID int64) (*Result, error) {
	var req *models.FriendRequest
	var alreadyFriends bool
	err := s.inTx(ctx, func(tx repository.Relations) error {
		var err error
		req, err = tx.FriendRequests().GetForRecipient(ctx, requestID, recipientID,
			models.RequestPending, models.RequestAccepted)
		if err != nil {
			return err
		}

		alreadyFriends, err = tx.Friendships().Exists(ctx, recipientID, req.FromUserID)
		if err != nil {
			return err
		}
		if !alreadyFriends {
			if _, err := tx.Friendships().Create(ctx, recipientID, req.FromUserID); err != nil {
				return err
			}
		}

		if req.Status == models.RequestPending {
			return tx.FriendRequests().Transition(ctx, req, models.RequestAccepted)
		}
		return nil
	})
	if err != nil {
		result, err := resultFromError(err, "Request not found")
		if err != nil {
			log.Error().
				Err(err).
				Int64("user_id", recipientID).
				Int64("request_id", requestID).
				Msg("Failed to accept friend request")
			return nil, fmt.Errorf("failed to accept friend request: %w", err)
		}
		return result, nil
	}

	rid := req.ID
	if alreadyFriends {
		result := succeeded(models.StatusFriends, "Already friends")
		result.RequestID = &rid
		return result, nil
	}

	log.Info().
		Int64("user_id", recipientID).
		Int64("from_user_id", req.FromUserID).
		Int64("request_id", req.ID).
		Msg("Friend request accepted")

	s.cache.Invalidate(ctx, recipientID, req.FromUserID)
	s.notifier.FriendAccepted(ctx, recipientID, req.FromUserID)

	result := succeeded(models.StatusFriends, "Friend request accepted")
	result.RequestID = &rid
	return result, nil
}

// DeclineRequest declines a pending request addressed to recipientID
func (s *FriendService) DeclineRequest(ctx context.Context, recipientID, requestID int64) (*Result, error) {
	var req *models.FriendRequest
	err := s.inTx(ctx, func(tx repository.Relations) error {
		var err error
		req, err = tx.FriendRequests().GetForRecipient(ctx, requestID, recipientID, models.RequestPending)
		if err != nil {
			return err
		}
		return tx.FriendRequests().Transition(ctx, req, models.RequestDeclined)
	})
	if err != nil {
		result, err := resultFromError(err, "Request not found")
		if err != nil {
			log.Error().
				Err(err).
				Int64("user_id", recipientID).
				Int64("request_id", requestID).
				Msg("Failed to decline friend request")
			return nil, fmt.Errorf("failed to decline friend request: %w", err)
		}
		return result, nil
	}

	log.Info().
		Int64("user_id", recipientID).
		Int64("from_user_id", req.FromUserID).
		Int64("request_id", req.ID).
		Msg("Friend request declined")

	s.notifier.FriendDeclined(ctx, recipientID, req.FromUserID)

	result := succeeded(models.StatusNone, "Friend request declined")
	result.RequestID = &req.ID
	return result, nil
}

// RemoveFriend dissolves the friendship between actorID and otherID.
// Either member may call it with the same effect.
func (s *FriendService) RemoveFriend(ctx context.Context, actorID, otherID int64) (*Result, error) {
	err := s.inTx(ctx, func(tx repository.Relations) error {
		friendship, err := tx.Friendships().Find(ctx, actorID, otherID)
		if err != nil {
			return err
		}
		if err := tx.Friendships().Delete(ctx, friendship); err != nil {
			return err
		}
		_, err = tx.FriendRequests().DeleteAcceptedBetween(ctx, actorID, otherID)
		return err
	})
	if err != nil {
		result, err := resultFromError(err, "Not friends")
		if err != nil {
			log.Error().
				Err(err).
				Int64("user_id", actorID).
				Int64("friend_user_id", otherID).
				Msg("Failed to remove friend")
			return nil, fmt.Errorf("failed to remove friend: %w", err)
		}
		return result, nil
	}

	log.Info().
		Int64("user_id", actorID).
		Int64("friend_user_id", otherID).
		Msg("Friend removed")

	s.cache.Invalidate(ctx, actorID, otherID)

	return succeeded(models.StatusNone, "Friend removed"), nil
}

// GetStatus reports the relationship of otherID as seen by viewerID
func (s *FriendService) GetStatus(ctx context.Context, viewerID, otherID int64) (models.FriendStatus, error) {
	none := models.FriendStatus{Status: models.StatusNone}
	if viewerID == otherID {
		return none, nil
	}

	friends, err := s.store.Friendships().Exists(ctx, viewerID, otherID)
	if err != nil {
		return none, fmt.Errorf("failed to check friendship: %w", err)
	}
	if friends {
		return models.FriendStatus{Status: models.StatusFriends}, nil
	}

	requests := s.store.FriendRequests()
	sent, err := requests.PendingSentTo(ctx, viewerID, []int64{otherID})
	if err != nil {
		return none, fmt.Errorf("failed to check sent requests: %w", err)
	}
	if len(sent) > 0 {
		return models.FriendStatus{Status: models.StatusPendingSent, RequestID: &sent[0].ID}, nil
	}

	received, err := requests.PendingReceivedFrom(ctx, viewerID, []int64{otherID})
	if err != nil {
		return none, fmt.Errorf("failed to check received requests: %w", err)
	}
	if len(received) > 0 {
		return models.FriendStatus{Status: models.StatusPendingReceived, RequestID: &received[0].ID}, nil
	}

	return none, nil
}

// GetStatuses is the batch form of GetStatus. It runs three queries and
// defaults every unmatched id to none.
func (s *FriendService) GetStatuses(ctx context.Context, viewerID int64, userIDs []int64) (map[int64]models.FriendStatus, error) {
	if len(userIDs) == 0 || len(userIDs) > MaxBatchStatusIDs {
		return nil, fmt.Errorf("expected 1 to %d user ids, got %d: %w", MaxBatchStatusIDs, len(userIDs), ErrInvalidBatch)
	}

	statuses := make(map[int64]models.FriendStatus, len(userIDs))
	set := func(id int64, st models.FriendStatus) {
		if _, ok := statuses[id]; !ok {
			statuses[id] = st
		}
	}

	friendIDs, err := s.store.Friendships().FriendsAmong(ctx, viewerID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check friendships: %w", err)
	}
	for _, id := range friendIDs {
		set(id, models.FriendStatus{Status: models.StatusFriends})
	}

	requests := s.store.FriendRequests()
	sent, err := requests.PendingSentTo(ctx, viewerID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check sent requests: %w", err)
	}
	for _, req := range sent {
		set(req.ToUserID, models.FriendStatus{Status: models.StatusPendingSent, RequestID: &req.ID})
	}

	received, err := requests.PendingReceivedFrom(ctx, viewerID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check received requests: %w", err)
	}
	for _, req := range received {
		set(req.FromUserID, models.FriendStatus{Status: models.StatusPendingReceived, RequestID: &req.ID})
	}

	for _, id := range userIDs {
		set(id, models.FriendStatus{Status: models.StatusNone})
	}
	return statuses, nil
}

// FriendEntry is one friend in a friends list page
type FriendEntry struct {
	UserID          int64   `json:"user_id"`
	Name            string  `json:"name"`
	Surname         string  `json:"surname"`
	Faculty         string  `json:"faculty"`
	Level           string  `json:"level"`
	PhotoThumbPath  *string `json:"photo_thumb_path"`
	PhotoPath       *string `json:"photo_path"`
	FriendshipSince string  `json:"friendship_since"`
}

// Pagination describes a page of results
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// FriendList is a page of a user's friends
type FriendList struct {
	Friends    []FriendEntry `json:"friends"`
	Pagination Pagination    `json:"pagination"`
}

// ListFriends returns a page of userID's friends with their active profiles.
// Friends without an active profile are left out of the page but counted in the total.
func (s *FriendService) ListFriends(ctx context.Context, userID int64, page, perPage int) (*FriendList, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	friendships, total, err := s.store.Friendships().ListPage(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}

	ids := make([]int64, 0, len(friendships))
	for _, f := range friendships {
		ids = append(ids, f.Other(userID))
	}
	profiles, err := s.profiles.GetActiveMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load friend profiles: %w", err)
	}

	friends := make([]FriendEntry, 0, len(friendships))
	for _, f := range friendships {
		p, ok := profiles[f.Other(userID)]
		if !ok {
			continue
		}
		friends = append(friends, FriendEntry{
			UserID:          p.UserID,
			Name:            p.Name,
			Surname:         p.Surname,
			Faculty:         p.Faculty,
			Level:           p.Level,
			PhotoThumbPath:  uploadURL(p.PhotoThumbPath),
			PhotoPath:       uploadURL(p.PhotoPath),
			FriendshipSince: f.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	pages := (total + perPage - 1) / perPage
	return &FriendList{
		Friends: friends,
		Pagination: Pagination{
			Page:    page,
			PerPage: perPage,
			Total:   total,
			Pages:   pages,
			HasNext: page < pages,
			HasPrev: page > 1,
		},
	}, nil
}

func uploadURL(stored *string) *string {
	if stored == nil || *stored == "" {
		return nil
	}
	url := "/uploads/" + path.Base(*stored)
	return &url
}

// FriendIDs returns the ids of userID's friends, read through the cache
func (s *FriendService) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	if ids, ok := s.cache.Get(ctx, userID); ok {
		return ids, nil
	}
	ids, err := s.store.Friendships().ListFriendIDs(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend ids: %w", err)
	}
	s.cache.Set(ctx, userID, ids)
	return ids, nil
}

// FriendCount returns how many friends userID has
func (s *FriendService) FriendCount(ctx context.Context, userID int64) (int, error) {
	count, err := s.store.Friendships().CountForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count friends: %w", err)
	}
	return count, nil
}

// OnlineFriends returns the friends of userID that are currently online
func (s *FriendService) OnlineFriends(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.presence.FilterOnline(ctx, ids)
}
