package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"campus-social-backend/internal/models"
	"campus-social-backend/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
	dave  int64 = 4
	ghost int64 = 9 // no active profile
)

type fixture struct {
	store *repository.MemoryStore
	svc   *FriendService
	mr    *miniredis.Miniredis
	rdb   *redis.Client
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func seedProfiles(store *repository.MemoryStore) {
	thumb := "static/uploads/thumbs/alice_t.jpg"
	photo := "static/uploads/alice.jpg"
	store.PutProfile(&models.Profile{UserID: alice, Name: "Alice", Surname: "Moreau", Faculty: "Physics", Level: "Bachelor", PhotoPath: &photo, PhotoThumbPath: &thumb})
	store.PutProfile(&models.Profile{UserID: bob, Name: "Bob", Surname: "Tan", Faculty: "Law", Level: "Master"})
	store.PutProfile(&models.Profile{UserID: carol, Name: "Carol", Surname: "Diaz", Faculty: "History", Level: "Bachelor"})
	store.PutProfile(&models.Profile{UserID: dave, Name: "Dave", Surname: "Okafor", Faculty: "Law", Level: "PhD"})
}

func newFixtureWith(t *testing.T, relations func(*repository.MemoryStore) repository.RelationStore) *fixture {
	t.Helper()
	mr, rdb := newRedis(t)
	store := repository.NewMemoryStore()
	seedProfiles(store)

	svc := NewFriendService(
		relations(store),
		store,
		NewNotifier(store, store),
		NewFriendsCache(rdb, 10*time.Minute),
		NewPresence(rdb, 5*time.Minute),
	)
	return &fixture{store: store, svc: svc, mr: mr, rdb: rdb}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, func(s *repository.MemoryStore) repository.RelationStore { return s })
}

func (f *fixture) send(t *testing.T, from, to int64) int64 {
	t.Helper()
	res, err := f.svc.SendRequest(context.Background(), from, to)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.RequestID)
	return *res.RequestID
}

func (f *fixture) befriend(t *testing.T, a, b int64) {
	t.Helper()
	id := f.send(t, a, b)
	res, err := f.svc.AcceptRequest(context.Background(), b, id)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
}

func TestSendRequestReportsPendingBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, models.StatusPendingSent, res.Status)
	require.NotNil(t, res.RequestID)

	st, err := f.svc.GetStatus(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, st.Status)
	require.NotNil(t, st.RequestID)
	assert.Equal(t, *res.RequestID, *st.RequestID)

	st, err = f.svc.GetStatus(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingSent, st.Status)
	assert.Equal(t, *res.RequestID, *st.RequestID)
}

func TestSendRequestToSelf(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SendRequest(context.Background(), alice, alice)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeInvalidOperation, res.Code)
	assert.Equal(t, "Cannot add yourself", res.Message)
}

func TestSendRequestDuplicate(t *testing.T) {
	f := newFixture(t)
	id := f.send(t, alice, bob)

	res, err := f.svc.SendRequest(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeDuplicateRequest, res.Code)
	assert.Equal(t, models.StatusPendingSent, res.Status)
	require.NotNil(t, res.RequestID)
	assert.Equal(t, id, *res.RequestID)
}

func TestSendRequestWhenIncomingExists(t *testing.T) {
	f := newFixture(t)
	id := f.send(t, alice, bob)

	res, err := f.svc.SendRequest(context.Background(), bob, alice)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeIncomingRequestExists, res.Code)
	assert.Equal(t, models.StatusPendingReceived, res.Status)
	require.NotNil(t, res.RequestID)
	assert.Equal(t, id, *res.RequestID)
}

func TestSendRequestWhenAlreadyFriends(t *testing.T) {
	f := newFixture(t)
	f.befriend(t, alice, bob)

	res, err := f.svc.SendRequest(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeAlreadyFriends, res.Code)
	assert.Equal(t, models.StatusFriends, res.Status)
}

func TestAcceptCreatesCanonicalFriendship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, carol, alice)

	res, err := f.svc.AcceptRequest(ctx, alice, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Friend request accepted", res.Message)
	assert.Equal(t, models.StatusFriends, res.Status)

	friendship, err := f.store.Friendships().Find(ctx, carol, alice)
	require.NoError(t, err)
	assert.Equal(t, alice, friendship.User1ID)
	assert.Equal(t, carol, friendship.User2ID)

	ok, err := f.store.Friendships().Exists(ctx, alice, carol)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := f.svc.GetStatus(ctx, carol, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFriends, st.Status)
	assert.Nil(t, st.RequestID)
}

func TestAcceptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)

	for range 2 {
		res, err := f.svc.AcceptRequest(ctx, bob, id)
		require.NoError(t, err)
		assert.True(t, res.Success)
	}

	count, err := f.store.Friendships().CountForUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Len(t, f.store.Notifications(alice), 1, "second accept must not notify again")
}

func TestAcceptWhenFriendshipAlreadyExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)
	_, err := f.store.Friendships().Create(ctx, alice, bob)
	require.NoError(t, err)

	res, err := f.svc.AcceptRequest(ctx, bob, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Already friends", res.Message)

	count, err := f.store.Friendships().CountForUser(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAcceptRequiresRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)

	for _, actor := range []int64{alice, carol} {
		res, err := f.svc.AcceptRequest(ctx, actor, id)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, CodeNotFound, res.Code)
		assert.Equal(t, "Request not found", res.Message)
	}

	res, err := f.svc.AcceptRequest(ctx, bob, id+100)
	require.NoError(t, err)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestAcceptDeclinedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)
	_, err := f.svc.DeclineRequest(ctx, bob, id)
	require.NoError(t, err)

	res, err := f.svc.AcceptRequest(ctx, bob, id)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotFound, res.Code)

	ok, err := f.store.Friendships().Exists(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeclineThenResend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.send(t, alice, bob)

	res, err := f.svc.DeclineRequest(ctx, bob, first)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Friend request declined", res.Message)

	st, err := f.svc.GetStatus(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, st.Status)

	second := f.send(t, alice, bob)
	assert.NotEqual(t, first, second)

	st, err = f.svc.GetStatus(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, st.Status)
	assert.Equal(t, second, *st.RequestID)
}

func TestDeclineThenReverseSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)
	_, err := f.svc.DeclineRequest(ctx, bob, id)
	require.NoError(t, err)

	reverse := f.send(t, bob, alice)

	st, err := f.svc.GetStatus(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, st.Status)
	assert.Equal(t, reverse, *st.RequestID)
}

func TestDeclineTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)
	_, err := f.svc.DeclineRequest(ctx, bob, id)
	require.NoError(t, err)

	res, err := f.svc.DeclineRequest(ctx, bob, id)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestRemoveFriendIsSymmetric(t *testing.T) {
	for _, actor := range []int64{alice, bob} {
		t.Run(fmt.Sprintf("actor_%d", actor), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.befriend(t, alice, bob)
			other := alice + bob - actor

			res, err := f.svc.RemoveFriend(ctx, actor, other)
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, "Friend removed", res.Message)

			ok, err := f.store.Friendships().Exists(ctx, alice, bob)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = f.store.FriendRequests().FindActiveDirected(ctx, alice, bob)
			assert.ErrorIs(t, err, repository.ErrNotFound)
			_, err = f.store.FriendRequests().FindActiveDirected(ctx, bob, alice)
			assert.ErrorIs(t, err, repository.ErrNotFound)

			// the pair can start over
			f.send(t, bob, alice)
		})
	}
}

func TestRemoveFriendWhenNotFriends(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.RemoveFriend(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotFound, res.Code)
	assert.Equal(t, "Not friends", res.Message)
}

func TestAcceptedHistoryKeptUntilRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, alice, bob)

	req, err := f.store.FriendRequests().FindActiveDirected(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, req.Status)
}

func TestSendPurgesStaleAcceptedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// accepted history without a friendship
	reqs := f.store.FriendRequests()
	old, err := reqs.Create(ctx, alice, bob)
	require.NoError(t, err)
	require.NoError(t, reqs.Transition(ctx, old, models.RequestAccepted))

	id := f.send(t, alice, bob)
	assert.NotEqual(t, old.ID, id)

	_, err = reqs.GetForRecipient(ctx, old.ID, bob, models.RequestAccepted)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, alice, bob)
	sent := f.send(t, alice, carol)

	statuses, err := f.svc.GetStatuses(ctx, alice, []int64{bob, carol, dave})
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, models.StatusFriends, statuses[bob].Status)
	assert.Equal(t, models.StatusPendingSent, statuses[carol].Status)
	assert.Equal(t, sent, *statuses[carol].RequestID)
	assert.Equal(t, models.StatusNone, statuses[dave].Status)
	assert.Nil(t, statuses[dave].RequestID)

	statuses, err = f.svc.GetStatuses(ctx, carol, []int64{alice})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, statuses[alice].Status)
}

func TestGetStatusesMatchesSingleCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, alice, bob)
	f.send(t, alice, carol)
	f.send(t, dave, alice)

	ids := []int64{alice, bob, carol, dave, ghost}
	statuses, err := f.svc.GetStatuses(ctx, alice, ids)
	require.NoError(t, err)
	for _, id := range ids {
		single, err := f.svc.GetStatus(ctx, alice, id)
		require.NoError(t, err)
		assert.Equal(t, single.Status, statuses[id].Status, "user %d", id)
	}
}

func TestGetStatusesRejectsBadBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetStatuses(ctx, alice, nil)
	assert.ErrorIs(t, err, ErrInvalidBatch)

	ids := make([]int64, MaxBatchStatusIDs+1)
	for i := range ids {
		ids[i] = int64(i + 10)
	}
	_, err = f.svc.GetStatuses(ctx, alice, ids)
	assert.ErrorIs(t, err, ErrInvalidBatch)

	_, err = f.svc.GetStatuses(ctx, alice, ids[:MaxBatchStatusIDs])
	assert.NoError(t, err)
}

func TestGetStatusSelf(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.GetStatus(context.Background(), alice, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNone, st.Status)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.send(t, alice, bob)

	got := f.store.Notifications(bob)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationFriendRequest, got[0].Type)
	assert.Equal(t, "👋 Alice Moreau sent you a friend request!", got[0].Message)
	assert.Equal(t, alice, *got[0].FromUserID)
	assert.Equal(t, id, got[0].Data["request_id"])

	_, err := f.svc.AcceptRequest(ctx, bob, id)
	require.NoError(t, err)
	got = f.store.Notifications(alice)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationFriendAccepted, got[0].Type)
	assert.Equal(t, "✅ Bob Tan accepted your friend request!", got[0].Message)

	declined := f.send(t, carol, dave)
	_, err = f.svc.DeclineRequest(ctx, dave, declined)
	require.NoError(t, err)
	got = f.store.Notifications(carol)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationFriendDeclined, got[0].Type)
	assert.Equal(t, "Dave Okafor declined your friend request.", got[0].Message)
}

func TestNotificationSkippedWithoutProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.send(t, ghost, bob)
	assert.Empty(t, f.store.Notifications(bob))

	res, err := f.svc.AcceptRequest(ctx, bob, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, f.store.Notifications(ghost), 1)
}

func TestListFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, bob, alice)
	f.befriend(t, bob, carol)
	f.befriend(t, bob, ghost)
	f.befriend(t, bob, dave)

	list, err := f.svc.ListFriends(ctx, bob, 1, 2)
	require.NoError(t, err)
	require.Len(t, list.Friends, 2)
	assert.Equal(t, alice, list.Friends[0].UserID)
	assert.Equal(t, "Alice", list.Friends[0].Name)
	require.NotNil(t, list.Friends[0].PhotoThumbPath)
	assert.Equal(t, "/uploads/alice_t.jpg", *list.Friends[0].PhotoThumbPath)
	assert.Equal(t, "/uploads/alice.jpg", *list.Friends[0].PhotoPath)
	assert.Nil(t, list.Friends[1].PhotoPath)
	since, err := time.Parse(time.RFC3339, list.Friends[0].FriendshipSince)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, since.Location())
	assert.WithinDuration(t, time.Now(), since, time.Minute)
	assert.Equal(t, Pagination{Page: 1, PerPage: 2, Total: 4, Pages: 2, HasNext: true, HasPrev: false}, list.Pagination)

	// ghost has no profile: counted, not listed
	list, err = f.svc.ListFriends(ctx, bob, 2, 2)
	require.NoError(t, err)
	require.Len(t, list.Friends, 1)
	assert.Equal(t, dave, list.Friends[0].UserID)
	assert.Equal(t, 4, list.Pagination.Total)
	assert.True(t, list.Pagination.HasPrev)
	assert.False(t, list.Pagination.HasNext)
}

func TestListFriendsClampsPaging(t *testing.T) {
	f := newFixture(t)

	list, err := f.svc.ListFriends(context.Background(), alice, 0, 500)
	require.NoError(t, err)
	assert.Empty(t, list.Friends)
	assert.NotNil(t, list.Friends)
	assert.Equal(t, 1, list.Pagination.Page)
	assert.Equal(t, MaxPerPage, list.Pagination.PerPage)
	assert.Equal(t, 0, list.Pagination.Pages)

	list, err = f.svc.ListFriends(context.Background(), alice, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPerPage, list.Pagination.PerPage)
}

func TestFriendIDsUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, alice, bob)

	ids, err := f.svc.FriendIDs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob}, ids)
	assert.True(t, f.mr.Exists("cache:friends:1"))

	// stale store changes are not seen until invalidation
	_, err = f.store.Friendships().Create(ctx, alice, dave)
	require.NoError(t, err)
	ids, err = f.svc.FriendIDs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob}, ids)

	f.befriend(t, alice, carol)
	assert.False(t, f.mr.Exists("cache:friends:1"))
	assert.False(t, f.mr.Exists("cache:friends:3"))

	ids, err = f.svc.FriendIDs(ctx, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{bob, dave, carol}, ids)

	_, err = f.svc.RemoveFriend(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("cache:friends:1"))
}

func TestFriendCountAndOnlineFriends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.befriend(t, alice, bob)
	f.befriend(t, alice, carol)

	count, err := f.svc.FriendCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, f.svc.presence.Touch(ctx, carol))
	require.NoError(t, f.svc.presence.Touch(ctx, dave))

	online, err := f.svc.OnlineFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol}, online)
}

// racingStore simulates a competing transaction that commits first and makes
// the next WithTx lose a uniqueness race.
type racingStore struct {
	*repository.MemoryStore
	races int
	race  func()
}

func (s *racingStore) WithTx(ctx context.Context, fn func(tx repository.Relations) error) error {
	if s.races > 0 {
		s.races--
		if s.race != nil {
			s.race()
		}
		return fmt.Errorf("failed to create friend request: %w: unique_friend_request", repository.ErrConflict)
	}
	return s.MemoryStore.WithTx(ctx, fn)
}

func TestSendRequestRetriesAfterConflict(t *testing.T) {
	var racer *racingStore
	f := newFixtureWith(t, func(s *repository.MemoryStore) repository.RelationStore {
		racer = &racingStore{MemoryStore: s, races: 1}
		return racer
	})
	var winner *models.FriendRequest
	racer.race = func() {
		var err error
		winner, err = f.store.FriendRequests().Create(context.Background(), bob, alice)
		require.NoError(t, err)
	}

	res, err := f.svc.SendRequest(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeIncomingRequestExists, res.Code)
	require.NotNil(t, res.RequestID)
	assert.Equal(t, winner.ID, *res.RequestID)
}

func TestRepeatedConflictReported(t *testing.T) {
	f := newFixtureWith(t, func(s *repository.MemoryStore) repository.RelationStore {
		return &racingStore{MemoryStore: s, races: 2}
	})

	res, err := f.svc.SendRequest(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeConflict, res.Code)

	_, err = f.store.FriendRequests().FindPendingBetween(context.Background(), alice, bob)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNilCollaboratorsAreOptional(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewFriendService(store, store, nil, nil, nil)
	ctx := context.Background()

	res, err := svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	res, err = svc.AcceptRequest(ctx, bob, *res.RequestID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	ids, err := svc.FriendIDs(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob}, ids)

	online, err := svc.OnlineFriends(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, online)
}

type failingSink struct{ calls int }

func (s *failingSink) Create(ctx context.Context, n *models.Notification) error {
	s.calls++
	return errors.New("notification sink down")
}

func TestNotificationFailureDoesNotAffectResult(t *testing.T) {
	store := repository.NewMemoryStore()
	seedProfiles(store)
	sink := &failingSink{}
	svc := NewFriendService(store, store, NewNotifier(store, sink), nil, nil)
	ctx := context.Background()

	res, err := svc.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.RequestID)

	st, err := svc.GetStatus(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingReceived, st.Status)

	res, err = svc.AcceptRequest(ctx, bob, *res.RequestID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Friend request accepted", res.Message)

	ok, err := store.Friendships().Exists(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	declined, err := svc.SendRequest(ctx, carol, dave)
	require.NoError(t, err)
	res, err = svc.DeclineRequest(ctx, dave, *declined.RequestID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, 4, sink.calls)
}

// hiddenFriendshipStore hides an existing friendship from the next Exists
// check, so the accept that follows loses the insert on the unique key.
type hiddenFriendshipStore struct {
	*repository.MemoryStore
	hide int
}

func (s *hiddenFriendshipStore) WithTx(ctx context.Context, fn func(tx repository.Relations) error) error {
	return s.MemoryStore.WithTx(ctx, func(tx repository.Relations) error {
		return fn(hidingRelations{Relations: tx, store: s})
	})
}

type hidingRelations struct {
	repository.Relations
	store *hiddenFriendshipStore
}

func (r hidingRelations) Friendships() repository.FriendshipStore {
	return hidingFriendships{FriendshipStore: r.Relations.Friendships(), store: r.store}
}

type hidingFriendships struct {
	repository.FriendshipStore
	store *hiddenFriendshipStore
}

func (f hidingFriendships) Exists(ctx context.Context, userA, userB int64) (bool, error) {
	if f.store.hide > 0 {
		f.store.hide--
		return false, nil
	}
	return f.FriendshipStore.Exists(ctx, userA, userB)
}

func TestAcceptLosingFriendshipRace(t *testing.T) {
	var hidden *hiddenFriendshipStore
	f := newFixtureWith(t, func(s *repository.MemoryStore) repository.RelationStore {
		hidden = &hiddenFriendshipStore{MemoryStore: s}
		return hidden
	})
	ctx := context.Background()
	id := f.send(t, alice, bob)

	// the competing accept committed first
	_, err := f.store.Friendships().Create(ctx, alice, bob)
	require.NoError(t, err)
	hidden.hide = 1

	res, err := f.svc.AcceptRequest(ctx, bob, id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, models.StatusFriends, res.Status)
	assert.Equal(t, "Already friends", res.Message)
	assert.Equal(t, 0, hidden.hide)

	count, err := f.store.Friendships().CountForUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	req, err := f.store.FriendRequests().GetForRecipient(ctx, id, bob, models.RequestAccepted)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, req.Status)
}
