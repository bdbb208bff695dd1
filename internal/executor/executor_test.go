package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/store"
	"instagram-automation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubPublisher struct {
	calls  atomic.Int32
	result *instagram.Result
	err    error
	panic  any
	hook   func()
	last   instagram.PublishRequest
}

func (s *stubPublisher) Dispatch(_ context.Context, req instagram.PublishRequest) (*instagram.Result, error) {
	s.calls.Add(1)
	s.last = req
	if s.hook != nil {
		s.hook()
	}
	if s.panic != nil {
		panic(s.panic)
	}
	return s.result, s.err
}

// flakyStore fails the first n outcome writes.
type flakyStore struct {
	*store.MemoryStore
	failures atomic.Int32
	writes   atomic.Int32
}

func (f *flakyStore) RecordOutcome(ctx context.Context, id primitive.ObjectID, outcome models.PostOutcome) error {
	f.writes.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("write concern timeout")
	}
	return f.MemoryStore.RecordOutcome(ctx, id, outcome)
}

var clock = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, s store.Store, active bool, media []string) *models.Post {
	t.Helper()
	ctx := context.Background()
	account := &models.Account{Username: "acme", InstagramID: "17841400000000001", AccessToken: "EAAtoken", IsActive: active}
	require.NoError(t, s.CreateAccount(ctx, account))

	post := &models.Post{
		AccountID:     account.ID,
		Kind:          models.PostKindFeed,
		Caption:       "hello",
		MediaURLs:     media,
		ScheduledTime: clock,
		Status:        models.PostStatusScheduled,
		CreatedAt:     clock.Add(-time.Hour),
		UpdatedAt:     clock.Add(-time.Hour),
	}
	require.NoError(t, s.CreatePost(ctx, post))
	return post
}

func newExecutor(s PostStore, p Publisher) *Executor {
	return New(s, p, WithClock(func() time.Time { return clock }), WithWriteRetry(4, time.Millisecond))
}

func TestExecutePublishesOnceAndIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"})
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-123"}}
	exec := newExecutor(s, pub)

	outcome, err := exec.Execute(context.Background(), post.ID)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, models.PostStatusPosted, outcome.Status)
	assert.Equal(t, "17841400000000001", pub.last.AccountID)
	assert.Equal(t, "EAAtoken", pub.last.Token)
	assert.Equal(t, post.MediaURLs, pub.last.MediaURLs)

	stored, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPosted, stored.Status)
	assert.Equal(t, "ig-123", stored.InstagramPostID)
	require.NotNil(t, stored.ActualPostTime)
	assert.True(t, stored.UpdatedAt.After(post.UpdatedAt))

	again, err := exec.Execute(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.EqualValues(t, 1, pub.calls.Load())

	final, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Status, final.Status)
	assert.Equal(t, stored.UpdatedAt, final.UpdatedAt)
}

func TestExecuteFailureReasons(t *testing.T) {
	cases := []struct {
		name   string
		active bool
		media  []string
		pub    *stubPublisher
		reason string
	}{
		{"inactive account", false, []string{"https://cdn.example.com/a.jpg"}, &stubPublisher{}, ReasonAccountUnavailable},
		{"no media", true, nil, &stubPublisher{}, ReasonNoMedia},
		{"platform error", true, []string{"https://cdn.example.com/a.jpg"},
			&stubPublisher{err: apperr.New(apperr.KindPlatform, "publish", "Media ID is not available")}, "Media ID is not available"},
		{"empty result", true, []string{"https://cdn.example.com/a.jpg"}, &stubPublisher{result: &instagram.Result{}}, ReasonUnknown},
		{"nil result", true, []string{"https://cdn.example.com/a.jpg"}, &stubPublisher{}, ReasonUnknown},
		{"panic", true, []string{"https://cdn.example.com/a.jpg"}, &stubPublisher{panic: "boom"}, "boom"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			post := seed(t, s, tc.active, tc.media)

			outcome, err := newExecutor(s, tc.pub).Execute(context.Background(), post.ID)
			require.NoError(t, err)
			require.NotNil(t, outcome)
			assert.Equal(t, models.PostStatusFailed, outcome.Status)

			stored, err := s.GetPost(context.Background(), post.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PostStatusFailed, stored.Status)
			assert.Equal(t, tc.reason, stored.ErrorMessage)
			assert.Nil(t, stored.ActualPostTime)
			assert.True(t, stored.UpdatedAt.After(post.UpdatedAt))
		})
	}
}

func TestExecuteMissingAccountFails(t *testing.T) {
	s := store.NewMemoryStore()
	post := &models.Post{AccountID: primitive.NewObjectID(), Kind: models.PostKindFeed, MediaURLs: []string{"x"}, Status: models.PostStatusScheduled}
	require.NoError(t, s.CreatePost(context.Background(), post))
	pub := &stubPublisher{}

	outcome, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAccountUnavailable, outcome.ErrorMessage)
	assert.Zero(t, pub.calls.Load())
}

func TestExecuteMissingPostIsNoop(t *testing.T) {
	pub := &stubPublisher{}
	outcome, err := newExecutor(store.NewMemoryStore(), pub).Execute(context.Background(), primitive.NewObjectID())
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Zero(t, pub.calls.Load())
}

func TestExecuteRetriesOnlyTheStatusWrite(t *testing.T) {
	s := &flakyStore{MemoryStore: store.NewMemoryStore()}
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg"})
	s.failures.Store(2)
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-1"}}

	outcome, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPosted, outcome.Status)
	assert.EqualValues(t, 3, s.writes.Load())
	assert.EqualValues(t, 1, pub.calls.Load())
}

func TestExecuteReportsUnrecordedOutcome(t *testing.T) {
	s := &flakyStore{MemoryStore: store.NewMemoryStore()}
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg"})
	s.failures.Store(100)
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-1"}}

	outcome, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Equal(t, "ig-1", outcome.InstagramPostID)
	assert.EqualValues(t, 4, s.writes.Load())
	assert.EqualValues(t, 1, pub.calls.Load())
}

func TestExecuteCancelledMidFlightKeepsCancelled(t *testing.T) {
	s := store.NewMemoryStore()
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg"})
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-1"}}
	pub.hook = func() {
		require.NoError(t, s.CancelPost(context.Background(), post.ID, clock))
	}

	_, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	stored, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusCancelled, stored.Status)
}

func TestExecuteStampsPastStaleUpdatedAt(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	account := &models.Account{Username: "acme", InstagramID: "17841400000000001", AccessToken: "EAAtoken", IsActive: true}
	require.NoError(t, s.CreateAccount(ctx, account))
	// clock skew: the record claims a later update than our clock
	future := clock.Add(time.Hour)
	post := &models.Post{AccountID: account.ID, Kind: models.PostKindFeed, MediaURLs: []string{"x"}, Status: models.PostStatusScheduled, UpdatedAt: future}
	require.NoError(t, s.CreatePost(ctx, post))

	outcome, err := newExecutor(s, &stubPublisher{result: &instagram.Result{ID: "x"}}).Execute(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, outcome.UpdatedAt.After(future))
}

func TestExecuteSimulationAccountEndToEnd(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	account := &models.Account{Username: "test_fitness_1", InstagramID: "test123456", AccessToken: "test_token_abc", IsActive: true}
	require.NoError(t, s.CreateAccount(ctx, account))
	post := &models.Post{
		AccountID: account.ID,
		Kind:      models.PostKindCarousel,
		MediaURLs: []string{"http://localhost:5555/uploads/a.jpg", "http://localhost:5555/uploads/b.jpg"},
		Status:    models.PostStatusScheduled,
	}
	require.NoError(t, s.CreatePost(ctx, post))

	client := instagram.NewClient(instagram.Config{BaseURL: "http://127.0.0.1:1"})
	outcome, err := newExecutor(s, client).Execute(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPosted, outcome.Status)
	assert.Regexp(t, `^test_test123456_\d+$`, outcome.InstagramPostID)
}

func TestExecuteSkipsPreviouslyAttemptedPost(t *testing.T) {
	s := store.NewMemoryStore()
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg"})
	require.NoError(t, s.ClaimPost(context.Background(), post.ID, clock))
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-1"}}

	outcome, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.Zero(t, pub.calls.Load())
}

// claimOutage fails the claim write.
type claimOutage struct {
	*store.MemoryStore
}

func (claimOutage) ClaimPost(context.Context, primitive.ObjectID, time.Time) error {
	return errors.New("mongo unavailable")
}

func TestExecuteFailedClaimPublishesNothing(t *testing.T) {
	s := claimOutage{MemoryStore: store.NewMemoryStore()}
	post := seed(t, s, true, []string{"https://cdn.example.com/a.jpg"})
	pub := &stubPublisher{result: &instagram.Result{ID: "ig-1"}}

	_, err := newExecutor(s, pub).Execute(context.Background(), post.ID)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Zero(t, pub.calls.Load())

	stored, err := s.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, stored.Status)
	assert.Nil(t, stored.AttemptedAt)
}
