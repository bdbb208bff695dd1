package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/caption"
	"instagram-automation/internal/executor"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/media"
	"instagram-automation/internal/schedule"
	"instagram-automation/internal/store"
	"instagram-automation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var defaults = ScheduleDefaults{Timezone: "Asia/Kolkata", Slot1: "13:00", Slot2: "22:00", VarianceMinutes: 15}

type fakeVerifier struct {
	info  *instagram.AccountInfo
	err   error
	calls int
}

func (f *fakeVerifier) GetAccountInfo(context.Context, string, string) (*instagram.AccountInfo, error) {
	f.calls++
	return f.info, f.err
}

type recordingDispatcher struct {
	runner    *executor.Executor
	scheduled map[primitive.ObjectID]time.Time
	cancelled []primitive.ObjectID
	failWith  error
}

func (d *recordingDispatcher) Schedule(_ context.Context, id primitive.ObjectID, at time.Time) error {
	if d.failWith != nil {
		return d.failWith
	}
	d.scheduled[id] = at
	return nil
}

func (d *recordingDispatcher) RunNow(ctx context.Context, id primitive.ObjectID) (*models.PostOutcome, error) {
	return d.runner.Execute(ctx, id)
}

func (d *recordingDispatcher) Cancel(_ context.Context, id primitive.ObjectID) error {
	d.cancelled = append(d.cancelled, id)
	return nil
}

type staticResolver struct{ url string }

func (r staticResolver) Resolve(_ context.Context, f media.LocalFile, a *models.Account) (string, error) {
	if a.HasSimulationToken() {
		return "http://localhost:5555/uploads/" + f.Name, nil
	}
	return r.url, nil
}

type fixedInsights map[string]int64

func (f fixedInsights) FetchMetrics(context.Context, string, models.PostKind, string) map[string]int64 {
	return f
}

type harness struct {
	store      *store.MemoryStore
	accounts   *AccountService
	posts      *PostService
	catalog    *CatalogService
	dispatcher *recordingDispatcher
	verifier   *fakeVerifier
}

func newHarness(t *testing.T, resolver MediaResolver) *harness {
	t.Helper()
	mem := store.NewMemoryStore()
	client := instagram.NewClient(instagram.DefaultConfig())
	exec := executor.New(mem, client)
	d := &recordingDispatcher{runner: exec, scheduled: map[primitive.ObjectID]time.Time{}}
	v := &fakeVerifier{}

	rng := rand.New(rand.NewSource(1))
	composer := caption.NewComposer(mem, 3, caption.WithRand(rng))
	calc := schedule.NewCalculator(mem, schedule.WithRand(rng))

	return &harness{
		store:      mem,
		accounts:   NewAccountService(mem, v, defaults),
		posts:      NewPostService(mem, composer, calc, resolver, d, fixedInsights{"reach": 42}, defaults.Timezone),
		catalog:    NewCatalogService(mem),
		dispatcher: d,
		verifier:   v,
	}
}

func (h *harness) simulationAccount(t *testing.T) *models.Account {
	t.Helper()
	a, err := h.accounts.Register(context.Background(), RegisterAccountRequest{
		Username: "test_fitness_1", InstagramID: "test123456", AccessToken: "test_token_abcdef",
	})
	require.NoError(t, err)
	return a
}

func TestRegisterSimulationAccountSkipsPlatform(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)

	assert.Zero(t, h.verifier.calls)
	assert.Equal(t, "business", a.AccountType)
	assert.True(t, a.IsActive)

	sched, err := h.accounts.Schedule(context.Background(), a.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "13:00", sched.TimeSlot1)
	assert.Equal(t, "22:00", sched.TimeSlot2)
	assert.Equal(t, "Asia/Kolkata", sched.Timezone)
	assert.Equal(t, 15, sched.VarianceMinutes)
}

func TestRegisterRealAccount(t *testing.T) {
	h := newHarness(t, nil)
	req := RegisterAccountRequest{
		Username:    "@brand",
		InstagramID: "17841400000000001",
		AccessToken: "EAA" + strings.Repeat("x", 60),
	}

	h.verifier.info = &instagram.AccountInfo{ID: "17841400000000999", AccountType: "business"}
	_, err := h.accounts.Register(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "id mismatch")

	h.verifier.err = apperr.New(apperr.KindPlatform, "get account info", "Invalid OAuth access token")
	_, err = h.accounts.Register(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.KindPlatform))

	h.verifier.err = nil
	h.verifier.info = &instagram.AccountInfo{ID: req.InstagramID, AccountType: "creator"}
	a, err := h.accounts.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "brand", a.Username)
	assert.Equal(t, "creator", a.AccountType)

	_, err = h.accounts.Register(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRegisterRequiresFields(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.accounts.Register(context.Background(), RegisterAccountRequest{Username: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSetScheduleValidates(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)

	_, err := h.accounts.SetSchedule(context.Background(), a.ID.Hex(), ScheduleRequest{TimeSlot1: "22:00", TimeSlot2: "09:00"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	v := 30
	sched, err := h.accounts.SetSchedule(context.Background(), a.ID.Hex(), ScheduleRequest{
		TimeSlot1: "09:00", TimeSlot2: "18:30", Timezone: "Europe/Berlin", VarianceMinutes: &v,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, sched.VarianceMinutes)

	active, err := h.accounts.Schedule(context.Background(), a.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", active.Timezone)
}

func TestSetActive(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)

	updated, err := h.accounts.SetActive(context.Background(), a.ID.Hex(), false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = h.posts.Submit(context.Background(), SubmitRequest{
		AccountID: a.ID.Hex(), MediaURLs: []string{"https://cdn.example.com/a.jpg"},
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.accounts.SetActive(context.Background(), primitive.NewObjectID().Hex(), true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSubmitNowExecutesInline(t *testing.T) {
	h := newHarness(t, staticResolver{})
	a := h.simulationAccount(t)
	_, err := h.catalog.AddHashtag(context.Background(), HashtagRequest{Tag: "#motivation"})
	require.NoError(t, err)

	post, err := h.posts.Submit(context.Background(), SubmitRequest{
		AccountID:  a.ID.Hex(),
		Template:   "Hello from {account_name}! {custom_text}",
		CustomText: "Stay strong",
		Files:      []media.LocalFile{{Name: "x.jpg", OriginalName: "x.jpg"}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPosted, post.Status)
	assert.Regexp(t, `^test_test123456_\d+$`, post.InstagramPostID)
	assert.Equal(t, "Hello from test_fitness_1! Stay strong\n\n#motivation", post.Caption)
	assert.Equal(t, []string{"http://localhost:5555/uploads/x.jpg"}, post.MediaURLs)
	assert.Equal(t, []string{"x.jpg"}, post.OriginalFilenames)
	assert.Empty(t, h.dispatcher.scheduled)
}

func TestSubmitNextSlotSchedules(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)

	post, err := h.posts.Submit(context.Background(), SubmitRequest{
		AccountID: a.ID.Hex(),
		Kind:      "carousel",
		Mode:      models.ScheduleModeNextSlot,
		MediaURLs: []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusScheduled, post.Status)
	at, ok := h.dispatcher.scheduled[post.ID]
	require.True(t, ok)
	assert.Equal(t, post.ScheduledTime, at)
	assert.True(t, at.After(time.Now().Add(-16*time.Minute)))
}

func TestSubmitKeepsPostWhenTimerRegistrationFails(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)
	h.dispatcher.failWith = errors.New("redis down")

	post, err := h.posts.Submit(context.Background(), SubmitRequest{
		AccountID: a.ID.Hex(), Mode: models.ScheduleModeNextSlot,
		MediaURLs: []string{"https://cdn.example.com/1.jpg"},
	})
	require.NoError(t, err)

	stored, err := h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusScheduled, stored.Status)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, staticResolver{})
	a := h.simulationAccount(t)
	ctx := context.Background()

	h.verifier.info = &instagram.AccountInfo{ID: "17841400000000001"}
	brand, err := h.accounts.Register(ctx, RegisterAccountRequest{
		Username: "brand", InstagramID: "17841400000000001", AccessToken: "EAA" + strings.Repeat("x", 60),
	})
	require.NoError(t, err)

	many := make([]string, 21)
	for i := range many {
		many[i] = "https://cdn.example.com/p.jpg"
	}

	cases := map[string]struct {
		req  SubmitRequest
		kind apperr.Kind
	}{
		"bad account id":      {SubmitRequest{AccountID: "zz"}, apperr.KindValidation},
		"missing account":     {SubmitRequest{AccountID: primitive.NewObjectID().Hex()}, apperr.KindNotFound},
		"unknown kind":        {SubmitRequest{AccountID: a.ID.Hex(), Kind: "reel"}, apperr.KindValidation},
		"unknown mode":        {SubmitRequest{AccountID: a.ID.Hex(), Mode: "later"}, apperr.KindValidation},
		"no media":            {SubmitRequest{AccountID: a.ID.Hex()}, apperr.KindValidation},
		"two images for feed": {SubmitRequest{AccountID: a.ID.Hex(), MediaURLs: many[:2]}, apperr.KindValidation},
		"carousel too large":  {SubmitRequest{AccountID: a.ID.Hex(), Kind: "carousel", MediaURLs: many}, apperr.KindValidation},
		"auto_story on feed":  {SubmitRequest{AccountID: a.ID.Hex(), Mode: models.ScheduleModeAutoStory, MediaURLs: many[:1]}, apperr.KindValidation},
		"localhost for real account": {
			SubmitRequest{AccountID: brand.ID.Hex(), MediaURLs: []string{"http://localhost:5555/uploads/a.jpg"}},
			apperr.KindUnreachableMedia,
		},
		"upload without public url": {
			SubmitRequest{AccountID: brand.ID.Hex(), Files: []media.LocalFile{{Name: "a.jpg", OriginalName: "a.jpg"}}},
			apperr.KindUnreachableMedia,
		},
		"unknown template": {
			SubmitRequest{AccountID: a.ID.Hex(), MediaURLs: many[:1], TemplateID: primitive.NewObjectID().Hex()},
			apperr.KindNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.posts.Submit(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err), err.Error())
		})
	}

	stats, err := h.posts.Stats(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, stats.Total, "rejected submissions store nothing")
}

func TestSubmitStoryKeepsElements(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)

	post, err := h.posts.Submit(context.Background(), SubmitRequest{
		AccountID: a.ID.Hex(), Kind: "story", Mode: models.ScheduleModeAutoStory,
		MediaURLs:     []string{"https://cdn.example.com/s.jpg"},
		StoryElements: &models.StoryElements{TextOverlay: "New drop", Mentions: []string{"friend"}},
	})
	require.NoError(t, err)
	require.NotNil(t, post.StoryElements)
	assert.Equal(t, "New drop", post.StoryElements.TextOverlay)
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, 0, post.ScheduledTime.In(kolkata).Minute())
}

func TestCancel(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)
	ctx := context.Background()

	post, err := h.posts.Submit(ctx, SubmitRequest{
		AccountID: a.ID.Hex(), Mode: models.ScheduleModeNextSlot, MediaURLs: []string{"https://cdn.example.com/1.jpg"},
	})
	require.NoError(t, err)

	cancelled, err := h.posts.Cancel(ctx, post.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusCancelled, cancelled.Status)
	assert.Equal(t, []primitive.ObjectID{post.ID}, h.dispatcher.cancelled)

	_, err = h.posts.Cancel(ctx, post.ID.Hex())
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	outcome, err := h.dispatcher.runner.Execute(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, outcome, "a cancelled post never executes")
}

func TestMetricsAndStats(t *testing.T) {
	h := newHarness(t, nil)
	a := h.simulationAccount(t)
	ctx := context.Background()

	posted, err := h.posts.Submit(ctx, SubmitRequest{AccountID: a.ID.Hex(), MediaURLs: []string{"https://cdn.example.com/1.jpg"}})
	require.NoError(t, err)
	pending, err := h.posts.Submit(ctx, SubmitRequest{
		AccountID: a.ID.Hex(), Mode: models.ScheduleModeNextSlot, MediaURLs: []string{"https://cdn.example.com/2.jpg"},
	})
	require.NoError(t, err)

	m, err := h.posts.Metrics(ctx, posted.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(42), m["reach"])

	_, err = h.posts.Metrics(ctx, pending.ID.Hex())
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	stats, err := h.posts.Stats(ctx, a.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Posted)
	assert.Equal(t, int64(1), stats.Scheduled)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)

	list, err := h.posts.List(ctx, PostQuery{Status: "scheduled"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	_, err = h.posts.List(ctx, PostQuery{Status: "bogus"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCatalog(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tag, err := h.catalog.AddHashtag(ctx, HashtagRequest{Tag: " #fitness ", Category: "Health"})
	require.NoError(t, err)
	assert.Equal(t, "fitness", tag.Tag)

	_, err = h.catalog.AddHashtag(ctx, HashtagRequest{Tag: "Fitness"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = h.catalog.AddHashtag(ctx, HashtagRequest{Tag: "two words"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, h.catalog.SetHashtagActive(ctx, "#fitness", false))
	assert.True(t, apperr.Is(h.catalog.SetHashtagActive(ctx, "missing", false), apperr.KindNotFound))

	tmpl, err := h.catalog.AddTemplate(ctx, TemplateRequest{Name: "Daily", Template: "{time_period} vibes, {custom_text} by {account_name}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"time_period", "custom_text", "account_name"}, tmpl.Variables)

	_, err = h.catalog.AddTemplate(ctx, TemplateRequest{Name: "Bad", Template: "{weather} today"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	list, err := h.catalog.ListTemplates(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSeedDefaults(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tags, templates, err := h.catalog.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, tags)
	assert.Equal(t, 3, templates)

	// Second run leaves the populated catalog alone
	tags, templates, err = h.catalog.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, tags)
	assert.Zero(t, templates)

	list, err := h.catalog.ListTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Motivational Monday", list[0].Name)
	assert.Contains(t, list[0].Variables, "time_period")
}
