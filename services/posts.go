package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/caption"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/media"
	"instagram-automation/internal/schedule"
	"instagram-automation/internal/store"
	"instagram-automation/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dispatcher hands stored posts to whatever executes them: the in-process
// gocron scheduler or the asynq queue.
type Dispatcher interface {
	Schedule(ctx context.Context, postID primitive.ObjectID, at time.Time) error
	RunNow(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error)
	Cancel(ctx context.Context, postID primitive.ObjectID) error
}

// MediaResolver produces the public URL of an upload for an account.
type MediaResolver interface {
	Resolve(ctx context.Context, file media.LocalFile, account *models.Account) (string, error)
}

// MetricsFetcher reads insights of a published post.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, postID string, kind models.PostKind, token string) map[string]int64
}

type SubmitRequest struct {
	AccountID string              `json:"account_id" form:"account_id" binding:"required"`
	Kind      string              `json:"kind" form:"kind"`
	Mode      models.ScheduleMode `json:"schedule_type" form:"schedule_type"`
	// Template is literal template text, TemplateID picks a stored one.
	Template      string                `json:"caption_template" form:"caption_template"`
	TemplateID    string                `json:"template_id" form:"template_id"`
	CustomText    string                `json:"custom_text" form:"custom_text"`
	MediaURLs     []string              `json:"media_urls" form:"media_urls"`
	StoryElements *models.StoryElements `json:"story_elements" form:"-"`

	Files []media.LocalFile `json:"-" form:"-"`
}

type PostQuery struct {
	AccountID string
	Status    string
	Limit     int64
}

type PostService struct {
	store      store.Store
	composer   *caption.Composer
	calculator *schedule.Calculator
	resolver   MediaResolver
	dispatcher Dispatcher
	insights   MetricsFetcher
	timezone   string
	now        func() time.Time
	log        *slog.Logger
}

func NewPostService(
	s store.Store,
	composer *caption.Composer,
	calculator *schedule.Calculator,
	resolver MediaResolver,
	dispatcher Dispatcher,
	insights MetricsFetcher,
	defaultTimezone string,
) *PostService {
	return &PostService{
		store:      s,
		composer:   composer,
		calculator: calculator,
		resolver:   resolver,
		dispatcher: dispatcher,
		insights:   insights,
		timezone:   defaultTimezone,
		now:        time.Now,
		log:        logger.Component("posts"),
	}
}

// Submit stores a post and hands it to the dispatcher. With mode "now" the
// post is executed before returning and the returned post carries the
// outcome.
func (s *PostService) Submit(ctx context.Context, req SubmitRequest) (*models.Post, error) {
	const op = "submit post"

	accountID, err := parseID(op, "account", req.AccountID)
	if err != nil {
		return nil, err
	}
	kind := models.PostKindFeed
	if req.Kind != "" {
		var ok bool
		if kind, ok = models.ParsePostKind(req.Kind); !ok {
			return nil, apperr.Newf(apperr.KindValidation, op, "unknown post kind %q", req.Kind)
		}
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ScheduleModeNow
	}
	if !mode.Valid() {
		return nil, apperr.Newf(apperr.KindValidation, op, "unknown schedule type %q", mode)
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeError(op, "account", err)
	}
	if !account.IsActive {
		return nil, apperr.Newf(apperr.KindValidation, op, "account @%s is inactive", account.Username)
	}

	urls, filenames, err := s.resolveMedia(ctx, account, req)
	if err != nil {
		return nil, err
	}
	if err := checkMediaCount(kind, len(urls)); err != nil {
		return nil, err
	}

	sched, err := s.store.ActiveSchedule(ctx, accountID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, storeError(op, "schedule", err)
	}
	loc := s.location(sched)

	text, err := s.buildCaption(ctx, req, account, loc)
	if err != nil {
		return nil, err
	}

	at, err := s.calculator.Compute(ctx, schedule.Request{Mode: mode, Kind: kind, AccountID: accountID, Schedule: sched})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	post := &models.Post{
		AccountID:         accountID,
		Kind:              kind,
		Caption:           text,
		MediaURLs:         urls,
		OriginalFilenames: filenames,
		ScheduledTime:     at,
		Status:            models.PostStatusScheduled,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if kind == models.PostKindStory && !req.StoryElements.Empty() {
		post.StoryElements = req.StoryElements
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, storeError(op, "post", err)
	}

	log := s.log.With("post_id", post.ID.Hex(), "account", account.Username, "kind", kind, "mode", mode)
	if mode == models.ScheduleModeNow {
		if _, err := s.dispatcher.RunNow(ctx, post.ID); err != nil {
			return nil, err
		}
		log.Info("Post executed immediately")
		return s.getPost(ctx, op, post.ID)
	}

	if err := s.dispatcher.Schedule(ctx, post.ID, at); err != nil {
		// The overdue sweep will pick it up.
		log.Error("Failed to register post timer", "error", err)
	} else {
		log.Info("Post scheduled", "scheduled_time", at)
	}
	return post, nil
}

func (s *PostService) resolveMedia(ctx context.Context, account *models.Account, req SubmitRequest) ([]string, []string, error) {
	const op = "resolve media"

	urls := make([]string, 0, len(req.MediaURLs)+len(req.Files))
	var filenames []string
	for _, u := range req.MediaURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if !account.HasSimulationToken() {
			if err := instagram.ValidateMediaURL(u); err != nil {
				return nil, nil, err
			}
		}
		urls = append(urls, u)
	}

	for _, f := range req.Files {
		u, err := s.resolver.Resolve(ctx, f, account)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.KindUnreachableMedia, op, err)
		}
		if u == "" {
			return nil, nil, apperr.Newf(apperr.KindUnreachableMedia, op,
				"no public URL available for %s: configure S3, a tunnel or PUBLIC_BASE_URL so Instagram can fetch it", f.OriginalName)
		}
		urls = append(urls, u)
		filenames = append(filenames, f.OriginalName)
	}
	return urls, filenames, nil
}

// checkMediaCount enforces one image for feed and story and 1..20 for
// carousels.
func checkMediaCount(kind models.PostKind, n int) error {
	const op = "check media"
	switch {
	case n == 0:
		return apperr.Validation(op, "at least one image is required")
	case kind == models.PostKindCarousel && n > models.MaxCarouselItems:
		return apperr.Newf(apperr.KindValidation, op, "a carousel takes at most %d images, got %d", models.MaxCarouselItems, n)
	case kind != models.PostKindCarousel && n > 1:
		return apperr.Newf(apperr.KindValidation, op, "a %s post takes exactly one image, got %d; use a carousel", kind, n)
	}
	return nil
}

func (s *PostService) location(sched *models.PostingSchedule) *time.Location {
	if sched != nil {
		if loc, err := sched.Location(); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(s.timezone); err == nil {
		return loc
	}
	return time.UTC
}

func (s *PostService) buildCaption(ctx context.Context, req SubmitRequest, account *models.Account, loc *time.Location) (string, error) {
	const op = "build caption"

	tmpl := req.Template
	if req.TemplateID != "" {
		id, err := parseID(op, "template", req.TemplateID)
		if err != nil {
			return "", err
		}
		t, err := s.store.GetTemplate(ctx, id)
		if err != nil {
			return "", storeError(op, "template", err)
		}
		tmpl = t.Template
	}

	text, err := s.composer.Build(ctx, caption.Input{
		Template:    tmpl,
		FreeText:    req.CustomText,
		AccountName: account.Username,
		Location:    loc,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, op, err)
	}
	return text, nil
}

// Cancel moves a scheduled post to cancelled and drops its timer.
func (s *PostService) Cancel(ctx context.Context, id string) (*models.Post, error) {
	const op = "cancel post"
	oid, err := parseID(op, "post", id)
	if err != nil {
		return nil, err
	}

	if err := s.store.CancelPost(ctx, oid, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			post, getErr := s.getPost(ctx, op, oid)
			if getErr != nil {
				return nil, getErr
			}
			return nil, apperr.Newf(apperr.KindConflict, op, "post is already %s", post.Status)
		}
		return nil, storeError(op, "post", err)
	}

	if err := s.dispatcher.Cancel(ctx, oid); err != nil {
		// The executor skips cancelled posts, a stray timer is harmless.
		s.log.Warn("Failed to drop post timer", "post_id", id, "error", err)
	}
	return s.getPost(ctx, op, oid)
}

func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	const op = "get post"
	oid, err := parseID(op, "post", id)
	if err != nil {
		return nil, err
	}
	return s.getPost(ctx, op, oid)
}

func (s *PostService) getPost(ctx context.Context, op string, id primitive.ObjectID) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return post, nil
}

func (s *PostService) List(ctx context.Context, q PostQuery) ([]models.Post, error) {
	const op = "list posts"

	filter := store.PostFilter{Limit: q.Limit}
	if q.AccountID != "" {
		oid, err := parseID(op, "account", q.AccountID)
		if err != nil {
			return nil, err
		}
		filter.AccountID = &oid
	}
	if q.Status != "" {
		status := models.PostStatus(q.Status)
		if !status.Valid() {
			return nil, apperr.Newf(apperr.KindValidation, op, "unknown status %q", q.Status)
		}
		filter.Status = status
	}

	posts, err := s.store.ListPosts(ctx, filter)
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return posts, nil
}

// Metrics returns insights of a published post. Failures yield an empty map.
func (s *PostService) Metrics(ctx context.Context, id string) (map[string]int64, error) {
	const op = "post metrics"
	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPosted || post.InstagramPostID == "" {
		return nil, apperr.Newf(apperr.KindConflict, op, "post is %s, metrics exist only for posted posts", post.Status)
	}
	account, err := s.store.GetAccount(ctx, post.AccountID)
	if err != nil {
		return nil, storeError(op, "account", err)
	}
	return s.insights.FetchMetrics(ctx, post.InstagramPostID, post.Kind, account.AccessToken), nil
}

func (s *PostService) Stats(ctx context.Context, accountID string) (*models.PostStats, error) {
	const op = "post stats"
	var filter *primitive.ObjectID
	if accountID != "" {
		oid, err := parseID(op, "account", accountID)
		if err != nil {
			return nil, err
		}
		filter = &oid
	}
	stats, err := s.store.PostStats(ctx, filter)
	if err != nil {
		return nil, storeError(op, "post", err)
	}
	return stats, nil
}
