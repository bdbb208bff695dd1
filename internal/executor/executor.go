// Package executor drives a scheduled post to its terminal state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/store"
	"instagram-automation/internal/telemetry"
	"instagram-automation/models"
	"instagram-automation/utils"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Failure reasons recorded on the post.
const (
	ReasonAccountUnavailable = "Account not found or inactive"
	ReasonNoMedia            = "No media URLs found"
	ReasonUnknown            = "Unknown error occurred while posting to Instagram"
)

var tracer = otel.Tracer("post-executor")

// PostStore is the slice of the store the executor needs.
type PostStore interface {
	GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	GetAccount(ctx context.Context, id primitive.ObjectID) (*models.Account, error)
	ClaimPost(ctx context.Context, id primitive.ObjectID, at time.Time) error
	RecordOutcome(ctx context.Context, id primitive.ObjectID, outcome models.PostOutcome) error
}

type Publisher interface {
	Dispatch(ctx context.Context, req instagram.PublishRequest) (*instagram.Result, error)
}

type Executor struct {
	store     PostStore
	publisher Publisher
	metrics   *telemetry.Metrics
	log       *slog.Logger
	now       func() time.Time

	writeAttempts uint
	writeInterval time.Duration
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithWriteRetry sets how often the outcome write is attempted and the
// initial backoff between attempts.
func WithWriteRetry(attempts uint, initial time.Duration) Option {
	return func(e *Executor) {
		e.writeAttempts = attempts
		e.writeInterval = initial
	}
}

func New(s PostStore, p Publisher, opts ...Option) *Executor {
	e := &Executor{
		store:         s,
		publisher:     p,
		log:           logger.Component("executor"),
		now:           time.Now,
		writeAttempts: 5,
		writeInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one attempt for postID. A post that is missing or no longer
// scheduled is a no-op and returns a nil outcome. Publish failures are
// recorded on the post, the returned error only reports a failed write.
func (e *Executor) Execute(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error) {
	ctx, span := tracer.Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(attribute.String("post.id", postID.Hex()))

	post, err := e.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Warn("Post not found, skipping", "post_id", postID.Hex())
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.KindStorage, "load post", err)
	}
	if post.Status != models.PostStatusScheduled {
		e.log.Debug("Post already handled, skipping", "post_id", postID.Hex(), "status", post.Status)
		return nil, nil
	}

	if post.AttemptedAt != nil {
		e.log.Error("Post was attempted before without a recorded outcome, skipping",
			"post_id", postID.Hex(), "attempted_at", post.AttemptedAt)
		return nil, nil
	}

	span.SetAttributes(attribute.String("post.kind", string(post.Kind)))
	started := e.now()

	// The claim must land before anything reaches the platform. A post whose
	// outcome write is lost later is never published again.
	if err := e.store.ClaimPost(ctx, postID, started.UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStaleTransition) || errors.Is(err, store.ErrAlreadyAttempted) {
			e.log.Debug("Post claimed elsewhere, skipping", "post_id", postID.Hex(), "reason", err)
			return nil, nil
		}
		span.RecordError(err)
		return nil, apperr.Wrap(apperr.KindStorage, "claim post", err)
	}

	outcome := e.attempt(ctx, post)
	outcome.UpdatedAt = e.stamp(post.UpdatedAt)

	if err := e.persist(ctx, post, outcome); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &outcome, err
	}

	e.metrics.RecordPostExecution(string(post.Kind), string(outcome.Status), e.now().Sub(started).Seconds())
	span.SetAttributes(attribute.String("post.status", string(outcome.Status)))
	if outcome.Status == models.PostStatusPosted {
		e.log.Info("Post published", "post_id", postID.Hex(), "instagram_post_id", outcome.InstagramPostID)
	} else {
		e.log.Warn("Post failed", "post_id", postID.Hex(), "reason", outcome.ErrorMessage)
	}
	return &outcome, nil
}

// attempt never panics: anything unexpected becomes a failed outcome.
func (e *Executor) attempt(ctx context.Context, post *models.Post) (outcome models.PostOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Recovered panic during post execution", "post_id", post.ID.Hex(), "panic", r)
			outcome = failed(fmt.Sprint(r))
		}
	}()

	account, err := e.store.GetAccount(ctx, post.AccountID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !account.IsActive) {
		return failed(ReasonAccountUnavailable)
	}
	if err != nil {
		return failed(err.Error())
	}

	if len(post.MediaURLs) == 0 {
		return failed(ReasonNoMedia)
	}

	res, err := e.publisher.Dispatch(ctx, instagram.PublishRequest{
		Kind:          post.Kind,
		AccountID:     account.InstagramID,
		Token:         account.AccessToken,
		Caption:       post.Caption,
		MediaURLs:     post.MediaURLs,
		StoryElements: post.StoryElements,
	})
	if err != nil {
		return failed(err.Error())
	}
	if res == nil || res.ID == "" {
		return failed(ReasonUnknown)
	}

	postedAt := e.now().UTC()
	return models.PostOutcome{
		Status:          models.PostStatusPosted,
		InstagramPostID: res.ID,
		ActualPostTime:  &postedAt,
	}
}

func failed(reason string) models.PostOutcome {
	if reason == "" {
		reason = ReasonUnknown
	}
	return models.PostOutcome{Status: models.PostStatusFailed, ErrorMessage: reason}
}

// stamp returns now, nudged past prev so updated_at never moves backwards.
func (e *Executor) stamp(prev time.Time) time.Time {
	now := e.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

// persist retries only the status write. The publish already happened, so
// losing this write would hide a live post.
func (e *Executor) persist(ctx context.Context, post *models.Post, outcome models.PostOutcome) error {
	// The caller may be gone by now, the write must still land
	ctx, cancel := utils.WithDetachedTimeout(ctx)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.writeInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.store.RecordOutcome(ctx, post.ID, outcome)
		if errors.Is(err, store.ErrStaleTransition) || errors.Is(err, store.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			e.log.Warn("Outcome write failed, retrying", "post_id", post.ID.Hex(), "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(e.writeAttempts))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrStaleTransition):
		e.log.Error("Post changed state during execution, outcome dropped",
			"post_id", post.ID.Hex(), "status", outcome.Status, "instagram_post_id", outcome.InstagramPostID)
		return apperr.New(apperr.KindConflict, "record outcome", "post is no longer scheduled")
	default:
		e.log.Error("Outcome could not be recorded",
			"post_id", post.ID.Hex(), "status", outcome.Status, "instagram_post_id", outcome.InstagramPostID, "error", err)
		return apperr.Wrap(apperr.KindStorage, "record outcome", err)
	}
}
