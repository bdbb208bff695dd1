// Package store persists accounts, schedules, posts and the caption catalog.
package store

import (
	"context"
	"errors"
	"time"

	"instagram-automation/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
	// ErrStaleTransition means the post left the scheduled state before the write.
	ErrStaleTransition = errors.New("store: post is no longer scheduled")
	// ErrAlreadyAttempted means another execution already claimed the post.
	ErrAlreadyAttempted = errors.New("store: post was already attempted")
)

type PostFilter struct {
	AccountID *primitive.ObjectID
	Status    models.PostStatus
	// DueBefore restricts to posts scheduled at or before the instant.
	DueBefore *time.Time
	Limit     int64
}

type Store interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id primitive.ObjectID) (*models.Account, error)
	FindAccountByIdentity(ctx context.Context, username, instagramID string) (*models.Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error)
	SetAccountActive(ctx context.Context, id primitive.ObjectID, active bool) error

	// SaveSchedule deactivates the current schedule and stores s as active.
	SaveSchedule(ctx context.Context, s *models.PostingSchedule) error
	ActiveSchedule(ctx context.Context, accountID primitive.ObjectID) (*models.PostingSchedule, error)

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	CountPostsInWindow(ctx context.Context, accountID primitive.ObjectID, from, to time.Time) (int64, error)
	// ClaimPost stamps attempted_at on a scheduled post that has none.
	ClaimPost(ctx context.Context, id primitive.ObjectID, at time.Time) error
	// RecordOutcome applies a terminal outcome only if the post is still scheduled.
	RecordOutcome(ctx context.Context, id primitive.ObjectID, outcome models.PostOutcome) error
	// CancelPost moves a scheduled post to cancelled.
	CancelPost(ctx context.Context, id primitive.ObjectID, at time.Time) error
	PostStats(ctx context.Context, accountID *primitive.ObjectID) (*models.PostStats, error)

	AddHashtag(ctx context.Context, h *models.Hashtag) error
	ListHashtags(ctx context.Context) ([]models.Hashtag, error)
	ActiveHashtags(ctx context.Context) ([]models.Hashtag, error)
	SetHashtagActive(ctx context.Context, tag string, active bool) error
	IncrementHashtagUsage(ctx context.Context, tags []string) error

	AddTemplate(ctx context.Context, t *models.CaptionTemplate) error
	GetTemplate(ctx context.Context, id primitive.ObjectID) (*models.CaptionTemplate, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]models.CaptionTemplate, error)

	Close(ctx context.Context) error
}

func successRate(stats *models.PostStats) {
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Posted) / float64(stats.Total) * 100
	}
}
