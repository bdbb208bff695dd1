package caption

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"instagram-automation/internal/logger"
	"instagram-automation/models"
)

// HashtagSource is the hashtag repository as seen by the composer.
type HashtagSource interface {
	ActiveHashtags(ctx context.Context) ([]models.Hashtag, error)
	IncrementHashtagUsage(ctx context.Context, tags []string) error
}

type Composer struct {
	tags  HashtagSource
	count int
	now   func() time.Time
	log   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Composer)

func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Composer) { c.rng = rng }
}

func NewComposer(tags HashtagSource, count int, opts ...Option) *Composer {
	c := &Composer{
		tags:  tags,
		count: min(max(count, 0), DefaultHashtagCount),
		now:   time.Now,
		log:   logger.Component("caption"),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Input struct {
	// Template may be empty, the caption is then the free text.
	Template    string
	FreeText    string
	AccountName string
	Location    *time.Location
}

// Build composes the caption and appends sampled hashtags. Usage counters
// are bumped best effort.
func (c *Composer) Build(ctx context.Context, in Input) (string, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	text := in.FreeText
	if in.Template != "" {
		text = Compose(in.Template, in.FreeText, in.AccountName, c.now().In(loc))
	}

	if c.tags == nil || c.count <= 0 {
		return text, nil
	}

	active, err := c.tags.ActiveHashtags(ctx)
	if err != nil {
		return "", fmt.Errorf("load hashtags: %w", err)
	}
	names := make([]string, len(active))
	for i, h := range active {
		names[i] = h.Tag
	}

	c.mu.Lock()
	picked := SampleHashtags(names, c.count, c.rng)
	c.mu.Unlock()

	if len(picked) > 0 {
		if err := c.tags.IncrementHashtagUsage(ctx, picked); err != nil {
			c.log.Warn("Failed to bump hashtag usage", "error", err)
		}
	}

	return AppendHashtags(text, picked), nil
}
