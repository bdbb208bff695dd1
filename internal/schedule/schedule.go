// Package schedule computes when a post should fire.
package schedule

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultDailyLimit = 25
	// QuotaOverflowHour is the UTC hour posts spill to once the day is full.
	QuotaOverflowHour  = 6
	maxVarianceMinutes = 720
)

// StoryCadence is the rolling story slot list, local hours.
var StoryCadence = []int{6, 8, 10, 12, 14, 16, 18, 20, 22, 0, 2}

// PostCounter counts non-cancelled posts of an account in [from, to).
type PostCounter interface {
	CountPostsInWindow(ctx context.Context, accountID primitive.ObjectID, from, to time.Time) (int64, error)
}

type Calculator struct {
	counter    PostCounter
	dailyLimit int
	now        func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Calculator) { c.rng = rng }
}

func WithDailyLimit(n int) Option {
	return func(c *Calculator) { c.dailyLimit = n }
}

func NewCalculator(counter PostCounter, opts ...Option) *Calculator {
	c := &Calculator{
		counter:    counter,
		dailyLimit: DefaultDailyLimit,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Request struct {
	Mode      models.ScheduleMode
	Kind      models.PostKind
	AccountID primitive.ObjectID
	// Schedule is the active schedule, nil when the account has none.
	Schedule *models.PostingSchedule
}

// Compute returns the UTC instant the post should fire at. Without an active
// schedule every mode falls back to now.
func (c *Calculator) Compute(ctx context.Context, req Request) (time.Time, error) {
	const op = "compute schedule"
	now := c.now().UTC()

	if !req.Mode.Valid() {
		return time.Time{}, apperr.Newf(apperr.KindValidation, op, "unknown schedule mode %q", req.Mode)
	}
	if req.Mode == models.ScheduleModeAutoStory && req.Kind != models.PostKindStory {
		return time.Time{}, apperr.Validation(op, "auto_story scheduling is only available for stories")
	}
	if req.Mode == models.ScheduleModeNow || req.Schedule == nil || !req.Schedule.IsActive {
		return now, nil
	}

	switch req.Mode {
	case models.ScheduleModeAutoStory:
		loc, err := req.Schedule.Location()
		if err != nil {
			return time.Time{}, apperr.Wrap(apperr.KindValidation, op, err)
		}
		return NextStorySlot(now, loc), nil

	case models.ScheduleModeQueue:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)
		count, err := c.counter.CountPostsInWindow(ctx, req.AccountID, dayStart, dayEnd)
		if err != nil {
			return time.Time{}, apperr.Wrap(apperr.KindStorage, op, err)
		}
		if count >= int64(c.dailyLimit) {
			return dayEnd.Add(QuotaOverflowHour * time.Hour), nil
		}
	}

	return c.NextSlot(now, req.Schedule)
}

// NextSlot picks slot1 today, slot2 today or slot1 tomorrow in the schedule's
// timezone and applies a uniform jitter of up to VarianceMinutes either way.
func (c *Calculator) NextSlot(now time.Time, s *models.PostingSchedule) (time.Time, error) {
	const op = "next slot"

	first, second, err := s.Slots()
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	// Stored schedules are validated, older records may still be inverted
	if second.Before(first) {
		first, second = second, first
	}

	local := now.In(loc)
	var target time.Time
	switch {
	case local.Before(first.On(local, loc)):
		target = first.On(local, loc)
	case local.Before(second.On(local, loc)):
		target = second.On(local, loc)
	default:
		y, m, d := local.Date()
		target = time.Date(y, m, d+1, first.Hour, first.Minute, 0, 0, loc)
	}

	return target.Add(c.jitter(s.VarianceMinutes)).UTC(), nil
}

func (c *Calculator) jitter(varianceMinutes int) time.Duration {
	if varianceMinutes <= 0 {
		return 0
	}
	window := int64(varianceMinutes) * 60
	c.mu.Lock()
	offset := c.rng.Int63n(2*window+1) - window
	c.mu.Unlock()
	return time.Duration(offset) * time.Second
}

// NextStorySlot returns the first cadence hour strictly after the current
// local hour, or 06:00 local the next day.
func NextStorySlot(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	for _, hour := range StoryCadence {
		if hour > local.Hour() {
			return time.Date(y, m, d, hour, 0, 0, 0, loc).UTC()
		}
	}
	return time.Date(y, m, d+1, StoryCadence[0], 0, 0, 0, loc).UTC()
}

// ValidateSchedule rejects schedules the calculator cannot use, including
// inverted or equal slots.
func ValidateSchedule(s *models.PostingSchedule) error {
	const op = "validate schedule"

	first, second, err := s.Slots()
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	if !first.Before(second) {
		return apperr.Newf(apperr.KindValidation, op,
			"time_slot_1 (%s) must be earlier than time_slot_2 (%s)", first, second)
	}
	if _, err := s.Location(); err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	if s.VarianceMinutes < 0 || s.VarianceMinutes > maxVarianceMinutes {
		return apperr.Newf(apperr.KindValidation, op,
			"variance_minutes must be between 0 and %d", maxVarianceMinutes)
	}
	return nil
}
