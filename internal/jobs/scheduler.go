// Package jobs runs post executions on in-process gocron timers.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"instagram-automation/internal/logger"
	"instagram-automation/internal/store"
	"instagram-automation/internal/telemetry"
	"instagram-automation/models"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const sweepTag = "sweep-overdue"

// Runner executes one post. The executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error)
}

// PostLister finds posts to re-register.
type PostLister interface {
	ListPosts(ctx context.Context, filter store.PostFilter) ([]models.Post, error)
}

type pendingJob struct {
	job *gocron.Job
	gen uint64
}

// PendingJob describes a registered timer.
type PendingJob struct {
	PostID  primitive.ObjectID `json:"post_id"`
	NextRun time.Time          `json:"next_run"`
}

// Scheduler owns the job registry. Build it once at startup and pass it
// to whoever needs to schedule posts.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	metrics   *telemetry.Metrics
	log       *slog.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	ctx       context.Context

	mu      sync.Mutex
	gen     uint64
	pending map[primitive.ObjectID]pendingJob
	running map[primitive.ObjectID]bool
}

type Option func(*Scheduler)

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a stopped scheduler
func NewScheduler(runner Runner, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	gs := gocron.NewScheduler(time.UTC)
	gs.TagsUnique()

	s := &Scheduler{
		scheduler: gs,
		runner:    runner,
		log:       logger.Component("jobs"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[primitive.ObjectID]pendingJob),
		running:   make(map[primitive.ObjectID]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop halts timers and the overdue sweep. Executions already running finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

func jobTag(postID primitive.ObjectID) string {
	return "post:" + postID.Hex()
}

// Schedule registers a single execution of postID at at, replacing any
// earlier registration. Instants in the past fire immediately.
func (s *Scheduler) Schedule(_ context.Context, postID primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(postID)

	s.gen++
	gen := s.gen
	chain := s.scheduler.Every(1).Day().LimitRunsTo(1).Tag(jobTag(postID))
	if at.After(s.now()) {
		chain = chain.StartAt(at)
	} else {
		chain = chain.StartImmediately()
	}

	job, err := chain.Do(func() { s.fire(postID, gen) })
	if err != nil {
		return fmt.Errorf("schedule post %s: %w", postID.Hex(), err)
	}

	s.pending[postID] = pendingJob{job: job, gen: gen}
	s.metrics.RecordScheduledJobs(1)
	s.log.Debug("Post scheduled", "post_id", postID.Hex(), "at", at.UTC())
	return nil
}

// RunNow executes postID synchronously, dropping any pending timer. The
// execution outlives ctx cancellation; Graph calls are bounded by their own
// timeouts.
func (s *Scheduler) RunNow(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error) {
	s.mu.Lock()
	s.dropLocked(postID)
	if s.running[postID] {
		s.mu.Unlock()
		return nil, nil
	}
	s.running[postID] = true
	s.mu.Unlock()

	defer s.finish(postID)
	return s.runner.Execute(context.WithoutCancel(ctx), postID)
}

// Cancel drops the pending timer for postID, if any.
func (s *Scheduler) Cancel(_ context.Context, postID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropLocked(postID)
	return nil
}

func (s *Scheduler) dropLocked(postID primitive.ObjectID) {
	if p, ok := s.pending[postID]; ok {
		s.scheduler.RemoveByReference(p.job)
		delete(s.pending, postID)
		s.metrics.RecordScheduledJobs(-1)
	}
}

// fire is the timer callback. gen guards against a replaced registration
// clearing its successor.
func (s *Scheduler) fire(postID primitive.ObjectID, gen uint64) {
	s.mu.Lock()
	if p, ok := s.pending[postID]; ok && p.gen == gen {
		delete(s.pending, postID)
		s.metrics.RecordScheduledJobs(-1)
	}
	if s.running[postID] {
		s.mu.Unlock()
		return
	}
	s.running[postID] = true
	s.mu.Unlock()

	defer s.finish(postID)
	// Stop must not abort a publish halfway
	if _, err := s.runner.Execute(context.WithoutCancel(s.ctx), postID); err != nil {
		s.log.Error("Scheduled post execution failed", "post_id", postID.Hex(), "error", err)
	}
}

func (s *Scheduler) finish(postID primitive.ObjectID) {
	s.mu.Lock()
	delete(s.running, postID)
	s.mu.Unlock()
}

// Pending lists registered timers.
func (s *Scheduler) Pending() []PendingJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingJob, 0, len(s.pending))
	for id, p := range s.pending {
		out = append(out, PendingJob{PostID: id, NextRun: p.job.NextRun()})
	}
	return out
}

// Rehydrate re-registers every still-scheduled post, typically at boot.
func (s *Scheduler) Rehydrate(ctx context.Context, lister PostLister) (int, error) {
	posts, err := lister.ListPosts(ctx, store.PostFilter{Status: models.PostStatusScheduled})
	if err != nil {
		return 0, fmt.Errorf("list scheduled posts: %w", err)
	}

	restored := 0
	for _, p := range posts {
		if s.unrecorded(p) {
			continue
		}
		if err := s.Schedule(ctx, p.ID, p.ScheduledTime); err != nil {
			return restored, err
		}
		restored++
	}
	s.log.Info("Scheduled posts restored", "count", restored)
	return restored, nil
}

// unrecorded reports a post that was attempted but whose outcome never got
// written. It may be live already, so it is left for an operator.
func (s *Scheduler) unrecorded(p models.Post) bool {
	if p.AttemptedAt == nil {
		return false
	}
	s.log.Warn("Post attempted without a recorded outcome, not rescheduling",
		"post_id", p.ID.Hex(), "attempted_at", p.AttemptedAt)
	return true
}

// StartSweep periodically runs overdue scheduled posts that have no timer,
// e.g. when a registration failed after the post was stored.
func (s *Scheduler) StartSweep(interval, grace time.Duration, lister PostLister) error {
	_, err := s.scheduler.Every(interval).SingletonMode().Tag(sweepTag).Do(func() {
		if n, err := s.Sweep(s.ctx, grace, lister); err != nil {
			s.log.Error("Overdue sweep failed", "error", err)
		} else if n > 0 {
			s.log.Warn("Overdue posts picked up by sweep", "count", n)
		}
	})
	return err
}

// Sweep schedules overdue posts (older than grace) that are neither
// idle and were never attempted. It returns how many it picked up.
func (s *Scheduler) Sweep(ctx context.Context, grace time.Duration, lister PostLister) (int, error) {
	cutoff := s.now().Add(-grace)
	posts, err := lister.ListPosts(ctx, store.PostFilter{Status: models.PostStatusScheduled, DueBefore: &cutoff})
	if err != nil {
		return 0, err
	}

	picked := 0
	for _, p := range posts {
		s.mu.Lock()
		_, isPending := s.pending[p.ID]
		busy := isPending || s.running[p.ID]
		s.mu.Unlock()
		if busy || s.unrecorded(p) {
			continue
		}
		if err := s.Schedule(ctx, p.ID, p.ScheduledTime); err != nil {
			return picked, err
		}
		picked++
	}
	return picked, nil
}
