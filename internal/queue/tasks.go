// Package queue moves post execution onto asynq workers so scheduled posts
// survive API restarts and can be spread over several processes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"instagram-automation/internal/logger"
	"instagram-automation/models"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TaskPublishPost = "post:publish"

	QueueDefault = "default"

	publishTimeout = 10 * time.Minute
)

type PublishPostPayload struct {
	PostID string `json:"post_id"`
}

// TaskID is stable per post so a reschedule can find and replace it.
func TaskID(postID primitive.ObjectID) string {
	return "post:" + postID.Hex()
}

// NewPublishPostTask builds the task for postID. Retries stay off: the
// executor records failures itself and a publish must not repeat.
func NewPublishPostTask(postID primitive.ObjectID) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishPostPayload{PostID: postID.Hex()})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskPublishPost,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(publishTimeout),
		asynq.Queue(QueueDefault),
	), nil
}

// Runner executes one post. The executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error)
}

// TaskProcessor handles publish tasks on the worker side.
type TaskProcessor struct {
	runner Runner
	log    *slog.Logger
}

func NewTaskProcessor(runner Runner) *TaskProcessor {
	return &TaskProcessor{runner: runner, log: logger.Component("worker")}
}

func (p *TaskProcessor) ProcessPublishPost(ctx context.Context, t *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	postID, err := primitive.ObjectIDFromHex(payload.PostID)
	if err != nil {
		return fmt.Errorf("bad post id %q: %w", payload.PostID, asynq.SkipRetry)
	}

	p.log.Info("Processing post", "post_id", payload.PostID)

	// Worker shutdown must not abort a publish halfway
	outcome, err := p.runner.Execute(context.WithoutCancel(ctx), postID)
	if err != nil {
		return err
	}
	if outcome != nil {
		p.log.Info("Post processed", "post_id", payload.PostID, "status", outcome.Status)
	}
	return nil
}

// Register wires the handlers into mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPublishPost, p.ProcessPublishPost)
}

// Enqueuer hands posts to the worker fleet. It fills the same role as the
// in-process scheduler when JOB_BACKEND=asynq.
type Enqueuer struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	log       *slog.Logger
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		log:       logger.Component("queue"),
	}
}

func (e *Enqueuer) Close() error {
	return errors.Join(e.client.Close(), e.inspector.Close())
}

// Schedule enqueues postID for processing at at, replacing a task already
// queued for the same post.
func (e *Enqueuer) Schedule(ctx context.Context, postID primitive.ObjectID, at time.Time) error {
	err := e.enqueue(ctx, postID, asynq.ProcessAt(at))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if err := e.Cancel(ctx, postID); err != nil {
			return err
		}
		err = e.enqueue(ctx, postID, asynq.ProcessAt(at))
	}
	if err != nil {
		return fmt.Errorf("enqueue post %s: %w", postID.Hex(), err)
	}
	e.log.Debug("Post enqueued", "post_id", postID.Hex(), "at", at.UTC())
	return nil
}

// RunNow enqueues postID for immediate processing. The outcome is recorded
// by the worker, so nil is returned.
func (e *Enqueuer) RunNow(ctx context.Context, postID primitive.ObjectID) (*models.PostOutcome, error) {
	return nil, e.Schedule(ctx, postID, time.Now())
}

// Cancel removes the queued task for postID. A task that is already gone is
// not an error.
func (e *Enqueuer) Cancel(_ context.Context, postID primitive.ObjectID) error {
	err := e.inspector.DeleteTask(QueueDefault, TaskID(postID))
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("delete task for post %s: %w", postID.Hex(), err)
}

func (e *Enqueuer) enqueue(ctx context.Context, postID primitive.ObjectID, opts ...asynq.Option) error {
	task, err := NewPublishPostTask(postID)
	if err != nil {
		return err
	}
	opts = append(opts, asynq.TaskID(TaskID(postID)))
	_, err = e.client.EnqueueContext(ctx, task, opts...)
	return err
}
