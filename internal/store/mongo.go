package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"instagram-automation/internal/config"
	"instagram-automation/internal/telemetry"
	"instagram-automation/models"
	"instagram-automation/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client    *mongo.Client
	accounts  *mongo.Collection
	schedules *mongo.Collection
	posts     *mongo.Collection
	hashtags  *mongo.Collection
	templates *mongo.Collection
	metrics   *telemetry.Metrics
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(client *mongo.Client, dbName string, metrics *telemetry.Metrics) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:    client,
		accounts:  db.Collection(config.CollectionAccounts),
		schedules: db.Collection(config.CollectionSchedules),
		posts:     db.Collection(config.CollectionPosts),
		hashtags:  db.Collection(config.CollectionHashtags),
		templates: db.Collection(config.CollectionTemplates),
		metrics:   metrics,
	}
}

// observe records the operation and translates driver sentinels.
func (s *MongoStore) observe(op string, coll *mongo.Collection, err error) error {
	s.metrics.RecordDatabaseOperation(op, coll.Name(), err == nil || errors.Is(err, mongo.ErrNoDocuments))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return fmt.Errorf("%s %s: %w", op, coll.Name(), err)
	}
}

func (s *MongoStore) CreateAccount(ctx context.Context, account *models.Account) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	_, err := s.accounts.InsertOne(ctx, account)
	return s.observe("insert", s.accounts, err)
}

func (s *MongoStore) GetAccount(ctx context.Context, id primitive.ObjectID) (*models.Account, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var a models.Account
	err := s.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err = s.observe("find", s.accounts, err); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) FindAccountByIdentity(ctx context.Context, username, instagramID string) (*models.Account, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var a models.Account
	filter := bson.M{"$or": []bson.M{{"username": username}, {"instagram_id": instagramID}}}
	err := s.accounts.FindOne(ctx, filter).Decode(&a)
	if err = s.observe("find", s.accounts, err); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cursor, err := s.accounts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, s.observe("find", s.accounts, err)
	}
	defer cursor.Close(ctx)

	out := make([]models.Account, 0)
	err = cursor.All(ctx, &out)
	return out, s.observe("find", s.accounts, err)
}

func (s *MongoStore) SetAccountActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	res, err := s.accounts.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now().UTC()}})
	if err = s.observe("update", s.accounts, err); err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SaveSchedule(ctx context.Context, sched *models.PostingSchedule) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := s.schedules.UpdateMany(ctx,
		bson.M{"account_id": sched.AccountID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err = s.observe("update", s.schedules, err); err != nil {
		return err
	}

	if sched.ID.IsZero() {
		sched.ID = primitive.NewObjectID()
	}
	sched.IsActive = true
	_, err = s.schedules.InsertOne(ctx, sched)
	return s.observe("insert", s.schedules, err)
}

func (s *MongoStore) ActiveSchedule(ctx context.Context, accountID primitive.ObjectID) (*models.PostingSchedule, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var sched models.PostingSchedule
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := s.schedules.FindOne(ctx, bson.M{"account_id": accountID, "is_active": true}, opts).Decode(&sched)
	if err = s.observe("find", s.schedules, err); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (s *MongoStore) CreatePost(ctx context.Context, post *models.Post) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	_, err := s.posts.InsertOne(ctx, post)
	return s.observe("insert", s.posts, err)
}

func (s *MongoStore) GetPost(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var p models.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err = s.observe("find", s.posts, err); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.AccountID != nil {
		query["account_id"] = *filter.AccountID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.DueBefore != nil {
		query["scheduled_time"] = bson.M{"$lte": *filter.DueBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_time", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}
	cursor, err := s.posts.Find(ctx, query, opts)
	if err != nil {
		return nil, s.observe("find", s.posts, err)
	}
	defer cursor.Close(ctx)

	out := make([]models.Post, 0)
	err = cursor.All(ctx, &out)
	return out, s.observe("find", s.posts, err)
}

func (s *MongoStore) CountPostsInWindow(ctx context.Context, accountID primitive.ObjectID, from, to time.Time) (int64, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	n, err := s.posts.CountDocuments(ctx, bson.M{
		"account_id":     accountID,
		"status":         bson.M{"$ne": models.PostStatusCancelled},
		"scheduled_time": bson.M{"$gte": from, "$lt": to},
	})
	return n, s.observe("count", s.posts, err)
}

// ClaimPost is a compare-and-set on attempted_at. Only one execution of a
// post ever gets past it.
func (s *MongoStore) ClaimPost(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PostStatusScheduled, "attempted_at": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"attempted_at": at}},
	)
	if err = s.observe("update", s.posts, err); err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	var current models.Post
	err = s.posts.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"status": 1, "attempted_at": 1})).Decode(&current)
	if err = s.observe("find", s.posts, err); err != nil {
		return err
	}
	if current.Status != models.PostStatusScheduled {
		return ErrStaleTransition
	}
	return ErrAlreadyAttempted
}

// RecordOutcome is a compare-and-set on status so a post reaches exactly
// one terminal state even when two executions race.
func (s *MongoStore) RecordOutcome(ctx context.Context, id primitive.ObjectID, outcome models.PostOutcome) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	set := bson.M{
		"status":            outcome.Status,
		"instagram_post_id": outcome.InstagramPostID,
		"error_message":     outcome.ErrorMessage,
		"updated_at":        outcome.UpdatedAt,
	}
	if outcome.ActualPostTime != nil {
		set["actual_post_time"] = *outcome.ActualPostTime
	}
	return s.transition(ctx, id, set)
}

func (s *MongoStore) CancelPost(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	return s.transition(ctx, id, bson.M{"status": models.PostStatusCancelled, "updated_at": at})
}

func (s *MongoStore) transition(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PostStatusScheduled},
		bson.M{"$set": set},
	)
	if err = s.observe("update", s.posts, err); err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": id})
	if err = s.observe("count", s.posts, err); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrStaleTransition
}

func (s *MongoStore) PostStats(ctx context.Context, accountID *primitive.ObjectID) (*models.PostStats, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{}
	if accountID != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"account_id": *accountID}}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}})

	cursor, err := s.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, s.observe("aggregate", s.posts, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.PostStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := s.observe("aggregate", s.posts, cursor.All(ctx, &rows)); err != nil {
		return nil, err
	}

	stats := &models.PostStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case models.PostStatusPosted:
			stats.Posted = row.Count
		case models.PostStatusFailed:
			stats.Failed = row.Count
		case models.PostStatusScheduled:
			stats.Scheduled = row.Count
		case models.PostStatusCancelled:
			stats.Cancelled = row.Count
		}
	}
	successRate(stats)
	return stats, nil
}

func (s *MongoStore) AddHashtag(ctx context.Context, h *models.Hashtag) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if h.ID.IsZero() {
		h.ID = primitive.NewObjectID()
	}
	_, err := s.hashtags.InsertOne(ctx, h)
	return s.observe("insert", s.hashtags, err)
}

func (s *MongoStore) ListHashtags(ctx context.Context) ([]models.Hashtag, error) {
	return s.findHashtags(ctx, bson.M{})
}

func (s *MongoStore) ActiveHashtags(ctx context.Context) ([]models.Hashtag, error) {
	return s.findHashtags(ctx, bson.M{"is_active": true})
}

func (s *MongoStore) findHashtags(ctx context.Context, filter bson.M) ([]models.Hashtag, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := s.hashtags.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "tag", Value: 1}}))
	if err != nil {
		return nil, s.observe("find", s.hashtags, err)
	}
	defer cursor.Close(ctx)

	var out []models.Hashtag
	err = cursor.All(ctx, &out)
	return out, s.observe("find", s.hashtags, err)
}

func (s *MongoStore) SetHashtagActive(ctx context.Context, tag string, active bool) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	res, err := s.hashtags.UpdateOne(ctx, tagFilter(tag), bson.M{"$set": bson.M{"is_active": active}})
	if err = s.observe("update", s.hashtags, err); err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementHashtagUsage(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	_, err := s.hashtags.UpdateMany(ctx, bson.M{"tag": bson.M{"$in": tags}}, bson.M{"$inc": bson.M{"usage_count": 1}})
	return s.observe("update", s.hashtags, err)
}

func tagFilter(tag string) bson.M {
	return bson.M{"tag": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(tag) + "$", Options: "i"}}
}

func (s *MongoStore) AddTemplate(ctx context.Context, t *models.CaptionTemplate) error {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	_, err := s.templates.InsertOne(ctx, t)
	return s.observe("insert", s.templates, err)
}

func (s *MongoStore) GetTemplate(ctx context.Context, id primitive.ObjectID) (*models.CaptionTemplate, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	var t models.CaptionTemplate
	err := s.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err = s.observe("find", s.templates, err); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) ListTemplates(ctx context.Context, activeOnly bool) ([]models.CaptionTemplate, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cursor, err := s.templates.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, s.observe("find", s.templates, err)
	}
	defer cursor.Close(ctx)

	var out []models.CaptionTemplate
	err = cursor.All(ctx, &out)
	return out, s.observe("find", s.templates, err)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
