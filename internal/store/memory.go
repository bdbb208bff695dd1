package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"instagram-automation/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps everything in process. Reads return copies.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[primitive.ObjectID]models.Account
	schedules []models.PostingSchedule
	posts     map[primitive.ObjectID]models.Post
	hashtags  []models.Hashtag
	templates []models.CaptionTemplate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[primitive.ObjectID]models.Account),
		posts:    make(map[primitive.ObjectID]models.Post),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateAccount(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Username == account.Username || a.InstagramID == account.InstagramID {
			return ErrDuplicate
		}
	}
	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	m.accounts[account.ID] = *account
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, id primitive.ObjectID) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) FindAccountByIdentity(_ context.Context, username, instagramID string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.Username == username || a.InstagramID == instagramID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListAccounts(_ context.Context, activeOnly bool) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SetAccountActive(_ context.Context, id primitive.ObjectID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = time.Now().UTC()
	m.accounts[id] = a
	return nil
}

func (m *MemoryStore) SaveSchedule(_ context.Context, s *models.PostingSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.schedules {
		if m.schedules[i].AccountID == s.AccountID {
			m.schedules[i].IsActive = false
		}
	}
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	s.IsActive = true
	m.schedules = append(m.schedules, *s)
	return nil
}

func (m *MemoryStore) ActiveSchedule(_ context.Context, accountID primitive.ObjectID) (*models.PostingSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.schedules) - 1; i >= 0; i-- {
		if s := m.schedules[i]; s.AccountID == accountID && s.IsActive {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) CreatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	m.posts[post.ID] = clonePost(*post)
	return nil
}

func (m *MemoryStore) GetPost(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	p = clonePost(p)
	return &p, nil
}

func (m *MemoryStore) ListPosts(_ context.Context, filter PostFilter) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Post, 0)
	for _, p := range m.posts {
		if filter.AccountID != nil && p.AccountID != *filter.AccountID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.DueBefore != nil && p.ScheduledTime.After(*filter.DueBefore) {
			continue
		}
		out = append(out, clonePost(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.After(out[j].ScheduledTime) })
	if filter.Limit > 0 && int64(len(out)) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountPostsInWindow(_ context.Context, accountID primitive.ObjectID, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, p := range m.posts {
		if p.AccountID != accountID || p.Status == models.PostStatusCancelled {
			continue
		}
		if !p.ScheduledTime.Before(from) && p.ScheduledTime.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ClaimPost(_ context.Context, id primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.PostStatusScheduled {
		return ErrStaleTransition
	}
	if p.AttemptedAt != nil {
		return ErrAlreadyAttempted
	}
	p.AttemptedAt = &at
	m.posts[id] = p
	return nil
}

func (m *MemoryStore) RecordOutcome(_ context.Context, id primitive.ObjectID, outcome models.PostOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.PostStatusScheduled {
		return ErrStaleTransition
	}
	p.Status = outcome.Status
	p.InstagramPostID = outcome.InstagramPostID
	p.ErrorMessage = outcome.ErrorMessage
	p.ActualPostTime = outcome.ActualPostTime
	p.UpdatedAt = outcome.UpdatedAt
	m.posts[id] = p
	return nil
}

func (m *MemoryStore) CancelPost(_ context.Context, id primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.PostStatusScheduled {
		return ErrStaleTransition
	}
	p.Status = models.PostStatusCancelled
	p.UpdatedAt = at
	m.posts[id] = p
	return nil
}

func (m *MemoryStore) PostStats(_ context.Context, accountID *primitive.ObjectID) (*models.PostStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.PostStats{}
	for _, p := range m.posts {
		if accountID != nil && p.AccountID != *accountID {
			continue
		}
		stats.Total++
		switch p.Status {
		case models.PostStatusPosted:
			stats.Posted++
		case models.PostStatusFailed:
			stats.Failed++
		case models.PostStatusScheduled:
			stats.Scheduled++
		case models.PostStatusCancelled:
			stats.Cancelled++
		}
	}
	successRate(stats)
	return stats, nil
}

func (m *MemoryStore) AddHashtag(_ context.Context, h *models.Hashtag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.hashtags {
		if strings.EqualFold(existing.Tag, h.Tag) {
			return ErrDuplicate
		}
	}
	if h.ID.IsZero() {
		h.ID = primitive.NewObjectID()
	}
	m.hashtags = append(m.hashtags, *h)
	return nil
}

func (m *MemoryStore) ListHashtags(_ context.Context) ([]models.Hashtag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Hashtag(nil), m.hashtags...), nil
}

func (m *MemoryStore) ActiveHashtags(_ context.Context) ([]models.Hashtag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Hashtag
	for _, h := range m.hashtags {
		if h.IsActive {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemoryStore) SetHashtagActive(_ context.Context, tag string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.hashtags {
		if strings.EqualFold(m.hashtags[i].Tag, tag) {
			m.hashtags[i].IsActive = active
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) IncrementHashtagUsage(_ context.Context, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tag := range tags {
		for i := range m.hashtags {
			if strings.EqualFold(m.hashtags[i].Tag, tag) {
				m.hashtags[i].UsageCount++
			}
		}
	}
	return nil
}

func (m *MemoryStore) AddTemplate(_ context.Context, t *models.CaptionTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	m.templates = append(m.templates, *t)
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, id primitive.ObjectID) (*models.CaptionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.templates {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListTemplates(_ context.Context, activeOnly bool) ([]models.CaptionTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CaptionTemplate
	for _, t := range m.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

func clonePost(p models.Post) models.Post {
	p.MediaURLs = append([]string(nil), p.MediaURLs...)
	p.OriginalFilenames = append([]string(nil), p.OriginalFilenames...)
	if p.StoryElements != nil {
		e := *p.StoryElements
		e.Mentions = append([]string(nil), e.Mentions...)
		if e.Poll != nil {
			poll := *e.Poll
			poll.Options = append([]string(nil), poll.Options...)
			e.Poll = &poll
		}
		p.StoryElements = &e
	}
	if p.ActualPostTime != nil {
		t := *p.ActualPostTime
		p.ActualPostTime = &t
	}
	return p
}
