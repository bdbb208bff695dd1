package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostKind selects the publishing protocol.
type PostKind string

const (
	PostKindFeed     PostKind = "feed"
	PostKindStory    PostKind = "story"
	PostKindCarousel PostKind = "carousel"
)

// MaxCarouselItems is the platform limit on carousel children.
const MaxCarouselItems = 20

func (k PostKind) Valid() bool {
	switch k {
	case PostKindFeed, PostKindStory, PostKindCarousel:
		return true
	}
	return false
}

// ParsePostKind accepts the legacy "image" alias for feed posts.
func ParsePostKind(s string) (PostKind, bool) {
	if s == "image" {
		return PostKindFeed, true
	}
	k := PostKind(s)
	return k, k.Valid()
}

// PostStatus is the post state machine: scheduled -> posted | failed | cancelled.
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
	PostStatusCancelled PostStatus = "cancelled"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusScheduled, PostStatusPosted, PostStatusFailed, PostStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed || s == PostStatusCancelled
}

// ScheduleMode is the caller's timing intent. It is not stored on the post.
type ScheduleMode string

const (
	ScheduleModeNow       ScheduleMode = "now"
	ScheduleModeNextSlot  ScheduleMode = "next_slot"
	ScheduleModeAutoStory ScheduleMode = "auto_story"
	ScheduleModeQueue     ScheduleMode = "queue"
)

func (m ScheduleMode) Valid() bool {
	switch m {
	case ScheduleModeNow, ScheduleModeNextSlot, ScheduleModeAutoStory, ScheduleModeQueue:
		return true
	}
	return false
}

// Poll is a story poll sticker.
type Poll struct {
	Question string   `bson:"question" json:"question"`
	Options  []string `bson:"options" json:"options"`
}

// StoryElements are the interactive parts of a story.
type StoryElements struct {
	TextOverlay string   `bson:"text_overlay,omitempty" json:"text_overlay,omitempty"`
	Poll        *Poll    `bson:"poll,omitempty" json:"poll,omitempty"`
	Mentions    []string `bson:"mentions,omitempty" json:"mentions,omitempty"`
	Link        string   `bson:"link,omitempty" json:"link,omitempty"`
}

// Empty reports whether no element is set.
func (e *StoryElements) Empty() bool {
	return e == nil || (e.TextOverlay == "" && e.Poll == nil && len(e.Mentions) == 0 && e.Link == "")
}

// Post is one piece of content to publish. AttemptedAt is stamped when an
// execution claims the post, before anything is sent to the platform.
type Post struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountID         primitive.ObjectID `bson:"account_id" json:"account_id"`
	Kind              PostKind           `bson:"kind" json:"kind"`
	Caption           string             `bson:"caption" json:"caption"`
	MediaURLs         []string           `bson:"media_urls" json:"media_urls"`
	OriginalFilenames []string           `bson:"original_filenames,omitempty" json:"original_filenames,omitempty"`
	StoryElements     *StoryElements     `bson:"story_elements,omitempty" json:"story_elements,omitempty"`
	ScheduledTime     time.Time          `bson:"scheduled_time" json:"scheduled_time"`
	ActualPostTime    *time.Time         `bson:"actual_post_time,omitempty" json:"actual_post_time,omitempty"`
	AttemptedAt       *time.Time         `bson:"attempted_at,omitempty" json:"attempted_at,omitempty"`
	Status            PostStatus         `bson:"status" json:"status"`
	InstagramPostID   string             `bson:"instagram_post_id,omitempty" json:"instagram_post_id,omitempty"`
	ErrorMessage      string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// PostOutcome is the terminal write produced by one execution attempt.
type PostOutcome struct {
	Status          PostStatus `json:"status"`
	InstagramPostID string     `json:"instagram_post_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ActualPostTime  *time.Time `json:"actual_post_time,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PostStats is the dashboard summary.
type PostStats struct {
	Total       int64   `json:"total_posts"`
	Posted      int64   `json:"posted_posts"`
	Failed      int64   `json:"failed_posts"`
	Scheduled   int64   `json:"pending_posts"`
	Cancelled   int64   `json:"cancelled_posts"`
	SuccessRate float64 `json:"success_rate"`
}
