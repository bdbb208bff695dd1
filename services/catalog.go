package services

import (
	"context"
	"strings"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/caption"
	"instagram-automation/internal/store"
	"instagram-automation/models"
)

// CatalogService manages hashtags and caption templates.
type CatalogService struct {
	store store.Store
	now   func() time.Time
}

func NewCatalogService(s store.Store) *CatalogService {
	return &CatalogService{store: s, now: time.Now}
}

type HashtagRequest struct {
	Tag      string `json:"tag" binding:"required"`
	Category string `json:"category"`
}

type TemplateRequest struct {
	Name     string `json:"name" binding:"required"`
	Template string `json:"template" binding:"required"`
	Category string `json:"category"`
}

func (s *CatalogService) AddHashtag(ctx context.Context, req HashtagRequest) (*models.Hashtag, error) {
	const op = "add hashtag"
	tag := caption.NormalizeTag(req.Tag)
	if tag == "" || strings.ContainsAny(tag, " \t#") {
		return nil, apperr.Newf(apperr.KindValidation, op, "invalid hashtag %q", req.Tag)
	}

	h := &models.Hashtag{
		Tag:       tag,
		Category:  strings.TrimSpace(req.Category),
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddHashtag(ctx, h); err != nil {
		return nil, storeError(op, "hashtag #"+tag, err)
	}
	return h, nil
}

func (s *CatalogService) ListHashtags(ctx context.Context) ([]models.Hashtag, error) {
	tags, err := s.store.ListHashtags(ctx)
	return tags, storeError("list hashtags", "hashtag", err)
}

func (s *CatalogService) SetHashtagActive(ctx context.Context, tag string, active bool) error {
	tag = caption.NormalizeTag(tag)
	return storeError("set hashtag active", "hashtag #"+tag, s.store.SetHashtagActive(ctx, tag, active))
}

// AddTemplate stores a template after checking its placeholders.
func (s *CatalogService) AddTemplate(ctx context.Context, req TemplateRequest) (*models.CaptionTemplate, error) {
	const op = "add template"
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.Template) == "" {
		return nil, apperr.Validation(op, "name and template are required")
	}

	vars := models.TemplateVariables(req.Template)
	for _, v := range vars {
		if !caption.KnownVariable(v) {
			return nil, apperr.Newf(apperr.KindValidation, op,
				"unknown variable {%s}, supported: %s", v, strings.Join(caption.Variables, ", "))
		}
	}

	t := &models.CaptionTemplate{
		Name:      name,
		Template:  req.Template,
		Category:  strings.TrimSpace(req.Category),
		Variables: vars,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddTemplate(ctx, t); err != nil {
		return nil, storeError(op, "template", err)
	}
	return t, nil
}

func (s *CatalogService) ListTemplates(ctx context.Context, activeOnly bool) ([]models.CaptionTemplate, error) {
	templates, err := s.store.ListTemplates(ctx, activeOnly)
	return templates, storeError("list templates", "template", err)
}

var defaultHashtags = []HashtagRequest{
	{"motivation", "General"}, {"inspiration", "General"}, {"success", "General"},
	{"entrepreneurship", "Business"}, {"business", "Business"}, {"startup", "Business"},
	{"lifestyle", "Lifestyle"}, {"wellness", "Lifestyle"}, {"mindfulness", "Lifestyle"},
	{"growth", "Personal"}, {"goals", "Personal"}, {"mindset", "Personal"},
	{"monday", "Daily"}, {"tuesday", "Daily"}, {"wednesday", "Daily"},
	{"thursday", "Daily"}, {"friday", "Daily"}, {"weekend", "Daily"},
	{"love", "Engagement"}, {"follow", "Engagement"}, {"like", "Engagement"},
	{"comment", "Engagement"}, {"share", "Engagement"}, {"tag", "Engagement"},
}

var defaultTemplates = []TemplateRequest{
	{
		Name:     "Motivational Monday",
		Template: "Good {time_period} from {account_name}! 🌟\n\n{custom_text}\n\nWhat's your motivation for this {day_of_week}? Tell us in the comments! 👇",
		Category: "Motivational",
	},
	{
		Name:     "Daily Inspiration",
		Template: "Happy {day_of_week}, everyone! ✨\n\n{custom_text}\n\nRemember: Every day is a new opportunity to grow! 🚀",
		Category: "Inspirational",
	},
	{
		Name:     "Business Tips",
		Template: "{account_name} here with your {day_of_week} business tip! 💼\n\n{custom_text}\n\nWhat challenges are you facing in your business? Let's discuss! 💬",
		Category: "Business",
	},
}

// SeedDefaults fills an empty catalog with the starter hashtags and
// templates. Collections that already hold entries are left alone.
func (s *CatalogService) SeedDefaults(ctx context.Context) (hashtags, templates int, err error) {
	existingTags, err := s.ListHashtags(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(existingTags) == 0 {
		for _, req := range defaultHashtags {
			if _, err := s.AddHashtag(ctx, req); err != nil {
				return hashtags, 0, err
			}
			hashtags++
		}
	}

	existingTemplates, err := s.ListTemplates(ctx, false)
	if err != nil {
		return hashtags, 0, err
	}
	if len(existingTemplates) == 0 {
		for _, req := range defaultTemplates {
			if _, err := s.AddTemplate(ctx, req); err != nil {
				return hashtags, templates, err
			}
			templates++
		}
	}
	return hashtags, templates, nil
}
