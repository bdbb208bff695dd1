package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"instagram-automation/internal/apperr"
	"instagram-automation/models"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// CreateFeedContainer stages a single image with its caption.
func (c *Client) CreateFeedContainer(ctx context.Context, accountID, imageURL, caption, token string) (string, error) {
	if IsSimulationToken(token) {
		return c.simulatedID(accountID), nil
	}
	if err := ValidateMediaURL(imageURL); err != nil {
		return "", err
	}

	return c.postForID(ctx, "create feed container", accountPath(accountID, "media"), url.Values{
		"image_url":    {imageURL},
		"caption":      {caption},
		"access_token": {token},
	})
}

// CreateStoryContainer stages a story image. Mentions are sent as user tags;
// overlay, poll and link have no publishing field and stay on the post record.
func (c *Client) CreateStoryContainer(ctx context.Context, accountID, imageURL string, elements *models.StoryElements, token string) (string, error) {
	if IsSimulationToken(token) {
		return c.simulatedID(accountID), nil
	}
	if err := ValidateMediaURL(imageURL); err != nil {
		return "", err
	}

	params := url.Values{
		"image_url":    {imageURL},
		"media_type":   {"STORIES"},
		"access_token": {token},
	}
	if elements != nil && len(elements.Mentions) > 0 {
		tags, err := userTags(elements.Mentions)
		if err != nil {
			return "", apperr.Wrap(apperr.KindValidation, "create story container", err)
		}
		params.Set("user_tags", tags)
	}

	return c.postForID(ctx, "create story container", accountPath(accountID, "media"), params)
}

func userTags(mentions []string) (string, error) {
	type tag struct {
		Username string `json:"username"`
	}
	tags := make([]tag, 0, len(mentions))
	for _, m := range mentions {
		if m = strings.TrimPrefix(strings.TrimSpace(m), "@"); m != "" {
			tags = append(tags, tag{Username: m})
		}
	}
	data, err := json.Marshal(tags)
	return string(data), err
}

func (c *Client) CreateCarouselChildContainer(ctx context.Context, accountID, imageURL, token string) (string, error) {
	if IsSimulationToken(token) {
		return c.simulatedID(accountID), nil
	}
	if err := ValidateMediaURL(imageURL); err != nil {
		return "", err
	}

	return c.postForID(ctx, "create carousel item", accountPath(accountID, "media"), url.Values{
		"image_url":        {imageURL},
		"is_carousel_item": {"true"},
		"access_token":     {token},
	})
}

// CreateCarouselParentContainer stages the carousel. childIDs order is the
// display order.
func (c *Client) CreateCarouselParentContainer(ctx context.Context, accountID string, childIDs []string, caption, token string) (string, error) {
	if IsSimulationToken(token) {
		return c.simulatedID(accountID), nil
	}
	if len(childIDs) == 0 || len(childIDs) > models.MaxCarouselItems {
		return "", apperr.Newf(apperr.KindValidation, "create carousel container",
			"carousel needs between 1 and %d items, got %d", models.MaxCarouselItems, len(childIDs))
	}

	return c.postForID(ctx, "create carousel container", accountPath(accountID, "media"), url.Values{
		"media_type":   {"CAROUSEL"},
		"children":     {strings.Join(childIDs, ",")},
		"caption":      {caption},
		"access_token": {token},
	})
}

// Publish turns a container into a live post and returns its platform id.
func (c *Client) Publish(ctx context.Context, accountID, containerID, token string) (string, error) {
	if IsSimulationToken(token) {
		return c.simulatedID(accountID), nil
	}

	return c.postForID(ctx, "publish", accountPath(accountID, "media_publish"), url.Values{
		"creation_id":  {containerID},
		"access_token": {token},
	})
}

func (c *Client) PostFeed(ctx context.Context, accountID, imageURL, caption, token string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "instagram.post_feed")
	defer span.End()
	span.SetAttributes(attribute.String("instagram.account_id", accountID))

	if IsSimulationToken(token) {
		return c.simulatedResult(accountID, "feed"), nil
	}

	containerID, err := c.CreateFeedContainer(ctx, accountID, imageURL, caption, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	postID, err := c.Publish(ctx, accountID, containerID, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Result{ID: postID, Message: "Posted successfully to Instagram"}, nil
}

func (c *Client) PostStory(ctx context.Context, accountID, imageURL string, elements *models.StoryElements, token string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "instagram.post_story")
	defer span.End()
	span.SetAttributes(attribute.String("instagram.account_id", accountID))

	if IsSimulationToken(token) {
		return c.simulatedResult(accountID, "story"), nil
	}

	containerID, err := c.CreateStoryContainer(ctx, accountID, imageURL, elements, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	postID, err := c.Publish(ctx, accountID, containerID, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Result{ID: postID, Message: "Story posted successfully to Instagram"}, nil
}

// PostCarousel creates the children, then the parent, then publishes. The
// first child failure aborts the whole carousel.
func (c *Client) PostCarousel(ctx context.Context, accountID string, imageURLs []string, caption, token string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "instagram.post_carousel")
	defer span.End()
	span.SetAttributes(
		attribute.String("instagram.account_id", accountID),
		attribute.Int("instagram.carousel_items", len(imageURLs)),
	)

	if len(imageURLs) == 0 || len(imageURLs) > models.MaxCarouselItems {
		return nil, apperr.Newf(apperr.KindValidation, "post carousel",
			"carousel needs between 1 and %d images, got %d", models.MaxCarouselItems, len(imageURLs))
	}
	if IsSimulationToken(token) {
		return c.simulatedResult(accountID, "carousel"), nil
	}

	childIDs, err := c.createCarouselChildren(ctx, accountID, imageURLs, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	containerID, err := c.CreateCarouselParentContainer(ctx, accountID, childIDs, caption, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	postID, err := c.Publish(ctx, accountID, containerID, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Result{ID: postID, Message: fmt.Sprintf("Carousel with %d images posted successfully", len(imageURLs))}, nil
}

// createCarouselChildren keeps ids by input position regardless of
// completion order.
func (c *Client) createCarouselChildren(ctx context.Context, accountID string, imageURLs []string, token string) ([]string, error) {
	ids := make([]string, len(imageURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.carouselConcurrency)
	for i, imageURL := range imageURLs {
		g.Go(func() error {
			if err := c.carouselLimiter.Wait(gctx); err != nil {
				return networkError("create carousel item", err)
			}
			id, err := c.CreateCarouselChildContainer(gctx, accountID, imageURL, token)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// PublishRequest is everything the executor hands over for one post.
type PublishRequest struct {
	Kind          models.PostKind
	AccountID     string
	Token         string
	Caption       string
	MediaURLs     []string
	StoryElements *models.StoryElements
}

// Dispatch routes a request to the composite operation for its kind. Feed
// and story consume the first URL, carousel consumes all of them.
func (c *Client) Dispatch(ctx context.Context, req PublishRequest) (*Result, error) {
	if len(req.MediaURLs) == 0 {
		return nil, apperr.Validation("dispatch", "no media URLs to publish")
	}

	switch req.Kind {
	case models.PostKindFeed:
		return c.PostFeed(ctx, req.AccountID, req.MediaURLs[0], req.Caption, req.Token)
	case models.PostKindStory:
		return c.PostStory(ctx, req.AccountID, req.MediaURLs[0], req.StoryElements, req.Token)
	case models.PostKindCarousel:
		return c.PostCarousel(ctx, req.AccountID, req.MediaURLs, req.Caption, req.Token)
	default:
		return nil, apperr.Newf(apperr.KindValidation, "dispatch", "unsupported post kind %q", req.Kind)
	}
}

func (c *Client) simulatedResult(accountID, kind string) *Result {
	return &Result{
		ID:      c.simulatedID(accountID),
		Message: fmt.Sprintf("Simulated %s post created, no Graph API call made", kind),
	}
}
