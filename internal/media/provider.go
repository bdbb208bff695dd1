package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/models"
)

// Provider turns a stored upload into a public URL. An empty string with a
// nil error means the provider cannot produce a URL right now.
type Provider interface {
	Name() string
	PublicURL(ctx context.Context, file LocalFile) (string, error)
}

func uploadsURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/uploads/" + url.PathEscape(name)
}

// LocalProvider serves uploads from this process under /uploads.
type LocalProvider struct {
	baseURL string
}

func NewLocalProvider(baseURL string) *LocalProvider {
	return &LocalProvider{baseURL: baseURL}
}

func (p *LocalProvider) Name() string { return "local" }

// PublicURL returns "" unless the base URL is one the platform can reach.
func (p *LocalProvider) PublicURL(_ context.Context, file LocalFile) (string, error) {
	if p.baseURL == "" {
		return "", nil
	}
	u := uploadsURL(p.baseURL, file.Name)
	if instagram.ValidateMediaURL(u) != nil {
		return "", nil
	}
	return u, nil
}

// ChainProvider asks each provider in turn and returns the first URL.
type ChainProvider struct {
	providers []Provider
	log       *slog.Logger
}

func NewChainProvider(providers ...Provider) *ChainProvider {
	return &ChainProvider{providers: providers, log: logger.Component("media")}
}

func (c *ChainProvider) Name() string { return "chain" }

func (c *ChainProvider) PublicURL(ctx context.Context, file LocalFile) (string, error) {
	for _, p := range c.providers {
		u, err := p.PublicURL(ctx, file)
		if err != nil {
			c.log.Warn("Media provider failed", "provider", p.Name(), "file", file.Name, "error", err)
			continue
		}
		if u != "" {
			c.log.Info("Media URL resolved", "provider", p.Name(), "file", file.Name)
			return u, nil
		}
	}
	return "", nil
}

// Resolver picks the URL for an upload depending on the target account.
// Simulation accounts never reach the platform, so they get the local URL.
type Resolver struct {
	provider  Provider
	localBase string
}

func NewResolver(provider Provider, localBase string) *Resolver {
	return &Resolver{provider: provider, localBase: localBase}
}

// Resolve returns the URL for one file, or "" when none is available.
func (r *Resolver) Resolve(ctx context.Context, file LocalFile, account *models.Account) (string, error) {
	if account.HasSimulationToken() {
		return uploadsURL(r.localBase, file.Name), nil
	}
	if r.provider == nil {
		return "", nil
	}
	u, err := r.provider.PublicURL(ctx, file)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", file.Name, err)
	}
	return u, nil
}
