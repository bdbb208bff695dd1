package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TunnelProvider exposes uploads through an ngrok tunnel to this server.
// A configured URL wins; otherwise the local ngrok agent API is asked for an
// https tunnel pointing at our port.
type TunnelProvider struct {
	configuredURL string
	apiURL        string
	port          string
	client        *http.Client
}

func NewTunnelProvider(configuredURL, apiURL, port string) *TunnelProvider {
	return &TunnelProvider{
		configuredURL: strings.TrimRight(configuredURL, "/"),
		apiURL:        apiURL,
		port:          port,
		client:        &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *TunnelProvider) Name() string { return "tunnel" }

func (p *TunnelProvider) PublicURL(ctx context.Context, file LocalFile) (string, error) {
	base, err := p.Detect(ctx)
	if err != nil || base == "" {
		return "", err
	}
	return uploadsURL(base, file.Name), nil
}

type ngrokTunnels struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
		Config    struct {
			Addr string `json:"addr"`
		} `json:"config"`
	} `json:"tunnels"`
}

// Detect returns the tunnel base URL, or "" when no tunnel is up.
func (p *TunnelProvider) Detect(ctx context.Context) (string, error) {
	if p.configuredURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.configuredURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := p.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < http.StatusBadRequest {
				return p.configuredURL, nil
			}
		}
	}

	if p.apiURL == "" {
		return "", nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		// agent not running
		return "", nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var tunnels ngrokTunnels
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tunnels); err != nil {
		return "", fmt.Errorf("decode ngrok tunnels: %w", err)
	}
	for _, t := range tunnels.Tunnels {
		if !strings.HasPrefix(t.PublicURL, "https://") {
			continue
		}
		if p.port != "" && !strings.HasSuffix(t.Config.Addr, ":"+p.port) && t.Config.Addr != p.port {
			continue
		}
		return strings.TrimRight(t.PublicURL, "/"), nil
	}
	return "", nil
}
