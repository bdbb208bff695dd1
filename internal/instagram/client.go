// Package instagram wraps the Instagram Graph API container/publish protocol.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"instagram-automation/internal/apperr"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v18.0"

	maxResponseBytes = 1 << 20
)

var tracer = otel.Tracer("instagram-client")

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	// CarouselConcurrency caps parallel child-container calls. 1 keeps them sequential.
	CarouselConcurrency int
	// CarouselItemInterval spaces child-container calls. 0 disables spacing.
	CarouselItemInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:              DefaultBaseURL,
		Timeout:              30 * time.Second,
		RequestsPerSecond:    5,
		CarouselConcurrency:  1,
		CarouselItemInterval: time.Second,
	}
}

type Client struct {
	baseURL             string
	httpClient          *http.Client
	breaker             *gobreaker.CircuitBreaker
	limiter             *rate.Limiter
	carouselLimiter     *rate.Limiter
	carouselConcurrency int
	metrics             *telemetry.Metrics
	log                 *slog.Logger
	now                 func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithRand(rng *rand.Rand) Option {
	return func(c *Client) { c.rng = rng }
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CarouselConcurrency <= 0 {
		cfg.CarouselConcurrency = 1
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	itemLimit := rate.Inf
	if cfg.CarouselItemInterval > 0 {
		itemLimit = rate.Every(cfg.CarouselItemInterval)
	}

	c := &Client{
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:          &http.Client{Timeout: cfg.Timeout},
		limiter:             rate.NewLimiter(limit, burst),
		carouselLimiter:     rate.NewLimiter(itemLimit, 1),
		carouselConcurrency: cfg.CarouselConcurrency,
		log:                 logger.Component("instagram"),
		now:                 time.Now,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GraphAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Platform rejections are answers, only transport faults trip the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.Is(err, apperr.KindNetwork) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			c.metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	return c
}

// Result is a normalized publish outcome.
type Result struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

type idResponse struct {
	ID    string      `json:"id"`
	Error *graphError `json:"error"`
}

// call performs one rate-limited, breaker-guarded Graph API request and
// returns the body of a 200 response.
func (c *Client) call(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, networkError(op, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, op, method, path, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &apperr.Error{
				Kind:    apperr.KindNetwork,
				Op:      op,
				Message: fmt.Sprintf("network error during %s: Graph API circuit breaker is open", op),
				Err:     err,
			}
		}
		c.metrics.RecordGraphAPICall(op, string(apperr.KindOf(err)))
		return nil, err
	}

	c.metrics.RecordGraphAPICall(op, "ok")
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		endpoint += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, platformError(op, resp.StatusCode, data)
	}
	return data, nil
}

// postForID posts params and extracts the "id" field of the response.
func (c *Client) postForID(ctx context.Context, op, path string, params url.Values) (string, error) {
	data, err := c.call(ctx, op, http.MethodPost, path, params)
	if err != nil {
		return "", err
	}

	var resp idResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", apperr.Newf(apperr.KindPlatform, op, "unexpected response from Graph API: %v", err)
	}
	if resp.ID == "" {
		if resp.Error != nil && resp.Error.Message != "" {
			return "", apperr.New(apperr.KindPlatform, op, resp.Error.Message)
		}
		return "", apperr.New(apperr.KindPlatform, op, "Graph API returned no id")
	}
	return resp.ID, nil
}

func networkError(op string, err error) error {
	// url.Error carries the request URL, which holds the token on GET calls
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return &apperr.Error{
		Kind:    apperr.KindNetwork,
		Op:      op,
		Message: fmt.Sprintf("network error during %s: %v", op, err),
		Err:     err,
	}
}

func platformError(op string, status int, body []byte) error {
	var envelope struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return apperr.New(apperr.KindPlatform, op, envelope.Error.Message)
	}
	return apperr.Newf(apperr.KindPlatform, op, "HTTP %d", status)
}

func accountPath(accountID, edge string) string {
	return "/" + url.PathEscape(accountID) + "/" + edge
}

// IsSimulationToken reports whether publishing with token is simulated.
func IsSimulationToken(token string) bool {
	return strings.HasPrefix(token, "test")
}

func (c *Client) simulatedID(accountID string) string {
	return fmt.Sprintf("test_%s_%d", accountID, c.now().Unix())
}

func (c *Client) randomBetween(lo, hi int64) int64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return lo + c.rng.Int63n(hi-lo+1)
}
