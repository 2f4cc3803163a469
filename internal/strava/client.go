package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joshdurbin/strava-goals/internal/logging"
)

const (
	baseURL = "https://www.strava.com/api/v3"
	perPage = 200
)

// Default retry settings
const (
	defaultMaxRetries     = 5
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// ErrRateLimited indicates the API still returned 429 after retries were exhausted
var ErrRateLimited = errors.New("rate limited")

// ErrUnauthorized indicates the access token was rejected
var ErrUnauthorized = errors.New("unauthorized")

// Page is one page of the activity listing
type Page struct {
	Number     int
	Activities []Activity
	RateLimit  RateLimitInfo
}

// Client is a Strava API client with automatic retry and backoff
type Client struct {
	httpClient  *retryablehttp.Client
	accessToken string
	baseURL     string
	pageSize    int

	rateMu    sync.RWMutex
	rateLimit RateLimitInfo
}

// RetryConfig holds retry/backoff settings
type RetryConfig struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		MinWait:    defaultInitialBackoff,
		MaxWait:    defaultMaxBackoff,
	}
}

// NewClient creates a new Strava API client with automatic retry
func NewClient(accessToken string) *Client {
	return newClient(accessToken, baseURL, DefaultRetryConfig())
}

// NewClientWithBaseURL creates a client against a custom base URL (for testing)
func NewClientWithBaseURL(accessToken, customBaseURL string) *Client {
	return newClient(accessToken, customBaseURL, DefaultRetryConfig())
}

func newClient(accessToken, baseURL string, cfg RetryConfig) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.MinWait
	client.RetryWaitMax = cfg.MaxWait
	client.Logger = &logging.LeveledLogger{}
	client.CheckRetry = checkRetry
	// Hand the final response back so a 429 surfaces as ErrRateLimited
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Backoff = backoff
	client.RequestLogHook = logRequest
	client.ResponseLogHook = logResponse

	return &Client{
		httpClient:  client,
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		pageSize:    perPage,
	}
}

// checkRetry retries connection errors, 429 and 5xx
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode >= 500:
		return true, nil
	}
	return false, nil
}

// backoff waits for the rate limit window on 429, exponential otherwise
func backoff(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	log := logging.Logger

	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				wait := time.Duration(seconds) * time.Second
				log.Info().
					Dur("wait", wait).
					Int("attempt", attemptNum).
					Msg("rate limited, waiting for Retry-After header")
				return wait
			}
		}

		wait := timeUntilNext15MinWindow(time.Now())
		log.Info().
			Dur("wait", wait).
			Int("attempt", attemptNum).
			Msg("rate limited, waiting for 15-minute window reset")
		return wait
	}

	wait := min * time.Duration(1<<uint(attemptNum))
	if wait > max || wait <= 0 {
		wait = max
	}
	log.Info().
		Dur("wait", wait).
		Int("attempt", attemptNum).
		Dur("max_wait", max).
		Msg("backing off before retry")
	return wait
}

func logRequest(_ retryablehttp.Logger, req *http.Request, retry int) {
	log := logging.Logger
	if retry > 0 {
		log.Info().
			Str("url", req.URL.Path).
			Int("attempt", retry+1).
			Msg("retrying request")
	}
	if logging.IsTraceEnabled() {
		log.Debug().
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Str("headers", formatHeaders(req.Header)).
			Msg("request headers")
	}
}

func logResponse(_ retryablehttp.Logger, resp *http.Response) {
	log := logging.Logger
	if logging.IsTraceEnabled() {
		log.Debug().
			Int("status", resp.StatusCode).
			Str("url", resp.Request.URL.Path).
			Str("headers", formatHeaders(resp.Header)).
			Msg("response headers")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		rateLimit := parseRateLimitHeaders(resp.Header, time.Now())
		log.Warn().
			Str("url", resp.Request.URL.Path).
			Str("usage", rateLimit.UsageString()).
			Dur("wait_for_reset", rateLimit.TimeUntil15MinReset).
			Msg("rate limited by API")
	}
}

// WithRetryConfig sets custom retry configuration (useful for testing)
func (c *Client) WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) *Client {
	c.httpClient.RetryMax = maxRetries
	c.httpClient.RetryWaitMin = initialBackoff
	c.httpClient.RetryWaitMax = maxBackoff
	return c
}

// WithPageSize overrides the per_page parameter
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// GetRateLimit returns the last seen rate limit info with reset times recomputed for now
func (c *Client) GetRateLimit() RateLimitInfo {
	c.rateMu.RLock()
	info := c.rateLimit
	c.rateMu.RUnlock()

	info.recompute(time.Now())
	return info
}

// WaitForRateLimit blocks until the recommended wait has passed or ctx is done
func (c *Client) WaitForRateLimit(ctx context.Context) error {
	rateLimit := c.GetRateLimit()
	if rateLimit.RecommendedWait <= 0 {
		return nil
	}

	logging.Logger.Info().
		Dur("wait", rateLimit.RecommendedWait).
		Str("usage", rateLimit.UsageString()).
		Msg("waiting for rate limit window to reset")

	timer := time.NewTimer(rateLimit.RecommendedWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		logging.Logger.Info().Msg("rate limit window reset, resuming")
		return nil
	}
}

func (c *Client) updateRateLimit(resp *http.Response) RateLimitInfo {
	rateLimit := parseRateLimitHeaders(resp.Header, time.Now())
	if resp.StatusCode == http.StatusTooManyRequests {
		rateLimit.IsRateLimited = true
	}
	c.rateMu.Lock()
	c.rateLimit = rateLimit
	c.rateMu.Unlock()
	return rateLimit
}

// Pages walks /athlete/activities page by page until an empty page.
// A zero after lists the whole history. Iteration stops at the first error.
func (c *Client) Pages(ctx context.Context, after time.Time) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for number := 1; ; number++ {
			activities, rateLimit, err := c.fetchActivitiesPage(ctx, number, after)
			if err != nil {
				yield(Page{Number: number, RateLimit: rateLimit}, err)
				return
			}
			if len(activities) == 0 {
				return
			}
			if !yield(Page{Number: number, Activities: activities, RateLimit: rateLimit}, nil) {
				return
			}
		}
	}
}

// Activities flattens Pages into single activities
func (c *Client) Activities(ctx context.Context, after time.Time) iter.Seq2[Activity, error] {
	return func(yield func(Activity, error) bool) {
		for page, err := range c.Pages(ctx, after) {
			if err != nil {
				yield(Activity{}, err)
				return
			}
			for _, a := range page.Activities {
				if !yield(a, nil) {
					return
				}
			}
		}
	}
}

func (c *Client) fetchActivitiesPage(ctx context.Context, page int, after time.Time) ([]Activity, RateLimitInfo, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(c.pageSize))
	if !after.IsZero() {
		query.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	endpoint := c.baseURL + "/athlete/activities?" + query.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, RateLimitInfo{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, RateLimitInfo{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	rateLimit := c.updateRateLimit(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, rateLimit, ErrRateLimited
	case http.StatusUnauthorized:
		return nil, rateLimit, ErrUnauthorized
	default:
		return nil, rateLimit, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var activities []Activity
	if err := json.NewDecoder(resp.Body).Decode(&activities); err != nil {
		return nil, rateLimit, fmt.Errorf("decoding response: %w", err)
	}

	logging.Logger.Debug().
		Int("page", page).
		Int("count", len(activities)).
		Str("usage", rateLimit.UsageString()).
		Msg("fetched activity page")

	return activities, rateLimit, nil
}

// formatHeaders formats HTTP headers for logging, redacting credentials
func formatHeaders(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		value := strings.Join(headers[k], ", ")
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie":
			value = "[REDACTED]"
		}
		fmt.Fprintf(&sb, "%s: %q", k, value)
	}
	sb.WriteString("}")
	return sb.String()
}
