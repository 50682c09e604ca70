// Package reddit implements the platform contracts against the Reddit OAuth
// API using a script-type app and the password grant.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"tierguard/internal/config"
	"tierguard/internal/constants"
	"tierguard/internal/logger"
	"tierguard/internal/platform"
	"tierguard/pkg/metrics"
	"tierguard/pkg/robusthttp"
)

const (
	tokenRefreshMargin = time.Minute
	moderatorCacheTTL  = 5 * time.Minute
	maxErrorBody       = 512
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, platform.ErrTransient) match throttling and
// server errors.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return platform.ErrTransient
	}
	return nil
}

type Client struct {
	cfg       config.PlatformConfig
	community string
	http      *http.Client
	limiter   *rate.Limiter
	log       logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	moderators *expirable.LRU[string, map[string]struct{}]
}

type Option func(*Client)

// WithHTTPClient replaces the retrying client, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

func NewClient(cfg config.PlatformConfig, community string, log logger.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultPlatformBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = constants.DefaultPlatformAuthURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.DefaultUserAgent
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}

	c := &Client{
		cfg:       cfg,
		community: community,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		log:       log.Named("reddit"),
		moderators: expirable.NewLRU[string, map[string]struct{}](
			16, nil, moderatorCacheTTL,
		),
	}
	c.http = robusthttp.NewClient(cfg.Timeout,
		robusthttp.WithMaxRetries(cfg.MaxRetries),
		robusthttp.WithLogger(c.log),
	)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request failed: %v", platform.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(req, resp)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token request rejected: %s", tok.Error)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do sends an authenticated request and decodes a JSON response into out when
// out is non-nil. A 401 refreshes the token and retries once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values, out interface{}) error {
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, query, form, out)
		var se *StatusError
		if attempt == 0 && errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
			continue
		}
		return err
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, form url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	target := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncPlatformRequest(method, "error")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", platform.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()
	metrics.IncPlatformRequest(method, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func statusError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// fullname prefixes bare submission ids with the link kind.
func fullname(id string) string {
	if strings.HasPrefix(id, "t1_") || strings.HasPrefix(id, "t3_") {
		return id
	}
	return "t3_" + id
}
