// Package livetiming reads session data from the public timing archive
// (https://livetiming.formula1.com/static/).
package livetiming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"pitwall/cache"
	"pitwall/logger"
	"pitwall/metrics"
	"pitwall/upstream"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://livetiming.formula1.com/static/"
	breakerName    = "livetiming"
	userAgent      = "pitwall/1.0"

	// DefaultLiveIndexTTL 当前赛季索引的缓存时间
	DefaultLiveIndexTTL = 10 * time.Minute
)

// utf8BOM prefixes every archive document.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Client 时序归档客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	docs       cache.DocumentCache
	liveTTL    time.Duration
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every outbound request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit paces requests to rps with a burst of twice that.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(rps * 2)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithDocumentCache sets the cache used for small metadata documents.
func WithDocumentCache(dc cache.DocumentCache) Option {
	return func(c *Client) { c.docs = dc }
}

// WithLiveIndexTTL sets how long the season index of the current or a
// future year is cached. Meetings are added to it as the season runs.
func WithLiveIndexTTL(d time.Duration) Option {
	return func(c *Client) { c.liveTTL = d }
}

// NewClient 创建客户端，baseURL 为空时使用官方归档地址
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(4), 8),
		liveTTL:    DefaultLiveIndexTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker()
	return c
}

func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				logger.String("name", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// 404 是正常结果，不计入失败
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, upstream.ErrNotFound)
		},
	})
}

// BaseURL returns the archive root, always with a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// documentKind is the metrics label for an archive path, e.g. "TimingData".
func documentKind(p string) string {
	base := path.Base(p)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// get fetches an archive document relative to the base URL.
func (c *Client) get(ctx context.Context, relPath string) ([]byte, error) {
	return c.fetch(ctx, c.baseURL+strings.TrimLeft(relPath, "/"), documentKind(relPath))
}

// getCached is get with a read-through document cache. ttl <= 0 keeps the
// document for the cache default.
func (c *Client) getCached(ctx context.Context, relPath string, ttl time.Duration) ([]byte, error) {
	if c.docs != nil {
		if data, ok := c.docs.Get(ctx, relPath); ok {
			metrics.UpstreamCacheHits.WithLabelValues(documentKind(relPath)).Inc()
			return data, nil
		}
	}
	data, err := c.get(ctx, relPath)
	if err != nil {
		return nil, err
	}
	if c.docs != nil {
		c.docs.Set(ctx, relPath, data, ttl)
	}
	return data, nil
}

// FetchAudio downloads an absolute URL, e.g. a team radio clip.
func (c *Client) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, url, "audio")
}

func (c *Client) fetch(ctx context.Context, url, kind string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, url)
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(kind, "ok").Inc()
	case errors.Is(err, upstream.ErrNotFound):
		metrics.UpstreamRequests.WithLabelValues(kind, "not_found").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(kind, "rejected").Inc()
		return nil, fmt.Errorf("livetiming unavailable: %w", err)
	default:
		metrics.UpstreamRequests.WithLabelValues(kind, "error").Inc()
	}
	return body, err
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		// 归档对不存在的对象返回 403
		return nil, fmt.Errorf("GET %s: %w", url, upstream.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return bytes.TrimPrefix(data, utf8BOM), nil
}
