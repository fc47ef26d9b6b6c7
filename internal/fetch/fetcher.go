// Package fetch implements the polite HTTP layer: per-host request spacing,
// robots.txt compliance, conditional revalidation headers and streamed
// downloads with progress reporting.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/site2rag/internal/common"
)

// ErrTooManyRedirects marks a redirect chain longer than the cap.
var ErrTooManyRedirects = errors.New("redirect loop: more than 20 redirects")

const maxRedirects = 20

// ProgressFunc receives (received, total) byte counts while a body streams.
// total is 0 when the server sent no Content-Length.
type ProgressFunc func(received, total int64)

// Options carries per-request settings.
type Options struct {
	Headers    map[string]string
	Timeout    time.Duration // Overrides the configured request timeout when > 0
	OnProgress ProgressFunc
}

// Response is a fully read HTTP response. 4xx/5xx are data, not errors.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// ContentType returns the response content type without parameters.
func (r *Response) ContentType() string {
	ct := r.Headers.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// Fetcher is the polite HTTP client shared by the crawl and sitemap services.
// All requests derive from the process context, so the global abort handle
// cancels every in-flight request.
type Fetcher struct {
	config  *common.CrawlConfig
	client  *http.Client
	robots  *robotsCache
	spacing *hostSpacing
	logger  arbor.ILogger
}

// NewFetcher creates a fetcher from the crawl configuration.
func NewFetcher(config *common.CrawlConfig, logger arbor.ILogger) *Fetcher {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}

	return &Fetcher{
		config:  config,
		client:  client,
		robots:  newRobotsCache(config, logger),
		spacing: newHostSpacing(config.RequestDelay),
		logger:  logger,
	}
}

// CanCrawl consults the host's robots.txt rules for the configured user
// agent. Robots fetch failures are tolerated as allow-all.
func (f *Fetcher) CanCrawl(ctx context.Context, rawURL string) bool {
	if !f.config.FollowRobotsTxt {
		return true
	}
	return f.robots.allowed(ctx, rawURL)
}

// Fetch performs one polite GET. Politeness spacing is measured from the
// start of the previous request to the same host; conditional headers are
// passed through verbatim and a 304 is surfaced to the caller.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if err := f.spacing.wait(ctx, u.Host); err != nil {
		return nil, err
	}

	timeout := f.config.RequestTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return nil, ErrTooManyRedirects
		}
		return nil, fmt.Errorf("fetch failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	var onProgress ProgressFunc
	if opts != nil {
		onProgress = opts.OnProgress
	}
	body, err := readBody(resp, onProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to read body for %s: %w", rawURL, err)
	}

	f.logger.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched URL")

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Head performs a HEAD request, used by the sitemap common-path probe.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if err := f.spacing.wait(ctx, u.Host); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

// readBody streams the body so large downloads report progress as they
// arrive. A final callback fires at completion even for empty bodies.
func readBody(resp *http.Response, onProgress ProgressFunc) ([]byte, error) {
	if onProgress == nil {
		return io.ReadAll(resp.Body)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var buf []byte
	chunk := make([]byte, 32*1024)
	var received int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			received += int64(n)
			onProgress(received, total)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	onProgress(received, total)
	return buf, nil
}

// hostSpacing enforces minimum inter-request spacing per host using a
// token-bucket limiter with a single-token burst.
type hostSpacing struct {
	limiters map[string]*rate.Limiter
	delay    time.Duration
	mu       sync.Mutex
}

func newHostSpacing(delay time.Duration) *hostSpacing {
	return &hostSpacing{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

func (s *hostSpacing) wait(ctx context.Context, host string) error {
	if s.delay <= 0 {
		return nil
	}

	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()

	return limiter.Wait(ctx)
}
