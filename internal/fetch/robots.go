package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
)

// robotsCache fetches and caches robots.txt rules per host. A failed fetch
// caches an allow-all entry so a flaky robots endpoint never blocks a crawl.
type robotsCache struct {
	config *common.CrawlConfig
	logger arbor.ILogger
	mu     sync.Mutex
	hosts  map[string]*robotstxt.RobotsData
}

func newRobotsCache(config *common.CrawlConfig, logger arbor.ILogger) *robotsCache {
	return &robotsCache{
		config: config,
		logger: logger,
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

func (c *robotsCache) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	data := c.rulesFor(ctx, u)
	if data == nil {
		return true
	}
	return data.FindGroup(c.config.UserAgent).Test(u.Path)
}

func (c *robotsCache) rulesFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.hosts[key]; ok {
		return data
	}

	data := c.fetch(ctx, u)
	c.hosts[key] = data
	return data
}

// fetch retrieves /robots.txt with the short probe timeout. Any failure is
// non-fatal and results in a nil (allow-all) entry.
func (c *robotsCache) fetch(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RobotsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("host", u.Host).Msg("robots.txt fetch failed, allowing all")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		c.logger.Debug().Err(err).Str("host", u.Host).Msg("robots.txt parse failed, allowing all")
		return nil
	}

	c.logger.Debug().Str("host", u.Host).Int("status", resp.StatusCode).Msg("robots.txt loaded")
	return data
}
