package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
)

var (
	// ErrCallFailed is returned after every retry of a call is exhausted.
	ErrCallFailed = errors.New("llm call failed after retries")
	// ErrRateLimited surfaces an HTTP 429 (or equivalent) from the provider.
	ErrRateLimited = errors.New("llm rate limited")
)

const (
	maxAttempts  = 3
	preCallDelay = 300 * time.Millisecond
)

// retryDelays holds the exponential backoff between attempts.
var retryDelays = []time.Duration{time.Second, 2 * time.Second}

// Client is the single entry point for model calls. A global semaphore caps
// concurrency at the configured limit regardless of caller count.
type Client struct {
	provider Provider
	config   *common.LLMConfig
	sem      chan struct{}
	validate *validator.Validate
	sessions *SessionStore
	tracker  *TokenTracker
	logger   arbor.ILogger
}

// NewClient wraps a provider with the capped, validated call path.
func NewClient(provider Provider, config *common.LLMConfig, tracker *TokenTracker, logger arbor.ILogger) *Client {
	capacity := config.MaxConcurrent
	if capacity < 1 {
		capacity = 3
	}
	return &Client{
		provider: provider,
		config:   config,
		sem:      make(chan struct{}, capacity),
		validate: validator.New(),
		sessions: NewSessionStore(),
		tracker:  tracker,
		logger:   logger,
	}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Sessions returns the session store for cached-context management.
func (c *Client) Sessions() *SessionStore { return c.sessions }

// Tracker returns the process-wide token/cost tracker.
func (c *Client) Tracker() *TokenTracker { return c.tracker }

// Call sends a prompt and parses the response JSON into out, validating it
// against out's struct tags. sessionID, when non-empty, prepends the
// session's cached context. Exhausted retries return ErrCallFailed wrapped
// around the last failure.
func (c *Client) Call(ctx context.Context, sessionID, prompt string, out any) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.sem }()

	system := ""
	if sessionID != "" {
		system = c.sessions.CachedContext(sessionID)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Rate smoothing before every attempt
		if err := sleepCtx(ctx, preCallDelay); err != nil {
			return err
		}

		raw, err := c.generate(ctx, system, prompt)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
				break
			}
			c.backoff(ctx, attempt)
			continue
		}

		c.tracker.Record(prompt+system, raw)

		if err := c.parse(raw, out); err != nil {
			lastErr = err
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("Response failed JSON validation")
			c.backoff(ctx, attempt)
			continue
		}
		return nil
	}

	c.logger.Warn().
		Err(lastErr).
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Msg("LLM call exhausted retries")

	if errors.Is(lastErr, ErrRateLimited) || errors.Is(lastErr, context.DeadlineExceeded) {
		return lastErr
	}
	return fmt.Errorf("%w: %v", ErrCallFailed, lastErr)
}

func (c *Client) generate(ctx context.Context, system, prompt string) (string, error) {
	timeout := c.config.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := c.provider.Generate(callCtx, system, prompt)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", context.DeadlineExceeded
	}
	return raw, err
}

func (c *Client) parse(raw string, out any) error {
	extracted := ExtractJSON(raw)
	if extracted == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(extracted), out); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("response failed schema validation: %w", err)
	}
	return nil
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	if attempt-1 < len(retryDelays) {
		sleepCtx(ctx, retryDelays[attempt-1])
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	fencedJSON   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// ExtractJSON pulls the JSON object out of a model response: a fenced
// ```json block when present, else the first balanced {...} span. Control
// characters are stripped either way.
func ExtractJSON(raw string) string {
	if match := fencedJSON.FindStringSubmatch(raw); match != nil {
		return controlChars.ReplaceAllString(match[1], "")
	}

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '{':
			depth++
		case !inString && ch == '}':
			depth--
			if depth == 0 {
				return controlChars.ReplaceAllString(raw[start:i+1], "")
			}
		}
	}
	return ""
}
