package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/site2rag/internal/common"
)

// fakeProvider scripts responses per attempt.
type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	active    int32
	maxActive int32
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Generate(_ context.Context, _, _ string) (string, error) {
	active := atomic.AddInt32(&f.active, 1)
	for {
		max := atomic.LoadInt32(&f.maxActive)
		if active <= max || atomic.CompareAndSwapInt32(&f.maxActive, max, active) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

type echoResult struct {
	Value string `json:"value" validate:"required"`
}

func testClient(p Provider) *Client {
	cfg := common.NewDefaultConfig().LLM
	cfg.CallTimeout = 2 * time.Second
	return NewClient(p, &cfg, NewTokenTracker(1.0), common.GetLogger())
}

func TestCallParsesAndValidates(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"value":"ok"}`}}
	c := testClient(p)

	var out echoResult
	require.NoError(t, c.Call(context.Background(), "", "prompt", &out))
	assert.Equal(t, "ok", out.Value)
	assert.Positive(t, c.Tracker().Tokens())
}

func TestCallRetriesOnInvalidJSON(t *testing.T) {
	p := &fakeProvider{responses: []string{"not json at all", `{"value":"second"}`}}
	c := testClient(p)

	var out echoResult
	require.NoError(t, c.Call(context.Background(), "", "prompt", &out))
	assert.Equal(t, "second", out.Value)
	assert.Equal(t, 2, p.calls)
}

func TestCallSchemaFailureCountsAgainstRetries(t *testing.T) {
	// "value" missing -> validation failure every time
	p := &fakeProvider{responses: []string{`{"other":1}`, `{"other":2}`, `{"other":3}`}}
	c := testClient(p)

	var out echoResult
	err := c.Call(context.Background(), "", "prompt", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.Equal(t, 3, p.calls)
}

func TestCallRateLimitedShortCircuits(t *testing.T) {
	p := &fakeProvider{errs: []error{ErrRateLimited}}
	c := testClient(p)

	var out echoResult
	err := c.Call(context.Background(), "", "prompt", &out)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, p.calls, "429 is not retried inside the call layer")
}

func TestCallConcurrencyCap(t *testing.T) {
	responses := make([]string, 12)
	for i := range responses {
		responses[i] = `{"value":"ok"}`
	}
	p := &fakeProvider{responses: responses}
	c := testClient(p) // MaxConcurrent = 3

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out echoResult
			c.Call(context.Background(), "", "prompt", &out)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.maxActive, int32(3))
}

func TestCallUsesSessionContext(t *testing.T) {
	var gotSystem string
	p := &capturingProvider{response: `{"value":"ok"}`, system: &gotSystem}
	c := testClient(p)

	c.Sessions().Open("doc-1", "cached document instructions")

	var out echoResult
	require.NoError(t, c.Call(context.Background(), "doc-1", "prompt", &out))
	assert.Equal(t, "cached document instructions", gotSystem)

	hits, _ := c.Sessions().Stats("doc-1")
	assert.Equal(t, 1, hits)
}

type capturingProvider struct {
	response string
	system   *string
}

func (p *capturingProvider) Name() string  { return "capturing" }
func (p *capturingProvider) Model() string { return "m" }
func (p *capturingProvider) Generate(_ context.Context, system, _ string) (string, error) {
	*p.system = system
	return p.response, nil
}

func TestExtractJSON(t *testing.T) {
	// Fenced block wins
	assert.Equal(t, `{"a":1}`, ExtractJSON("prefix\n```json\n{\"a\":1}\n```\nsuffix"))

	// First balanced object
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSON(`noise {"a":{"b":2}} trailing {"c":3}`))

	// Braces inside strings do not break balancing
	assert.Equal(t, `{"a":"}{"}`, ExtractJSON(`{"a":"}{"}`))

	// Control characters stripped
	assert.Equal(t, `{"a":"x"}`, ExtractJSON("{\"a\":\"x\x01\"}"))

	assert.Empty(t, ExtractJSON("no json here"))
}

func TestWindowFor(t *testing.T) {
	w, o := WindowFor("llama3.2")
	assert.Equal(t, 4000, w)
	assert.Equal(t, 2000, o)

	w, _ = WindowFor("claude-haiku-3-5-20241022")
	assert.Equal(t, 12000, w)

	w, o = WindowFor("unknown-model")
	assert.Equal(t, defaultWindowWords, w)
	assert.Equal(t, defaultWindowWords/2, o)
}

func TestSessionEviction(t *testing.T) {
	s := NewSessionStore()
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Open("a", "ctx-a")
	assert.Equal(t, "ctx-a", s.CachedContext("a"))

	current = current.Add(6 * time.Minute)
	assert.Empty(t, s.CachedContext("a"), "idle sessions are evicted after five minutes")
}

func TestOllamaProviderWireFormat(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, jsonDecode(r, &received))
		fmt.Fprint(w, `{"response":"{\"value\":\"from-ollama\"}"}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(&common.OllamaConfig{Host: srv.URL, Model: "llama3.2"}, common.GetLogger())
	raw, err := p.Generate(context.Background(), "system text", "the prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"value":"from-ollama"}`, raw)

	assert.Equal(t, "llama3.2", received["model"])
	assert.Equal(t, "the prompt", received["prompt"])
	assert.Equal(t, "system text", received["system"])
	assert.Equal(t, false, received["stream"])
	assert.Equal(t, "json", received["format"])
	opts := received["options"].(map[string]any)
	assert.Equal(t, 0.1, opts["temperature"])
	assert.Equal(t, 0.9, opts["top_p"])
	assert.Equal(t, 1.1, opts["repeat_penalty"])
}

func TestOllama429MapsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOllamaProvider(&common.OllamaConfig{Host: srv.URL, Model: "m"}, common.GetLogger())
	_, err := p.Generate(context.Background(), "", "prompt")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, common.LLMProviderClaude, detectProvider("claude-haiku-3-5"))
	assert.Equal(t, common.LLMProviderGemini, detectProvider("gemini-3-flash-preview"))
	assert.Equal(t, common.LLMProviderOllama, detectProvider("llama3.2"))
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
