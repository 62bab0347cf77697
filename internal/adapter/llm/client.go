package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"docchat/internal/adapter/cache"
	"docchat/internal/adapter/prompt"
	"docchat/internal/domain"
	"docchat/internal/port"
)

// State is the lifecycle of the generation client's model.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFallback:
		return "fallback"
	default:
		return "unloaded"
	}
}

// Config holds the static generation knobs. Sampling parameters are not
// here: they come from the settings store on every call.
type Config struct {
	MaxTokens       int
	StopTokens      []string
	LoadTimeout     time.Duration
	ResponseTTL     time.Duration
	CacheEntries    int
	ContextKeyChars int
}

// fragmentBuffer bounds the streaming channel; a slow consumer applies
// backpressure instead of growing memory.
const fragmentBuffer = 16

type cachedResponse struct {
	Fragments []string
	Full      string
}

// Client owns the language model. Loading happens once, in the background;
// callers arriving earlier wait (bounded) instead of failing. All model
// invocations are serialized: the model is not reentrant.
type Client struct {
	settings port.Settings
	prompts  *prompt.Builder
	cache    *cache.Cache[cachedResponse]
	cfg      Config
	logger   log.Logger

	mu    sync.Mutex // serializes model invocations
	model port.Model // set before ready closes, nil in fallback

	state atomic.Int32
	ready chan struct{}

	invocations atomic.Int64
}

// New constructs the client and starts loading the model in the background.
func New(loader port.ModelLoader, settings port.Settings, prompts *prompt.Builder, cfg Config, logger log.Logger) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = time.Hour
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = 500
	}
	if cfg.ContextKeyChars <= 0 {
		cfg.ContextKeyChars = 500
	}

	c := &Client{
		settings: settings,
		prompts:  prompts,
		cache:    cache.New[cachedResponse](cfg.CacheEntries),
		cfg:      cfg,
		logger:   logger,
		ready:    make(chan struct{}),
	}
	c.state.Store(int32(StateLoading))
	go c.load(loader)
	return c
}

func (c *Client) load(loader port.ModelLoader) {
	model, err := loader.Load(context.Background())
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
		c.logger.Warn().Err(err).Msg("model load failed, running in fallback mode")
		c.state.Store(int32(StateFallback))
	} else {
		c.model = model
		c.state.Store(int32(StateReady))
		c.logger.Info().Str("model", model.Name()).Msg("model ready")
	}
	close(c.ready)
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Invocations reports how many times the underlying model has been called.
// Cache hits and fallback responses do not count.
func (c *Client) Invocations() int64 {
	return c.invocations.Load()
}

// awaitReady blocks until loading finishes, bounded by the configured
// timeout and the caller's context.
func (c *Client) awaitReady(ctx context.Context) State {
	select {
	case <-c.ready:
		return c.State()
	case <-time.After(c.cfg.LoadTimeout):
		return StateLoading
	case <-ctx.Done():
		return StateLoading
	}
}

// samplingParams reads the current operator settings. Reading per call is
// the contract: parameter changes apply on the next request.
func (c *Client) samplingParams() (port.SamplingParams, string, error) {
	temperature, topP, err := c.settings.GenerationParams()
	if err != nil {
		return port.SamplingParams{}, "", fmt.Errorf("read generation params: %w", err)
	}
	instruction, err := c.settings.SystemInstruction()
	if err != nil {
		return port.SamplingParams{}, "", fmt.Errorf("read system instruction: %w", err)
	}
	return port.SamplingParams{
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   c.cfg.MaxTokens,
		Stop:        c.cfg.StopTokens,
	}, instruction, nil
}

// cacheKey derives the response cache key from the query, a truncated view
// of the context, and the sampling parameters.
func (c *Client) cacheKey(query, contextText string, p port.SamplingParams) string {
	runes := []rune(contextText)
	if len(runes) > c.cfg.ContextKeyChars {
		contextText = string(runes[:c.cfg.ContextKeyChars])
	}
	return cache.Key("generate", query, contextText,
		fmt.Sprintf("%.3f:%.3f", p.Temperature, p.TopP))
}

// Generate runs one non-streaming generation. Identical requests within the
// cache TTL return byte-identical output without touching the model.
func (c *Client) Generate(ctx context.Context, query, contextText string) (string, error) {
	params, instruction, err := c.samplingParams()
	if err != nil {
		return "", err
	}

	key := c.cacheKey(query, contextText, params)
	if hit, ok := c.cache.Get(key); ok {
		return hit.Full, nil
	}

	if c.awaitReady(ctx) != StateReady {
		// Model artifact missing or still loading past the bounded wait:
		// degrade to the deterministic template so the system stays
		// demonstrable.
		return c.fallbackResponse(query, contextText), nil
	}

	promptText := c.prompts.Build(instruction, contextText, query)

	c.mu.Lock()
	c.invocations.Add(1)
	text, err := c.model.Complete(context.WithoutCancel(ctx), promptText, params)
	c.mu.Unlock()
	if err != nil {
		return "", &domain.GenerationError{Err: err}
	}

	text = strings.TrimSpace(trimAtStop(text, c.cfg.StopTokens))
	if text != "" {
		c.cache.Put(key, cachedResponse{Full: text, Fragments: []string{text}}, c.cfg.ResponseTTL)
	}
	return text, nil
}

// GenerateStream produces a lazy, finite, non-restartable fragment stream.
// On a cache hit the stored fragments are replayed in order, preserving the
// streaming shape. The error channel delivers at most one error; both
// channels are closed when the stream ends.
func (c *Client) GenerateStream(ctx context.Context, query, contextText string) (<-chan string, <-chan error) {
	out := make(chan string, fragmentBuffer)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		params, instruction, err := c.samplingParams()
		if err != nil {
			errc <- err
			return
		}

		key := c.cacheKey(query, contextText, params)
		if hit, ok := c.cache.Get(key); ok {
			for _, f := range hit.Fragments {
				if !send(ctx, out, f) {
					return
				}
			}
			return
		}

		if c.awaitReady(ctx) != StateReady {
			for _, f := range splitFragments(c.fallbackResponse(query, contextText)) {
				if !send(ctx, out, f) {
					return
				}
			}
			return
		}

		promptText := c.prompts.Build(instruction, contextText, query)
		c.streamModel(ctx, key, promptText, params, out, errc)
	}()

	return out, errc
}

// errStopToken aborts the model stream once a stop token has been seen; it
// is a successful termination, not a failure.
var errStopToken = errors.New("stop token reached")

func (c *Client) streamModel(ctx context.Context, key, promptText string, params port.SamplingParams, out chan<- string, errc chan<- error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations.Add(1)

	scanner := newStopScanner(c.cfg.StopTokens)
	var fragments []string
	var full strings.Builder
	consumerGone := false

	emit := func(fragment string) {
		if fragment == "" {
			return
		}
		fragments = append(fragments, fragment)
		full.WriteString(fragment)
		if !consumerGone && !send(ctx, out, fragment) {
			// The consumer disconnected. Finish the generation anyway so
			// the answer lands in the cache; just stop relaying.
			consumerGone = true
		}
	}

	// The model call itself is detached from the request context: a client
	// disconnect mid-stream lets the in-flight generation run to
	// completion.
	err := c.model.Stream(context.WithoutCancel(ctx), promptText, params, func(raw string) error {
		fragment, done := scanner.Push(raw)
		emit(fragment)
		if done {
			return errStopToken
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopToken) {
		errc <- &domain.GenerationError{Err: err}
		return
	}
	emit(scanner.Flush())

	if text := strings.TrimSpace(full.String()); text != "" {
		c.cache.Put(key, cachedResponse{Fragments: fragments, Full: text}, c.cfg.ResponseTTL)
	}
}

// fallbackResponse synthesizes a deterministic templated answer from the
// query and the truncated context.
func (c *Client) fallbackResponse(query, contextText string) string {
	trimmed := strings.TrimSpace(c.prompts.Truncate(contextText))
	if trimmed == "" {
		return fmt.Sprintf("The language model is not available right now, and no indexed material matched %q. Please make sure documents have been ingested, or try rephrasing the question.", query)
	}
	return fmt.Sprintf("The language model is not available right now, so this is a retrieval-only answer for %q. The most relevant indexed material is quoted below:\n\n%s\n\nPlease consult the cited sources for complete details.", query, trimmed)
}

// send delivers one fragment, honoring the consumer's context.
func send(ctx context.Context, out chan<- string, fragment string) bool {
	select {
	case out <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

// splitFragments cuts text into small word groups so fallback answers keep
// the shape of a streamed response.
func splitFragments(text string) []string {
	words := strings.Fields(text)
	const group = 6

	var fragments []string
	for i := 0; i < len(words); i += group {
		end := i + group
		if end > len(words) {
			end = len(words)
		}
		fragment := strings.Join(words[i:end], " ")
		if end < len(words) {
			fragment += " "
		}
		fragments = append(fragments, fragment)
	}
	return fragments
}

// trimAtStop cuts a completed response at the first stop token.
func trimAtStop(text string, stops []string) string {
	cut := len(text)
	for _, stop := range stops {
		if i := strings.Index(text, stop); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
