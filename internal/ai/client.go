package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/pkg/models"
	"golang.org/x/sync/singleflight"
)

// Request describes one generation
type Request struct {
	Task       TaskType
	TemplateID string
	Params     map[string]any
	// Tier overrides the task's default cost tier when set
	Tier models.CostTier
	// ForceRefresh skips the cache read; the fresh result still replaces the entry
	ForceRefresh bool
}

// Response is a generation result. Payload is JSON for structured templates
// and plain text otherwise.
type Response struct {
	Key       string          `json:"key"`
	Tier      models.CostTier `json:"tier"`
	Model     string          `json:"model"`
	Payload   []byte          `json:"-"`
	WasCached bool            `json:"was_cached"`
}

// Text returns the payload as a string
func (r *Response) Text() string {
	return string(r.Payload)
}

// Options tunes a Client. Zero values take defaults.
type Options struct {
	Models      ModelCatalog
	Templates   *TemplateRegistry
	Timeout     time.Duration
	Attempts    int
	BackoffBase time.Duration
	Logger      *slog.Logger
}

// SessionStats counts what the client did since it was created
type SessionStats struct {
	ProviderCalls int64   `json:"provider_calls"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRate       float64 `json:"hit_rate"`
}

// Client routes generations through the cache and the provider
type Client struct {
	store       cache.Store
	provider    Provider
	models      ModelCatalog
	templates   *TemplateRegistry
	timeout     time.Duration
	attempts    int
	backoffBase time.Duration
	logger      *slog.Logger

	flight        singleflight.Group
	providerCalls atomic.Int64
	hits          atomic.Int64
	misses        atomic.Int64
}

// NewClient creates a generation client
func NewClient(store cache.Store, provider Provider, opts Options) *Client {
	c := &Client{
		store:       store,
		provider:    provider,
		models:      opts.Models,
		templates:   opts.Templates,
		timeout:     opts.Timeout,
		attempts:    opts.Attempts,
		backoffBase: opts.BackoffBase,
		logger:      opts.Logger,
	}
	if c.models == nil {
		c.models = DefaultModelCatalog()
	}
	if c.templates == nil {
		c.templates = DefaultTemplates()
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.backoffBase <= 0 {
		c.backoffBase = time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Generate returns the response for req, from the cache when possible.
// Validation problems are reported before any provider call.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.TemplateID == "" {
		return nil, fmt.Errorf("%w: template id is required", models.ErrValidation)
	}
	tmpl, err := c.templates.Lookup(req.TemplateID)
	if err != nil {
		return nil, err
	}
	tier := req.Tier
	if tier == "" {
		tier = SelectTier(req.Task)
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown cost tier %q", models.ErrValidation, tier)
	}
	prompt, err := tmpl.Render(req.Params)
	if err != nil {
		return nil, err
	}
	key, err := cache.Key(req.TemplateID, req.Params, tier)
	if err != nil {
		return nil, err
	}

	if !req.ForceRefresh {
		ent, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("cache read failed, generating", "key", key, "error", err)
		case ok:
			c.hits.Add(1)
			return &Response{Key: key, Tier: tier, Model: c.models.Model(tier), Payload: ent.Payload, WasCached: true}, nil
		}
	}
	c.misses.Add(1)

	flightKey := key
	if req.ForceRefresh {
		flightKey = "refresh:" + key
	}
	// The flight outlives a cancelled leader so waiters still get a result.
	// Each attempt stays bounded by the provider timeout.
	flightCtx := context.WithoutCancel(ctx)
	led := false
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		led = true
		return c.produce(flightCtx, tmpl, tier, key, prompt, req.ForceRefresh)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	resp := *res.Val.(*Response)
	// Callers that waited on another's flight did not pay for a provider call
	resp.WasCached = !led
	return &resp, nil
}

// produce calls the provider, parses the output and writes it through
func (c *Client) produce(ctx context.Context, tmpl *PromptTemplate, tier models.CostTier, key, prompt string, force bool) (*Response, error) {
	model := c.models.Model(tier)
	text, err := c.callWithRetry(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if tmpl.Format == FormatJSON {
		payload, err = parseJSONOutput(text, tmpl.Validate)
		if err != nil {
			c.logger.Warn("model returned unusable output", "template", tmpl.ID, "tier", tier, "error", err)
			return nil, err
		}
	} else {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, &GenerationError{Reason: ReasonEmptyResponse, Raw: text, Err: errors.New("empty response from model")}
		}
		payload = []byte(text)
	}

	if force {
		_, err = c.store.Replace(ctx, key, tier, payload)
	} else {
		_, err = c.store.Put(ctx, key, tier, payload)
	}
	switch {
	case errors.Is(err, models.ErrKeyConflict):
		c.logger.Info("cache entry written concurrently, keeping existing", "key", key)
	case err != nil:
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}

	return &Response{Key: key, Tier: tier, Model: model, Payload: payload}, nil
}

// callWithRetry retries transient provider failures with exponential backoff.
// Each attempt gets its own timeout.
func (c *Client) callWithRetry(ctx context.Context, model, prompt string) (string, error) {
	var text string
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		c.providerCalls.Add(1)
		out, err := c.provider.Generate(callCtx, model, prompt)
		if err == nil {
			text = out
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var pe *ProviderError
		if !errors.As(err, &pe) {
			kind := ProviderUnavailable
			if errors.Is(err, context.DeadlineExceeded) {
				kind = ProviderTimeout
			}
			pe = &ProviderError{Kind: kind, Model: model, Err: err}
			err = pe
		}
		c.logger.Warn("provider call failed", "model", model, "attempt", attempt, "error", err)
		if !pe.Transient() {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.backoffBase
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.attempts-1)), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return text, nil
}

// Stats reports session counters
func (c *Client) Stats() SessionStats {
	s := SessionStats{
		ProviderCalls: c.providerCalls.Load(),
		CacheHits:     c.hits.Load(),
		CacheMisses:   c.misses.Load(),
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.HitRate = float64(s.CacheHits) / float64(total)
	}
	return s
}

// Invalidate drops a cached response, e.g. when its content was found incorrect
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.store.Invalidate(ctx, key)
}

// decodeResponse parses a structured payload into its tagged variant
func decodeResponse[T any, PT interface {
	*T
	validatable
}](resp *Response) (T, error) {
	v, err := decodeAs[T, PT](resp.Payload)
	if err != nil {
		return v, &GenerationError{Reason: ReasonInvalidResponse, Raw: string(resp.Payload), Err: err}
	}
	return v, nil
}

type LessonParams struct {
	Subject    string
	Topic      string
	Difficulty models.Difficulty
}

// Lesson generates (or loads) a lesson
func (c *Client) Lesson(ctx context.Context, p LessonParams, forceRefresh bool) (LessonContent, bool, error) {
	resp, err := c.Generate(ctx, Request{
		Task:       TaskLessonGeneration,
		TemplateID: TemplateLesson,
		Params: map[string]any{
			"subject":    p.Subject,
			"topic":      p.Topic,
			"difficulty": string(p.Difficulty),
		},
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		return LessonContent{}, false, err
	}
	lesson, err := decodeResponse[LessonContent](resp)
	return lesson, resp.WasCached, err
}

type QuestionParams struct {
	Subject      string
	Topic        string
	QuestionType string
	Difficulty   models.Difficulty
	Count        int
}

// Questions generates a practice set
func (c *Client) Questions(ctx context.Context, p QuestionParams) (QuestionSet, bool, error) {
	if p.Count <= 0 {
		return QuestionSet{}, false, fmt.Errorf("%w: question count must be positive", models.ErrValidation)
	}
	if p.QuestionType == "" {
		p.QuestionType = QuestionMCQ
	}
	resp, err := c.Generate(ctx, Request{
		Task:       TaskQuestionGeneration,
		TemplateID: TemplateQuestions,
		Params: map[string]any{
			"subject":       p.Subject,
			"topic":         p.Topic,
			"question_type": p.QuestionType,
			"difficulty":    string(p.Difficulty),
			"count":         p.Count,
		},
	})
	if err != nil {
		return QuestionSet{}, false, err
	}
	set, err := decodeResponse[QuestionSet](resp)
	return set, resp.WasCached, err
}

type GradingParams struct {
	Question   string
	KeyPoints  []string
	Answer     string
	TotalMarks float64
}

// Grade judges a descriptive answer with the Premium tier
func (c *Client) Grade(ctx context.Context, p GradingParams) (GradingResult, bool, error) {
	resp, err := c.Generate(ctx, Request{
		Task:       TaskGradingDescriptive,
		TemplateID: TemplateGrading,
		Params: map[string]any{
			"question":    p.Question,
			"key_points":  strings.Join(p.KeyPoints, "; "),
			"answer":      p.Answer,
			"total_marks": p.TotalMarks,
		},
	})
	if err != nil {
		return GradingResult{}, false, err
	}
	res, err := decodeResponse[GradingResult](resp)
	return res, resp.WasCached, err
}

// Hint returns a short nudge for a question
func (c *Client) Hint(ctx context.Context, subject, topic, question string) (string, bool, error) {
	resp, err := c.Generate(ctx, Request{
		Task:       TaskHintGeneration,
		TemplateID: TemplateHint,
		Params: map[string]any{
			"subject":  subject,
			"topic":    topic,
			"question": question,
		},
	})
	if err != nil {
		return "", false, err
	}
	return resp.Text(), resp.WasCached, nil
}

// MarshalJSON includes the payload inline when it is JSON
func (r *Response) MarshalJSON() ([]byte, error) {
	type plain Response
	out := struct {
		*plain
		Data json.RawMessage `json:"data,omitempty"`
		Text string          `json:"text,omitempty"`
	}{plain: (*plain)(r)}
	if json.Valid(r.Payload) {
		out.Data = r.Payload
	} else {
		out.Text = string(r.Payload)
	}
	return json.Marshal(out)
}
