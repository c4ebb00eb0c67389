// Package assistant sends a question plus a snapshot of the user's finances
// to a chat-completion endpoint and returns the reply as plain text.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"finwise/internal/core"
	"finwise/internal/kv"
	"finwise/internal/log"
	"finwise/internal/store"
)

const (
	DefaultEndpoint     = "https://api.openai.com/v1/chat/completions"
	DefaultModel        = "gpt-4o-mini"
	DefaultLanguage     = "en"
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 1000
	DefaultHistoryLimit = 20
	DefaultTimeout      = 60 * time.Second
)

// Replies returned instead of errors.
const (
	MessageNoAPIKey      = "Please add your API key in the assistant settings to start chatting."
	MessageRequestFailed = "Sorry, I couldn't reach the assistant right now. Please try again in a moment."
)

var (
	ErrCanceled        = errors.New("assistant request canceled")
	ErrInvalidLanguage = errors.New("invalid language code")
	ErrInvalidEndpoint = errors.New("endpoint must be an absolute http(s) URL")
	ErrEmptyModel      = errors.New("model name cannot be empty")
)

// DataSource is the read side of the store the gateway needs.
type DataSource interface {
	Transactions() []core.Transaction
	BudgetCategories() []core.BudgetCategory
	SavingsGoals() []core.SavingsGoal
	Currency() string
}

// Config is the per-device assistant configuration.
type Config struct {
	APIKey   string `json:"apiKey"`
	Endpoint string `json:"endpointUrl"`
	Model    string `json:"modelName"`
	Language string `json:"language"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Language: DefaultLanguage,
	}
}

// Masked returns a copy safe to show: only the last four key characters
// survive.
func (c Config) Masked() Config {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = strings.Repeat("*", 8) + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = strings.Repeat("*", 8)
	}
	return c
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.http = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.http = &http.Client{Timeout: d, Transport: g.http.Transport}
		}
	}
}

func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

func WithMaxTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.historyLimit = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l.WithComponent(log.ComponentAssistant)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// Gateway owns the assistant configuration of one device.
type Gateway struct {
	storage  kv.Storage
	deviceID string
	data     DataSource

	http         *http.Client
	temperature  float64
	maxTokens    int
	historyLimit int
	logger       *log.Logger
	now          func() time.Time

	mu  sync.RWMutex
	cfg Config

	inFlight atomic.Int64
	seq      atomic.Uint64
}

// New restores the configuration of deviceID from storage. Missing fields
// keep their defaults.
func New(ctx context.Context, storage kv.Storage, deviceID string, data DataSource, opts ...Option) (*Gateway, error) {
	if storage == nil || data == nil {
		return nil, errors.New("assistant: storage and data source are required")
	}
	g := &Gateway{
		storage:      storage,
		deviceID:     deviceID,
		data:         data,
		http:         &http.Client{Timeout: DefaultTimeout},
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		historyLimit: DefaultHistoryLimit,
		logger:       log.Discard().WithComponent(log.ComponentAssistant),
		now:          time.Now,
		cfg:          DefaultConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}

	fields := []struct {
		key string
		dst *string
	}{
		{store.AIAPIKeyKey(deviceID), &g.cfg.APIKey},
		{store.AIEndpointKey(deviceID), &g.cfg.Endpoint},
		{store.AIModelKey(deviceID), &g.cfg.Model},
		{store.AILanguageKey(deviceID), &g.cfg.Language},
	}
	for _, f := range fields {
		v, ok, err := storage.Get(ctx, f.key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.key, err)
		}
		if ok && strings.TrimSpace(v) != "" {
			*f.dst = strings.TrimSpace(v)
		}
	}
	return g, nil
}

func (g *Gateway) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

func (g *Gateway) HasAPIKey() bool {
	return g.Config().APIKey != ""
}

// IsLoading reports whether any request is in flight.
func (g *Gateway) IsLoading() bool {
	return g.inFlight.Load() > 0
}

// SetAPIKey stores the key. An empty key disables the assistant.
func (g *Gateway) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	return g.set(ctx, store.AIAPIKeyKey(g.deviceID), key, func(c *Config) { c.APIKey = key })
}

func (g *Gateway) SetEndpoint(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if err := validateEndpoint(endpoint); err != nil {
		return err
	}
	return g.set(ctx, store.AIEndpointKey(g.deviceID), endpoint, func(c *Config) { c.Endpoint = endpoint })
}

func (g *Gateway) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return ErrEmptyModel
	}
	return g.set(ctx, store.AIModelKey(g.deviceID), model, func(c *Config) { c.Model = model })
}

// SetLanguage stores the canonical form of a BCP 47 code.
func (g *Gateway) SetLanguage(ctx context.Context, code string) error {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
	}
	lang := tag.String()
	return g.set(ctx, store.AILanguageKey(g.deviceID), lang, func(c *Config) { c.Language = lang })
}

// Validate checks the endpoint, model and language. The API key may be
// empty.
func (c Config) Validate() error {
	if err := validateEndpoint(strings.TrimSpace(c.Endpoint)); err != nil {
		return err
	}
	if strings.TrimSpace(c.Model) == "" {
		return ErrEmptyModel
	}
	if _, err := language.Parse(strings.TrimSpace(c.Language)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, c.Language)
	}
	return nil
}

// Configure validates every field first, then persists each one.
func (g *Gateway) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return errors.Join(
		g.SetAPIKey(ctx, cfg.APIKey),
		g.SetEndpoint(ctx, cfg.Endpoint),
		g.SetModel(ctx, cfg.Model),
		g.SetLanguage(ctx, cfg.Language),
	)
}

// set applies the change in memory, then persists it.
func (g *Gateway) set(ctx context.Context, key, value string, apply func(*Config)) error {
	g.mu.Lock()
	apply(&g.cfg)
	g.mu.Unlock()

	if err := g.storage.Set(ctx, key, value); err != nil {
		g.logger.WarnContext(ctx, "Failed to persist assistant setting",
			log.FieldKey, key, log.FieldError, err, log.FieldOperation, log.OpPersist)
		return fmt.Errorf("%w: %s: %w", store.ErrNotPersisted, key, err)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

// Ask sends question with the current financial snapshot and returns the
// reply. Failures come back as readable text, never as an error.
func (g *Gateway) Ask(ctx context.Context, question, customSystemPrompt string) string {
	g.seq.Add(1)
	reply, _ := g.ask(ctx, question, customSystemPrompt)
	return reply
}

// ask returns ErrCanceled when ctx ended before the reply arrived.
func (g *Gateway) ask(ctx context.Context, question, customSystemPrompt string) (string, error) {
	cfg := g.Config()
	if cfg.APIKey == "" {
		return MessageNoAPIKey, nil
	}

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	user, err := userMessage(question, BuildPayload(g.data, g.historyLimit, g.now()))
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to build assistant payload", log.FieldError, err)
		return MessageRequestFailed, nil
	}

	start := time.Now()
	reply, err := g.complete(ctx, cfg, SystemPrompt(customSystemPrompt, cfg.Language), user)
	if ctx.Err() != nil {
		g.logger.DebugContext(ctx, "Assistant request canceled", log.FieldError, ctx.Err())
		return MessageRequestFailed, ErrCanceled
	}

	var apiErr *APIError
	switch {
	case err == nil:
		g.logger.InfoContext(ctx, "Assistant replied",
			log.FieldModel, cfg.Model,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldOperation, log.OpAsk)
		return reply, nil
	case errors.As(err, &apiErr):
		g.logger.WarnContext(ctx, "Assistant endpoint returned an error",
			log.FieldStatusCode, apiErr.StatusCode,
			log.FieldError, apiErr.Message,
			log.FieldModel, cfg.Model)
		return "Error: " + apiErr.Message, nil
	default:
		g.logger.ErrorContext(ctx, "Assistant request failed",
			log.FieldEndpoint, cfg.Endpoint,
			log.FieldError, err)
		return MessageRequestFailed, nil
	}
}
