// Package openai generates coach replies with the OpenAI chat completions
// API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vidasmart/coachgw/internal/domain"
)

const (
	DefaultModel       = openai.GPT4oMini
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 800
)

// Config configures the generator.
type Config struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	Temperature float32 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Generator calls the chat completions endpoint.
type Generator struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a generator. Zero-valued config fields take the defaults.
func New(cfg Config, opts ...Option) *Generator {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if o.httpClient != nil {
		clientCfg.HTTPClient = o.httpClient
	}

	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: o.logger,
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.cfg.Model }

// Generate sends the system prompt, the history and the user message and
// returns the first choice's content.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    buildMessages(systemPrompt, history, userMessage),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapError(ctx, err)
	}

	g.logger.Debug("chat completion",
		slog.String("model", resp.Model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return "", domain.ErrUpstream("completion returned no choices").WithCode(domain.ErrorCodeEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildMessages(systemPrompt string, history []domain.ChatMessage, userMessage string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case domain.RoleSystem:
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})
}

// mapError converts client errors into domain errors. Caller cancellation
// is returned unchanged.
func mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout("completion deadline exceeded").WithCause(err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimit("openai rate limit").WithCause(err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrUpstream("openai rejected credentials").WithStatusCode(http.StatusBadGateway).WithCause(err)
	case status != 0:
		return domain.ErrUpstream(fmt.Sprintf("openai returned status %d", status)).WithCause(err)
	default:
		return domain.ErrUpstream("openai request failed").WithCause(err)
	}
}
