package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/feichai0017/study-assistant/internal/models"
	"github.com/feichai0017/study-assistant/pkg/logger"
)

const (
	defaultModel       = "gpt-4o"
	defaultTemperature = 0.7
	defaultAttempts    = 3
	defaultRetryDelay  = time.Second
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrEmptyResponse = errors.New("model returned an empty response")
	ErrNotConfigured = errors.New("openai api key is not configured")
)

// APIError is a non-2xx reply from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("openai error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	// Attempts counts the first try.
	Attempts   int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Prompts    *PromptSet
}

// Response is the model's answer to one action.
type Response struct {
	Action  models.Action
	Content string
	// Structured is the validated JSON for flashcards and quiz. It is nil when
	// the reply could not be parsed or did not match the schema.
	Structured json.RawMessage
}

type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	attempts    uint
	retryDelay  time.Duration
	prompts     *PromptSet
	logger      logger.Logger
}

func NewGenerator(cfg Config, log logger.Logger) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	prompts := cfg.Prompts
	if prompts == nil {
		var err error
		if prompts, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	// Retries are handled here so they can be logged and bounded by ctx.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	g := &Generator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		attempts:    uint(cfg.Attempts),
		retryDelay:  cfg.RetryDelay,
		prompts:     prompts,
		logger:      log.Named("study"),
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	if g.attempts == 0 {
		g.attempts = defaultAttempts
	}
	if g.retryDelay <= 0 {
		g.retryDelay = defaultRetryDelay
	}
	return g, nil
}

// Generate renders the action's prompt over content and asks the model.
func (g *Generator) Generate(ctx context.Context, action models.Action, content string) (*Response, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	prompt, err := g.prompts.Render(action, content)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	resp := &Response{Action: action, Content: reply}
	if schema := g.prompts.schema(action); schema != nil {
		structured, err := parseStructuredJSON(reply)
		if err == nil {
			err = validateStructuredJSON(schema, structured)
		}
		if err != nil {
			g.logger.Warn("Structured output rejected, returning raw content",
				logger.String("action", string(action)),
				logger.Error(err),
			)
		} else {
			resp.Structured = structured
		}
	}

	g.logger.Info("Study material generated",
		logger.String("action", string(action)),
		logger.String("model", g.model),
		logger.Int("promptChars", len(prompt)),
		logger.Int("replyChars", len(reply)),
		logger.Bool("structured", resp.Structured != nil),
		logger.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(g.temperature),
	}

	var reply string
	err := retry.Do(
		func() error {
			completion, err := g.client.Chat.Completions.New(ctx, params)
			if err != nil {
				return mapOpenAIError(err)
			}
			if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
				return retry.Unrecoverable(ErrEmptyResponse)
			}
			reply = completion.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Retryable()
			}
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("Retrying completion",
				logger.Int("attempt", int(n)+1),
				logger.Error(err),
			)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	return reply, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}
