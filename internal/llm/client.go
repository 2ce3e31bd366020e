// Package llm wraps the completion engine behind a one-method client so the
// worker pipeline can be tested without a live model endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// ErrEmptyCompletion reports that the engine answered without usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Client produces a completion for a fully rendered prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EngineConfig configures the OpenAI-compatible completion engine.
type EngineConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Engine is the langchaingo-backed Client used in production.
type Engine struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

// NewEngine Constructor
func NewEngine(cfg EngineConfig) (*Engine, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create completion engine client: %w", err)
	}

	return &Engine{
		llm:         model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete sends the prompt as a single human message and returns the first
// choice. The configured timeout bounds the call on top of whatever deadline
// ctx already carries.
func (e *Engine) Complete(ctx context.Context, prompt string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithMaxTokens(e.maxTokens),
		llms.WithTemperature(e.temperature),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
