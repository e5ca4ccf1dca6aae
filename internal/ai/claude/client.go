package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/spigell/formfill/internal/ai"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	defaultTimeout   = 30 * time.Second
)

type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Config configures the Claude generator.
type Config struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Generator sends single-turn prompts to the Anthropic messages API.
type Generator struct {
	messages  messageCreator
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

func NewGenerator(apiKey string, cfg Config, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("claude api key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return newGenerator(&client.Messages, cfg, logger), nil
}

func newGenerator(messages messageCreator, cfg Config, logger *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		messages:  messages,
		model:     model,
		maxTokens: int64(maxTokens),
		timeout:   timeout,
		logger:    logger,
	}
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	return messageText(resp)
}

// GenerateJSON has no dedicated response mode on this provider; the prompt is
// expected to ask for JSON and the reply is stripped down to it.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	out, err := g.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}
	return ai.ExtractJSON(out), nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func messageText(resp *anthropic.Message) (string, error) {
	if resp == nil || len(resp.Content) == 0 {
		return "", errors.New("empty response from Claude")
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type != "text" {
			continue
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", errors.New("no text content in Claude response")
	}

	return strings.Join(parts, "\n"), nil
}
