package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/formfill/internal/ai"
	"github.com/spigell/formfill/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = 2 * time.Second
	// Quota errors asking to wait longer than this are not retried.
	maxRetryDelay = 15 * time.Second
	jsonMIMEType  = "application/json"
)

var waitFor = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures the Gemini generator.
type Config struct {
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	models     contentModels
	model      string
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, cfg Config, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, logger), nil
}

func newGenerator(models contentModels, cfg Config, logger *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Generator{
		models:     models,
		model:      model,
		maxRetries: retries,
		timeout:    timeout,
		logger:     logger,
	}
}

// GenerateContent sends the prompt to Gemini and returns the textual response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, prompt, &genai.GenerateContentConfig{})
}

// GenerateJSON requests a JSON response and returns it without code fences.
func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	out, err := g.generate(ctx, prompt, &genai.GenerateContentConfig{ResponseMIMEType: jsonMIMEType})
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

func (g *Generator) generate(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		output, err := g.generateOnce(ctx, prompt, config)
		if err == nil {
			return output, nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == g.maxRetries {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := waitFor(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (g *Generator) generateOnce(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.models.GenerateContent(callCtx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned no response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

// retryDelay reports whether err is worth another attempt and how long to wait first.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	backoff := time.Duration(attempt) * defaultRetryDelay

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, convErr := strconv.ParseFloat(m[1], 64)
			if convErr == nil {
				wait := time.Duration(seconds * float64(time.Second))
				if wait > maxRetryDelay {
					return 0, false
				}
				return wait, true
			}
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	default:
		return 0, false
	}
}
