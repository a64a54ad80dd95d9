package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// anthropicOverloaded is Anthropic's "overloaded" status, handled like a rate limit.
const anthropicOverloaded = 529

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	Model  string
	client anthropic.Client
}

// NewAnthropicProvider creates a provider with SDK retries disabled.
func NewAnthropicProvider(model, apiKey, baseURL string) *AnthropicProvider {
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(apiKey)),
		aoption.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &AnthropicProvider{Model: model, client: anthropic.NewClient(opts...)}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends a single-turn message and concatenates the text blocks of the reply.
func (a *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.Model),
		MaxTokens:   anthropicDefaultMaxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.User))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}

	slog.Debug("anthropic usage",
		"model", a.Model,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens)
	return sb.String(), nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, anthropicOverloaded:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("Anthropic API returned %d: %w", apiErr.StatusCode, err)
	}
	if Classify(err) == FailureTimeout {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("Anthropic API error: %w", err)
}
