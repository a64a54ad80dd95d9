package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// OpenAIProvider talks to OpenAI or any chat-completions compatible endpoint.
type OpenAIProvider struct {
	Model  string
	client openai.Client
}

// NewOpenAIProvider creates a provider; an empty baseURL uses api.openai.com.
// SDK retries are disabled so that Client owns the retry policy.
func NewOpenAIProvider(model, apiKey, baseURL string) *OpenAIProvider {
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(apiKey)),
		ooption.WithMaxRetries(0),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &OpenAIProvider{Model: model, client: openai.NewClient(opts...)}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// Complete sends a chat completion request and returns the first choice.
func (o *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	slog.Debug("openai usage",
		"model", o.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("OpenAI API returned %d: %w", apiErr.StatusCode, err)
	}
	if Classify(err) == FailureTimeout {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("OpenAI API error: %w", err)
}
