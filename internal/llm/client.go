package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
	"github.com/TobiSchelling/ankiforge/internal/config"
	"github.com/TobiSchelling/ankiforge/internal/trace"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// Observer is told about every failed attempt.
type Observer func(kind FailureKind)

// Options binds the per-call settings of a Client.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Timeout bounds each attempt; 0 disables the per-attempt deadline.
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	// RPM caps requests per minute across every user of the Client; 0 is unlimited.
	RPM int
}

// OptionsFromConfig converts the llm config section to client options.
func OptionsFromConfig(cfg config.LLM) Options {
	return Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout(),
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.BaseDelay(),
		RPM:         cfg.RPMLimit,
	}
}

// Client performs chat completions with bounded retry and exponential backoff.
type Client struct {
	provider Provider
	opts     Options
	limiter  *rate.Limiter
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient wraps provider. The rate limiter is shared by copies made with
// WithObserver.
func NewClient(provider Provider, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay < 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	c := &Client{provider: provider, opts: opts, sleep: sleepContext}
	if opts.RPM > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RPM)), 1)
	}
	return c
}

// WithObserver returns a copy of c reporting failed attempts to obs.
func (c *Client) WithObserver(obs Observer) *Client {
	cp := *c
	cp.observer = obs
	return &cp
}

// ProviderName returns the name of the wrapped provider.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Chat sends one system/user prompt pair and returns the completion text.
// Timeouts and rate limits are retried; every other failure is returned at
// once as an E_LLM_ERROR.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	traceID := trace.FromContext(ctx)
	req := Request{
		System:      systemPrompt,
		User:        userPrompt,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", apperr.Wrap(apperr.LLMError, traceID, err, "waiting for rate limiter: %v", err)
			}
		}

		text, err := c.attempt(ctx, req)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				c.observe(FailureOther)
				return "", apperr.Wrap(apperr.LLMError, traceID, ErrEmptyResponse, "%v", ErrEmptyResponse)
			}
			return text, nil
		}

		if ctx.Err() != nil {
			return "", apperr.Wrap(apperr.LLMError, traceID, err, "LLM call cancelled: %v", ctx.Err())
		}

		kind := Classify(err)
		c.observe(kind)
		if !kind.Retryable() {
			return "", apperr.Wrap(apperr.LLMError, traceID, err, "LLM API error: %v", err)
		}

		lastErr = err
		if attempt < c.opts.MaxRetries-1 {
			delay := c.opts.BaseDelay * time.Duration(1<<attempt)
			slog.Warn("LLM call failed, retrying",
				"trace_id", traceID,
				"provider", c.provider.Name(),
				"kind", kind,
				"attempt", attempt+1,
				"max_attempts", c.opts.MaxRetries,
				"delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return "", apperr.Wrap(apperr.LLMError, traceID, err, "LLM call cancelled during backoff: %v", err)
			}
		}
	}

	return "", apperr.Wrap(apperr.LLMError, traceID, lastErr,
		"LLM call failed after %d attempts: %v", c.opts.MaxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	if c.opts.Timeout <= 0 {
		return c.provider.Complete(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	text, err := c.provider.Complete(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return text, err
}

func (c *Client) observe(kind FailureKind) {
	if c.observer != nil {
		c.observer(kind)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
