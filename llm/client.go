// Package llm implements an OpenAI-compatible chat client guarded by a
// circuit breaker: extraction and enhancement degrade gracefully to
// OCR-only output when the breaker is open rather than piling up calls
// against a failing endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"idp.evalgo.org/common"
	"idp.evalgo.org/config"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Client is an OpenAI-compatible chat client with a circuit breaker
// wrapping every call: BreakerFailThreshold consecutive failures trip it
// open for BreakerOpenDuration, after which a single trial call may close
// it again.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker

	// LastTokens records the prompt+completion token count of the most
	// recent successful call, for the caller to accumulate into a job's
	// LLM token counter.
	LastTokens int
}

// Config carries everything needed to construct a Client.
type Config struct {
	BaseURL             string
	APIKey              string
	Model               string
	Timeout             time.Duration
	BreakerFailThreshold uint32
	BreakerOpenDuration time.Duration
}

// New builds a Client whose breaker opens after FailThreshold consecutive
// failures and allows one trial request after OpenDuration.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "llm-client",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailThreshold
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete sends one chat completion request through the breaker. When
// the breaker is open, it returns gobreaker.ErrOpenState directly so
// callers can treat it as "LLM unavailable" and degrade rather than
// surface a generic failure.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", common.FailedTo("encode llm request", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", common.NetworkError("build llm request", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", common.NetworkError("call llm endpoint", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", common.NetworkError("call llm endpoint", url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", common.ParseError("llm response", "json", err)
	}
	if len(parsed.Choices) == 0 {
		return "", common.FailedTo("parse llm response", fmt.Errorf("no choices returned"))
	}

	c.LastTokens = parsed.Usage.TotalTokens
	return parsed.Choices[0].Message.Content, nil
}

// NewFromConfig builds a Client from the loaded LLM configuration
// section.
func NewFromConfig(cfg config.LLMConfig) *Client {
	return New(Config{
		BaseURL:              cfg.BaseURL,
		APIKey:               cfg.APIKey,
		Model:                cfg.Model,
		Timeout:              cfg.Timeout,
		BreakerFailThreshold: cfg.BreakerFailThreshold,
		BreakerOpenDuration:  cfg.BreakerOpenDuration,
	})
}

// Available reports whether the breaker currently permits calls,
// allowing orchestration code to skip enhancement/consistency-check
// passes entirely rather than eat an immediate breaker rejection.
func (c *Client) Available() bool {
	return c.breaker.State() != gobreaker.StateOpen
}
