// Package llm talks to an OpenAI-compatible chat-completions endpoint, as
// served by LM Studio and similar local runtimes. The client does not retry;
// callers that want another attempt simply run again.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Message is one chat turn in the completions API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options pin the sampling behavior for every completion the client makes.
// Temperature stays low so generated outreach reads consistent rather than
// creative.
type Options struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	http *resty.Client
	opts Options
}

func New(opts Options) *Client {
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	return &Client{
		http: client,
		opts: Options{
			BaseURL:     strings.TrimRight(opts.BaseURL, "/"),
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Timeout:     opts.Timeout,
		},
	}
}

// chatRequest is the JSON body for POST /v1/chat/completions.
type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// chatResponse is the JSON returned by POST /v1/chat/completions.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete sends a single user prompt and returns the assistant's text.
// Empty completions come back as empty strings, not errors; the caller
// decides what an empty generation means.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.opts.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      false,
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.opts.BaseURL + "/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("chat completion: unexpected status %d", res.StatusCode())
	}

	var out chatResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return "", fmt.Errorf("decoding chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
