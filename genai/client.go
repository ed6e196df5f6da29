// Package genai is a client for an OpenAI-compatible generative text and
// image service. Every failure, including a malformed payload, is returned
// as *apperr.ExternalServiceError.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrDisabled is wrapped when no endpoint is configured.
var ErrDisabled = errors.New("generative service disabled")

// Client talks to the chat-completions and image-generation endpoints.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New builds a client. An empty endpoint yields a disabled client.
func New(cfg config.GenAIConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		logger:   logger,
	}
}

func (c *Client) Enabled() bool { return c != nil && c.endpoint != "" }

// TextRequest is a single-turn prompt.
type TextRequest struct {
	System    string
	Prompt    string
	JSON      bool // ask for a JSON object response
	MaxTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateText returns the model's reply to req.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	const op = "generate_text"
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &apperr.ExternalServiceError{Op: op, Err: errors.New("prompt is required")}
	}
	body := chatRequest{Model: c.model, MaxTokens: req.MaxTokens}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	var resp chatResponse
	if err := c.post(ctx, op, "/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &apperr.ExternalServiceError{Op: op, Err: errors.New("empty completion")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage returns a URL (or a data URI) for an image matching prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	const op = "generate_image"
	if strings.TrimSpace(prompt) == "" {
		return "", &apperr.ExternalServiceError{Op: op, Err: errors.New("prompt is required")}
	}
	var resp imageResponse
	body := map[string]any{"prompt": prompt, "n": 1, "size": "512x512"}
	if err := c.post(ctx, op, "/images/generations", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", &apperr.ExternalServiceError{Op: op, Err: errors.New("no image returned")}
	}
	switch d := resp.Data[0]; {
	case d.URL != "":
		return d.URL, nil
	case d.B64JSON != "":
		return "data:image/png;base64," + d.B64JSON, nil
	}
	return "", &apperr.ExternalServiceError{Op: op, Err: errors.New("image has neither url nor data")}
}

// post sends a JSON request and decodes a JSON response.
func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	if !c.Enabled() {
		return &apperr.ExternalServiceError{Op: op, Err: ErrDisabled}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: err}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: err}
	}
	defer res.Body.Close()
	c.logger.Debug("genai request",
		zap.String("op", op), zap.Int("status", res.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &apperr.ExternalServiceError{Op: op,
			Err: fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
