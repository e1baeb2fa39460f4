// CLAUDE:SUMMARY Reasoning-service client over connectivity handlers: Anthropic Messages and OpenAI-compatible chat protocols, with timeout, retry and circuit breaker.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/lplens/connectivity"
)

// Protocol selects the wire format of the reasoning service.
type Protocol string

const (
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolOpenAI    Protocol = "openai"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	openAIEndpoint    = "https://api.openai.com/v1/chat/completions"
)

// ClientConfig configures the reasoning-service client.
type ClientConfig struct {
	Protocol Protocol // Default: anthropic.
	Endpoint string   // Default: the protocol's public endpoint.
	APIKey   string
	Model    string // Default: claude-opus-4-5.

	Timeout    time.Duration // Budget per Complete, retries included. Default: 120s.
	MaxRetries int           // Retries of transient failures. Default: 2. Negative disables.
	Backoff    time.Duration // First retry delay, doubled each time. Default: 1s.

	BreakerThreshold int           // Consecutive failures before opening. Default: 5.
	BreakerReset     time.Duration // Open duration before a probe. Default: 30s.

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *ClientConfig) defaults() {
	if c.Protocol == "" {
		c.Protocol = ProtocolAnthropic
	}
	if c.Endpoint == "" {
		if c.Protocol == ProtocolOpenAI {
			c.Endpoint = openAIEndpoint
		} else {
			c.Endpoint = anthropicEndpoint
		}
	}
	if c.Model == "" {
		c.Model = "claude-opus-4-5"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Request is one prompt, optionally with an inline image.
type Request struct {
	Prompt    string
	Image     []byte
	MediaType string // e.g. image/png; required with Image
	MaxTokens int
}

// Completer sends a request to the reasoning service and returns its raw
// text reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client is the production Completer.
type Client struct {
	cfg     ClientConfig
	call    connectivity.Handler
	breaker *connectivity.CircuitBreaker
}

// NewClient builds a Client. The call chain is
// Recovery → Logging → Timeout → Retry → CircuitBreaker → HTTP.
func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.defaults()
	headers := map[string]string{}
	switch cfg.Protocol {
	case ProtocolAnthropic:
		if cfg.APIKey == "" {
			return nil, errors.New("analysis: anthropic protocol requires an API key")
		}
		headers["x-api-key"] = cfg.APIKey
		headers["anthropic-version"] = anthropicVersion
	case ProtocolOpenAI:
		if cfg.APIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.APIKey
		}
	default:
		return nil, fmt.Errorf("analysis: unknown protocol %q", cfg.Protocol)
	}

	breaker := connectivity.NewCircuitBreaker(
		connectivity.WithBreakerThreshold(cfg.BreakerThreshold),
		connectivity.WithBreakerResetTimeout(cfg.BreakerReset),
		connectivity.WithBreakerFailureFilter(countsAgainstService),
	)
	service := "reasoning/" + string(cfg.Protocol)
	base := connectivity.HTTPHandler(cfg.Endpoint, connectivity.HTTPOptions{
		Client:  cfg.HTTPClient,
		Headers: headers,
	})
	call := connectivity.Chain(
		connectivity.Recovery(cfg.Logger),
		connectivity.Logging(cfg.Logger, service),
		connectivity.Timeout(cfg.Timeout),
		connectivity.WithRetryPolicy(cfg.MaxRetries, cfg.Backoff, countsAgainstService, cfg.Logger),
		connectivity.WithCircuitBreaker(breaker, service),
	)(base)

	return &Client{cfg: cfg, call: call, breaker: breaker}, nil
}

// countsAgainstService keeps caller mistakes and cancellations from
// tripping the breaker, and from being retried.
func countsAgainstService(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return connectivity.RetryTransient(err)
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() connectivity.BreakerState { return c.breaker.State() }

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var (
		payload []byte
		err     error
	)
	switch c.cfg.Protocol {
	case ProtocolOpenAI:
		payload, err = json.Marshal(c.openAIRequest(req))
	default:
		payload, err = json.Marshal(c.anthropicRequest(req))
	}
	if err != nil {
		return "", &ServiceError{Protocol: c.cfg.Protocol, Err: err}
	}

	resp, err := c.call(ctx, payload)
	if err != nil {
		return "", &ServiceError{Protocol: c.cfg.Protocol, Err: err}
	}

	var text string
	if c.cfg.Protocol == ProtocolOpenAI {
		text, err = openAIText(resp)
	} else {
		text, err = anthropicText(resp)
	}
	if err != nil {
		return "", &ServiceError{Protocol: c.cfg.Protocol, Err: err}
	}
	return text, nil
}

// --- anthropic Messages API ---

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBody struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

func (c *Client) anthropicRequest(req Request) anthropicBody {
	var blocks []anthropicBlock
	if len(req.Image) > 0 {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: req.MediaType,
				Data:      base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})
	return anthropicBody{
		Model:     c.cfg.Model,
		MaxTokens: req.MaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
	}
}

func anthropicText(resp []byte) (string, error) {
	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode reply envelope: %w", err)
	}
	var b strings.Builder
	for _, blk := range out.Content {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("reply has no text content")
	}
	return b.String(), nil
}

// --- OpenAI-compatible chat completions ---

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIBody struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []openAIMessage `json:"messages"`
}

func (c *Client) openAIRequest(req Request) openAIBody {
	parts := []openAIPart{{Type: "text", Text: req.Prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, openAIPart{
			Type: "image_url",
			ImageURL: &openAIImageURL{
				URL: "data:" + req.MediaType + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	return openAIBody{
		Model:     c.cfg.Model,
		MaxTokens: req.MaxTokens,
		Messages:  []openAIMessage{{Role: "user", Content: parts}},
	}
}

func openAIText(resp []byte) (string, error) {
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode reply envelope: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", errors.New("reply has no choices")
	}
	return out.Choices[0].Message.Content, nil
}
