package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/steveyiyo/toole/internal/core/instruct"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "qwen2.5vl:7b"
)

// Client wraps the Ollama API client as an instruction backend.
type Client struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewClient creates a new Ollama client. Any path on serverURL is ignored.
func NewClient(serverURL, model string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", serverURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{client: api.NewClient(base, http.DefaultClient), model: model, timeout: timeout}, nil
}

func (c *Client) Name() string { return "ollama" }

func (c *Client) Generate(ctx context.Context, req instruct.Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream := false
	chat := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{{
			Role:    "user",
			Content: req.Prompt,
			Images:  []api.ImageData{api.ImageData(req.Image)},
		}},
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0.2},
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		if retriable(err) {
			return "", instruct.Transient(err)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if content.Len() == 0 {
		return "", instruct.Transient(errors.New("empty response from ollama"))
	}
	return content.String(), nil
}

func retriable(err error) bool {
	var se api.StatusError
	if errors.As(err, &se) {
		return instruct.RetriableStatus(se.StatusCode)
	}
	var sep *api.StatusError
	if errors.As(err, &sep) && sep != nil {
		return instruct.RetriableStatus(sep.StatusCode)
	}
	return errors.Is(err, context.DeadlineExceeded) || instruct.TransportRetriable(err)
}
