package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/steveyiyo/toole/internal/core/instruct"
)

const (
	DefaultModel      = "gemini-3-flash-preview"
	DefaultAPIVersion = "v1beta"
)

type Options struct {
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is the Gemini instruction backend.
type Client struct {
	c     generator
	model string
}

// NewGenAI builds the SDK client shared by the instruction backend and the
// Gemini speech provider.
func NewGenAI(ctx context.Context, opts Options) (*genai.Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: false,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
	}
	reqTimeout := opts.Timeout
	if reqTimeout <= 0 {
		reqTimeout = 60 * time.Second
	}
	hc := &http.Client{Transport: tr, Timeout: reqTimeout + 15*time.Second}
	version := opts.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: version,
			Timeout:    &reqTimeout,
		},
	})
}

func New(c *genai.Client, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{c: c.Models, model: model}
}

func (g *Client) Name() string { return "gemini" }

func (g *Client) Generate(ctx context.Context, req instruct.Request) (string, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: req.Image, MIMEType: req.MIMEType}},
		{Text: req.Prompt},
	}
	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      &temp,
	}
	resp, err := g.c.GenerateContent(ctx, g.model, []*genai.Content{{Role: "user", Parts: parts}}, cfg)
	if err != nil {
		if retriable(err) {
			return "", instruct.Transient(err)
		}
		return "", err
	}
	raw := replyText(resp)
	if raw == "" {
		return "", instruct.Transient(errors.New("empty response"))
	}
	return raw, nil
}

func responseSchema() *genai.Schema {
	nullable := true
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"device_name": {Type: genai.TypeString},
			"risk_alert":  {Type: genai.TypeString, Nullable: &nullable},
			"steps": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"order":       {Type: genai.TypeInteger},
						"text":        {Type: genai.TypeString},
						"action_type": {Type: genai.TypeString, Enum: []string{"tap", "hold", "rotate", "swipe"}},
						"box_2d": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeInteger},
						},
					},
					Required: []string{"order", "text", "action_type", "box_2d"},
				},
			},
		},
		Required: []string{"device_name", "risk_alert", "steps"},
	}
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && p.InlineData.MIMEType == "application/json" && len(p.InlineData.Data) > 0 {
				return string(p.InlineData.Data)
			}
		}
	}
	return resp.Text()
}

func retriable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiRetriable(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiRetriable(*apiErrPtr)
	}
	return instruct.TransportRetriable(err)
}

func apiRetriable(e genai.APIError) bool {
	switch e.Status {
	case "UNAVAILABLE", "RESOURCE_EXHAUSTED", "INTERNAL", "DEADLINE_EXCEEDED":
		return true
	}
	return instruct.RetriableStatus(e.Code)
}
