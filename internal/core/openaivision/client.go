// Package openaivision is the OpenAI chat-completions instruction backend.
// It sends the photo as a data URL image part and asks for a JSON object.
package openaivision

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/steveyiyo/toole/internal/core/instruct"
)

const DefaultModel = "gpt-4o"

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	sdk   openai.Client
	model string
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	ro := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// the requester owns the retry policy
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		ro = append(ro, option.WithRequestTimeout(opts.Timeout))
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{sdk: openai.NewClient(ro...), model: model}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Generate(ctx context.Context, req instruct.Request) (string, error) {
	dataURL := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
				openai.TextContentPart(req.Prompt),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		if retriable(err) {
			return "", instruct.Transient(err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", instruct.Transient(errors.New("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

func retriable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return instruct.RetriableStatus(apiErr.StatusCode)
	}
	return instruct.TransportRetriable(err)
}
