package claude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"go.uber.org/zap"
)

// APIKeyEnv names the environment variable holding the Anthropic API key
const APIKeyEnv = "ANTHROPIC_API_KEY"

const defaultMaxTokens = 16000

// MessageCreator is the subset of the Anthropic messages API the client uses
type MessageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client is the Claude API client
type Client struct {
	Messages  MessageCreator
	Models    types.ModelConfig
	MaxTokens int64
	Logger    *zap.Logger
}

// NewClient creates a client from ANTHROPIC_API_KEY
func NewClient(models types.ModelConfig, logger *zap.Logger) (*Client, error) {
	apiKey := os.Getenv(APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", APIKeyEnv)
	}
	api := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewClientWith(&api.Messages, models, logger), nil
}

// NewClientWith creates a client over an existing messages API
func NewClientWith(messages MessageCreator, models types.ModelConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxTokens := int64(models.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		Messages:  messages,
		Models:    models,
		MaxTokens: maxTokens,
		Logger:    logger,
	}
}

// Call sends one request and returns the response
func (c *Client) Call(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if params.MaxTokens == 0 {
		params.MaxTokens = c.MaxTokens
	}
	resp, err := c.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("API error (status %d): %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("API call failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, errors.New("empty response from API")
	}
	c.Logger.Debug("api call",
		zap.String("model", string(params.Model)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", string(resp.StopReason)),
	)
	return resp, nil
}

// Text runs a single-turn request without tools and returns the text reply
func (c *Client) Text(ctx context.Context, model, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:    anthropic.Model(model),
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := c.Call(ctx, params)
	if err != nil {
		return "", err
	}
	return TextContent(resp), nil
}

// TextContent joins the text blocks of a response
func TextContent(resp *anthropic.Message) string {
	var b strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return b.String()
}
