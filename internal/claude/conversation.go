package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"go.uber.org/zap"
)

const defaultMaxToolCalls = 25

// toolBudgetMessage is returned for tool calls beyond the budget
const toolBudgetMessage = "Error: tool call limit reached. Do not call any more tools; give your final answer now."

// Conversation is a multi-turn exchange in which Claude may call the
// repository tools before answering
type Conversation struct {
	Client       *Client
	Executor     *ToolExecutor
	Model        string
	SystemPrompt string
	Messages     []anthropic.MessageParam

	// OnToolCall is invoked before each tool runs
	OnToolCall func(log types.ToolLog)

	MaxToolCalls int
	toolCalls    int
}

// NewConversation creates a conversation. executor may be nil for a
// conversation without tools.
func NewConversation(client *Client, executor *ToolExecutor, model, systemPrompt string) *Conversation {
	return &Conversation{
		Client:       client,
		Executor:     executor,
		Model:        model,
		SystemPrompt: systemPrompt,
		MaxToolCalls: defaultMaxToolCalls,
	}
}

// Run sends userMessage and handles tool calls until Claude answers with text
func (c *Conversation) Run(ctx context.Context, userMessage string) (string, error) {
	c.Messages = append(c.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	// one grace round lets the model answer after the budget is spent
	overBudget := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		params := anthropic.MessageNewParams{
			Model:    anthropic.Model(c.Model),
			Messages: c.Messages,
		}
		if c.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: c.SystemPrompt}}
		}
		if c.Executor != nil {
			params.Tools = Tools()
		}

		resp, err := c.Client.Call(ctx, params)
		if err != nil {
			return "", err
		}
		c.Messages = append(c.Messages, resp.ToParam())

		if resp.StopReason != anthropic.StopReasonToolUse || c.Executor == nil {
			return TextContent(resp), nil
		}

		if c.toolCalls >= c.MaxToolCalls {
			overBudget++
			if overBudget > 1 {
				return "", fmt.Errorf("tool call limit (%d) exceeded", c.MaxToolCalls)
			}
		}

		var results []anthropic.ContentBlockParamUnion
		for i := range resp.Content {
			block := &resp.Content[i]
			if block.Type != "tool_use" {
				continue
			}
			toolUse := block.AsToolUse()

			if c.toolCalls >= c.MaxToolCalls {
				results = append(results, anthropic.NewToolResultBlock(toolUse.ID, toolBudgetMessage, true))
				continue
			}
			c.toolCalls++

			if c.OnToolCall != nil {
				c.OnToolCall(types.ToolLog{ToolName: toolUse.Name, ToolInput: string(toolUse.Input)})
			}
			result, isError := c.Executor.Execute(ctx, toolUse.Name, toolUse.Input)
			c.Client.Logger.Debug("tool call",
				zap.String("tool", toolUse.Name),
				zap.ByteString("input", toolUse.Input),
				zap.Bool("error", isError),
			)
			results = append(results, anthropic.NewToolResultBlock(toolUse.ID, result, isError))
		}
		c.Messages = append(c.Messages, anthropic.NewUserMessage(results...))
	}
}

// ToolCalls reports how many tools have run in this conversation
func (c *Conversation) ToolCalls() int {
	return c.toolCalls
}
