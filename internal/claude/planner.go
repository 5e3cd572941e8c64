package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/config"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

const (
	planSchemaPath          = "schemas/plan.schema.json"
	generatedFileSchemaPath = "schemas/generated_file.schema.json"
)

// Planner explores the repository with tools and proposes a plan
type Planner struct {
	Client       *Client
	Executor     *ToolExecutor
	Template     string
	SchemaText   string
	Schema       *jsonschema.Schema
	MaxToolCalls int
	Logger       *zap.Logger
}

// NewPlanner loads the planner prompt and plan schema from configDir,
// falling back to the embedded defaults
func NewPlanner(client *Client, executor *ToolExecutor, configDir string, maxToolCalls int) (*Planner, error) {
	template, err := config.LoadPrompt(configDir, "planner")
	if err != nil {
		return nil, err
	}
	schemaText, err := config.GetSchemaContent(configDir, planSchemaPath)
	if err != nil {
		return nil, err
	}
	schema, err := config.LoadSchema(configDir, planSchemaPath)
	if err != nil {
		return nil, err
	}
	if maxToolCalls <= 0 {
		maxToolCalls = defaultMaxToolCalls
	}
	return &Planner{
		Client:       client,
		Executor:     executor,
		Template:     template,
		SchemaText:   schemaText,
		Schema:       schema,
		MaxToolCalls: maxToolCalls,
		Logger:       client.Logger,
	}, nil
}

// planOutput is the planner reply, a plan or a question
type planOutput struct {
	types.Plan
	UserRequest string `json:"user_request"`
}

// Plan runs one planning conversation
func (p *Planner) Plan(ctx context.Context, req types.PlanRequest, onTool func(types.ToolLog)) (*types.Plan, error) {
	conv := NewConversation(p.Client, p.Executor, p.Client.Models.Planner, renderSystemPrompt(p.Template, p.SchemaText, req.Strict))
	conv.MaxToolCalls = p.MaxToolCalls
	conv.OnToolCall = onTool

	reply, err := conv.Run(ctx, planPrompt(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.PlanningError{Message: "planner request failed", Err: err}
	}

	out, err := p.parse(reply)
	if err != nil {
		p.Logger.Warn("invalid plan, asking for a corrected one", zap.Error(err))
		reply, err = conv.Run(ctx, repairMessage(err))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &types.PlanningError{Message: "planner request failed", Err: err}
		}
		if out, err = p.parse(reply); err != nil {
			return nil, &types.PlanningError{Message: "planner returned an invalid plan", Err: err}
		}
	}

	if q := strings.TrimSpace(out.UserRequest); q != "" {
		return nil, &types.UserInputRequiredError{Question: q}
	}
	p.Logger.Info("plan produced",
		zap.Int("files", len(out.GenerationOrder)),
		zap.Int("tool_calls", conv.ToolCalls()),
	)
	plan := out.Plan
	return &plan, nil
}

func (p *Planner) parse(reply string) (*planOutput, error) {
	obj, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var out planOutput
	if err := decodeValidated(p.Schema, obj, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func repairMessage(err error) string {
	return fmt.Sprintf("Your previous reply could not be used: %v\n\nReply again with ONLY a JSON object that matches the schema.", err)
}
