package claude

import (
	"context"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/config"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Generator writes the complete new content of one file per call
type Generator struct {
	Client           *Client
	Summarizer       *Summarizer
	Template         string
	SchemaText       string
	Schema           *jsonschema.Schema
	ContextSizeLimit int
	Logger           *zap.Logger
}

// NewGenerator loads the generator prompt and output schema from configDir,
// falling back to the embedded defaults. summarizer may be nil.
func NewGenerator(client *Client, summarizer *Summarizer, configDir string, contextSizeLimit int) (*Generator, error) {
	template, err := config.LoadPrompt(configDir, "generator")
	if err != nil {
		return nil, err
	}
	schemaText, err := config.GetSchemaContent(configDir, generatedFileSchemaPath)
	if err != nil {
		return nil, err
	}
	schema, err := config.LoadSchema(configDir, generatedFileSchemaPath)
	if err != nil {
		return nil, err
	}
	return &Generator{
		Client:           client,
		Summarizer:       summarizer,
		Template:         template,
		SchemaText:       schemaText,
		Schema:           schema,
		ContextSizeLimit: contextSizeLimit,
		Logger:           client.Logger,
	}, nil
}

// generatorOutput is the raw generator reply
type generatorOutput struct {
	types.GeneratedFile
	RequiresMoreContext bool     `json:"requires_more_context"`
	ContextRequest      string   `json:"context_request"`
	NeededFiles         []string `json:"needed_files"`
}

// Generate produces the new content of req.FilePath
func (g *Generator) Generate(ctx context.Context, req types.GenerateRequest) (*types.GeneratedFile, error) {
	model := g.Client.Models.Generator
	if req.Plan != nil && req.Plan.UseFastModel && g.Client.Models.Fast != "" {
		model = g.Client.Models.Fast
	}
	req.Context = g.Summarizer.Compact(ctx, req.Context, g.ContextSizeLimit)

	conv := NewConversation(g.Client, nil, model, renderSystemPrompt(g.Template, g.SchemaText, req.Strict))
	reply, err := conv.Run(ctx, generatePrompt(req))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.GenerationError{FilePath: req.FilePath, Message: "generator request failed", Err: err}
	}

	out, err := g.parse(reply)
	if err != nil {
		g.Logger.Warn("invalid generator reply, asking again", zap.String("file", req.FilePath), zap.Error(err))
		if reply, err = conv.Run(ctx, repairMessage(err)); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &types.GenerationError{FilePath: req.FilePath, Message: "generator request failed", Err: err}
		}
		if out, err = g.parse(reply); err != nil {
			return nil, &types.GenerationError{FilePath: req.FilePath, Message: "invalid generator output", Err: err}
		}
	}

	if out.RequiresMoreContext {
		return nil, &types.InsufficientContextError{
			FilePath: req.FilePath,
			Files:    out.NeededFiles,
			Reason:   strings.TrimSpace(out.ContextRequest),
		}
	}

	gen := out.GeneratedFile
	if gen.FilePath != req.FilePath {
		g.Logger.Warn("generator answered for a different path",
			zap.String("want", req.FilePath), zap.String("got", gen.FilePath))
		gen.FilePath = req.FilePath
	}
	return &gen, nil
}

func (g *Generator) parse(reply string) (*generatorOutput, error) {
	obj, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}
	var out generatorOutput
	if err := decodeValidated(g.Schema, obj, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
