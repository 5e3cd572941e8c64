package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/davepeng-0503/dave-bot/internal/embedded"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaBaseURL = "https://dave-bot.local/"

// Default returns the built-in configuration
func Default() *types.Config {
	return &types.Config{
		Limits: types.Limits{
			MaxContextAttempts:   3,
			MaxPlanningQuestions: 3,
			MaxToolCalls:         25,
			ContextSizeLimit:     200000,
		},
		Server: types.ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			PortRetries: 100,
		},
		Model: types.ModelConfig{
			Planner:    "claude-sonnet-4-20250514",
			Generator:  "claude-sonnet-4-20250514",
			Fast:       "claude-3-5-haiku-latest",
			Summarizer: "claude-3-5-haiku-latest",
			MaxTokens:  16000,
		},
		VCS: types.VCSConfig{
			Remote:       "origin",
			BaseBranch:   "main",
			BranchPrefix: "dave-bot/",
			Push:         true,
			PullRequest:  true,
			AuthorName:   "dave-bot",
			AuthorEmail:  "dave-bot@users.noreply.github.com",
		},
		Log: types.LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the TOML config at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*types.Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFirst loads the first existing config among paths
func LoadFirst(paths ...string) (*types.Config, string, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	return Default(), "", nil
}

// Zero values in the file mean "use the default"
func applyDefaults(cfg *types.Config) {
	def := Default()
	if cfg.Limits.MaxContextAttempts == 0 {
		cfg.Limits.MaxContextAttempts = def.Limits.MaxContextAttempts
	}
	if cfg.Limits.MaxPlanningQuestions == 0 {
		cfg.Limits.MaxPlanningQuestions = def.Limits.MaxPlanningQuestions
	}
	if cfg.Limits.MaxToolCalls == 0 {
		cfg.Limits.MaxToolCalls = def.Limits.MaxToolCalls
	}
	if cfg.Limits.ContextSizeLimit == 0 {
		cfg.Limits.ContextSizeLimit = def.Limits.ContextSizeLimit
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = def.Model.MaxTokens
	}
	if cfg.VCS.Remote == "" {
		cfg.VCS.Remote = def.VCS.Remote
	}
	if cfg.VCS.BaseBranch == "" {
		cfg.VCS.BaseBranch = def.VCS.BaseBranch
	}
}

// Validate rejects configurations the engine cannot run with
func Validate(cfg *types.Config) error {
	if cfg.Limits.MaxContextAttempts < 1 {
		return fmt.Errorf("limits.max_context_attempts must be at least 1, got %d", cfg.Limits.MaxContextAttempts)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Server.PortRetries < 0 {
		return fmt.Errorf("server.port_retries must not be negative")
	}
	return nil
}

// LoadPrompt loads a prompt file, falling back to the embedded default
func LoadPrompt(baseDir, name string) (string, error) {
	rel := filepath.Join("prompts", name+".md")
	if baseDir != "" {
		if data, err := os.ReadFile(filepath.Join(baseDir, rel)); err == nil {
			return string(data), nil
		}
	}
	data, err := embedded.ReadFile(filepath.ToSlash(rel))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
	}
	return string(data), nil
}

// LoadSchema loads and compiles a JSON schema, falling back to the embedded default
func LoadSchema(baseDir, schemaPath string) (*jsonschema.Schema, error) {
	data, err := GetSchemaContent(baseDir, schemaPath)
	if err != nil {
		return nil, err
	}

	url := schemaBaseURL + filepath.ToSlash(schemaPath)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader([]byte(data))); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", schemaPath, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", schemaPath, err)
	}

	return schema, nil
}

// ValidateJSON validates a JSON object against a schema
func ValidateJSON(schema *jsonschema.Schema, data any) error {
	if err := schema.Validate(data); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// GetSchemaContent reads the raw schema JSON for inclusion in prompts
func GetSchemaContent(baseDir, schemaPath string) (string, error) {
	if baseDir != "" {
		if data, err := os.ReadFile(filepath.Join(baseDir, schemaPath)); err == nil {
			return string(data), nil
		}
	}
	data, err := embedded.ReadFile(filepath.ToSlash(schemaPath))
	if err != nil {
		return "", fmt.Errorf("failed to read schema %s: %w", schemaPath, err)
	}
	return string(data), nil
}
