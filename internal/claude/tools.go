package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/davepeng-0503/dave-bot/internal/paths"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/davepeng-0503/dave-bot/internal/vcs"
)

const (
	maxToolOutput  = 10000
	maxGrepMatches = 200
)

// Repository is the read-only file surface the tools expose
type Repository interface {
	ListFiles(ctx context.Context) ([]string, error)
	ReadFile(path string) (string, error)
	Exists(path string) bool
}

// Grepper searches committed repository content
type Grepper interface {
	Grep(pattern string, limit int) ([]vcs.GrepMatch, error)
}

// ToolExecutor handles tool execution against the repository.
// Every tool is read-only.
type ToolExecutor struct {
	Repo    Repository
	Grepper Grepper
}

// NewToolExecutor creates a new tool executor. grepper may be nil, in which
// case grep scans the working tree directly.
func NewToolExecutor(repo Repository, grepper Grepper) *ToolExecutor {
	return &ToolExecutor{Repo: repo, Grepper: grepper}
}

type toolDef struct {
	name        string
	description string
	properties  map[string]any
	required    []string
}

var toolDefs = []toolDef{
	{
		name:        "read_file",
		description: "Read the contents of a file, by path relative to the repository root",
		properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read"},
		},
		required: []string{"path"},
	},
	{
		name:        "list_directory",
		description: "List the files and directories directly under a repository directory",
		properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list (default: repository root)"},
		},
	},
	{
		name:        "search_files",
		description: "Find repository files whose path or name matches a glob pattern",
		properties: map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern to match (e.g., '*.go', 'internal/*/config.go')"},
		},
		required: []string{"pattern"},
	},
	{
		name:        "grep",
		description: "Search repository file contents for a regular expression",
		properties: map[string]any{
			"pattern": map[string]any{"type": "string", "description": "The regex pattern to search for"},
			"path":    map[string]any{"type": "string", "description": "Only report matches under this directory or file"},
		},
		required: []string{"pattern"},
	},
}

// Tools returns the tool definitions for the API
func Tools() []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(toolDefs))
	for _, def := range toolDefs {
		tool := anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: def.properties,
			Required:   def.required,
		}, def.name)
		tool.OfTool.Description = anthropic.String(def.description)
		tools = append(tools, tool)
	}
	return tools
}

// Execute runs a tool. Tool failures are reported through isError rather
// than a Go error so the model can recover.
func (e *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) (result string, isError bool) {
	var params map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return fmt.Sprintf("Error: invalid tool input: %v", err), true
		}
	}

	var err error
	switch name {
	case "read_file":
		result, err = e.readFile(params)
	case "list_directory":
		result, err = e.listDirectory(ctx, params)
	case "search_files":
		result, err = e.searchFiles(ctx, params)
	case "grep":
		result, err = e.grep(ctx, params)
	default:
		err = fmt.Errorf("unknown tool: %s", name)
	}
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	return truncateOutput(result), false
}

func (e *ToolExecutor) readFile(params map[string]any) (string, error) {
	p, err := pathParam(params, "path", true)
	if err != nil {
		return "", err
	}
	if !e.Repo.Exists(p) {
		return "", fmt.Errorf("file not found: %s", p)
	}
	return e.Repo.ReadFile(p)
}

func (e *ToolExecutor) listDirectory(ctx context.Context, params map[string]any) (string, error) {
	dir, err := pathParam(params, "path", false)
	if err != nil {
		return "", err
	}
	files, err := e.Repo.ListFiles(ctx)
	if err != nil {
		return "", err
	}

	prefix := ""
	if dir != "" && dir != "." {
		prefix = dir + "/"
	}
	dirs := map[string]bool{}
	var entries []string
	for _, f := range files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		if sub, _, nested := strings.Cut(rest, "/"); nested {
			if !dirs[sub] {
				dirs[sub] = true
				entries = append(entries, "[DIR]  "+sub+"/")
			}
			continue
		}
		entries = append(entries, "[FILE] "+rest)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no such directory: %s", dir)
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n"), nil
}

func (e *ToolExecutor) searchFiles(ctx context.Context, params map[string]any) (string, error) {
	pattern, ok := params["pattern"].(string)
	if !ok || pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return "", fmt.Errorf("bad pattern: %w", err)
	}
	files, err := e.Repo.ListFiles(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, f := range files {
		full, _ := path.Match(pattern, f)
		base, _ := path.Match(pattern, path.Base(f))
		if full || base {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return "No files found matching pattern: " + pattern, nil
	}
	return strings.Join(matches, "\n"), nil
}

func (e *ToolExecutor) grep(ctx context.Context, params map[string]any) (string, error) {
	pattern, ok := params["pattern"].(string)
	if !ok || pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	scope, err := pathParam(params, "path", false)
	if err != nil {
		return "", err
	}

	var matches []vcs.GrepMatch
	if e.Grepper != nil {
		matches, err = e.Grepper.Grep(pattern, 0)
	} else {
		matches, err = e.scan(ctx, pattern)
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	n := 0
	for _, m := range matches {
		if scope != "" && scope != "." && m.File != scope && !strings.HasPrefix(m.File, scope+"/") {
			continue
		}
		fmt.Fprintf(&b, "%s:%d:%s\n", m.File, m.Line, m.Content)
		n++
		if n >= maxGrepMatches {
			b.WriteString("... (more matches omitted)\n")
			break
		}
	}
	if n == 0 {
		return "No matches found for pattern: " + pattern, nil
	}
	return b.String(), nil
}

// scan greps the working tree when no committed index is available
func (e *ToolExecutor) scan(ctx context.Context, pattern string) ([]vcs.GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern: %w", err)
	}
	files, err := e.Repo.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	var matches []vcs.GrepMatch
	for _, f := range files {
		content, err := e.Repo.ReadFile(f)
		if err != nil {
			continue
		}
		for i, line := range strings.Split(content, "\n") {
			if re.MatchString(line) {
				matches = append(matches, vcs.GrepMatch{File: f, Line: i + 1, Content: line})
			}
		}
	}
	return matches, nil
}

// pathParam reads a repository-relative path parameter
func pathParam(params map[string]any, key string, required bool) (string, error) {
	raw, _ := params[key].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	return paths.CleanRelative(raw)
}

func truncateOutput(s string) string {
	if len(s) > maxToolOutput {
		return types.TruncateBytes(s, maxToolOutput) + "\n... (truncated)"
	}
	return s
}
