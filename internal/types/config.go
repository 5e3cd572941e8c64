package types

// Config is the full TOML configuration
type Config struct {
	Limits Limits       `toml:"limits"`
	Server ServerConfig `toml:"server"`
	Model  ModelConfig  `toml:"model"`
	VCS    VCSConfig    `toml:"vcs"`
	Log    LogConfig    `toml:"log"`
}

type Limits struct {
	MaxContextAttempts   int `toml:"max_context_attempts"`
	MaxPlanningQuestions int `toml:"max_planning_questions"`
	MaxToolCalls         int `toml:"max_tool_calls"`
	ContextSizeLimit     int `toml:"context_size_limit"`
}

type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	PortRetries int    `toml:"port_retries"`
}

type ModelConfig struct {
	Planner    string `toml:"planner"`
	Generator  string `toml:"generator"`
	Fast       string `toml:"fast"`
	Summarizer string `toml:"summarizer"`
	MaxTokens  int    `toml:"max_tokens"`
}

type VCSConfig struct {
	Remote       string `toml:"remote"`
	BaseBranch   string `toml:"base_branch"`
	BranchPrefix string `toml:"branch_prefix"`
	Push         bool   `toml:"push"`
	PullRequest  bool   `toml:"pull_request"`
	AuthorName   string `toml:"author_name"`
	AuthorEmail  string `toml:"author_email"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}
