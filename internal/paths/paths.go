package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppName    = "dave-bot"
	ConfigDir  = ".dave-bot"
	ProjectDir = ".dave-bot"
)

// Paths holds resolved paths for the application
type Paths struct {
	// User-level paths (~/.dave-bot/)
	UserDir     string // ~/.dave-bot
	UserConfig  string // ~/.dave-bot/config.toml
	UserPrompts string // ~/.dave-bot/prompts
	UserSchemas string // ~/.dave-bot/schemas
	RunsDir     string // ~/.dave-bot/runs

	// Project-level paths (<repo>/.dave-bot/)
	ProjectDir    string
	ProjectConfig string

	// Repository being worked on
	RepoDir string
}

// Resolve determines all paths for the repository at repoDir.
// An empty repoDir means the current working directory.
func Resolve(repoDir string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if repoDir == "" {
		repoDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	repoDir, err = filepath.Abs(repoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", repoDir, err)
	}

	return resolveFrom(home, repoDir), nil
}

func resolveFrom(home, repoDir string) *Paths {
	userDir := filepath.Join(home, ConfigDir)
	projectDir := filepath.Join(repoDir, ProjectDir)

	return &Paths{
		UserDir:     userDir,
		UserConfig:  filepath.Join(userDir, "config.toml"),
		UserPrompts: filepath.Join(userDir, "prompts"),
		UserSchemas: filepath.Join(userDir, "schemas"),
		RunsDir:     filepath.Join(userDir, "runs"),

		ProjectDir:    projectDir,
		ProjectConfig: filepath.Join(projectDir, "config.toml"),

		RepoDir: repoDir,
	}
}

// EnsureUserDir creates the user directory structure if it doesn't exist
func (p *Paths) EnsureUserDir() error {
	dirs := []string{
		p.UserDir,
		p.UserPrompts,
		p.UserSchemas,
		p.RunsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return nil
}

// IsInitialized checks if the user directory has been populated
func (p *Paths) IsInitialized() bool {
	entries, err := os.ReadDir(p.UserPrompts)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// HasProjectConfig checks if there's a project-level .dave-bot directory
func (p *Paths) HasProjectConfig() bool {
	info, err := os.Stat(p.ProjectDir)
	return err == nil && info.IsDir()
}

// ConfigCandidates returns config files in lookup order (explicit, project, user)
func (p *Paths) ConfigCandidates(explicit string) []string {
	return []string{explicit, p.ProjectConfig, p.UserConfig}
}

// RunDir returns the artifact directory for a run
func (p *Paths) RunDir(runID string) string {
	return filepath.Join(p.RunsDir, runID)
}
