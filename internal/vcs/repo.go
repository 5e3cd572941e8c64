package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davepeng-0503/dave-bot/internal/paths"
	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

// TokenEnv names the environment variable holding the GitHub token
const TokenEnv = "GITHUB_TOKEN"

// Repository is a git working tree. It serves as both the engine's
// workspace and its version-control backend.
type Repository struct {
	Dir    string
	Config types.VCSConfig
	Token  string
	Logger *zap.Logger

	mu     sync.Mutex
	repo   *git.Repository
	github *GitHub
}

// Open opens the git repository at dir
func Open(dir string, cfg types.VCSConfig, logger *zap.Logger) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(abs)
	if err != nil {
		return nil, &types.VcsError{Op: "open", Err: fmt.Errorf("%s: %w", abs, err)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		Dir:    abs,
		Config: cfg,
		Token:  os.Getenv(TokenEnv),
		Logger: logger,
		repo:   repo,
	}, nil
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached
func (r *Repository) CurrentBranch() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	head, err := r.repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// ListFiles returns tracked and untracked (non-ignored) files
func (r *Repository) ListFiles(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, &types.VcsError{Op: "ls-files", Err: err}
	}
	set := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		set[e.Name] = true
	}

	status, err := r.status()
	if err != nil {
		return nil, err
	}
	for name, fs := range status {
		if fs.Worktree == git.Untracked {
			set[name] = true
		}
	}

	files := make([]string, 0, len(set))
	for name := range set {
		if internal(name) {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.Dir, filepath.FromSlash(name))); err != nil {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads a repository-relative file from the working tree
func (r *Repository) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(r.abs(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes a repository-relative file, creating parent directories
func (r *Repository) WriteFile(path, content string) error {
	full := r.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0644)
}

// Exists reports whether path is a regular file in the working tree
func (r *Repository) Exists(path string) bool {
	info, err := os.Stat(r.abs(path))
	return err == nil && !info.IsDir()
}

// Diff returns a unified diff of path between HEAD and the working tree.
// New files diff against empty content.
func (r *Repository) Diff(ctx context.Context, path string) (string, error) {
	r.mu.Lock()
	original, err := r.headContent(path)
	r.mu.Unlock()
	if err != nil {
		return "", &types.VcsError{Op: "diff", Err: err}
	}

	current := ""
	if r.Exists(path) {
		if current, err = r.ReadFile(path); err != nil {
			return "", &types.VcsError{Op: "diff", Err: err}
		}
	}
	return UnifiedDiff(path, original, current)
}

// UnifiedDiff renders a git-style unified diff between two versions of path
func UnifiedDiff(path, original, current string) (string, error) {
	if original == current {
		return "", nil
	}
	from := "a/" + path
	if original == "" {
		from = "/dev/null"
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(current),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  3,
	})
}

// ChangedFiles lists files that differ from HEAD, untracked files included
func (r *Repository) ChangedFiles(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changedFiles()
}

// CreateBranch creates name from HEAD and checks it out, keeping local
// changes. Checking out an existing branch of the same name reuses it.
func (r *Repository) CreateBranch(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return &types.VcsError{Op: "checkout", Err: err}
	}
	ref := plumbing.NewBranchReferenceName(name)
	_, err = r.repo.Reference(ref, true)
	exists := err == nil

	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: !exists, Keep: true}); err != nil {
		return &types.VcsError{Op: "checkout", Err: fmt.Errorf("branch %s: %w", name, err)}
	}
	r.Logger.Info("checked out branch", zap.String("branch", name), zap.Bool("existing", exists))
	return nil
}

// Commit stages every changed file and commits it, returning the hash
func (r *Repository) Commit(ctx context.Context, message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", &types.VcsError{Op: "commit", Err: err}
	}
	changed, err := r.changedFiles()
	if err != nil {
		return "", err
	}
	if len(changed) == 0 {
		return "", &types.VcsError{Op: "commit", Err: errors.New("nothing to commit")}
	}
	for _, name := range changed {
		if _, err := wt.Add(name); err != nil {
			return "", &types.VcsError{Op: "add", Err: fmt.Errorf("%s: %w", name, err)}
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.Config.AuthorName,
			Email: r.Config.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", &types.VcsError{Op: "commit", Err: err}
	}
	r.Logger.Info("committed changes", zap.String("hash", hash.String()), zap.Int("files", len(changed)))
	return hash.String(), nil
}

// Push pushes branch to the configured remote
func (r *Repository) Push(ctx context.Context, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.PushOptions{
		RemoteName: r.remoteName(),
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
	}
	if r.Token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: r.Token}
	}
	err := r.repo.PushContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &types.VcsError{Op: "push", Err: err}
	}
	r.Logger.Info("pushed branch", zap.String("remote", opts.RemoteName), zap.String("branch", branch))
	return nil
}

// OpenPullRequest opens a pull request on the GitHub repository behind the
// configured remote
func (r *Repository) OpenPullRequest(ctx context.Context, pr types.PullRequest) (string, error) {
	gh, err := r.gitHub(ctx)
	if err != nil {
		return "", &types.VcsError{Op: "pull request", Err: err}
	}
	return gh.OpenPullRequest(ctx, pr)
}

// RemoteURL returns the first URL of the configured remote
func (r *Repository) RemoteURL() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remoteURL()
}

func (r *Repository) remoteURL() (string, error) {
	remote, err := r.repo.Remote(r.remoteName())
	if err != nil {
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", r.remoteName())
	}
	return urls[0], nil
}

// GrepMatch is one line matched by Grep
type GrepMatch struct {
	File    string
	Line    int
	Content string
}

// Grep searches the files committed at HEAD for pattern
func (r *Repository) Grep(pattern string, limit int) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern: %v", types.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	results, err := r.repo.Grep(&git.GrepOptions{Patterns: []*regexp.Regexp{re}})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, &types.VcsError{Op: "grep", Err: err}
	}

	matches := make([]GrepMatch, 0, len(results))
	for _, res := range results {
		if internal(res.FileName) {
			continue
		}
		matches = append(matches, GrepMatch{File: res.FileName, Line: res.LineNumber, Content: res.Content})
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (r *Repository) gitHub(ctx context.Context) (*GitHub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.github != nil {
		return r.github, nil
	}
	url, err := r.remoteURL()
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseGitHubRemote(url)
	if err != nil {
		return nil, err
	}
	gh, err := NewGitHub(ctx, r.Token, owner, name, r.Logger)
	if err != nil {
		return nil, err
	}
	r.github = gh
	return gh, nil
}

func (r *Repository) status() (git.Status, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, &types.VcsError{Op: "status", Err: err}
	}
	status, err := wt.Status()
	if err != nil {
		return nil, &types.VcsError{Op: "status", Err: err}
	}
	return status, nil
}

func (r *Repository) changedFiles() ([]string, error) {
	status, err := r.status()
	if err != nil {
		return nil, err
	}
	var changed []string
	for name, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		if internal(name) {
			continue
		}
		changed = append(changed, name)
	}
	sort.Strings(changed)
	return changed, nil
}

// headContent returns path as committed at HEAD; "" when it is not there
func (r *Repository) headContent(path string) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", err
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", err
	}
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", nil
		}
		return "", err
	}
	return file.Contents()
}

func (r *Repository) remoteName() string {
	if r.Config.Remote == "" {
		return git.DefaultRemoteName
	}
	return r.Config.Remote
}

func (r *Repository) abs(path string) string {
	return filepath.Join(r.Dir, filepath.FromSlash(path))
}

// internal reports whether name belongs to the tool's own project directory
func internal(name string) bool {
	return name == paths.ProjectDir || strings.HasPrefix(name, paths.ProjectDir+"/")
}
