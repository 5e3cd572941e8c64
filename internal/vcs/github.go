package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/davepeng-0503/dave-bot/internal/types"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GitHub opens pull requests against one repository
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
}

// NewGitHub creates a GitHub client authenticated with token
func NewGitHub(ctx context.Context, token, owner, repo string, logger *zap.Logger) (*GitHub, error) {
	if token == "" {
		return nil, fmt.Errorf("%s not set", TokenEnv)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return newGitHubWithClient(github.NewClient(tc), owner, repo, logger), nil
}

func newGitHubWithClient(client *github.Client, owner, repo string, logger *zap.Logger) *GitHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{client: client, owner: owner, repo: repo, logger: logger}
}

// OpenPullRequest creates pr and returns its URL. When a pull request for
// the same head is already open, its URL is returned instead.
func (g *GitHub) OpenPullRequest(ctx context.Context, pr types.PullRequest) (string, error) {
	created, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err == nil {
		g.logger.Info("opened pull request", zap.String("url", created.GetHTMLURL()))
		return created.GetHTMLURL(), nil
	}
	if !alreadyExists(err) {
		return "", &types.VcsError{Op: "pull request", Err: err}
	}

	existing, _, listErr := g.client.PullRequests.List(ctx, g.owner, g.repo, &github.PullRequestListOptions{
		State: "open",
		Head:  g.owner + ":" + pr.Head,
	})
	if listErr != nil || len(existing) == 0 {
		return "", &types.VcsError{Op: "pull request", Err: err}
	}
	g.logger.Info("pull request already open", zap.String("url", existing[0].GetHTMLURL()))
	return existing[0].GetHTMLURL(), nil
}

func alreadyExists(err error) bool {
	var errResp *github.ErrorResponse
	if !errors.As(err, &errResp) {
		return false
	}
	for _, e := range errResp.Errors {
		if strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(errResp.Message), "already exists")
}

// ParseGitHubRemote extracts owner and repository name from a GitHub remote
// URL in https, ssh or scp-like form.
func ParseGitHubRemote(remote string) (owner, repo string, err error) {
	remote = strings.TrimSpace(remote)
	var path string
	switch {
	case strings.HasPrefix(remote, "git@"):
		_, after, ok := strings.Cut(remote, ":")
		if !ok {
			return "", "", fmt.Errorf("unrecognized remote %q", remote)
		}
		path = after
	default:
		u, perr := url.Parse(remote)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("unrecognized remote %q", remote)
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote %q is not a GitHub repository", remote)
	}
	return parts[0], parts[1], nil
}
