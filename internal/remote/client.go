package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v56/github"

	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// Client implements API on top of go-github
type Client struct {
	gh *github.Client
}

// NewClient wraps an authenticated go-github client
func NewClient(gh *github.Client) *Client {
	return &Client{gh: gh}
}

// GetRepository returns the repository's default branch
func (c *Client) GetRepository(ctx context.Context, repo models.RepositoryRef) (*RepositoryInfo, error) {
	r, _, err := c.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s: %w", repo, classify(err))
	}
	return &RepositoryInfo{DefaultBranch: r.GetDefaultBranch()}, nil
}

// GetBranchHeadCommit returns the commit SHA the branch points at
func (c *Client) GetBranchHeadCommit(ctx context.Context, repo models.RepositoryRef, branch string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("getting ref heads/%s in %s: %w", branch, repo, classify(err))
	}

	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("ref heads/%s in %s has no object SHA", branch, repo)
	}
	return sha, nil
}

// CreateBranch creates refs/heads/<branch> pointing at fromSHA
func (c *Client) CreateBranch(ctx context.Context, repo models.RepositoryRef, branch, fromSHA string) error {
	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(fromSHA)},
	}
	if _, _, err := c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, ref); err != nil {
		return fmt.Errorf("creating branch %s in %s: %w", branch, repo, classify(err))
	}
	return nil
}

// GetFileContent returns the encoded content of a file on the default branch
func (c *Client) GetFileContent(ctx context.Context, repo models.RepositoryRef, path string) (*FileContent, error) {
	return c.getFile(ctx, repo, path, "")
}

// UpsertFileContent creates the file on branch, or updates it in place when
// it already exists there
func (c *Client) UpsertFileContent(ctx context.Context, repo models.RepositoryRef, path string, content []byte, branch, message string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}

	existing, err := c.getFile(ctx, repo, path, branch)
	switch {
	case errors.Is(err, ErrNotFound):
		if _, _, err := c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts); err != nil {
			return fmt.Errorf("creating %s on %s in %s: %w", path, branch, repo, classify(err))
		}
		return nil
	case err != nil:
		return err
	}

	opts.SHA = github.String(existing.SHA)
	if _, _, err := c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts); err != nil {
		return fmt.Errorf("updating %s on %s in %s: %w", path, branch, repo, classify(err))
	}
	return nil
}

// CreatePullRequest opens a pull request and returns its HTML URL
func (c *Client) CreatePullRequest(ctx context.Context, repo models.RepositoryRef, pr NewPullRequest) (string, error) {
	created, _, err := c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, &github.NewPullRequest{
		Title: github.String(pr.Title),
		Head:  github.String(pr.Head),
		Base:  github.String(pr.Base),
		Body:  github.String(pr.Body),
	})
	if err != nil {
		return "", fmt.Errorf("creating pull request %s -> %s in %s: %w", pr.Head, pr.Base, repo, classify(err))
	}
	return created.GetHTMLURL(), nil
}

// UpdatePullRequestBody replaces the body of a pull request
func (c *Client) UpdatePullRequestBody(ctx context.Context, repo models.RepositoryRef, number int, body string) error {
	_, _, err := c.gh.PullRequests.Edit(ctx, repo.Owner, repo.Name, number, &github.PullRequest{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("updating pull request %s#%d: %w", repo, number, classify(err))
	}
	return nil
}

func (c *Client) getFile(ctx context.Context, repo models.RepositoryRef, path, ref string) (*FileContent, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	file, _, _, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, opts)
	if err != nil {
		return nil, fmt.Errorf("getting %s in %s: %w", path, repo, classify(err))
	}
	if file == nil {
		return nil, fmt.Errorf("getting %s in %s: path is a directory", path, repo)
	}

	// file.GetContent decodes; the raw field keeps the encoded form
	var encoded string
	if file.Content != nil {
		encoded = *file.Content
	}

	return &FileContent{
		Path:     file.GetPath(),
		SHA:      file.GetSHA(),
		Encoding: file.GetEncoding(),
		Content:  encoded,
	}, nil
}

// classify maps GitHub error responses onto the package sentinels
func classify(err error) error {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return err
	}

	switch ghErr.Response.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case http.StatusUnprocessableEntity:
		if alreadyExists(ghErr) {
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
	}
	return err
}

// alreadyExists recognizes GitHub's 422 messages for duplicate refs and
// duplicate pull requests
func alreadyExists(ghErr *github.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(ghErr.Message), "already exists") {
		return true
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return false
}
