// Package remote is the GitHub side of the app: the small set of repository
// operations the template and bootstrap flows need, a go-github backed
// implementation, and GitHub App installation authentication.
package remote

import (
	"context"
	"errors"

	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

var (
	// ErrNotFound is returned when the requested repository object does not exist
	ErrNotFound = errors.New("remote: not found")

	// ErrAlreadyExists is returned when a branch or pull request being created
	// is already present
	ErrAlreadyExists = errors.New("remote: already exists")
)

// RepositoryInfo holds the repository metadata the bootstrap needs
type RepositoryInfo struct {
	DefaultBranch string
}

// FileContent is a file as stored by the remote content API
type FileContent struct {
	Path     string
	SHA      string
	Encoding string // "base64" for regular files
	Content  string // encoded content, exactly as returned
}

// NewPullRequest describes a pull request to open
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// API is the set of remote operations used by the app. Implementations
// return errors wrapping ErrNotFound or ErrAlreadyExists where applicable.
type API interface {
	GetRepository(ctx context.Context, repo models.RepositoryRef) (*RepositoryInfo, error)
	GetBranchHeadCommit(ctx context.Context, repo models.RepositoryRef, branch string) (string, error)
	CreateBranch(ctx context.Context, repo models.RepositoryRef, branch, fromSHA string) error
	GetFileContent(ctx context.Context, repo models.RepositoryRef, path string) (*FileContent, error)
	UpsertFileContent(ctx context.Context, repo models.RepositoryRef, path string, content []byte, branch, message string) error
	CreatePullRequest(ctx context.Context, repo models.RepositoryRef, pr NewPullRequest) (string, error)
	UpdatePullRequestBody(ctx context.Context, repo models.RepositoryRef, number int, body string) error
}
