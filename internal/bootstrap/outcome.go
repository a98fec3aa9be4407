package bootstrap

import (
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// BranchStatus is the result of the working branch step
type BranchStatus string

const (
	BranchCreated        BranchStatus = "created"
	BranchAlreadyExisted BranchStatus = "already_existed"
	BranchFailed         BranchStatus = "failed"
	BranchSkipped        BranchStatus = "skipped"
)

// Failure is the error kind and message of a failed step
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func failure(err *errors.AppError) *Failure {
	return &Failure{Code: err.Code, Message: err.Error()}
}

// BranchResult records the working branch step
type BranchResult struct {
	Status  BranchStatus `json:"status"`
	Failure *Failure     `json:"failure,omitempty"`
}

// FileResult records the upsert of one seed file
type FileResult struct {
	Path    string   `json:"path"`
	Failure *Failure `json:"failure,omitempty"`
}

// Succeeded reports whether the file was written
func (f FileResult) Succeeded() bool {
	return f.Failure == nil
}

// PullRequestResult records the setup pull request step
type PullRequestResult struct {
	Created bool     `json:"created"`
	URL     string   `json:"url,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Outcome is the result of bootstrapping one repository
type Outcome struct {
	Repository    models.RepositoryRef `json:"repository"`
	DefaultBranch string               `json:"default_branch,omitempty"`

	// Aborted is set when the default branch could not be resolved; no
	// later step was attempted
	Aborted *Failure `json:"aborted,omitempty"`

	Branch      BranchResult      `json:"branch"`
	SeedFailure *Failure          `json:"seed_failure,omitempty"`
	Files       []FileResult      `json:"files"`
	PullRequest PullRequestResult `json:"pull_request"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the repository ended up with its setup pull
// request. A setup pull request that already existed counts as success.
func (o *Outcome) Succeeded() bool {
	if o.Aborted != nil || o.SeedFailure != nil || o.Branch.Status == BranchFailed {
		return false
	}
	for _, f := range o.Files {
		if !f.Succeeded() {
			return false
		}
	}
	if o.PullRequest.Created {
		return true
	}
	return o.PullRequest.Failure != nil && o.PullRequest.Failure.Code == errors.ErrCodeRemoteConflict
}

// FailedFiles counts seed files that could not be written
func (o *Outcome) FailedFiles() int {
	n := 0
	for _, f := range o.Files {
		if !f.Succeeded() {
			n++
		}
	}
	return n
}
