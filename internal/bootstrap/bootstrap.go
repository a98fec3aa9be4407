// Package bootstrap seeds repositories with the packaged template files
// through a branch and a setup pull request.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
	"github.com/NickAwrist/dynamic-pr-templates/internal/seed"
)

const (
	// BranchName is the working branch shared by every bootstrap run
	BranchName = "dynamic-pr-templates"

	// SetupTitle is the title of the setup pull request
	SetupTitle = "[SETUP] Add dynamic PR templates"

	// SeedPrefix is where seed files land in the repository
	SeedPrefix = ".github/"
)

// SetupBody is the body of the setup pull request
const SetupBody = `This pull request adds the default pull request templates used by Dynamic PR Templates.

Templates live in ` + "`.github/pr_templates/`" + `. When a pull request is opened with a
title starting with a bracketed prefix such as ` + "`[bug] Fix login crash`" + `, its
description is replaced with the contents of ` + "`.github/pr_templates/bug.md`" + `.

Merge this pull request to enable the templates, and edit or add files in
` + "`.github/pr_templates/`" + ` to customize them.`

// TemplateSource lists the files to seed
type TemplateSource interface {
	Files() ([]seed.TemplateFile, error)
}

// Bootstrapper runs the bootstrap sequence against one installation's
// repositories
type Bootstrapper struct {
	api    remote.API
	source TemplateSource
	log    *logger.Logger
	now    func() time.Time
}

// New creates a bootstrapper
func New(api remote.API, source TemplateSource, log *logger.Logger) *Bootstrapper {
	return &Bootstrapper{
		api:    api,
		source: source,
		log:    log,
		now:    time.Now,
	}
}

// BootstrapAll bootstraps each repository in order, one at a time
func (b *Bootstrapper) BootstrapAll(ctx context.Context, repos []models.RepositoryRef) []Outcome {
	outcomes := make([]Outcome, 0, len(repos))
	for _, repo := range repos {
		outcomes = append(outcomes, b.Bootstrap(ctx, repo))
	}
	return outcomes
}

// Bootstrap resolves the default branch, ensures the working branch,
// upserts every seed file and opens the setup pull request. Only a failure
// to resolve the default branch stops the sequence early; every other
// failure is recorded in the outcome and the next step runs.
func (b *Bootstrapper) Bootstrap(ctx context.Context, repo models.RepositoryRef) Outcome {
	log := b.log.WithRepository(repo.Owner, repo.Name)
	outcome := Outcome{Repository: repo, StartedAt: b.now().UTC()}

	info, err := b.api.GetRepository(ctx, repo)
	if err != nil {
		appErr := errors.RemoteFailure(err, "Failed to resolve default branch")
		log.With("step", "default_branch").Error("Bootstrap aborted", appErr)
		outcome.Aborted = failure(appErr)
		outcome.Branch.Status = BranchSkipped
		outcome.FinishedAt = b.now().UTC()
		return outcome
	}
	outcome.DefaultBranch = info.DefaultBranch

	outcome.Branch = b.ensureBranch(ctx, log, repo, info.DefaultBranch)
	outcome.Files, outcome.SeedFailure = b.seedFiles(ctx, log, repo)
	outcome.PullRequest = b.openPullRequest(ctx, log, repo, info.DefaultBranch)

	outcome.FinishedAt = b.now().UTC()
	log.Infof("Bootstrap finished: branch=%s files=%d failed_files=%d pr_created=%t",
		outcome.Branch.Status, len(outcome.Files), outcome.FailedFiles(), outcome.PullRequest.Created)
	return outcome
}

func (b *Bootstrapper) ensureBranch(ctx context.Context, log *logger.Logger, repo models.RepositoryRef, base string) BranchResult {
	log = log.With("step", "branch")

	sha, err := b.api.GetBranchHeadCommit(ctx, repo, base)
	if err != nil {
		appErr := errors.RemoteFailure(err, fmt.Sprintf("Failed to read head of %s", base))
		log.Error("Could not read default branch head", appErr)
		return BranchResult{Status: BranchFailed, Failure: failure(appErr)}
	}

	err = b.api.CreateBranch(ctx, repo, BranchName, sha)
	switch {
	case err == nil:
		log.Infof("Created branch %s at %s", BranchName, sha)
		return BranchResult{Status: BranchCreated}
	case stderrors.Is(err, remote.ErrAlreadyExists):
		log.Infof("Branch %s already exists", BranchName)
		return BranchResult{Status: BranchAlreadyExisted}
	default:
		appErr := errors.RemoteFailure(err, fmt.Sprintf("Failed to create branch %s", BranchName))
		log.Error("Could not create working branch, seeding anyway", appErr)
		return BranchResult{Status: BranchFailed, Failure: failure(appErr)}
	}
}

func (b *Bootstrapper) seedFiles(ctx context.Context, log *logger.Logger, repo models.RepositoryRef) ([]FileResult, *Failure) {
	log = log.With("step", "seed")

	files, err := b.source.Files()
	if err != nil {
		appErr := errors.Wrap(err, errors.ErrCodeInternalError, "Failed to read seed templates")
		log.Error("Could not enumerate seed files", appErr)
		return nil, failure(appErr)
	}

	results := make([]FileResult, 0, len(files))
	for _, file := range files {
		path := SeedPrefix + file.RelativePath
		message := fmt.Sprintf("Add %s", path)

		if err := b.api.UpsertFileContent(ctx, repo, path, file.Content, BranchName, message); err != nil {
			appErr := errors.RemoteFailure(err, fmt.Sprintf("Failed to write %s", path))
			log.Error("Could not seed file", appErr)
			results = append(results, FileResult{Path: path, Failure: failure(appErr)})
			continue
		}

		log.Debugf("Seeded %s", path)
		results = append(results, FileResult{Path: path})
	}

	return results, nil
}

func (b *Bootstrapper) openPullRequest(ctx context.Context, log *logger.Logger, repo models.RepositoryRef, base string) PullRequestResult {
	log = log.With("step", "pull_request")

	url, err := b.api.CreatePullRequest(ctx, repo, remote.NewPullRequest{
		Title: SetupTitle,
		Head:  BranchName,
		Base:  base,
		Body:  SetupBody,
	})
	switch {
	case err == nil:
		log.Infof("Opened setup pull request %s", url)
		return PullRequestResult{Created: true, URL: url}
	case stderrors.Is(err, remote.ErrAlreadyExists):
		appErr := errors.RemoteConflict(err, "Setup pull request already exists")
		log.WarnErr("Setup pull request not created", appErr)
		return PullRequestResult{Failure: failure(appErr)}
	default:
		appErr := errors.RemoteFailure(err, "Failed to open setup pull request")
		log.Error("Setup pull request not created", appErr)
		return PullRequestResult{Failure: failure(appErr)}
	}
}
