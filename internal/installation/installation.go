// Package installation turns installation-class webhook payloads into the
// list of repositories to bootstrap.
package installation

import (
	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

// Repository is a repository entry as carried by an installation payload.
// Owner is empty when the payload omits it.
type Repository struct {
	Name  string
	Owner string
}

// Payload is one of SingleRepository, RepositoryList or RepositoriesAdded.
// The set is closed; Normalize handles every member.
type Payload interface {
	normalize() ([]models.RepositoryRef, []Skipped, *errors.AppError)
}

// SingleRepository is a payload naming exactly one repository
type SingleRepository struct {
	Repository Repository
	Account    string
}

// RepositoryList is a payload listing the repositories an installation covers
type RepositoryList struct {
	Repositories []Repository
	Account      string
}

// RepositoriesAdded is an installation_repositories.added payload. Its
// entries carry no owner, which comes from the installation account.
type RepositoriesAdded struct {
	Repositories []Repository
	Account      string
}

// Skipped is an entry that produced no target
type Skipped struct {
	Repository string           `json:"repository"`
	Err        *errors.AppError `json:"error"`
}

// Normalize resolves a payload into an ordered list of target repositories.
// Entries whose owner cannot be resolved are returned in skipped and do not
// stop the rest of the batch. An empty payload yields NO_REPOSITORIES_FOUND.
func Normalize(p Payload) ([]models.RepositoryRef, []Skipped, *errors.AppError) {
	if p == nil {
		return nil, nil, errors.NoRepositoriesFound("Installation payload carries no repositories")
	}
	return p.normalize()
}

func (p SingleRepository) normalize() ([]models.RepositoryRef, []Skipped, *errors.AppError) {
	return resolveAll([]Repository{p.Repository}, p.Account)
}

func (p RepositoryList) normalize() ([]models.RepositoryRef, []Skipped, *errors.AppError) {
	if len(p.Repositories) == 0 {
		return nil, nil, errors.NoRepositoriesFound("Installation repository list is empty")
	}
	return resolveAll(p.Repositories, p.Account)
}

func (p RepositoriesAdded) normalize() ([]models.RepositoryRef, []Skipped, *errors.AppError) {
	if len(p.Repositories) == 0 {
		return nil, nil, errors.NoRepositoriesFound("No repositories were added to the installation")
	}

	// The account is authoritative here; per-entry owners are not sent
	entries := make([]Repository, len(p.Repositories))
	for i, r := range p.Repositories {
		entries[i] = Repository{Name: r.Name, Owner: p.Account}
		if entries[i].Owner == "" {
			entries[i].Owner = r.Owner
		}
	}
	return resolveAll(entries, "")
}

// resolveAll applies the owner fallback (entry owner, then account) to
// every entry, preserving order
func resolveAll(entries []Repository, account string) ([]models.RepositoryRef, []Skipped, *errors.AppError) {
	targets := make([]models.RepositoryRef, 0, len(entries))
	var skipped []Skipped

	for _, entry := range entries {
		owner := entry.Owner
		if owner == "" {
			owner = account
		}
		if owner == "" || entry.Name == "" {
			skipped = append(skipped, Skipped{
				Repository: entry.Name,
				Err:        errors.OwnerUnresolved(entry.Name),
			})
			continue
		}
		targets = append(targets, models.RepositoryRef{Owner: owner, Name: entry.Name})
	}

	return targets, skipped, nil
}

// FromWebhook selects the payload variant for an installation or
// installation_repositories delivery. Added repositories paired with an
// account take precedence over a repository list, which takes precedence
// over a single repository.
func FromWebhook(p models.InstallationWebhookPayload) (Payload, *errors.AppError) {
	account := p.Installation.AccountLogin()

	switch {
	case p.RepositoriesAdded != nil && account != "":
		return RepositoriesAdded{Repositories: entries(p.RepositoriesAdded), Account: account}, nil
	case p.Repositories != nil:
		return RepositoryList{Repositories: entries(p.Repositories), Account: account}, nil
	case p.Repository != nil:
		return SingleRepository{Repository: entry(*p.Repository), Account: account}, nil
	case p.RepositoriesAdded != nil:
		return RepositoriesAdded{Repositories: entries(p.RepositoriesAdded)}, nil
	default:
		return nil, errors.NoRepositoriesFound("Installation payload carries no repositories")
	}
}

func entries(repos []models.GitHubRepository) []Repository {
	out := make([]Repository, len(repos))
	for i, r := range repos {
		out[i] = entry(r)
	}
	return out
}

func entry(r models.GitHubRepository) Repository {
	return Repository{Name: r.Name, Owner: r.OwnerLogin()}
}
