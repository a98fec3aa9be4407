// Package templates resolves pull request templates stored in a repository
// and writes them into pull request bodies.
package templates

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
)

const (
	// Directory holding the templates, relative to the repository root
	Directory = ".github/pr_templates"

	// Extension of template files
	Extension = ".md"
)

// TemplatePath returns the repository path of the template for prefix.
// The prefix is used verbatim.
func TemplatePath(prefix string) string {
	return Directory + "/" + prefix + Extension
}

// Resolver fetches template text from a repository
type Resolver struct {
	api remote.API
}

// NewResolver creates a resolver backed by api
func NewResolver(api remote.API) *Resolver {
	return &Resolver{api: api}
}

// Resolve fetches and decodes the template for prefix. A missing file, an
// undecodable file and a transport error all yield TEMPLATE_FETCH_FAILED.
func (r *Resolver) Resolve(ctx context.Context, repo models.RepositoryRef, prefix string) (string, *errors.AppError) {
	path := TemplatePath(prefix)

	file, err := r.api.GetFileContent(ctx, repo, path)
	if err != nil {
		return "", errors.TemplateFetchFailed(path, err)
	}

	text, err := decode(file)
	if err != nil {
		return "", errors.TemplateFetchFailed(path, err)
	}

	return text, nil
}

// decode turns stored file content into UTF-8 text
func decode(file *remote.FileContent) (string, error) {
	if file.Encoding != "" && file.Encoding != "base64" {
		return "", fmt.Errorf("unsupported content encoding %q", file.Encoding)
	}

	// The contents API wraps base64 at 60 columns
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, file.Content)

	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decoding base64 content: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("template is not valid UTF-8")
	}

	return string(raw), nil
}

// Updater overwrites pull request bodies
type Updater struct {
	api remote.API
}

// NewUpdater creates an updater backed by api
func NewUpdater(api remote.API) *Updater {
	return &Updater{api: api}
}

// Update replaces the body of pull request number with body
func (u *Updater) Update(ctx context.Context, repo models.RepositoryRef, number int, body string) *errors.AppError {
	if err := u.api.UpdatePullRequestBody(ctx, repo, number, body); err != nil {
		return errors.UpdateFailed(number, err)
	}
	return nil
}
