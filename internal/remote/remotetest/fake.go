// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
)

// Call records one invocation against the fake
type Call struct {
	Op   string
	Repo string
	Arg  string
}

// Upsert records one file write
type Upsert struct {
	Repo    string
	Path    string
	Branch  string
	Message string
	Content []byte
}

// PullRequest is a pull request held by the fake
type PullRequest struct {
	Number int
	Title  string
	Head   string
	Base   string
	Body   string
	URL    string
}

// Repo is the state of one fake repository
type Repo struct {
	DefaultBranch string
	Branches      map[string]string // branch -> head sha
	Files         map[string][]byte // path -> content on the default branch
	PullRequests  []*PullRequest
}

// Fake is a goroutine-safe in-memory remote.API
type Fake struct {
	mu      sync.Mutex
	repos   map[string]*Repo
	calls   []Call
	upserts []Upsert
	errs    map[string]error
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		repos: make(map[string]*Repo),
		errs:  make(map[string]error),
	}
}

// AddRepo registers a repository whose default branch head is "sha-<branch>"
func (f *Fake) AddRepo(owner, name, defaultBranch string) *Repo {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := &Repo{
		DefaultBranch: defaultBranch,
		Branches:      map[string]string{defaultBranch: "sha-" + defaultBranch},
		Files:         make(map[string][]byte),
	}
	f.repos[owner+"/"+name] = r
	return r
}

// AddFile stores a file on the repository's default branch
func (f *Fake) AddFile(owner, name, path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[owner+"/"+name].Files[path] = []byte(content)
}

// AddPullRequest stores an existing pull request
func (f *Fake) AddPullRequest(owner, name string, pr PullRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.repos[owner+"/"+name]
	r.PullRequests = append(r.PullRequests, &pr)
}

// FailOn makes the operation fail. key is "Op", "Op owner/name" or
// "Op owner/name arg"; the most specific match wins.
func (f *Fake) FailOn(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = err
}

// Calls returns a copy of the recorded calls
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts calls of the given operation
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Upserts returns a copy of the recorded file writes
func (f *Fake) Upserts() []Upsert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upsert(nil), f.upserts...)
}

// Repo returns the state of a repository
func (f *Fake) Repo(owner, name string) *Repo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos[owner+"/"+name]
}

// record logs the call and returns the repository and any injected error
func (f *Fake) record(op string, repo models.RepositoryRef, arg string) (*Repo, error) {
	key := repo.String()
	f.calls = append(f.calls, Call{Op: op, Repo: key, Arg: arg})

	for _, k := range []string{op + " " + key + " " + arg, op + " " + key, op} {
		if err, ok := f.errs[k]; ok {
			return nil, err
		}
	}

	r, ok := f.repos[key]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", key, remote.ErrNotFound)
	}
	return r, nil
}

func (f *Fake) GetRepository(_ context.Context, repo models.RepositoryRef) (*remote.RepositoryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("GetRepository", repo, "")
	if err != nil {
		return nil, err
	}
	return &remote.RepositoryInfo{DefaultBranch: r.DefaultBranch}, nil
}

func (f *Fake) GetBranchHeadCommit(_ context.Context, repo models.RepositoryRef, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("GetBranchHeadCommit", repo, branch)
	if err != nil {
		return "", err
	}
	sha, ok := r.Branches[branch]
	if !ok {
		return "", fmt.Errorf("branch %s: %w", branch, remote.ErrNotFound)
	}
	return sha, nil
}

func (f *Fake) CreateBranch(_ context.Context, repo models.RepositoryRef, branch, fromSHA string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("CreateBranch", repo, branch)
	if err != nil {
		return err
	}
	if _, ok := r.Branches[branch]; ok {
		return fmt.Errorf("branch %s: %w", branch, remote.ErrAlreadyExists)
	}
	r.Branches[branch] = fromSHA
	return nil
}

func (f *Fake) GetFileContent(_ context.Context, repo models.RepositoryRef, path string) (*remote.FileContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("GetFileContent", repo, path)
	if err != nil {
		return nil, err
	}
	content, ok := r.Files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, remote.ErrNotFound)
	}
	return &remote.FileContent{
		Path:     path,
		SHA:      "blob-" + path,
		Encoding: "base64",
		Content:  base64.StdEncoding.EncodeToString(content),
	}, nil
}

func (f *Fake) UpsertFileContent(_ context.Context, repo models.RepositoryRef, path string, content []byte, branch, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("UpsertFileContent", repo, path)
	if err != nil {
		return err
	}
	if _, ok := r.Branches[branch]; !ok {
		return fmt.Errorf("branch %s: %w", branch, remote.ErrNotFound)
	}
	f.upserts = append(f.upserts, Upsert{
		Repo:    repo.String(),
		Path:    path,
		Branch:  branch,
		Message: message,
		Content: append([]byte(nil), content...),
	})
	return nil
}

func (f *Fake) CreatePullRequest(_ context.Context, repo models.RepositoryRef, pr remote.NewPullRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("CreatePullRequest", repo, pr.Head)
	if err != nil {
		return "", err
	}
	for _, existing := range r.PullRequests {
		if existing.Head == pr.Head && existing.Base == pr.Base {
			return "", fmt.Errorf("pull request for %s: %w", pr.Head, remote.ErrAlreadyExists)
		}
	}

	number := len(r.PullRequests) + 1
	created := &PullRequest{
		Number: number,
		Title:  pr.Title,
		Head:   pr.Head,
		Base:   pr.Base,
		Body:   pr.Body,
		URL:    fmt.Sprintf("https://github.com/%s/pull/%d", repo, number),
	}
	r.PullRequests = append(r.PullRequests, created)
	return created.URL, nil
}

func (f *Fake) UpdatePullRequestBody(_ context.Context, repo models.RepositoryRef, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, err := f.record("UpdatePullRequestBody", repo, fmt.Sprint(number))
	if err != nil {
		return err
	}
	for _, pr := range r.PullRequests {
		if pr.Number == number {
			pr.Body = body
			return nil
		}
	}
	return fmt.Errorf("pull request #%d: %w", number, remote.ErrNotFound)
}

// PullRequestsWithHead counts pull requests whose head branch matches
func (r *Repo) PullRequestsWithHead(head string) int {
	n := 0
	for _, pr := range r.PullRequests {
		if strings.EqualFold(pr.Head, head) {
			n++
		}
	}
	return n
}

var _ remote.API = (*Fake)(nil)
