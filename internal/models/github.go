package models

// GitHub webhook event names (X-GitHub-Event header)
const (
	GitHubEventPing                     = "ping"
	GitHubEventPullRequest              = "pull_request"
	GitHubEventInstallation             = "installation"
	GitHubEventInstallationRepositories = "installation_repositories"
)

// GitHubUser represents a user or organization account in a GitHub webhook
type GitHubUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type"`
}

// GitHubRepository represents a repository in a GitHub webhook. Repository
// entries inside installation events omit the owner object.
type GitHubRepository struct {
	ID            int64       `json:"id"`
	NodeID        string      `json:"node_id"`
	Name          string      `json:"name"`
	FullName      string      `json:"full_name"`
	Private       bool        `json:"private"`
	Owner         *GitHubUser `json:"owner,omitempty"`
	HTMLURL       string      `json:"html_url"`
	DefaultBranch string      `json:"default_branch"`
}

// OwnerLogin returns the repository owner's login, or "" when absent
func (r GitHubRepository) OwnerLogin() string {
	if r.Owner == nil {
		return ""
	}
	return r.Owner.Login
}

// GitHubInstallation represents the app installation a delivery belongs to
type GitHubInstallation struct {
	ID      int64       `json:"id"`
	Account *GitHubUser `json:"account,omitempty"`
}

// AccountLogin returns the installation account login, or "" when absent
func (i *GitHubInstallation) AccountLogin() string {
	if i == nil || i.Account == nil {
		return ""
	}
	return i.Account.Login
}

// GitHubBranchRef is a head or base reference on a pull request
type GitHubBranchRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// GitHubPullRequest represents a pull request in a GitHub webhook
type GitHubPullRequest struct {
	Number  int             `json:"number"`
	Title   string          `json:"title"`
	Body    *string         `json:"body"`
	State   string          `json:"state"`
	HTMLURL string          `json:"html_url"`
	User    GitHubUser      `json:"user"`
	Head    GitHubBranchRef `json:"head"`
	Base    GitHubBranchRef `json:"base"`
}

// PullRequestWebhookPayload represents a pull_request webhook payload
type PullRequestWebhookPayload struct {
	Action       string              `json:"action"`
	Number       int                 `json:"number"`
	PullRequest  *GitHubPullRequest  `json:"pull_request"`
	Repository   GitHubRepository    `json:"repository"`
	Installation *GitHubInstallation `json:"installation,omitempty"`
	Sender       GitHubUser          `json:"sender"`
}

// OpenedEvent extracts the fields the template flow needs
func (p PullRequestWebhookPayload) OpenedEvent() PullRequestOpenedEvent {
	evt := PullRequestOpenedEvent{
		Repository: RepositoryRef{
			Owner: p.Repository.OwnerLogin(),
			Name:  p.Repository.Name,
		},
		Number: p.Number,
	}
	if p.PullRequest != nil {
		evt.Title = p.PullRequest.Title
		evt.Number = p.PullRequest.Number
	}
	return evt
}

// InstallationWebhookPayload covers both the installation and the
// installation_repositories webhook payloads. Slices are nil when the key
// is absent and empty when GitHub sent an empty list.
type InstallationWebhookPayload struct {
	Action              string              `json:"action"`
	Installation        *GitHubInstallation `json:"installation,omitempty"`
	Repository          *GitHubRepository   `json:"repository,omitempty"`
	Repositories        []GitHubRepository  `json:"repositories"`
	RepositoriesAdded   []GitHubRepository  `json:"repositories_added"`
	RepositoriesRemoved []GitHubRepository  `json:"repositories_removed"`
	RepositorySelection string              `json:"repository_selection,omitempty"`
	Sender              GitHubUser          `json:"sender"`
}

// InstallationID returns the installation id, or 0 when absent
func (p InstallationWebhookPayload) InstallationID() int64 {
	if p.Installation == nil {
		return 0
	}
	return p.Installation.ID
}
