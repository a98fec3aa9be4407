package models

// RepositoryRef identifies a remote repository by owner and name
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String returns the owner/name form of the reference
func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// PullRequestOpenedEvent is the part of a pull_request.opened delivery the
// template flow consumes
type PullRequestOpenedEvent struct {
	Title      string
	Repository RepositoryRef
	Number     int
}
