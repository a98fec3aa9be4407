package app

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/NickAwrist/dynamic-pr-templates/internal/bootstrap"
	"github.com/NickAwrist/dynamic-pr-templates/internal/errors"
	"github.com/NickAwrist/dynamic-pr-templates/internal/events"
	"github.com/NickAwrist/dynamic-pr-templates/internal/logger"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote"
	"github.com/NickAwrist/dynamic-pr-templates/internal/remote/remotetest"
	"github.com/NickAwrist/dynamic-pr-templates/internal/seed"
)

type fakeClients struct {
	api remote.API
	err error
	ids []int64
}

func (f *fakeClients) ForInstallation(_ context.Context, id int64) (remote.API, error) {
	f.ids = append(f.ids, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.api, nil
}

type memoryRecorder struct {
	mu       sync.Mutex
	outcomes []bootstrap.Outcome
	err      error
}

func (r *memoryRecorder) RecordOutcome(_ context.Context, _ string, o bootstrap.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return r.err
}

type memoryPublisher struct {
	messages []events.OutcomeMessage
}

func (p *memoryPublisher) PublishOutcome(_ context.Context, msg events.OutcomeMessage) error {
	p.messages = append(p.messages, msg)
	return nil
}

func (p *memoryPublisher) Close() error { return nil }

func testSource() *seed.Tree {
	return seed.New(fstest.MapFS{
		"pr_templates/bug.md": {Data: []byte("## Bug Report")},
	}, ".")
}

var widgets = models.RepositoryRef{Owner: "acme", Name: "widgets"}

func newTestApp(fake *remotetest.Fake) (*App, *fakeClients, *memoryRecorder, *memoryPublisher) {
	clients := &fakeClients{api: fake}
	recorder := &memoryRecorder{}
	publisher := &memoryPublisher{}
	return New(clients, testSource(), recorder, publisher, logger.Nop()), clients, recorder, publisher
}

func repoWithPR(body string) *remotetest.Fake {
	fake := remotetest.New()
	fake.AddRepo("acme", "widgets", "main")
	fake.AddPullRequest("acme", "widgets", remotetest.PullRequest{Number: 1, Head: "fix", Base: "main", Body: body})
	return fake
}

func TestHandlePullRequestOpened_AppliesTemplate(t *testing.T) {
	fake := repoWithPR("")
	fake.AddFile("acme", "widgets", ".github/pr_templates/bug.md", "## Bug Report")
	a, clients, _, _ := newTestApp(fake)

	result, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "[bug] Fix login crash", Repository: widgets, Number: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fake.Repo("acme", "widgets").PullRequests[0].Body; got != "## Bug Report" {
		t.Errorf("expected body '## Bug Report', got %q", got)
	}
	if result.Prefix != "bug" || result.Path != ".github/pr_templates/bug.md" {
		t.Errorf("unexpected result %+v", result)
	}
	if len(clients.ids) != 1 || clients.ids[0] != 7 {
		t.Errorf("expected client for installation 7, got %v", clients.ids)
	}
}

func TestHandlePullRequestOpened_NoPrefixMakesNoRemoteCalls(t *testing.T) {
	fake := repoWithPR("original")
	a, clients, _, _ := newTestApp(fake)

	_, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "Fix login crash", Repository: widgets, Number: 1,
	})
	if err == nil || err.Code != errors.ErrCodeNoPrefixFound {
		t.Fatalf("expected NO_PREFIX_FOUND, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Errorf("expected no remote calls, got %d", n)
	}
	if len(clients.ids) != 0 {
		t.Error("expected no installation client to be requested")
	}
}

func TestHandlePullRequestOpened_MissingTemplateLeavesBody(t *testing.T) {
	fake := repoWithPR("original")
	a, _, _, _ := newTestApp(fake)

	_, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "[feature] Add OAuth", Repository: widgets, Number: 1,
	})
	if err == nil || err.Code != errors.ErrCodeTemplateFetchFailed {
		t.Fatalf("expected TEMPLATE_FETCH_FAILED, got %v", err)
	}
	if fake.CallCount("UpdatePullRequestBody") != 0 {
		t.Error("expected no body update")
	}
	if got := fake.Repo("acme", "widgets").PullRequests[0].Body; got != "original" {
		t.Errorf("expected body unchanged, got %q", got)
	}
}

func TestHandlePullRequestOpened_RejectsTraversal(t *testing.T) {
	fake := repoWithPR("original")
	a, _, _, _ := newTestApp(fake)

	_, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "[../../secrets] steal", Repository: widgets, Number: 1,
	})
	if err == nil || err.Code != errors.ErrCodeInvalidPrefix {
		t.Fatalf("expected INVALID_PREFIX, got %v", err)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Errorf("expected no remote calls, got %d", n)
	}
}

func TestHandlePullRequestOpened_UpdateFailure(t *testing.T) {
	fake := repoWithPR("original")
	fake.AddFile("acme", "widgets", ".github/pr_templates/bug.md", "## Bug Report")
	fake.FailOn("UpdatePullRequestBody", stderrors.New("forbidden"))
	a, _, _, _ := newTestApp(fake)

	_, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "[bug] x", Repository: widgets, Number: 1,
	})
	if err == nil || err.Code != errors.ErrCodeUpdateFailed {
		t.Fatalf("expected UPDATE_FAILED, got %v", err)
	}
}

func TestHandlePullRequestOpened_ClientFailure(t *testing.T) {
	fake := repoWithPR("original")
	a, clients, _, _ := newTestApp(fake)
	clients.err = stderrors.New("token exchange failed")

	_, err := a.HandlePullRequestOpened(context.Background(), 7, models.PullRequestOpenedEvent{
		Title: "[bug] x", Repository: widgets, Number: 1,
	})
	if err == nil || err.Code != errors.ErrCodeRemoteFailure {
		t.Fatalf("expected REMOTE_FAILURE, got %v", err)
	}
}

func TestHandleInstallation_RepositoriesAdded(t *testing.T) {
	fake := remotetest.New()
	fake.AddRepo("acme", "widgets", "main")
	fake.AddRepo("acme", "gadgets", "main")
	a, clients, recorder, publisher := newTestApp(fake)

	payload := models.InstallationWebhookPayload{
		Action:       "added",
		Installation: &models.GitHubInstallation{ID: 7, Account: &models.GitHubUser{Login: "acme"}},
		RepositoriesAdded: []models.GitHubRepository{
			{Name: "widgets"},
			{Name: "gadgets"},
		},
	}

	result, err := a.HandleInstallation(context.Background(), "d-1", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Outcomes) != 2 {
		t.Fatalf("expected 2 bootstrap outcomes, got %d", len(result.Outcomes))
	}
	for i, name := range []string{"widgets", "gadgets"} {
		repo := result.Outcomes[i].Repository
		if repo.Owner != "acme" || repo.Name != name {
			t.Errorf("expected acme/%s, got %s", name, repo)
		}
	}
	if fake.CallCount("GetRepository") != 2 {
		t.Errorf("expected 2 bootstrap invocations, got %d", fake.CallCount("GetRepository"))
	}
	if result.Succeeded() != 2 {
		t.Errorf("expected both repositories to succeed, got %d", result.Succeeded())
	}
	if len(clients.ids) != 1 || clients.ids[0] != 7 {
		t.Errorf("expected one client for installation 7, got %v", clients.ids)
	}
	if len(recorder.outcomes) != 2 {
		t.Errorf("expected 2 recorded outcomes, got %d", len(recorder.outcomes))
	}
	if len(publisher.messages) != 2 || publisher.messages[0].DeliveryID != "d-1" || publisher.messages[0].InstallationID != 7 {
		t.Errorf("unexpected published messages %+v", publisher.messages)
	}
}

func TestHandleInstallation_NoRepositories(t *testing.T) {
	fake := remotetest.New()
	a, clients, _, _ := newTestApp(fake)

	_, err := a.HandleInstallation(context.Background(), "d-1", models.InstallationWebhookPayload{
		Action:       "created",
		Installation: &models.GitHubInstallation{ID: 7},
	})
	if err == nil || err.Code != errors.ErrCodeNoRepositoriesFound {
		t.Fatalf("expected NO_REPOSITORIES_FOUND, got %v", err)
	}
	if len(clients.ids) != 0 {
		t.Error("expected no installation client")
	}
}

func TestHandleInstallation_AllEntriesUnresolved(t *testing.T) {
	fake := remotetest.New()
	a, clients, _, _ := newTestApp(fake)

	result, err := a.HandleInstallation(context.Background(), "d-1", models.InstallationWebhookPayload{
		Action:       "created",
		Installation: &models.GitHubInstallation{ID: 7},
		Repositories: []models.GitHubRepository{{Name: "orphan"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Targets) != 0 || len(result.Skipped) != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(clients.ids) != 0 {
		t.Error("expected no installation client")
	}
}

func TestHandleInstallation_RecorderFailureDoesNotStopBatch(t *testing.T) {
	fake := remotetest.New()
	fake.AddRepo("acme", "widgets", "main")
	fake.AddRepo("acme", "gadgets", "main")
	a, _, recorder, publisher := newTestApp(fake)
	recorder.err = stderrors.New("disk full")

	result, err := a.HandleInstallation(context.Background(), "d-1", models.InstallationWebhookPayload{
		Installation: &models.GitHubInstallation{ID: 7, Account: &models.GitHubUser{Login: "acme"}},
		Repositories: []models.GitHubRepository{{Name: "widgets"}, {Name: "gadgets"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Outcomes) != 2 || len(publisher.messages) != 2 {
		t.Errorf("expected both repositories processed and published, got %d/%d", len(result.Outcomes), len(publisher.messages))
	}
}
