package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/NickAwrist/dynamic-pr-templates/internal/bootstrap"
	"github.com/NickAwrist/dynamic-pr-templates/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	s, err := Open(context.Background(), "sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkDelivery_DetectsReplays(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fresh, err := s.MarkDelivery(ctx, "d-1", "pull_request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Error("expected first delivery to be fresh")
	}

	fresh, err = s.MarkDelivery(ctx, "d-1", "pull_request")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh {
		t.Error("expected replayed delivery to be detected")
	}

	fresh, err = s.MarkDelivery(ctx, "d-2", "installation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fresh {
		t.Error("expected different delivery to be fresh")
	}
}

func TestPruneDeliveries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if _, err := s.MarkDelivery(ctx, "old", "ping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	if _, err := s.MarkDelivery(ctx, "new", "ping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := s.PruneDeliveries(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned delivery, got %d", n)
	}

	fresh, _ := s.MarkDelivery(ctx, "old", "ping")
	if !fresh {
		t.Error("expected pruned delivery id to be accepted again")
	}
}

func TestOutcomes_RoundTripNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		outcome := bootstrap.Outcome{
			Repository:    models.RepositoryRef{Owner: "acme", Name: name},
			DefaultBranch: "main",
			Branch:        bootstrap.BranchResult{Status: bootstrap.BranchCreated},
			Files:         []bootstrap.FileResult{{Path: ".github/pr_templates/bug.md"}},
			PullRequest:   bootstrap.PullRequestResult{Created: true, URL: "https://github.com/acme/" + name + "/pull/1"},
		}
		if err := s.RecordOutcome(ctx, "d-"+name, outcome); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.RecentOutcomes(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got))
	}
	if got[0].Outcome.Repository.Name != "third" || got[1].Outcome.Repository.Name != "second" {
		t.Errorf("expected newest first, got %s, %s", got[0].Outcome.Repository.Name, got[1].Outcome.Repository.Name)
	}
	if got[0].DeliveryID != "d-third" {
		t.Errorf("expected delivery id d-third, got %s", got[0].DeliveryID)
	}
	if got[0].Outcome.PullRequest.URL != "https://github.com/acme/third/pull/1" {
		t.Errorf("unexpected url %s", got[0].Outcome.PullRequest.URL)
	}
	if !got[0].RecordedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("unexpected recorded_at %v", got[0].RecordedAt)
	}
}

func TestRecentOutcomes_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.RecentOutcomes(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
