package kb

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func seedRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	articles := []Article{
		{Title: "Cancellation policy", Content: "Appointments can be cancelled up to 24 hours in advance without charge."},
		{Title: "Opening hours", Content: "We are open Monday to Saturday from 9am to 5pm."},
		{Title: "Payment methods", Content: "We accept card, cash and mobile payment at the counter."},
	}
	for _, a := range articles {
		if _, err := repo.Upsert(context.Background(), a); err != nil {
			t.Fatalf("Upsert %q: %v", a.Title, err)
		}
	}
	return repo
}

func TestSearchRanksTitleMatchesFirst(t *testing.T) {
	svc := NewService(seedRepo(t))

	results, err := svc.Search(context.Background(), "cancellation", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 || results[0].Title != "Cancellation policy" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchHonorsTopK(t *testing.T) {
	svc := NewService(seedRepo(t))

	results, err := svc.Search(context.Background(), "we payment hours", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestSearchValidation(t *testing.T) {
	svc := NewService(seedRepo(t))

	_, err := svc.Search(context.Background(), "   ", 3)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for empty query, got %v", err)
	}
}

func TestSearchNoMatches(t *testing.T) {
	svc := NewService(seedRepo(t))

	results, err := svc.Search(context.Background(), "spaceship", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestUpsertValidatesAndReplaces(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, Article{Title: " ", Content: "x"}); err == nil {
		t.Fatalf("expected validation error for missing title")
	}
	if _, err := svc.Upsert(ctx, Article{Title: "Hours", Content: " "}); err == nil {
		t.Fatalf("expected validation error for missing content")
	}

	first, err := svc.Upsert(ctx, Article{Title: "Hours", Content: "9 to 5"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second, err := svc.Upsert(ctx, Article{Title: "Hours", Content: "10 to 6"})
	if err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replacing an article must keep its ID: %v vs %v", first.ID, second.ID)
	}

	results, err := svc.Search(ctx, "hours", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Snippet, "10 to 6") {
		t.Fatalf("search did not reflect replacement: %+v", results)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short answer"); got != "short answer" {
		t.Fatalf("Snippet(short) = %q", got)
	}

	long := strings.Repeat("word ", 100)
	got := Snippet(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long snippet missing ellipsis: %q", got)
	}
	if len(got) > 210 {
		t.Fatalf("snippet too long: %d bytes", len(got))
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "…"), " ") {
		t.Fatalf("snippet cut mid-space: %q", got)
	}

	// Collapses internal whitespace.
	if got := Snippet("a\n\tb   c"); got != "a b c" {
		t.Fatalf("Snippet whitespace = %q", got)
	}
}
