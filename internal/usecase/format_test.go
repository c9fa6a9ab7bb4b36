package usecase

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"BountyScanner/internal/domain"
)

func testRecord(source, repo, title string) domain.Record {
	return domain.Record{
		Source:    source,
		Key:       source + ":" + title,
		Title:     title,
		URL:       "https://example.com/" + title,
		Repo:      repo,
		CreatedAt: time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC),
	}
}

func TestBuildDigestSingleMessageWithinBudget(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		testRecord("github", "owner/repo", "Fix parser"),
		testRecord("github", "owner/repo", "Add cache"),
		testRecord("algora", "other/repo", "Improve docs"),
	}

	text, overflow := BuildDigest(records, time.Hour, 3500)
	if overflow != "" {
		t.Fatalf("expected no overflow, got %q", overflow)
	}
	for _, want := range []string{
		"last 60 min · 3 items",
		"Sources: github (2), algora (1)",
		"Top repos: owner/repo (2), other/repo (1)",
		"Fix parser",
		"Add cache",
		"Improve docs",
		"(14:05Z)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("digest missing %q:\n%s", want, text)
		}
	}
}

func TestBuildDigestOverflowsToThread(t *testing.T) {
	t.Parallel()

	records := make([]domain.Record, 40)
	for i := range records {
		records[i] = testRecord("github", "owner/repo", strings.Repeat("x", 60))
	}

	budget := 500
	text, overflow := BuildDigest(records, 30*time.Minute, budget)
	if overflow == "" {
		t.Fatal("expected overflow for an oversized digest")
	}
	if utf8.RuneCountInString(text) > budget {
		t.Fatalf("primary text exceeds budget: %d runes", utf8.RuneCountInString(text))
	}
	if !strings.Contains(text, "Details in thread") {
		t.Fatalf("short header should point to the thread:\n%s", text)
	}
	if strings.Contains(text, "• ") {
		t.Fatalf("short header must not carry bullets:\n%s", text)
	}
	if !strings.Contains(overflow, "• ") {
		t.Fatal("overflow should carry the bullet list")
	}
}

func TestBuildDigestSingularItemCount(t *testing.T) {
	t.Parallel()

	text, _ := BuildDigest([]domain.Record{testRecord("github", "", "One")}, 15*time.Minute, 3500)
	if !strings.Contains(text, "1 item\n") {
		t.Fatalf("expected singular item count:\n%s", text)
	}
	if !strings.Contains(text, "Top repos: —") {
		t.Fatalf("expected placeholder for empty repos:\n%s", text)
	}
}

func TestTopReposTieBreakByDiscoveryOrder(t *testing.T) {
	t.Parallel()

	records := []domain.Record{
		testRecord("github", "b/later", "t1"),
		testRecord("github", "a/first", "t2"),
		testRecord("github", "a/first", "t3"),
		testRecord("github", "b/later", "t4"),
	}
	got := topRepos(records)
	if got != "b/later (2), a/first (2)" {
		t.Fatalf("unexpected repo ranking: %s", got)
	}
}

func TestAmountPrefix(t *testing.T) {
	t.Parallel()

	amount := 149.6
	tests := []struct {
		name string
		rec  domain.Record
		want string
	}{
		{name: "numeric field", rec: domain.Record{Amount: &amount, Currency: "USD"}, want: "$150"},
		{name: "numeric without currency", rec: domain.Record{Amount: &amount}, want: "$150"},
		{name: "euro", rec: domain.Record{Amount: &amount, Currency: "EUR"}, want: "€150"},
		{name: "from label", rec: domain.Record{Labels: []string{"bounty", "USD 123.00"}}, want: "$123"},
		{name: "malformed label", rec: domain.Record{Labels: []string{"USD abc"}}, want: ""},
		{name: "plain label", rec: domain.Record{Labels: []string{"bounty"}}, want: ""},
		{name: "no amount", rec: domain.Record{}, want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := amountPrefix(tt.rec); got != tt.want {
				t.Fatalf("amountPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBulletLayout(t *testing.T) {
	t.Parallel()

	rec := testRecord("github", "owner/repo", "Fix bug")
	rec.Labels = []string{"USD 200.00"}

	got := bullet(rec)
	want := "• $200 — owner/repo — Fix bug\n  https://example.com/Fix bug (14:05Z)"
	if got != want {
		t.Fatalf("bullet = %q, want %q", got, want)
	}
}
