package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"BountyScanner/internal/config"
)

type fakeMeta struct {
	values map[string]string
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{values: make(map[string]string)}
}

func (m *fakeMeta) GetMeta(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *fakeMeta) SetMeta(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func newTestGitHubSource(cfg config.GitHubConfig, meta *fakeMeta, baseURL string) *GitHubSource {
	s := NewGitHubSource(cfg, meta, zerolog.Nop())
	s.baseURL = baseURL
	s.limiter = rate.NewLimiter(rate.Inf, 0)
	return s
}

func TestQuoteToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"bounty", "bounty"},
		{"💎 Bounty", `"💎 Bounty"`},
		{"help wanted", `"help wanted"`},
		{"c++", `"c++"`},
		{"c#", `"c#"`},
		{"Go", "Go"},
		{`say "hi"`, `"say "hi""`},
	}
	for _, tc := range cases {
		if got := quoteToken(tc.in); got != tc.want {
			t.Errorf("quoteToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	s := newTestGitHubSource(config.GitHubConfig{
		Labels: []string{"bounty", "💎 Bounty"},
		Repos:  []string{"owner/repo"},
	}, newFakeMeta(), "http://unused")

	query := s.buildQuery([]string{"Go", "Rust"}, time.Hour)

	for _, want := range []string{
		"is:issue",
		"is:open",
		`(label:bounty OR label:"💎 Bounty")`,
		"(language:Go OR language:Rust)",
		"(repo:owner/repo)",
		"created:>=",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query %q missing %q", query, want)
		}
	}
}

func TestBuildQueryOmitsEmptyFilters(t *testing.T) {
	t.Parallel()

	s := newTestGitHubSource(config.GitHubConfig{Labels: []string{"bounty"}}, newFakeMeta(), "http://unused")
	query := s.buildQuery(nil, time.Hour)

	if strings.Contains(query, "language:") {
		t.Errorf("query %q must not filter by language", query)
	}
	if strings.Contains(query, "repo:") {
		t.Errorf("query %q must not filter by repo", query)
	}
}

func TestFetchParsesSearchResults(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/search/issues") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{
					"id": 42,
					"title": "Fix the flux capacitor",
					"html_url": "https://github.com/owner/repo/issues/7",
					"repository_url": "https://api.github.com/repos/owner/repo",
					"labels": [{"name": "bounty"}, {"name": "USD 150.00"}]
				}
			]
		}`))
	}))
	defer srv.Close()

	s := newTestGitHubSource(config.GitHubConfig{
		Token:           "tok",
		Labels:          []string{"bounty"},
		StaticLanguages: []string{"Go"},
	}, newFakeMeta(), srv.URL)

	candidates, err := s.Fetch(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.Source != "github" || c.Key != "gh:42" {
		t.Errorf("unexpected identity %s/%s", c.Source, c.Key)
	}
	if c.Repo != "owner/repo" {
		t.Errorf("repo = %q, want owner/repo", c.Repo)
	}
	if c.URL != "https://github.com/owner/repo/issues/7" {
		t.Errorf("unexpected url %q", c.URL)
	}
	if len(c.Labels) != 2 || c.Labels[1] != "USD 150.00" {
		t.Errorf("unexpected labels %v", c.Labels)
	}
	if c.ObservedAt.IsZero() {
		t.Error("observed time must be set")
	}
	if !strings.Contains(gotQuery, "label:bounty") {
		t.Errorf("server saw query %q without label clause", gotQuery)
	}
}

func TestFetchSurfacesAPIErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Validation Failed"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s := newTestGitHubSource(config.GitHubConfig{
		Labels:          []string{"bounty"},
		StaticLanguages: []string{"Go"},
	}, newFakeMeta(), srv.URL)

	if _, err := s.Fetch(context.Background(), time.Hour); err == nil {
		t.Fatal("expected an error for a rejected query")
	}
}

func TestLanguagesStaticListWhenProfileDisabled(t *testing.T) {
	t.Parallel()

	s := newTestGitHubSource(config.GitHubConfig{
		StaticLanguages: []string{"Go", "Rust"},
	}, newFakeMeta(), "http://unused")

	languages, err := s.Languages(context.Background())
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if len(languages) != 2 || languages[0] != "Go" {
		t.Fatalf("unexpected languages %v", languages)
	}
}

func TestLanguagesFetchesAndCachesProfile(t *testing.T) {
	t.Parallel()

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if !strings.HasPrefix(r.URL.Path, "/users/octocat/repos") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"language": "Go"},
			{"language": "Go"},
			{"language": "Rust"},
			{"language": ""},
			{"language": "Python"},
			{"language": "Rust"},
			{"language": "Rust"}
		]`))
	}))
	defer srv.Close()

	meta := newFakeMeta()
	s := newTestGitHubSource(config.GitHubConfig{
		Username:            "octocat",
		UseProfileLanguages: true,
	}, meta, srv.URL)

	languages, err := s.Languages(context.Background())
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if len(languages) != 3 {
		t.Fatalf("unexpected languages %v", languages)
	}
	if languages[0] != "Rust" || languages[1] != "Go" || languages[2] != "Python" {
		t.Fatalf("expected frequency order, got %v", languages)
	}

	if _, ok := meta.values[profileLanguagesKey]; !ok {
		t.Fatal("languages not persisted to meta")
	}
	if _, ok := meta.values[profileLanguagesTSKey]; !ok {
		t.Fatal("cache timestamp not persisted")
	}

	firstRequests := requests
	again, err := s.Languages(context.Background())
	if err != nil {
		t.Fatalf("cached languages: %v", err)
	}
	if requests != firstRequests {
		t.Fatal("second call must be served from the cache")
	}
	if len(again) != 3 || again[0] != "Rust" {
		t.Fatalf("cached languages differ: %v", again)
	}
}

func TestLanguagesIgnoresStaleCache(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"language": "Zig"}]`))
	}))
	defer srv.Close()

	meta := newFakeMeta()
	meta.values[profileLanguagesKey] = `["Go"]`
	meta.values[profileLanguagesTSKey] = "1000000000" // long past the TTL

	s := newTestGitHubSource(config.GitHubConfig{
		Username:            "octocat",
		UseProfileLanguages: true,
	}, meta, srv.URL)

	languages, err := s.Languages(context.Background())
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if len(languages) != 1 || languages[0] != "Zig" {
		t.Fatalf("stale cache must be refreshed, got %v", languages)
	}
}

func TestRepoFromAPIURL(t *testing.T) {
	t.Parallel()

	if got := repoFromAPIURL("https://api.github.com/repos/owner/repo"); got != "owner/repo" {
		t.Errorf("got %q", got)
	}
	if got := repoFromAPIURL("https://example.com/nothing"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
