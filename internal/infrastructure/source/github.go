package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"BountyScanner/internal/config"
	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

const (
	githubAPIBase = "https://api.github.com"

	profileLanguagesKey   = "profile_languages"
	profileLanguagesTSKey = "profile_languages_ts"
	profileLanguagesTTL   = 24 * time.Hour
	maxProfilePages       = 5
	topProfileLanguages   = 8
)

// MetaStore is the slice of the record store used for the language cache.
type MetaStore interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// GitHubSource searches open issues carrying bounty labels.
type GitHubSource struct {
	cfg     config.GitHubConfig
	meta    MetaStore
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	baseURL string
}

var _ ports.SourceAdapter = (*GitHubSource)(nil)

// NewGitHubSource wires the adapter; meta backs the profile-language cache.
func NewGitHubSource(cfg config.GitHubConfig, meta MetaStore, logger zerolog.Logger) *GitHubSource {
	return &GitHubSource{
		cfg:     cfg,
		meta:    meta,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:  logger,
		baseURL: githubAPIBase,
	}
}

// Name identifies the source tag used for record identity.
func (s *GitHubSource) Name() string {
	return "github"
}

type githubIssue struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	HTMLURL       string `json:"html_url"`
	RepositoryURL string `json:"repository_url"`
	Labels        []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// Fetch runs one issue search over the lookback window.
func (s *GitHubSource) Fetch(ctx context.Context, window time.Duration) ([]domain.Candidate, error) {
	languages, err := s.Languages(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("profile languages unavailable, using static list")
		languages = s.cfg.StaticLanguages
	}

	query := s.buildQuery(languages, window)
	endpoint := s.baseURL + "/search/issues?q=" + url.QueryEscape(query) +
		"&sort=created&order=desc&per_page=100&advanced_search=true"

	var result struct {
		Items []githubIssue `json:"items"`
	}
	if err := s.getJSON(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(result.Items))
	for _, issue := range result.Items {
		labels := make([]string, 0, len(issue.Labels))
		for _, l := range issue.Labels {
			labels = append(labels, l.Name)
		}
		candidates = append(candidates, domain.Candidate{
			Source:     s.Name(),
			Key:        fmt.Sprintf("gh:%d", issue.ID),
			Title:      issue.Title,
			URL:        issue.HTMLURL,
			Repo:       repoFromAPIURL(issue.RepositoryURL),
			Labels:     labels,
			ObservedAt: time.Now().UTC(),
		})
	}
	return candidates, nil
}

// buildQuery assembles the issue-search expression: open issues carrying
// one of the bounty labels, optionally narrowed by language and repo,
// created within the window.
func (s *GitHubSource) buildQuery(languages []string, window time.Duration) string {
	clauses := []string{"is:issue", "is:open"}

	labelParts := make([]string, 0, len(s.cfg.Labels))
	for _, label := range s.cfg.Labels {
		labelParts = append(labelParts, "label:"+quoteToken(label))
	}
	clauses = append(clauses, "("+strings.Join(labelParts, " OR ")+")")

	if len(languages) > 0 {
		parts := make([]string, 0, len(languages))
		for _, lang := range languages {
			parts = append(parts, "language:"+quoteToken(lang))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	if len(s.cfg.Repos) > 0 {
		parts := make([]string, 0, len(s.cfg.Repos))
		for _, repo := range s.cfg.Repos {
			parts = append(parts, "repo:"+repo)
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	since := time.Now().UTC().Add(-window).Format("2006-01-02T15:04:05Z")
	clauses = append(clauses, "created:>="+since)

	return strings.Join(clauses, " ")
}

// quoteToken wraps search tokens that would otherwise break the query
// grammar (whitespace, quoting/grouping characters, non-ASCII labels).
func quoteToken(token string) string {
	needsQuoting := strings.ContainsAny(token, " \t\"':#()+")
	if !needsQuoting {
		for _, r := range token {
			if r > 127 {
				needsQuoting = true
				break
			}
		}
	}
	if needsQuoting {
		return `"` + token + `"`
	}
	return token
}

func repoFromAPIURL(apiURL string) string {
	_, repo, found := strings.Cut(apiURL, "repos/")
	if !found {
		return ""
	}
	return repo
}

// Languages resolves the language filter: the configured static list, or
// the profile's most-used languages cached in the meta table for 24h.
func (s *GitHubSource) Languages(ctx context.Context) ([]string, error) {
	if !s.cfg.UseProfileLanguages {
		return s.cfg.StaticLanguages, nil
	}

	if cached, ok := s.cachedLanguages(ctx); ok {
		return cached, nil
	}

	languages, err := s.fetchProfileLanguages(ctx)
	if err != nil {
		return nil, err
	}
	if len(languages) == 0 {
		languages = s.cfg.StaticLanguages
	}

	encoded, err := json.Marshal(languages)
	if err != nil {
		return nil, fmt.Errorf("encode languages: %w", err)
	}
	if err := s.meta.SetMeta(ctx, profileLanguagesKey, string(encoded)); err != nil {
		return nil, err
	}
	if err := s.meta.SetMeta(ctx, profileLanguagesTSKey, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return nil, err
	}
	return languages, nil
}

func (s *GitHubSource) cachedLanguages(ctx context.Context) ([]string, bool) {
	rawTS, ok, err := s.meta.GetMeta(ctx, profileLanguagesTSKey)
	if err != nil || !ok {
		return nil, false
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil || time.Since(time.Unix(ts, 0)) >= profileLanguagesTTL {
		return nil, false
	}

	raw, ok, err := s.meta.GetMeta(ctx, profileLanguagesKey)
	if err != nil || !ok {
		return nil, false
	}
	var languages []string
	if err := json.Unmarshal([]byte(raw), &languages); err != nil || len(languages) == 0 {
		return nil, false
	}
	return languages, true
}

// fetchProfileLanguages walks the user's repositories and returns the
// most frequent languages, capped at topProfileLanguages.
func (s *GitHubSource) fetchProfileLanguages(ctx context.Context) ([]string, error) {
	var order []string
	counts := make(map[string]int)

	for page := 1; page <= maxProfilePages; page++ {
		endpoint := fmt.Sprintf("%s/users/%s/repos?per_page=100&page=%d", s.baseURL, s.cfg.Username, page)

		var repos []struct {
			Language string `json:"language"`
		}
		if err := s.getJSON(ctx, endpoint, &repos); err != nil {
			return nil, fmt.Errorf("profile repos page %d: %w", page, err)
		}
		if len(repos) == 0 {
			break
		}
		for _, repo := range repos {
			if repo.Language == "" {
				continue
			}
			if _, seen := counts[repo.Language]; !seen {
				order = append(order, repo.Language)
			}
			counts[repo.Language]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topProfileLanguages {
		order = order[:topProfileLanguages]
	}
	return order, nil
}

func (s *GitHubSource) getJSON(ctx context.Context, endpoint string, v any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnprocessableEntity {
			s.logger.Error().Str("body", strings.TrimSpace(string(body))).Msg("github rejected search query")
		}
		return fmt.Errorf("github returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
