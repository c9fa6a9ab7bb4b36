package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

const algoraAPIBase = "https://console.algora.io/api"

// AlgoraSource lists active bounties for the configured organizations.
type AlgoraSource struct {
	orgs    []string
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

var _ ports.SourceAdapter = (*AlgoraSource)(nil)

// NewAlgoraSource wires the adapter for the given organizations.
func NewAlgoraSource(orgs []string, logger zerolog.Logger) *AlgoraSource {
	return &AlgoraSource{
		orgs:    orgs,
		client:  &http.Client{Timeout: 20 * time.Second},
		logger:  logger,
		baseURL: algoraAPIBase,
	}
}

// Name identifies the source tag used for record identity.
func (s *AlgoraSource) Name() string {
	return "algora"
}

type algoraPage struct {
	Items      []algoraBounty `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

type algoraBounty struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"` // minor units
	Currency  string `json:"currency"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`
	Issue     struct {
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	} `json:"issue"`
}

// Fetch lists active bounties across all organizations. The window is not
// used: the Algora API exposes no time filter, so deduplication against
// the store absorbs repeats. A failing organization is logged and skipped.
func (s *AlgoraSource) Fetch(ctx context.Context, window time.Duration) ([]domain.Candidate, error) {
	_ = window

	var out []domain.Candidate
	for _, org := range s.orgs {
		items, err := s.fetchOrg(ctx, org)
		if err != nil {
			s.logger.Warn().Err(err).Str("org", org).Msg("algora org skipped")
			continue
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *AlgoraSource) fetchOrg(ctx context.Context, org string) ([]domain.Candidate, error) {
	var out []domain.Candidate

	cursor := ""
	for {
		endpoint := fmt.Sprintf("%s/orgs/%s/bounties?limit=100", s.baseURL, url.PathEscape(org))
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		var page algoraPage
		if err := s.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, bounty := range page.Items {
			if bounty.Status != "active" {
				continue
			}
			out = append(out, s.candidate(org, bounty))
		}

		cursor = page.NextCursor
		if cursor == "" {
			return out, nil
		}
	}
}

func (s *AlgoraSource) candidate(org string, bounty algoraBounty) domain.Candidate {
	currency := bounty.Currency
	if currency == "" {
		currency = "USD"
	}
	amount := float64(bounty.Amount) / 100

	title := bounty.Issue.Title
	if title == "" {
		title = "(no title)"
	}
	link := bounty.Issue.HTMLURL
	if link == "" {
		link = fmt.Sprintf("https://algora.io/%s/bounties", org)
	}
	repo := ""
	if bounty.RepoOwner != "" && bounty.RepoName != "" {
		repo = bounty.RepoOwner + "/" + bounty.RepoName
	}

	return domain.Candidate{
		Source:     s.Name(),
		Key:        "algora:" + bounty.ID,
		Title:      title,
		URL:        link,
		Repo:       repo,
		Labels:     []string{fmt.Sprintf("%s %.2f", currency, amount)},
		Amount:     &amount,
		Currency:   currency,
		ObservedAt: time.Now().UTC(),
	}
}

func (s *AlgoraSource) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("algora returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
