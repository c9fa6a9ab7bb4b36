package domain

import "time"

// Record is one deduplicated bounty candidate tracked by the store.
// The pair (Source, Key) is the global identity; re-ingestion of the
// same pair is a no-op.
type Record struct {
	ID        int64
	Source    string
	Key       string
	Title     string
	URL       string
	Repo      string
	Labels    []string
	Language  string
	Amount    *float64
	Currency  string
	CreatedAt time.Time
	Notified  bool
}

// Candidate is a raw item produced by a source adapter before persistence.
type Candidate struct {
	Source     string
	Key        string
	Title      string
	URL        string
	Repo       string
	Labels     []string
	Language   string
	Amount     *float64
	Currency   string
	ObservedAt time.Time
}

// Validate checks the identity fields required for deduplication.
func (c Candidate) Validate() error {
	if c.Source == "" || c.Key == "" {
		return ErrInvalidCandidate
	}
	return nil
}

// Record converts the candidate into a storable record. ObservedAt
// defaults to the current time when the adapter did not supply one.
func (c Candidate) Record() Record {
	created := c.ObservedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Record{
		Source:    c.Source,
		Key:       c.Key,
		Title:     c.Title,
		URL:       c.URL,
		Repo:      c.Repo,
		Labels:    c.Labels,
		Language:  c.Language,
		Amount:    c.Amount,
		Currency:  c.Currency,
		CreatedAt: created,
	}
}
