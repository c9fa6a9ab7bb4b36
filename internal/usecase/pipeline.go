package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources  []ports.SourceAdapter
	Store    ports.RecordStore
	Notifier ports.Notifier
	Exporter ports.Exporter
	Logger   zerolog.Logger
}

// Pipeline implements the collect and digest cycles.
type Pipeline struct {
	sources  []ports.SourceAdapter
	store    ports.RecordStore
	notifier ports.Notifier
	exporter ports.Exporter
	logger   zerolog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		sources:  deps.Sources,
		store:    deps.Store,
		notifier: deps.Notifier,
		exporter: deps.Exporter,
		logger:   deps.Logger,
	}
}

// Collect pulls candidates from every registered source for the lookback
// window and upserts each into the store. A failing source is logged and
// skipped; the cycle continues with the remaining ones. Store failures
// abort the cycle. Returns per-source counts of newly inserted records.
func (p *Pipeline) Collect(ctx context.Context, window time.Duration) (map[string]int, error) {
	inserted := make(map[string]int, len(p.sources))

	for _, src := range p.sources {
		inserted[src.Name()] = 0

		candidates, err := src.Fetch(ctx, window)
		if err != nil {
			p.logger.Error().Err(err).Str("source", src.Name()).Msg("source fetch failed")
			continue
		}

		for _, cand := range candidates {
			if err := cand.Validate(); err != nil {
				p.logger.Warn().Str("source", src.Name()).Str("title", cand.Title).Msg("candidate skipped: missing identity")
				continue
			}

			isNew, err := p.store.Upsert(ctx, cand.Record())
			if err != nil {
				return inserted, fmt.Errorf("upsert %s/%s: %w", cand.Source, cand.Key, err)
			}
			if isNew {
				inserted[src.Name()]++
			}
		}
	}

	total := 0
	ev := p.logger.Info()
	for name, n := range inserted {
		ev = ev.Int(name, n)
		total += n
	}
	ev.Int("total", total).Msg("collect done")

	return inserted, nil
}

// DigestOptions parameterizes one digest cycle.
type DigestOptions struct {
	Lookback         time.Duration
	MinCount         int
	MaxItems         int
	CharBudget       int
	PostLongAsThread bool
	UploadExport     bool
}

// Digest selects pending records within the lookback window, formats and
// delivers the digest, and marks the selected records notified only after
// a transport confirmed acceptance. On delivery failure nothing is mutated
// and the records stay eligible for the next cycle.
func (p *Pipeline) Digest(ctx context.Context, now time.Time, opts DigestOptions) error {
	since := now.Add(-opts.Lookback)
	records, err := p.store.SelectPending(ctx, since, opts.MaxItems)
	if err != nil {
		return fmt.Errorf("select pending: %w", err)
	}

	if len(records) < opts.MinCount {
		p.logger.Debug().Int("pending", len(records)).Int("min", opts.MinCount).Msg("digest suppressed")
		return nil
	}

	text, overflow := BuildDigest(records, opts.Lookback, opts.CharBudget)

	sent := false
	viaPrimary := false
	if p.notifier.HasPrimary() {
		thread, err := p.notifier.SendPrimary(ctx, text)
		if err != nil {
			p.logger.Warn().Err(err).Msg("primary send failed")
		} else {
			sent = true
			viaPrimary = true
			p.postOverflow(ctx, thread, overflow, opts)
		}
	}

	if !sent && p.notifier.HasFallback() {
		combined := text
		if overflow != "" {
			// The fallback transport has no threads; everything goes out as
			// one message even when it exceeds the budget.
			combined = text + "\n\n" + overflow
			p.logger.Warn().Int("chars", len(combined)).Msg("fallback sends combined message without size enforcement")
		}
		if err := p.notifier.SendFallback(ctx, combined); err != nil {
			p.logger.Warn().Err(err).Msg("fallback send failed")
		} else {
			sent = true
		}
	}

	if !sent {
		p.logger.Error().Int("records", len(records)).Msg("digest delivery failed, records remain pending")
		return fmt.Errorf("deliver digest: %w", domain.ErrTransport)
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	if err := p.store.MarkNotified(ctx, ids); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	p.logger.Info().Int("records", len(records)).Msg("digest sent")

	p.export(ctx, records, viaPrimary && opts.UploadExport)
	return nil
}

// postOverflow posts overflow fragments as thread continuations. Each
// fragment is best-effort; a failure never fails the overall digest.
func (p *Pipeline) postOverflow(ctx context.Context, thread, overflow string, opts DigestOptions) {
	if overflow == "" {
		return
	}
	if !opts.PostLongAsThread || thread == "" {
		p.logger.Warn().Msg("overflow dropped: thread posting unavailable")
		return
	}
	for i, fragment := range ChunkText(overflow, opts.CharBudget) {
		if i > 0 {
			fragment = "(cont.)\n" + fragment
		}
		if err := p.notifier.SendThread(ctx, thread, fragment); err != nil {
			p.logger.Warn().Err(err).Int("fragment", i).Msg("thread fragment send failed")
		}
	}
}

// export writes the durable artifact after the notified state is already
// committed; failures here are logged, never propagated.
func (p *Pipeline) export(ctx context.Context, records []domain.Record, upload bool) {
	if p.exporter == nil {
		return
	}
	path, err := p.exporter.Write(ctx, records)
	if err != nil {
		p.logger.Warn().Err(err).Msg("digest export failed")
		return
	}
	p.logger.Info().Str("path", path).Msg("digest exported")
	if !upload {
		return
	}
	if err := p.notifier.Upload(ctx, path, "Bounty digest CSV"); err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("export upload failed")
	}
}

// InjectDummy inserts a synthetic record for exercising the digest path.
func (p *Pipeline) InjectDummy(ctx context.Context, now time.Time) error {
	amount := 123.0
	_, err := p.store.Upsert(ctx, domain.Record{
		Source:    "test",
		Key:       fmt.Sprintf("dummy:%d", now.Unix()),
		Title:     "(TEST) Example Bounty Title",
		URL:       "https://example.com/bounty",
		Repo:      "owner/repo",
		Labels:    []string{"USD 123.00", "bounty"},
		Language:  "Go",
		Amount:    &amount,
		Currency:  "USD",
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("inject dummy: %w", err)
	}
	return nil
}
