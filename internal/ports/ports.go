package ports

import (
	"context"
	"time"

	"BountyScanner/internal/domain"
)

// SourceAdapter pulls raw bounty candidates from one origin system.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, window time.Duration) ([]domain.Candidate, error)
}

// RecordStore persists records for deduplication and digest selection.
type RecordStore interface {
	// Upsert inserts the record if its (source, key) pair is unseen and
	// reports whether an insert happened. Existing rows are left untouched.
	Upsert(ctx context.Context, rec domain.Record) (bool, error)
	// SelectPending returns un-notified records created at or after since,
	// newest first, truncated to limit.
	SelectPending(ctx context.Context, since time.Time, limit int) ([]domain.Record, error)
	// MarkNotified sets the notified flag for exactly the given ids in a
	// single transaction.
	MarkNotified(ctx context.Context, ids []int64) error
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
	Close() error
}

// Notifier delivers rendered digests to the chat channel.
type Notifier interface {
	// SendPrimary posts via the primary transport and returns an opaque
	// thread handle usable with SendThread.
	SendPrimary(ctx context.Context, text string) (thread string, err error)
	SendThread(ctx context.Context, thread, text string) error
	SendFallback(ctx context.Context, text string) error
	Upload(ctx context.Context, path, title string) error
	HasPrimary() bool
	HasFallback() bool
}

// Exporter writes a durable artifact for a delivered digest and returns its path.
type Exporter interface {
	Write(ctx context.Context, records []domain.Record) (string, error)
}

// Scheduler controls when collection and digest cycles execute.
type Scheduler interface {
	Schedule(spec string, job func(time.Time)) error
	Start()
	Stop(ctx context.Context) error
}
