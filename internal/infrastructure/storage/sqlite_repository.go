package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	key TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	repo TEXT NOT NULL DEFAULT '',
	labels TEXT NOT NULL DEFAULT '[]',
	language TEXT NOT NULL DEFAULT '',
	amount REAL,
	currency TEXT,
	created_at INTEGER NOT NULL,
	notified INTEGER NOT NULL DEFAULT 0,
	UNIQUE(source, key)
);
CREATE INDEX IF NOT EXISTS idx_pending_created ON pending(created_at);
CREATE TABLE IF NOT EXISTS meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`

var recordColumns = []string{
	"id", "source", "key", "title", "url", "repo",
	"labels", "language", "amount", "currency", "created_at", "notified",
}

// SQLiteRepository persists records and metadata in a SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.RecordStore = (*SQLiteRepository)(nil)

// Open creates the database file (and parent directory) if needed and
// applies the schema.
func Open(path string, busyTimeout time.Duration) (*SQLiteRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("open store: path is required: %w", domain.ErrStore)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("create store dir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("open sqlite", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return storeErr("apply schema", err)
	}

	// Databases created before amount tracking lack these columns.
	existing, err := r.columnNames(ctx, "pending")
	if err != nil {
		return err
	}
	for column, ddl := range map[string]string{
		"amount":   "ALTER TABLE pending ADD COLUMN amount REAL",
		"currency": "ALTER TABLE pending ADD COLUMN currency TEXT",
	} {
		if existing[column] {
			continue
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return storeErr("add column "+column, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) columnNames(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, storeErr("table info", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, storeErr("scan table info", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate table info", err)
	}
	return names, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Upsert inserts the record unless its (source, key) pair already exists.
// The existing row is never mutated; the insert simply reports false.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec domain.Record) (bool, error) {
	if rec.Source == "" || rec.Key == "" {
		return false, domain.ErrInvalidCandidate
	}

	labels := rec.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return false, storeErr("encode labels", err)
	}

	query, args, err := sq.Insert("pending").
		Columns("source", "key", "title", "url", "repo", "labels", "language", "amount", "currency", "created_at", "notified").
		Values(rec.Source, rec.Key, rec.Title, rec.URL, rec.Repo, string(labelsJSON), rec.Language,
			nullFloat(rec.Amount), nullString(rec.Currency), rec.CreatedAt.Unix(), 0).
		Suffix("ON CONFLICT(source, key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, storeErr("build upsert", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storeErr("upsert record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("upsert result", err)
	}
	return affected > 0, nil
}

// SelectPending returns un-notified records created at or after since,
// newest first, truncated to limit.
func (r *SQLiteRepository) SelectPending(ctx context.Context, since time.Time, limit int) ([]domain.Record, error) {
	query, args, err := sq.Select(recordColumns...).
		From("pending").
		Where(sq.And{
			sq.GtOrEq{"created_at": since.Unix()},
			sq.Eq{"notified": 0},
		}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, storeErr("build select", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("select pending", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate pending", err)
	}
	return records, nil
}

// MarkNotified flips the notified flag for exactly the given ids in one
// transaction. The flag is one-way; nothing ever resets it.
func (r *SQLiteRepository) MarkNotified(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sq.Update("pending").
		Set("notified", 1).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return storeErr("build update", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return storeErr("mark notified", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit mark notified", err)
	}
	return nil
}

// GetMeta reads a metadata value. The second return reports presence.
func (r *SQLiteRepository) GetMeta(ctx context.Context, key string) (string, bool, error) {
	query, args, err := sq.Select("v").From("meta").Where(sq.Eq{"k": key}).ToSql()
	if err != nil {
		return "", false, storeErr("build meta select", err)
	}

	var value string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get meta", err)
	}
	return value, true, nil
}

// SetMeta stores a metadata value, replacing any previous one wholesale.
func (r *SQLiteRepository) SetMeta(ctx context.Context, key, value string) error {
	query, args, err := sq.Insert("meta").
		Columns("k", "v").
		Values(key, value).
		Suffix("ON CONFLICT(k) DO UPDATE SET v = excluded.v").
		ToSql()
	if err != nil {
		return storeErr("build meta upsert", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("set meta", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (domain.Record, error) {
	var (
		rec        domain.Record
		labelsJSON string
		amount     sql.NullFloat64
		currency   sql.NullString
		createdAt  int64
		notified   int
	)
	err := rows.Scan(&rec.ID, &rec.Source, &rec.Key, &rec.Title, &rec.URL, &rec.Repo,
		&labelsJSON, &rec.Language, &amount, &currency, &createdAt, &notified)
	if err != nil {
		return domain.Record{}, storeErr("scan record", err)
	}

	if labelsJSON != "" {
		if err := json.Unmarshal([]byte(labelsJSON), &rec.Labels); err != nil {
			return domain.Record{}, storeErr("decode labels", err)
		}
	}
	if amount.Valid {
		v := amount.Float64
		rec.Amount = &v
	}
	rec.Currency = currency.String
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.Notified = notified != 0
	return rec, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStore, err)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
