package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"BountyScanner/internal/domain"
	"BountyScanner/internal/ports"
)

var csvHeader = []string{"created_at_utc", "source", "repo", "title", "labels", "url", "amount", "currency"}

// CSVExporter writes one digest per file into a target directory.
type CSVExporter struct {
	dir string
	now func() time.Time
}

var _ ports.Exporter = (*CSVExporter)(nil)

// NewCSVExporter wires the target directory; it is created on first write.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir, now: time.Now}
}

// Write dumps the digest rows to bounty_digest_<UTC minute>.csv and
// returns the file path.
func (e *CSVExporter) Write(ctx context.Context, records []domain.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := fmt.Sprintf("bounty_digest_%s.csv", e.now().UTC().Format("20060102_1504"))
	path := filepath.Join(e.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(row(rec)); err != nil {
			_ = file.Close()
			return "", fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("flush export: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return path, nil
}

func row(rec domain.Record) []string {
	amount := ""
	if rec.Amount != nil {
		amount = strconv.FormatFloat(*rec.Amount, 'f', -1, 64)
	}
	return []string{
		rec.CreatedAt.UTC().Format(time.RFC3339),
		rec.Source,
		rec.Repo,
		rec.Title,
		strings.Join(rec.Labels, "|"),
		rec.URL,
		amount,
		rec.Currency,
	}
}
