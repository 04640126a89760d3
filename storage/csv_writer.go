package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"sync"
	"time"

	"regent-tracker/models"
)

var csvHeader = []string{
	"id", "tower", "floor", "unit", "size", "rooms", "price", "price_per_ft",
	"source", "source_name", "url", "active", "is_new", "first_seen_at", "last_seen_at",
}

// CSVWriter exports the snapshot listings as a spreadsheet-friendly CSV.
// Each Write replaces the file. It is safe for concurrent use.
type CSVWriter struct {
	mu   sync.Mutex
	path string
}

// NewCSVWriter returns a writer for path. The file is created on first Write;
// intermediate directories are created automatically.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Write renders the header and one row per listing and swaps the file in.
func (c *CSVWriter) Write(ctx context.Context, listings []models.SnapshotListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	// UTF-8 BOM so spreadsheet apps open the Chinese source names correctly.
	buf.WriteString("\ufeff")
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, l := range listings {
		row := []string{
			l.Fingerprint,
			optionalInt(l.Tower),
			l.Floor,
			l.Unit,
			optionalInt(l.Size),
			optionalInt(l.Rooms),
			strconv.FormatInt(l.Price, 10),
			optionalInt64(l.PricePerArea),
			l.Source,
			l.SourceName,
			l.URL,
			strconv.FormatBool(l.Active),
			strconv.FormatBool(l.IsNew),
			l.FirstSeenAt.UTC().Format(time.RFC3339),
			l.LastSeenAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	if err := writeFileAtomic(c.path, buf.Bytes()); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}

// Close is a no-op; every Write is complete on return.
func (c *CSVWriter) Close() error {
	return nil
}

func optionalInt(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func optionalInt64(v int64) string {
	if v <= 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
