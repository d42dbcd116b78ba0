package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"vconv/internal/services"
)

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const entryColumns = "id, original_filename, converted_filename, output_format, result, result_mime, result_size, thumbnail, thumbnail_mime, thumbnail_size, created_at, created_at_ns"

// summaryColumns is entryColumns without the converted payload.
const summaryColumns = "id, original_filename, converted_filename, output_format, result_mime, result_size, thumbnail, thumbnail_mime, thumbnail_size, created_at, created_at_ns"

// SQLStore is the primary tier: full entries keyed by id with an index on
// creation time.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQL connects to the primary database and ensures its schema. For
// sqlite, dsn is a file path whose parent directory is created on demand.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	ctx = ensureContext(ctx)
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history dsn required")
	}
	if d.driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.driver, err)
	}
	for _, pragma := range d.pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLStore{db: db, dialect: d}
	if err := store.initSchema(ctx, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the entry; a second save with the same id replaces the first.
func (s *SQLStore) Save(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("history entry id required")
	}
	entry = entry.withSizes()
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	query := s.dialect.rebind(`INSERT INTO history_entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    original_filename = excluded.original_filename,
    converted_filename = excluded.converted_filename,
    output_format = excluded.output_format,
    result = excluded.result,
    result_mime = excluded.result_mime,
    result_size = excluded.result_size,
    thumbnail = excluded.thumbnail,
    thumbnail_mime = excluded.thumbnail_mime,
    thumbnail_size = excluded.thumbnail_size,
    created_at = excluded.created_at,
    created_at_ns = excluded.created_at_ns`)

	err := s.execWithRetry(ctx, query,
		entry.ID,
		entry.OriginalFilename,
		entry.ConvertedFilename,
		entry.OutputFormat,
		nullableBytes(entry.Result),
		defaultString(entry.ResultMIME, DefaultResultMIME),
		entry.ResultSize,
		nullableBytes(entry.Thumbnail),
		defaultString(entry.ThumbnailMIME, DefaultThumbnailMIME),
		entry.ThumbnailSize,
		ts.Format(time.RFC3339Nano),
		ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save history entry: %w", err)
	}
	return nil
}

// List returns all entries, newest first. Result is left empty; ResultSize
// still reports the stored payload and Get loads it.
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT `+summaryColumns+` FROM history_entries ORDER BY created_at_ns DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list history entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}
	return entries, nil
}

// Get returns a single entry.
func (s *SQLStore) Get(ctx context.Context, id string) (Entry, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+entryColumns+` FROM history_entries WHERE id = ?`), id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("history entry %s: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

// Clear deletes every entry.
func (s *SQLStore) Clear(ctx context.Context) error {
	if err := s.execWithRetry(ctx, `DELETE FROM history_entries`); err != nil {
		return fmt.Errorf("clear history entries: %w", err)
	}
	return nil
}

func (s *SQLStore) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !s.dialect.retryable(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(scanner rowScanner) (Entry, error) {
	var result []byte
	entry, err := scanColumns(scanner, &result)
	if err != nil {
		return Entry{}, err
	}
	entry.Result = result
	return entry, nil
}

func scanSummary(scanner rowScanner) (Entry, error) {
	return scanColumns(scanner, nil)
}

// scanColumns reads one row of entryColumns, or of summaryColumns when
// result is nil.
func scanColumns(scanner rowScanner, result *[]byte) (Entry, error) {
	var (
		entry     Entry
		thumbnail []byte
		createdNS int64
		createdAt string
	)
	dest := []any{&entry.ID, &entry.OriginalFilename, &entry.ConvertedFilename, &entry.OutputFormat}
	if result != nil {
		dest = append(dest, result)
	}
	dest = append(dest,
		&entry.ResultMIME,
		&entry.ResultSize,
		&thumbnail,
		&entry.ThumbnailMIME,
		&entry.ThumbnailSize,
		&createdAt,
		&createdNS,
	)
	if err := scanner.Scan(dest...); err != nil {
		return Entry{}, err
	}
	entry.Thumbnail = thumbnail
	entry.Timestamp = time.Unix(0, createdNS).UTC()
	if entry.ResultMIME == "" {
		entry.ResultMIME = DefaultResultMIME
	}
	if entry.ThumbnailMIME == "" {
		entry.ThumbnailMIME = DefaultThumbnailMIME
	}
	return entry, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
