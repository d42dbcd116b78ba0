package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vconv/internal/services"
)

// DefaultFallbackLimit caps the number of records kept by the fallback tier.
const DefaultFallbackLimit = 50

// FlatBackend stores the fallback list as one opaque value.
type FlatBackend interface {
	// Load returns nil data when nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
	Close() error
}

// fallbackRecord is the metadata-only shape kept in the flat backend.
type fallbackRecord struct {
	ID                string    `json:"id"`
	OriginalFilename  string    `json:"originalFilename"`
	ConvertedFilename string    `json:"convertedFilename"`
	OutputFormat      string    `json:"outputFormat"`
	BlobType          string    `json:"blobType"`
	ThumbnailType     string    `json:"thumbnailType"`
	BlobSize          int64     `json:"blobSize"`
	ThumbnailSize     int64     `json:"thumbnailSize"`
	Timestamp         time.Time `json:"timestamp"`
}

// FallbackStore keeps at most limit metadata records, newest first.
type FallbackStore struct {
	backend FlatBackend
	limit   int

	mu sync.Mutex
}

// NewFallbackStore wraps backend. A non-positive limit uses DefaultFallbackLimit.
func NewFallbackStore(backend FlatBackend, limit int) *FallbackStore {
	if limit <= 0 {
		limit = DefaultFallbackLimit
	}
	return &FallbackStore{backend: backend, limit: limit}
}

// Close releases the backend.
func (f *FallbackStore) Close() error {
	if f == nil || f.backend == nil {
		return nil
	}
	return f.backend.Close()
}

// Save prepends the entry's metadata, replacing any record with the same id,
// and truncates the list to the limit.
func (f *FallbackStore) Save(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("history entry id required")
	}
	entry = entry.withSizes()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load(ctx)
	if err != nil {
		return err
	}
	next := make([]fallbackRecord, 0, len(records)+1)
	next = append(next, recordFromEntry(entry))
	for _, rec := range records {
		if rec.ID == entry.ID {
			continue
		}
		next = append(next, rec)
	}
	if len(next) > f.limit {
		next = next[:f.limit]
	}
	return f.store(ctx, next)
}

// List returns the stored records as degraded entries with empty payloads.
func (f *FallbackStore) List(ctx context.Context) ([]Entry, error) {
	f.mu.Lock()
	records, err := f.load(ctx)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, rec.entry())
	}
	return entries, nil
}

// Get returns one degraded entry.
func (f *FallbackStore) Get(ctx context.Context, id string) (Entry, error) {
	entries, err := f.List(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("history entry %s: %w", id, services.ErrNotFound)
}

// Clear removes the stored list.
func (f *FallbackStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.backend.Remove(ensureContext(ctx)); err != nil {
		return fmt.Errorf("clear fallback history: %w", err)
	}
	return nil
}

func (f *FallbackStore) load(ctx context.Context) ([]fallbackRecord, error) {
	data, err := f.backend.Load(ensureContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("load fallback history: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []fallbackRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode fallback history: %w", err)
	}
	return records, nil
}

func (f *FallbackStore) store(ctx context.Context, records []fallbackRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode fallback history: %w", err)
	}
	if err := f.backend.Store(ensureContext(ctx), data); err != nil {
		return fmt.Errorf("store fallback history: %w", err)
	}
	return nil
}

func recordFromEntry(entry Entry) fallbackRecord {
	return fallbackRecord{
		ID:                entry.ID,
		OriginalFilename:  entry.OriginalFilename,
		ConvertedFilename: entry.ConvertedFilename,
		OutputFormat:      entry.OutputFormat,
		BlobType:          entry.ResultMIME,
		ThumbnailType:     entry.ThumbnailMIME,
		BlobSize:          entry.ResultSize,
		ThumbnailSize:     entry.ThumbnailSize,
		Timestamp:         entry.Timestamp.UTC(),
	}
}

func (r fallbackRecord) entry() Entry {
	return Entry{
		ID:                r.ID,
		OriginalFilename:  r.OriginalFilename,
		ConvertedFilename: r.ConvertedFilename,
		OutputFormat:      r.OutputFormat,
		ResultMIME:        defaultString(r.BlobType, DefaultResultMIME),
		ResultSize:        r.BlobSize,
		ThumbnailMIME:     defaultString(r.ThumbnailType, DefaultThumbnailMIME),
		ThumbnailSize:     r.ThumbnailSize,
		Timestamp:         r.Timestamp,
		Degraded:          true,
	}
}
