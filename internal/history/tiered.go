package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"vconv/internal/logging"
	"vconv/internal/services"
)

// Materializer turns payload bytes into a transient display handle.
type Materializer interface {
	Materialize(data []byte, mediaType string) string
}

// PrimaryOpener opens the primary tier. It is retried on every operation
// until it succeeds.
type PrimaryOpener func(ctx context.Context) (PrimaryStore, error)

// TieredStore routes operations to the primary tier and degrades to the
// fallback tier when the primary is unavailable.
type TieredStore struct {
	open         PrimaryOpener
	fallback     Store
	materializer Materializer
	logger       *slog.Logger

	mu      sync.Mutex
	primary PrimaryStore
}

// NewTieredStore builds a store over the two tiers. materializer may be nil,
// in which case listed entries carry no thumbnail handle.
func NewTieredStore(open PrimaryOpener, fallback Store, materializer Materializer, logger *slog.Logger) *TieredStore {
	return &TieredStore{
		open:         open,
		fallback:     fallback,
		materializer: materializer,
		logger:       logging.NewComponentLogger(logger, "history"),
	}
}

func (t *TieredStore) primaryStore(ctx context.Context) (PrimaryStore, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primary != nil {
		return t.primary, nil
	}
	if t.open == nil {
		return nil, ErrPrimaryUnavailable
	}
	store, err := t.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	t.primary = store
	return store, nil
}

// Save writes the entry to the primary tier, or its metadata to the fallback
// tier when the primary cannot take it.
func (t *TieredStore) Save(ctx context.Context, entry Entry) error {
	primary, err := t.primaryStore(ctx)
	if err == nil {
		if err = primary.Save(ctx, entry); err == nil {
			return nil
		}
	}
	t.degraded(ctx, "save", entry.ID, err)
	if fbErr := t.fallback.Save(ctx, entry); fbErr != nil {
		return &PersistenceError{Tier: "fallback", Op: "save", Err: errors.Join(err, fbErr)}
	}
	return nil
}

// List returns entries newest first with thumbnail handles regenerated.
func (t *TieredStore) List(ctx context.Context) ([]Entry, error) {
	entries, err := t.listPrimary(ctx)
	if err != nil {
		t.degraded(ctx, "list", "", err)
		entries, err = t.fallback.List(ctx)
		if err != nil {
			return nil, &PersistenceError{Tier: "fallback", Op: "list", Err: err}
		}
	}
	for i := range entries {
		entries[i].ThumbnailHandle = t.materialize(entries[i].Thumbnail, entries[i].ThumbnailMIME)
	}
	return entries, nil
}

func (t *TieredStore) listPrimary(ctx context.Context) ([]Entry, error) {
	primary, err := t.primaryStore(ctx)
	if err != nil {
		return nil, err
	}
	return primary.List(ctx)
}

// Get returns one entry, consulting the fallback only when the primary is
// unavailable or does not hold the id.
func (t *TieredStore) Get(ctx context.Context, id string) (Entry, error) {
	primary, err := t.primaryStore(ctx)
	if err == nil {
		entry, getErr := primary.Get(ctx, id)
		if getErr == nil {
			entry.ThumbnailHandle = t.materialize(entry.Thumbnail, entry.ThumbnailMIME)
			return entry, nil
		}
		if !errors.Is(getErr, services.ErrNotFound) {
			t.degraded(ctx, "get", id, getErr)
		}
	}
	entry, err := t.fallback.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	entry.ThumbnailHandle = t.materialize(nil, entry.ThumbnailMIME)
	return entry, nil
}

// Clear empties both tiers, attempting each even when the other fails.
func (t *TieredStore) Clear(ctx context.Context) error {
	var errs []error
	primary, err := t.primaryStore(ctx)
	if err != nil {
		errs = append(errs, &PersistenceError{Tier: "primary", Op: "clear", Err: err})
	} else if err := primary.Clear(ctx); err != nil {
		errs = append(errs, &PersistenceError{Tier: "primary", Op: "clear", Err: err})
	}
	if err := t.fallback.Clear(ctx); err != nil {
		errs = append(errs, &PersistenceError{Tier: "fallback", Op: "clear", Err: err})
	}
	return errors.Join(errs...)
}

// Close closes the primary tier if it was opened and the fallback tier if it
// owns a connection.
func (t *TieredStore) Close() error {
	t.mu.Lock()
	primary := t.primary
	t.primary = nil
	t.mu.Unlock()

	var errs []error
	if primary != nil {
		errs = append(errs, primary.Close())
	}
	if closer, ok := t.fallback.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

func (t *TieredStore) materialize(data []byte, mediaType string) string {
	if t.materializer == nil {
		return ""
	}
	return t.materializer.Materialize(data, mediaType)
}

func (t *TieredStore) degraded(ctx context.Context, op, id string, err error) {
	attrs := []logging.Attr{
		logging.String("operation", op),
		logging.String(logging.FieldErrorHint, "check history.driver and history.dsn"),
		logging.String(logging.FieldImpact, "history payloads are not kept until the primary store recovers"),
		logging.Error(err),
	}
	if id != "" {
		attrs = append(attrs, logging.JobID(id))
	}
	logging.WarnWithContext(logging.WithContext(ctx, t.logger), "primary history store unavailable, using fallback", "history_degraded", attrs...)
}
