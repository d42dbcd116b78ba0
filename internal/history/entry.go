package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default media types applied to entries read back without one.
const (
	DefaultResultMIME    = "application/octet-stream"
	DefaultThumbnailMIME = "image/jpeg"
)

// Entry is one completed conversion.
type Entry struct {
	ID                string
	OriginalFilename  string
	ConvertedFilename string
	OutputFormat      string
	Result            []byte
	ResultMIME        string
	ResultSize        int64
	Thumbnail         []byte
	ThumbnailMIME     string
	ThumbnailSize     int64
	Timestamp         time.Time

	// ThumbnailHandle is regenerated on every successful List and never persisted.
	ThumbnailHandle string
	// Degraded marks entries read from the fallback tier; their payloads are empty.
	Degraded bool
}

// withSizes fills the size fields from the payloads when they are unset.
func (e Entry) withSizes() Entry {
	if e.ResultSize == 0 {
		e.ResultSize = int64(len(e.Result))
	}
	if e.ThumbnailSize == 0 {
		e.ThumbnailSize = int64(len(e.Thumbnail))
	}
	return e
}

// Store is the persistence contract shared by both tiers.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	// List returns every entry, newest first, without the Result payload.
	List(ctx context.Context) ([]Entry, error)
	// Get returns one entry or an error matching services.ErrNotFound.
	Get(ctx context.Context, id string) (Entry, error)
	Clear(ctx context.Context) error
}

// PrimaryStore is a Store that owns a connection.
type PrimaryStore interface {
	Store
	Close() error
}

// ErrPrimaryUnavailable marks failures to open the primary tier.
var ErrPrimaryUnavailable = errors.New("primary history store unavailable")

// PersistenceError reports a failed operation on one tier.
type PersistenceError struct {
	Tier string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
