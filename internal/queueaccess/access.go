package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"io"

	"vconv/internal/api"
	"vconv/internal/history"
	"vconv/internal/services"
)

// ErrDaemonNotRunning is returned for queue operations when only the
// history store is reachable. The queue lives in daemon memory.
var ErrDaemonNotRunning = errors.New("daemon not running; start it with `vconv start` or `vconv serve`")

// Access provides queue and history operations regardless of whether the
// daemon API or the history store backs them.
type Access interface {
	Status(ctx context.Context) (*api.DaemonStatus, error)
	ListQueue(ctx context.Context) ([]api.Job, error)
	RemoveJob(ctx context.Context, id string) error
	ClearQueue(ctx context.Context) error
	ListHistory(ctx context.Context) ([]api.HistoryEntry, error)
	ClearHistory(ctx context.Context) error
	DownloadHistory(ctx context.Context, id string, w io.Writer) (string, error)
}

// NewAPIAccess returns an Access backed by the daemon API.
func NewAPIAccess(client *api.Client) Access {
	return client
}

// NewStoreAccess returns an Access backed by direct history store access.
func NewStoreAccess(store history.Store) Access {
	return &storeAccess{store: store}
}

type storeAccess struct {
	store history.Store
}

func (a *storeAccess) Status(context.Context) (*api.DaemonStatus, error) {
	return &api.DaemonStatus{Running: false, Mode: "idle"}, nil
}

func (a *storeAccess) ListQueue(context.Context) ([]api.Job, error) {
	return nil, ErrDaemonNotRunning
}

func (a *storeAccess) RemoveJob(context.Context, string) error {
	return ErrDaemonNotRunning
}

func (a *storeAccess) ClearQueue(context.Context) error {
	return ErrDaemonNotRunning
}

func (a *storeAccess) ListHistory(ctx context.Context) ([]api.HistoryEntry, error) {
	entries, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FromHistoryEntries(entries), nil
}

func (a *storeAccess) ClearHistory(ctx context.Context) error {
	return a.store.Clear(ctx)
}

func (a *storeAccess) DownloadHistory(ctx context.Context, id string, w io.Writer) (string, error) {
	entry, err := a.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if entry.Degraded || len(entry.Result) == 0 {
		return "", services.Wrap(services.ErrNotFound, "history", "download", fmt.Sprintf("converted file for %s was not retained", id), nil)
	}
	if _, err := w.Write(entry.Result); err != nil {
		return "", err
	}
	return entry.ConvertedFilename, nil
}
