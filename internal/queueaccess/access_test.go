package queueaccess_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"vconv/internal/api"
	"vconv/internal/handles"
	"vconv/internal/history"
	"vconv/internal/queueaccess"
	"vconv/internal/services"
	"vconv/internal/testsupport"
)

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	ctx := context.Background()

	session, err := queueaccess.OpenWithFallback(
		func() (*api.Client, error) { return nil, errors.New("connection refused") },
		func() (*history.TieredStore, error) {
			return history.Open(ctx, cfg, nil, handles.NewRegistry(time.Minute))
		},
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if session.Live {
		t.Fatal("expected offline session")
	}

	if _, err := session.Access.ListQueue(ctx); !errors.Is(err, queueaccess.ErrDaemonNotRunning) {
		t.Fatalf("ListQueue err = %v", err)
	}
	if err := session.Access.ClearQueue(ctx); !errors.Is(err, queueaccess.ErrDaemonNotRunning) {
		t.Fatalf("ClearQueue err = %v", err)
	}
	status, err := session.Access.Status(ctx)
	if err != nil || status.Running {
		t.Fatalf("Status = %+v, %v", status, err)
	}

	entries, err := session.Access.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}
}

func TestStoreAccessHistoryOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg, handles.NewRegistry(time.Minute))
	ctx := context.Background()
	if err := store.Save(ctx, history.Entry{
		ID:                "job-1",
		OriginalFilename:  "clip.avi",
		ConvertedFilename: "clip.mp4",
		OutputFormat:      "mp4",
		Result:            []byte("mp4-data"),
		ResultMIME:        "video/mp4",
		Timestamp:         time.Now(),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	access := queueaccess.NewStoreAccess(store)
	entries, err := access.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].ConvertedFilename != "clip.mp4" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].ThumbnailURL != handles.Placeholder {
		t.Fatalf("entry without thumbnail should use placeholder, got %q", entries[0].ThumbnailURL)
	}

	var buf bytes.Buffer
	name, err := access.DownloadHistory(ctx, "job-1", &buf)
	if err != nil {
		t.Fatalf("DownloadHistory: %v", err)
	}
	if name != "clip.mp4" || buf.String() != "mp4-data" {
		t.Fatalf("download = %q %q", name, buf.String())
	}
	if _, err := access.DownloadHistory(ctx, "missing", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := access.ClearHistory(ctx); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	entries, err = access.ListHistory(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("after clear: %d entries, %v", len(entries), err)
	}
}

func TestOpenWithFallbackRequiresOpener(t *testing.T) {
	_, err := queueaccess.OpenWithFallback(func() (*api.Client, error) {
		return nil, errors.New("down")
	}, nil)
	if err == nil {
		t.Fatal("expected error without a store opener")
	}
}
