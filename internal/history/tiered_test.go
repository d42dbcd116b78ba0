package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vconv/internal/handles"
	"vconv/internal/history"
	"vconv/internal/logging"
	"vconv/internal/testsupport"
)

const placeholder = "placeholder"

type recordingMaterializer struct {
	calls int
}

func (m *recordingMaterializer) Materialize(data []byte, mediaType string) string {
	m.calls++
	if len(data) == 0 {
		return placeholder
	}
	return "handle:" + mediaType + ":" + string(data)
}

func failingOpener(err error) history.PrimaryOpener {
	return func(context.Context) (history.PrimaryStore, error) { return nil, err }
}

func TestTieredStoreUsesPrimaryAndRegeneratesHandles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mat := &recordingMaterializer{}
	store := testsupport.MustOpenHistory(t, cfg, mat)
	ctx := context.Background()

	if err := store.Save(ctx, sampleEntry("one", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for round := 1; round <= 2; round++ {
		entries, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected one entry, got %d", len(entries))
		}
		if entries[0].Degraded {
			t.Fatal("expected primary entry")
		}
		if entries[0].ThumbnailHandle != "handle:image/jpeg:thumb-one" {
			t.Fatalf("unexpected handle %q", entries[0].ThumbnailHandle)
		}
		if mat.calls != round {
			t.Fatalf("expected handle regenerated per list, calls=%d", mat.calls)
		}
	}
}

func TestTieredStoreListKeepsRegistryBounded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := handles.NewRegistry(time.Minute)
	store := testsupport.MustOpenHistory(t, cfg, registry)
	ctx := context.Background()

	if err := store.Save(ctx, sampleEntry("one", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var token string
	for round := 0; round < 5; round++ {
		entries, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if round == 0 {
			token = entries[0].ThumbnailHandle
		} else if entries[0].ThumbnailHandle != token {
			t.Fatalf("round %d issued a new handle %q", round, entries[0].ThumbnailHandle)
		}
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one registered thumbnail, got %d", registry.Len())
	}
	data, _, ok := registry.Resolve(token)
	if !ok || string(data) != "thumb-one" {
		t.Fatalf("handle did not resolve: ok=%v data=%q", ok, data)
	}
}

func TestTieredStoreDegradesWhenPrimaryUnavailable(t *testing.T) {
	backend := &testsupport.MemoryBackend{}
	fallback := history.NewFallbackStore(backend, 0)
	store := history.NewTieredStore(failingOpener(errors.New("disk gone")), fallback, &recordingMaterializer{}, logging.NewNop())
	ctx := context.Background()

	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := store.Save(ctx, sampleEntry("deg", ts)); err != nil {
		t.Fatalf("Save should degrade silently, got %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != "deg" || got.OriginalFilename != "deg.avi" || got.OutputFormat != "mp4" || !got.Timestamp.Equal(ts) {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if len(got.Result) != 0 || len(got.Thumbnail) != 0 {
		t.Fatal("expected empty payloads")
	}
	if got.ThumbnailHandle != placeholder {
		t.Fatalf("expected placeholder handle, got %q", got.ThumbnailHandle)
	}
	if !got.Degraded {
		t.Fatal("expected degraded entry")
	}
}

func TestTieredStoreRetriesPrimaryOpen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dsn := cfg.HistoryDSN()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	attempts := 0
	opener := func(ctx context.Context) (history.PrimaryStore, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("not yet")
		}
		return history.OpenSQL(ctx, history.DriverSQLite, dsn)
	}
	store := history.NewTieredStore(opener, history.NewFallbackStore(&testsupport.MemoryBackend{}, 0), nil, logging.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if err := store.Save(ctx, sampleEntry("first", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, sampleEntry("second", time.Now().Add(time.Second))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected opener retried once, attempts=%d", attempts)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "second" || entries[0].Degraded {
		t.Fatalf("expected only the second entry in primary, got %+v", entries)
	}
	if attempts != 2 {
		t.Fatalf("opener should not run again once open, attempts=%d", attempts)
	}
}

func TestTieredStoreClearEmptiesBothTiers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	seed, err := history.OpenFallback(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenFallback: %v", err)
	}
	if err := seed.Save(ctx, sampleEntry("f", time.Now())); err != nil {
		t.Fatalf("seed fallback: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("close seed: %v", err)
	}

	store, err := history.Open(ctx, cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(ctx, sampleEntry("p", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty primary, got %d", len(entries))
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	check, err := history.OpenFallback(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen fallback: %v", err)
	}
	defer check.Close()
	left, err := check.List(ctx)
	if err != nil {
		t.Fatalf("fallback List: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected empty fallback, got %d", len(left))
	}
}

func TestTieredStoreClearReachesFallbackWhenPrimaryDown(t *testing.T) {
	backend := &testsupport.MemoryBackend{}
	fallback := history.NewFallbackStore(backend, 0)
	ctx := context.Background()
	if err := fallback.Save(ctx, sampleEntry("f", time.Now())); err != nil {
		t.Fatalf("seed fallback: %v", err)
	}
	store := history.NewTieredStore(failingOpener(errors.New("down")), fallback, nil, logging.NewNop())

	err := store.Clear(ctx)
	if !errors.Is(err, history.ErrPrimaryUnavailable) {
		t.Fatalf("expected primary error to be reported, got %v", err)
	}
	if backend.Data != nil {
		t.Fatal("fallback tier was not cleared")
	}
}

func TestTieredStoreSaveReportsBothTiersFailing(t *testing.T) {
	backend := &testsupport.MemoryBackend{StoreErr: errors.New("full")}
	store := history.NewTieredStore(failingOpener(errors.New("down")), history.NewFallbackStore(backend, 0), nil, logging.NewNop())
	err := store.Save(context.Background(), sampleEntry("x", time.Now()))
	var perr *history.PersistenceError
	if !errors.As(err, &perr) || perr.Tier != "fallback" {
		t.Fatalf("expected fallback PersistenceError, got %v", err)
	}
}
