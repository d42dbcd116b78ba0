package testsupport

import (
	"context"
	"testing"

	"vconv/internal/config"
	"vconv/internal/history"
	"vconv/internal/logging"
)

// MustOpenHistory opens the tiered history store described by cfg and
// registers cleanup with the provided test.
func MustOpenHistory(t testing.TB, cfg *config.Config, materializer history.Materializer) *history.TieredStore {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := history.Open(context.Background(), cfg, logging.NewNop(), materializer)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MemoryBackend is an in-process history.FlatBackend.
type MemoryBackend struct {
	Data     []byte
	LoadErr  error
	StoreErr error
	Stores   int
}

func (m *MemoryBackend) Load(context.Context) ([]byte, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return append([]byte(nil), m.Data...), nil
}

func (m *MemoryBackend) Store(_ context.Context, data []byte) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.Stores++
	m.Data = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Remove(context.Context) error {
	m.Data = nil
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
