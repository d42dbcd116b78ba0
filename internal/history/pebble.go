package history

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

var pebbleFallbackKey = []byte("history/fallback")

// PebbleBackend keeps the fallback list under one key in a local pebble store.
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) the pebble directory at path.
func OpenPebble(path string) (*PebbleBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("ensure fallback directory: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble fallback: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Load(context.Context) ([]byte, error) {
	value, closer, err := p.db.Get(pebbleFallbackKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (p *PebbleBackend) Store(_ context.Context, data []byte) error {
	return p.db.Set(pebbleFallbackKey, data, pebble.Sync)
}

func (p *PebbleBackend) Remove(context.Context) error {
	return p.db.Delete(pebbleFallbackKey, pebble.Sync)
}

func (p *PebbleBackend) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
