package queueaccess

import (
	"fmt"

	"vconv/internal/api"
	"vconv/internal/history"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	// Live is true when the daemon API backs the session.
	Live  bool
	close func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries the daemon API first, then falls back to opening
// the history store directly.
func OpenWithFallback(
	dial func() (*api.Client, error),
	openStore func() (*history.TieredStore, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewAPIAccess(client),
				Live:   true,
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open history store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open history store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
