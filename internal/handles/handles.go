// Package handles issues short-lived display handles for in-memory payloads.
// A handle is an opaque token the HTTP API resolves back to the bytes; it
// lives only in this process and is never persisted.
package handles

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Placeholder is returned for empty payloads.
const Placeholder = "/placeholder.svg"

// DefaultTTL bounds how long an unused handle stays resolvable.
const DefaultTTL = time.Hour

type payload struct {
	data      []byte
	mediaType string
	expires   time.Time
	key       contentKey
}

// contentKey identifies a payload by media type and bytes.
type contentKey [sha256.Size]byte

func keyFor(data []byte, mediaType string) contentKey {
	h := sha256.New()
	h.Write([]byte(mediaType))
	h.Write([]byte{0})
	h.Write(data)
	var k contentKey
	h.Sum(k[:0])
	return k
}

// Registry maps tokens to payloads. Identical payloads share one token
// while it is live.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]payload
	tokens  map[contentKey]string
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry returns an empty registry. A non-positive ttl uses DefaultTTL.
func NewRegistry(ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]payload),
		tokens:  make(map[contentKey]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Materialize returns the handle for data, or Placeholder when data is
// empty. A live handle for the same bytes and media type is reused and its
// expiry pushed out; otherwise a new token is issued.
func (r *Registry) Materialize(data []byte, mediaType string) string {
	if len(data) == 0 {
		return Placeholder
	}
	key := keyFor(data, mediaType)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if token, ok := r.tokens[key]; ok {
		if p, live := r.entries[token]; live && now.Before(p.expires) {
			p.expires = now.Add(r.ttl)
			r.entries[token] = p
			return token
		}
		r.drop(token)
	}
	token := uuid.NewString()
	r.entries[token] = payload{
		data:      append([]byte(nil), data...),
		mediaType: mediaType,
		expires:   now.Add(r.ttl),
		key:       key,
	}
	r.tokens[key] = token
	return token
}

// drop removes token and its content index entry. Callers hold r.mu.
func (r *Registry) drop(token string) {
	if p, ok := r.entries[token]; ok {
		if r.tokens[p.key] == token {
			delete(r.tokens, p.key)
		}
		delete(r.entries, token)
	}
}

// Resolve returns the payload behind token while it has not expired.
func (r *Registry) Resolve(token string) ([]byte, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[token]
	if !ok {
		return nil, "", false
	}
	if !r.now().Before(p.expires) {
		r.drop(token)
		return nil, "", false
	}
	return p.data, p.mediaType, true
}

// Sweep drops expired handles and reports how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for token, p := range r.entries {
		if !now.Before(p.expires) {
			r.drop(token)
			removed++
		}
	}
	return removed
}

// Len returns the number of live and not yet swept handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
