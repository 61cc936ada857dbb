package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNoUser is returned when a store is requested without an identity.
var ErrNoUser = errors.New("no user id")

// Registry hands out one Store per user id and owns their lifetime. A
// Registry with an empty directory opens in-memory databases.
type Registry struct {
	dir string

	mu     sync.Mutex
	stores map[string]*Store
	group  singleflight.Group
}

func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, stores: make(map[string]*Store)}
}

// PathFor returns the database file used for userID.
func (r *Registry) PathFor(userID string) string {
	if r.dir == "" {
		return ":memory:"
	}
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(r.dir, "users", hex.EncodeToString(sum[:]), "done.db")
}

// Open returns the cached store for userID, creating and migrating it on
// first use. Concurrent calls for the same user share one open.
func (r *Registry) Open(ctx context.Context, userID string) (*Store, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if s := r.cached(userID); s != nil {
		return s, nil
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		if s := r.cached(userID); s != nil {
			return s, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := New(r.PathFor(userID))
		if err != nil {
			return nil, fmt.Errorf("open store for %s: %w", userID, err)
		}
		s.userID = userID

		r.mu.Lock()
		r.stores[userID] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) cached(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[userID]
}

// Users lists the user ids with an open store.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.stores))
	for id := range r.stores {
		out = append(out, id)
	}
	return out
}

// CloseAll closes every open store and forgets it. Later Open calls create
// fresh handles.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	var errs []error
	for id, s := range stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store for %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
