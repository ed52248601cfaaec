// Package memstore is an in-memory implementation of port.Store. It backs
// local runs and tests with the same transactional contract as the
// Postgres store: WithinTx works on a private copy of the data that
// replaces the shared state only when fn succeeds.
package memstore

import (
	"context"
	"sync"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
	"github.com/boddenberg/agro-commercial-go/internal/port"
)

type state struct {
	catalogs      map[string]domain.Catalog // items live in items
	items         map[string]domain.CatalogItem
	segmentations map[string]domain.Segmentation
	bands         map[string]domain.SegmentationBand
	discounts     map[string]domain.BandDiscount
	combos        map[string]domain.Combo
}

func newState() *state {
	return &state{
		catalogs:      make(map[string]domain.Catalog),
		items:         make(map[string]domain.CatalogItem),
		segmentations: make(map[string]domain.Segmentation),
		bands:         make(map[string]domain.SegmentationBand),
		discounts:     make(map[string]domain.BandDiscount),
		combos:        make(map[string]domain.Combo),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.catalogs {
		c.catalogs[k] = cloneCatalog(v)
	}
	for k, v := range s.items {
		c.items[k] = cloneItem(v)
	}
	for k, v := range s.segmentations {
		c.segmentations[k] = cloneSegmentation(v)
	}
	for k, v := range s.bands {
		c.bands[k] = cloneBand(v)
	}
	for k, v := range s.discounts {
		c.discounts[k] = v
	}
	for k, v := range s.combos {
		c.combos[k] = cloneCombo(v)
	}
	return c
}

// Store is a thread-safe in-memory port.Store.
type Store struct {
	mu   sync.RWMutex // guards st
	txMu sync.Mutex   // serializes writers
	st   *state
}

var _ port.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// WithinTx runs fn against a snapshot. Writers are serialized, readers
// keep seeing the previous committed state until fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &view{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// read runs fn against the committed state under a read lock.
func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{st: s.st})
}

// write wraps a single repository write in its own transaction.
func (s *Store) write(ctx context.Context, fn func(repos port.Repositories) error) error {
	return s.WithinTx(ctx, func(_ context.Context, repos port.Repositories) error {
		return fn(repos)
	})
}
