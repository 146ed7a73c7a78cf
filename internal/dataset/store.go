package dataset

import "sync/atomic"

// Store publishes the current snapshot. Replace is a single pointer swap, so readers see
// either the old or the new dataset, never a mix.
type Store struct {
	current atomic.Pointer[Dataset]
}

func NewStore(initial *Dataset) *Store {
	store := &Store{}
	if initial != nil {
		store.current.Store(initial)
	}
	return store
}

// Current returns the published snapshot or ErrNotLoaded.
func (s *Store) Current() (*Dataset, error) {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil, ErrNotLoaded
	}
	return snapshot, nil
}

// Replace publishes next and returns the snapshot it replaced, if any.
func (s *Store) Replace(next *Dataset) *Dataset {
	return s.current.Swap(next)
}
