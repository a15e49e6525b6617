// Package memstore is the in-memory reference implementation of the document
// store. It backs unit tests and single-process development runs.
package memstore

import (
	"context"
	"sync"

	"playroom/internal/store"
)

// Store keeps documents in process memory, guarded by a single RWMutex.
// Writes are atomic per key; watchers are driven by a local notifier.
type Store struct {
	mu       sync.RWMutex
	docs     map[store.Key]store.Doc
	byColl   map[string]map[string]struct{}
	notifier *store.Notifier
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		docs:     make(map[store.Key]store.Doc),
		byColl:   make(map[string]map[string]struct{}),
		notifier: store.NewNotifier(),
	}
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, key store.Key) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[key]
	if !ok {
		return store.Snapshot{Key: key}, nil
	}
	return store.Snapshot{Key: key, Exists: true, Data: store.Merge(data, nil)}, nil
}

// SetMerge implements store.Store.
func (s *Store) SetMerge(_ context.Context, key store.Key, fields store.Doc) error {
	normalized, err := store.Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[key] = store.Merge(s.docs[key], normalized)
	if s.byColl[key.Collection] == nil {
		s.byColl[key.Collection] = make(map[string]struct{})
	}
	s.byColl[key.Collection][key.ID] = struct{}{}
	s.mu.Unlock()

	s.notifier.Publish(key)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(_ context.Context, key store.Key) error {
	s.mu.Lock()
	_, existed := s.docs[key]
	delete(s.docs, key)
	if ids, ok := s.byColl[key.Collection]; ok {
		delete(ids, key.ID)
		if len(ids) == 0 {
			delete(s.byColl, key.Collection)
		}
	}
	s.mu.Unlock()

	if existed {
		s.notifier.Publish(key)
	}
	return nil
}

// GetQuery implements store.Store.
func (s *Store) GetQuery(_ context.Context, q store.Query) (store.QuerySnapshot, error) {
	s.mu.RLock()
	var docs []store.Snapshot
	for id := range s.byColl[q.Collection] {
		key := store.Key{Collection: q.Collection, ID: id}
		data := s.docs[key]
		if store.Matches(data, q) {
			docs = append(docs, store.Snapshot{Key: key, Exists: true, Data: store.Merge(data, nil)})
		}
	}
	s.mu.RUnlock()

	store.SortDocs(docs, q.OrderBy)
	return store.QuerySnapshot{Docs: docs}, nil
}

// Watch implements store.Store.
func (s *Store) Watch(ctx context.Context, key store.Key) (*store.DocWatch, error) {
	return s.notifier.WatchDoc(ctx, key, func(ctx context.Context) (store.Snapshot, error) {
		return s.Get(ctx, key)
	}, nil), nil
}

// WatchQuery implements store.Store.
func (s *Store) WatchQuery(ctx context.Context, q store.Query) (*store.QueryWatch, error) {
	return s.notifier.WatchColl(ctx, q.Collection, func(ctx context.Context) (store.QuerySnapshot, error) {
		return s.GetQuery(ctx, q)
	}, nil), nil
}
