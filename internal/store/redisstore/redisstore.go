// Package redisstore implements the document store on Redis. Documents are
// JSON strings, collection membership is a set per collection, and change
// notification rides Redis pub/sub so independent processes see each other's
// writes.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"playroom/internal/store"
)

const (
	docKeyPrefix  = "pr:doc:"
	collKeyPrefix = "pr:coll:"
	changeChannel = "pr:changes"

	// Optimistic SetMerge retries before giving up on WATCH contention.
	maxMergeRetries = 8
)

type changeEvent struct {
	Collection string `json:"c"`
	ID         string `json:"i"`
}

// Store is a Redis-backed document store. One Store runs one pub/sub
// receiver; watchers refetch through Redis on every change event.
type Store struct {
	rdb      *redis.Client
	log      *slog.Logger
	notifier *store.Notifier
	pubsub   *redis.PubSub
	stop     context.CancelFunc
}

// New connects the store to an existing Redis client and starts the change
// receiver.
func New(rdb *redis.Client, log *slog.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		rdb:      rdb,
		log:      log,
		notifier: store.NewNotifier(),
		pubsub:   rdb.Subscribe(ctx, changeChannel),
		stop:     cancel,
	}
	go s.receiveLoop()
	return s
}

// Close stops the pub/sub receiver.
func (s *Store) Close() error {
	s.stop()
	return s.pubsub.Close()
}

func (s *Store) receiveLoop() {
	for msg := range s.pubsub.Channel() {
		var ev changeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.log.Warn("ignoring malformed change event", "payload", msg.Payload)
			continue
		}
		s.notifier.Publish(store.Key{Collection: ev.Collection, ID: ev.ID})
	}
}

func docKey(key store.Key) string {
	return docKeyPrefix + key.Collection + ":" + key.ID
}

func collKey(coll string) string {
	return collKeyPrefix + coll
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key store.Key) (store.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, docKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return store.Snapshot{Key: key}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	var data store.Doc
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return store.Snapshot{Key: key, Exists: true, Data: data}, nil
}

// SetMerge implements store.Store. The read-merge-write cycle runs under
// WATCH so concurrent merges to the same key serialize instead of losing
// fields.
func (s *Store) SetMerge(ctx context.Context, key store.Key, fields store.Doc) error {
	normalized, err := store.Normalize(fields)
	if err != nil {
		return err
	}

	dk := docKey(key)
	merge := func(tx *redis.Tx) error {
		var base store.Doc
		raw, err := tx.Get(ctx, dk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(raw), &base); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}
		out, err := json.Marshal(store.Merge(base, normalized))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, dk, out, 0)
			p.SAdd(ctx, collKey(key.Collection), key.ID)
			return nil
		})
		return err
	}

	for i := 0; i < maxMergeRetries; i++ {
		err := s.rdb.Watch(ctx, merge, dk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis merge %s: %w", key, err)
		}
		s.publish(ctx, key)
		return nil
	}
	return fmt.Errorf("redis merge %s: too much contention", key)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key store.Key) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, docKey(key))
		p.SRem(ctx, collKey(key.Collection), key.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	s.publish(ctx, key)
	return nil
}

// GetQuery implements store.Store.
func (s *Store) GetQuery(ctx context.Context, q store.Query) (store.QuerySnapshot, error) {
	ids, err := s.rdb.SMembers(ctx, collKey(q.Collection)).Result()
	if err != nil {
		return store.QuerySnapshot{}, fmt.Errorf("redis smembers %s: %w", q.Collection, err)
	}

	var docs []store.Snapshot
	for _, id := range ids {
		key := store.Key{Collection: q.Collection, ID: id}
		snap, err := s.Get(ctx, key)
		if err != nil {
			return store.QuerySnapshot{}, err
		}
		if !snap.Exists {
			// Membership set can lag a concurrent delete.
			continue
		}
		if store.Matches(snap.Data, q) {
			docs = append(docs, snap)
		}
	}

	store.SortDocs(docs, q.OrderBy)
	return store.QuerySnapshot{Docs: docs}, nil
}

// Watch implements store.Store.
func (s *Store) Watch(ctx context.Context, key store.Key) (*store.DocWatch, error) {
	return s.notifier.WatchDoc(ctx, key, func(ctx context.Context) (store.Snapshot, error) {
		return s.Get(ctx, key)
	}, s.watchErrLogger(key.String())), nil
}

// WatchQuery implements store.Store.
func (s *Store) WatchQuery(ctx context.Context, q store.Query) (*store.QueryWatch, error) {
	return s.notifier.WatchColl(ctx, q.Collection, func(ctx context.Context) (store.QuerySnapshot, error) {
		return s.GetQuery(ctx, q)
	}, s.watchErrLogger(q.Collection)), nil
}

func (s *Store) watchErrLogger(target string) func(error) {
	return func(err error) {
		s.log.Error("watch refetch failed", "target", target, "error", err)
	}
}

// publish notifies local watchers directly (read-your-writes without waiting
// on the pub/sub round trip) and broadcasts to other processes.
func (s *Store) publish(ctx context.Context, key store.Key) {
	s.notifier.Publish(key)
	payload, _ := json.Marshal(changeEvent{Collection: key.Collection, ID: key.ID})
	if err := s.rdb.Publish(ctx, changeChannel, payload).Err(); err != nil {
		s.log.Error("change publish failed", "key", key.String(), "error", err)
	}
}
