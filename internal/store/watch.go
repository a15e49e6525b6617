package store

import (
	"context"
	"sort"
	"sync"
)

// DocWatch is a cancellable stream of single-document snapshots. The channel
// is closed after Cancel or context cancellation.
type DocWatch struct {
	C      <-chan Snapshot
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *DocWatch) Cancel() {
	w.once.Do(w.cancel)
}

// QueryWatch is a cancellable stream of query result snapshots.
type QueryWatch struct {
	C      <-chan QuerySnapshot
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *QueryWatch) Cancel() {
	w.once.Do(w.cancel)
}

// waiter carries a coalescing change signal to one subscriber goroutine.
// Signals between fetches collapse into a single refetch, so a slow consumer
// sees fewer, fresher snapshots instead of a growing backlog.
type waiter struct {
	signal chan struct{}
}

func (w *waiter) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Notifier fans document change events out to registered watchers. Backends
// call Publish after every acknowledged mutation; watchers refetch through
// the owning store, so a snapshot always reflects that store's latest state.
type Notifier struct {
	mu          sync.Mutex
	keyWaiters  map[Key]map[*waiter]struct{}
	collWaiters map[string]map[*waiter]struct{}
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		keyWaiters:  make(map[Key]map[*waiter]struct{}),
		collWaiters: make(map[string]map[*waiter]struct{}),
	}
}

// Publish signals every watcher interested in the key or its collection.
func (n *Notifier) Publish(key Key) {
	n.mu.Lock()
	for w := range n.keyWaiters[key] {
		w.notify()
	}
	for w := range n.collWaiters[key.Collection] {
		w.notify()
	}
	n.mu.Unlock()
}

func (n *Notifier) addKeyWaiter(key Key, w *waiter) {
	n.mu.Lock()
	if n.keyWaiters[key] == nil {
		n.keyWaiters[key] = make(map[*waiter]struct{})
	}
	n.keyWaiters[key][w] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) removeKeyWaiter(key Key, w *waiter) {
	n.mu.Lock()
	delete(n.keyWaiters[key], w)
	if len(n.keyWaiters[key]) == 0 {
		delete(n.keyWaiters, key)
	}
	n.mu.Unlock()
}

func (n *Notifier) addCollWaiter(coll string, w *waiter) {
	n.mu.Lock()
	if n.collWaiters[coll] == nil {
		n.collWaiters[coll] = make(map[*waiter]struct{})
	}
	n.collWaiters[coll][w] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) removeCollWaiter(coll string, w *waiter) {
	n.mu.Lock()
	delete(n.collWaiters[coll], w)
	if len(n.collWaiters[coll]) == 0 {
		delete(n.collWaiters, coll)
	}
	n.mu.Unlock()
}

// WatchDoc builds a DocWatch over fetch, refetching on every published change
// to key. onErr receives fetch failures; the stream then continues with the
// next change rather than dying.
func (n *Notifier) WatchDoc(ctx context.Context, key Key, fetch func(context.Context) (Snapshot, error), onErr func(error)) *DocWatch {
	out := make(chan Snapshot, 1)
	done := make(chan struct{})
	w := &waiter{signal: make(chan struct{}, 1)}
	n.addKeyWaiter(key, w)

	go func() {
		defer close(out)
		defer n.removeKeyWaiter(key, w)
		for first := true; ; first = false {
			if !first {
				select {
				case <-w.signal:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
			snap, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			select {
			case out <- snap:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return &DocWatch{C: out, cancel: func() { close(done) }}
}

// WatchColl builds a QueryWatch over fetch, refetching on every published
// change in the collection.
func (n *Notifier) WatchColl(ctx context.Context, coll string, fetch func(context.Context) (QuerySnapshot, error), onErr func(error)) *QueryWatch {
	out := make(chan QuerySnapshot, 1)
	done := make(chan struct{})
	w := &waiter{signal: make(chan struct{}, 1)}
	n.addCollWaiter(coll, w)

	go func() {
		defer close(out)
		defer n.removeCollWaiter(coll, w)
		for first := true; ; first = false {
			if !first {
				select {
				case <-w.signal:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
			snap, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			select {
			case out <- snap:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return &QueryWatch{C: out, cancel: func() { close(done) }}
}

// SortDocs orders snapshots ascending by the named field, numbers before
// strings, missing fields last. The sort is stable so equal timestamps keep
// write order.
func SortDocs(docs []Snapshot, field string) {
	if field == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return lessValue(docs[i].Data[field], docs[j].Data[field])
	})
}

func lessValue(a, b any) bool {
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	switch {
	case aok && bok:
		return fa < fb
	case aok:
		return true
	case bok:
		return false
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	switch {
	case aok && bok:
		return sa < sb
	case aok:
		return true
	default:
		return false
	}
}
