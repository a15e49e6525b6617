// Package presence derives and publishes users' online/offline state with an
// offline grace window, and exposes presence subscriptions over a set of
// users.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"playroom/internal/models"
	"playroom/internal/store"
)

// DefaultGrace is the offline grace window armed when a client backgrounds.
// Brief tab switches come back inside the window and never flap to offline.
const DefaultGrace = 30 * time.Second

const writeTimeout = 5 * time.Second

// Manager owns the offline grace timers of every locally connected user and
// publishes the online flag through the document store.
type Manager struct {
	store store.Store
	log   *slog.Logger
	grace time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewManager returns a Manager publishing through st. A non-positive grace
// falls back to DefaultGrace.
func NewManager(st store.Store, grace time.Duration, log *slog.Logger) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{
		store:  st,
		log:    log,
		grace:  grace,
		timers: make(map[string]*time.Timer),
	}
}

// MarkOnline publishes online=true for the user. Writes are best-effort: the
// caller may ignore the error, the flag converges on the next transition.
func (m *Manager) MarkOnline(ctx context.Context, uid string) error {
	if err := m.store.SetMerge(ctx, models.UserKey(uid), store.Doc{"online": true}); err != nil {
		m.log.Error("mark online failed", "uid", uid, "error", err)
		return models.NewStoreError(err)
	}
	return nil
}

// MarkOffline stops any armed timer and publishes online=false immediately.
// Logout uses this path: offline is asserted before the session is cleared.
func (m *Manager) MarkOffline(ctx context.Context, uid string) error {
	m.stopTimer(uid)
	if err := m.store.SetMerge(ctx, models.UserKey(uid), store.Doc{"online": false}); err != nil {
		m.log.Error("mark offline failed", "uid", uid, "error", err)
		return models.NewStoreError(err)
	}
	return nil
}

// ScheduleOffline arms the grace timer for the user. If CancelOffline does
// not arrive within the window, online=false is published. Re-arming resets
// the window.
func (m *Manager) ScheduleOffline(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if t, ok := m.timers[uid]; ok {
		t.Stop()
	}
	m.timers[uid] = time.AfterFunc(m.grace, func() {
		m.finalizeOffline(uid)
	})
}

// CancelOffline disarms the user's grace timer and re-asserts online.
func (m *Manager) CancelOffline(ctx context.Context, uid string) error {
	m.stopTimer(uid)
	return m.MarkOnline(ctx, uid)
}

// Stop disarms every timer. No offline writes fire after Stop returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for uid, t := range m.timers {
		t.Stop()
		delete(m.timers, uid)
	}
}

func (m *Manager) stopTimer(uid string) {
	m.mu.Lock()
	if t, ok := m.timers[uid]; ok {
		t.Stop()
		delete(m.timers, uid)
	}
	m.mu.Unlock()
}

func (m *Manager) finalizeOffline(uid string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	delete(m.timers, uid)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.store.SetMerge(ctx, models.UserKey(uid), store.Doc{"online": false}); err != nil {
		// Best-effort: transient inconsistency is acceptable, no retry.
		m.log.Error("grace offline write failed", "uid", uid, "error", err)
	}
}

// Update is one presence change delivered by a Watch.
type Update struct {
	UID    string
	Online bool
}

// Watch is a cancellable presence subscription over a set of users. C first
// delivers the initial state of each user, then every subsequent change.
type Watch struct {
	C      <-chan Update
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *Watch) Cancel() {
	w.once.Do(w.cancel)
}

// Watch subscribes to the online flag of each given user.
func (m *Manager) Watch(ctx context.Context, uids []string) (*Watch, error) {
	out := make(chan Update)
	done := make(chan struct{})

	watches := make([]*store.DocWatch, 0, len(uids))
	for _, uid := range uids {
		w, err := m.store.Watch(ctx, models.UserKey(uid))
		if err != nil {
			for _, open := range watches {
				open.Cancel()
			}
			return nil, models.NewStoreError(err)
		}
		watches = append(watches, w)
	}

	var wg sync.WaitGroup
	for i, w := range watches {
		wg.Add(1)
		go func(uid string, w *store.DocWatch) {
			defer wg.Done()
			for snap := range w.C {
				select {
				case out <- Update{UID: uid, Online: models.UserFromSnapshot(snap).Online}:
				case <-done:
					return
				}
			}
		}(uids[i], w)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	return &Watch{C: out, cancel: func() {
		close(done)
		for _, w := range watches {
			w.Cancel()
		}
	}}, nil
}
