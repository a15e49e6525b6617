package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"playroom/internal/models"
	"playroom/internal/store"
	"playroom/internal/store/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isOnline(t *testing.T, st store.Store, uid string) bool {
	t.Helper()
	snap, err := st.Get(context.Background(), models.UserKey(uid))
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return models.UserFromSnapshot(snap).Online
}

func waitOffline(t *testing.T, st store.Store, uid string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !isOnline(t, st, uid) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("user %s never went offline", uid)
}

func TestMarkOnlineSetsFlag(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, time.Minute, testLogger())
	defer m.Stop()

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	if !isOnline(t, st, "alice") {
		t.Fatal("expected alice online")
	}
}

func TestScheduleOfflineFiresAfterGrace(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, 20*time.Millisecond, testLogger())
	defer m.Stop()

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	m.ScheduleOffline("alice")
	waitOffline(t, st, "alice")
}

func TestCancelOfflineKeepsUserOnline(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, 30*time.Millisecond, testLogger())
	defer m.Stop()

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	m.ScheduleOffline("alice")
	if err := m.CancelOffline(context.Background(), "alice"); err != nil {
		t.Fatalf("cancel offline: %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if !isOnline(t, st, "alice") {
		t.Fatal("cancelled grace timer still fired")
	}
}

func TestScheduleOfflineRearmsResetTheWindow(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, 60*time.Millisecond, testLogger())
	defer m.Stop()

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	m.ScheduleOffline("alice")
	time.Sleep(40 * time.Millisecond)
	m.ScheduleOffline("alice")
	time.Sleep(40 * time.Millisecond)
	// 80ms after the first arm, but only 40ms after the re-arm.
	if !isOnline(t, st, "alice") {
		t.Fatal("re-armed timer fired on the old deadline")
	}
	waitOffline(t, st, "alice")
}

func TestMarkOfflineIsImmediate(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, time.Minute, testLogger())
	defer m.Stop()

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	m.ScheduleOffline("alice")
	if err := m.MarkOffline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
	if isOnline(t, st, "alice") {
		t.Fatal("expected alice offline")
	}
}

func TestStopDisarmsTimers(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, 20*time.Millisecond, testLogger())

	if err := m.MarkOnline(context.Background(), "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}
	m.ScheduleOffline("alice")
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	if !isOnline(t, st, "alice") {
		t.Fatal("timer fired after Stop")
	}
}

func TestWatchDeliversInitialStateAndChanges(t *testing.T) {
	st := memstore.New()
	m := NewManager(st, time.Minute, testLogger())
	defer m.Stop()

	ctx := context.Background()
	if err := m.MarkOnline(ctx, "alice"); err != nil {
		t.Fatalf("mark online: %v", err)
	}

	w, err := m.Watch(ctx, []string{"alice"})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Cancel()

	select {
	case u := <-w.C:
		if u.UID != "alice" || !u.Online {
			t.Fatalf("unexpected initial update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial update")
	}

	if err := m.MarkOffline(ctx, "alice"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
	deadline := time.After(time.Second)
	for {
		select {
		case u := <-w.C:
			if u.UID == "alice" && !u.Online {
				return
			}
		case <-deadline:
			t.Fatal("offline update never delivered")
		}
	}
}
