// Package friends maintains the mutual friend graph: exact-username search,
// directed friend requests, and the symmetric edge sets acceptance creates.
package friends

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"playroom/internal/models"
	"playroom/internal/store"
)

// Graph implements friend discovery and the request lifecycle over the
// document store.
type Graph struct {
	store store.Store
	log   *slog.Logger
}

// NewGraph returns a Graph backed by st.
func NewGraph(st store.Store, log *slog.Logger) *Graph {
	return &Graph{store: st, log: log}
}

// Search finds a user by exact username. The searcher's own profile is never
// a hit, so "found" always means "someone addable".
func (g *Graph) Search(ctx context.Context, selfUID, username string) (models.User, error) {
	if username == "" {
		return models.User{}, models.NewValidationError("username is required")
	}
	q := store.Query{Collection: models.UsersCollection}.
		Where("username", store.OpEqual, username)
	res, err := g.store.GetQuery(ctx, q)
	if err != nil {
		return models.User{}, models.NewStoreError(err)
	}
	for _, snap := range res.Docs {
		user := models.UserFromSnapshot(snap)
		if user.UID != selfUID {
			return user, nil
		}
	}
	return models.User{}, models.NewNotFoundError("user", username)
}

// SendRequest records a pending friend request from one user to another.
// Duplicates are tolerated; acceptance is idempotent either way.
func (g *Graph) SendRequest(ctx context.Context, from, to string) (models.FriendRequest, error) {
	if from == "" || to == "" {
		return models.FriendRequest{}, models.NewValidationError("both user ids are required")
	}
	if from == to {
		return models.FriendRequest{}, models.NewPreconditionError(models.CodeSelfRequest, "You can't send a friend request to yourself")
	}
	req := models.FriendRequest{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := g.store.SetMerge(ctx, models.FriendRequestKey(req.ID), req.Doc()); err != nil {
		return models.FriendRequest{}, models.NewStoreError(err)
	}
	g.log.Info("friend request sent", "from", from, "to", to)
	return req, nil
}

// Accept creates the mutual edge for a pending request and deletes the
// request. Each write is an idempotent merge, so accepting a duplicate
// request converges to the same single edge.
func (g *Graph) Accept(ctx context.Context, requestID string) error {
	snap, err := g.store.Get(ctx, models.FriendRequestKey(requestID))
	if err != nil {
		return models.NewStoreError(err)
	}
	if !snap.Exists {
		return models.NewNotFoundError("friend request", requestID)
	}
	req := models.FriendRequestFromSnapshot(snap)

	if err := g.store.SetMerge(ctx, models.FriendsKey(req.To), store.Doc{req.From: true}); err != nil {
		return models.NewStoreError(err)
	}
	if err := g.store.SetMerge(ctx, models.FriendsKey(req.From), store.Doc{req.To: true}); err != nil {
		return models.NewStoreError(err)
	}
	if err := g.store.Delete(ctx, models.FriendRequestKey(requestID)); err != nil {
		return models.NewStoreError(err)
	}
	g.log.Info("friend request accepted", "from", req.From, "to", req.To)
	return nil
}

// Reject deletes a pending request without creating any edge. Rejecting a
// request that is already gone is a no-op.
func (g *Graph) Reject(ctx context.Context, requestID string) error {
	if err := g.store.Delete(ctx, models.FriendRequestKey(requestID)); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

// Friends returns the sorted friend uid list of a user.
func (g *Graph) Friends(ctx context.Context, uid string) ([]string, error) {
	snap, err := g.store.Get(ctx, models.FriendsKey(uid))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	return models.FriendSetFromSnapshot(snap), nil
}

// AreFriends reports whether the edge between two users exists.
func (g *Graph) AreFriends(ctx context.Context, a, b string) (bool, error) {
	snap, err := g.store.Get(ctx, models.FriendsKey(a))
	if err != nil {
		return false, models.NewStoreError(err)
	}
	_, ok := snap.Data[b]
	return snap.Exists && ok, nil
}

// Profiles resolves a uid list to profile documents. Uids whose profile is
// missing are skipped rather than failing the whole list.
func (g *Graph) Profiles(ctx context.Context, uids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(uids))
	for _, uid := range uids {
		snap, err := g.store.Get(ctx, models.UserKey(uid))
		if err != nil {
			return nil, models.NewStoreError(err)
		}
		if !snap.Exists {
			continue
		}
		users = append(users, models.UserFromSnapshot(snap))
	}
	return users, nil
}

// RequestsWatch is a cancellable stream of a user's pending incoming friend
// requests. Every change to the request collection delivers the full current
// list.
type RequestsWatch struct {
	C      <-chan []models.FriendRequest
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *RequestsWatch) Cancel() {
	w.once.Do(w.cancel)
}

// WatchIncoming subscribes to the pending requests addressed to a user.
func (g *Graph) WatchIncoming(ctx context.Context, uid string) (*RequestsWatch, error) {
	q := store.Query{Collection: models.FriendRequestsCollection, OrderBy: "createdAt"}.
		Where("to", store.OpEqual, uid)
	qw, err := g.store.WatchQuery(ctx, q)
	if err != nil {
		return nil, models.NewStoreError(err)
	}

	out := make(chan []models.FriendRequest, 1)
	go func() {
		defer close(out)
		for snap := range qw.C {
			reqs := make([]models.FriendRequest, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				reqs = append(reqs, models.FriendRequestFromSnapshot(doc))
			}
			select {
			case out <- reqs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &RequestsWatch{C: out, cancel: qw.Cancel}, nil
}

// SetWatch is a cancellable stream of a user's friend uid set.
type SetWatch struct {
	C      <-chan []string
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *SetWatch) Cancel() {
	w.once.Do(w.cancel)
}

// WatchFriendSet subscribes to a user's friend edge set. The sorted uid list
// is delivered initially and after every edge change.
func (g *Graph) WatchFriendSet(ctx context.Context, uid string) (*SetWatch, error) {
	dw, err := g.store.Watch(ctx, models.FriendsKey(uid))
	if err != nil {
		return nil, models.NewStoreError(err)
	}

	out := make(chan []string, 1)
	go func() {
		defer close(out)
		for snap := range dw.C {
			select {
			case out <- models.FriendSetFromSnapshot(snap):
			case <-ctx.Done():
				return
			}
		}
	}()
	return &SetWatch{C: out, cancel: dw.Cancel}, nil
}
