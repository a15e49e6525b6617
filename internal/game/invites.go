package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"playroom/internal/friends"
	"playroom/internal/models"
	"playroom/internal/store"
)

// Gate guards session creation behind invitations: only friends can invite
// each other, and nobody enters a second concurrent game.
type Gate struct {
	store   store.Store
	engine  *Engine
	friends *friends.Graph
	log     *slog.Logger
}

// NewGate returns a Gate issuing sessions through engine.
func NewGate(st store.Store, engine *Engine, graph *friends.Graph, log *slog.Logger) *Gate {
	return &Gate{store: st, engine: engine, friends: graph, log: log}
}

// Invite creates a pending game invitation from one user to a friend. The
// inviter's username travels with the invitation so the recipient's popup
// needs no extra lookup.
func (g *Gate) Invite(ctx context.Context, from models.User, to string) (models.GameInvite, error) {
	if from.UID == to {
		return models.GameInvite{}, models.NewPreconditionError(models.CodeSelfRequest, "You can't invite yourself")
	}
	ok, err := g.friends.AreFriends(ctx, from.UID, to)
	if err != nil {
		return models.GameInvite{}, err
	}
	if !ok {
		return models.GameInvite{}, models.NewPreconditionError(models.CodeNotFriends, "You can only invite friends")
	}
	for _, uid := range []string{from.UID, to} {
		if _, busy, err := g.engine.ActiveSession(ctx, uid); err != nil {
			return models.GameInvite{}, err
		} else if busy {
			return models.GameInvite{}, models.NewPreconditionError(models.CodeAlreadyInGame, "One of you is already in a game")
		}
	}

	invite := models.GameInvite{
		ID:           uuid.NewString(),
		From:         from.UID,
		To:           to,
		FromUsername: from.Username,
		GameType:     models.TicTacToe,
		Status:       models.InvitePending,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := g.store.SetMerge(ctx, models.GameInviteKey(invite.ID), invite.Doc()); err != nil {
		return models.GameInvite{}, models.NewStoreError(err)
	}
	g.log.Info("game invite sent", "from", from.UID, "to", to)
	return invite, nil
}

// Accept converts a pending invitation into a live session and deletes the
// invitation. The inviter is the first player, holds X, and moves first.
// Busy-player preconditions are re-checked at acceptance time, since state
// may have moved since the invitation was sent.
func (g *Gate) Accept(ctx context.Context, inviteID, uid string) (models.GameSession, error) {
	snap, err := g.store.Get(ctx, models.GameInviteKey(inviteID))
	if err != nil {
		return models.GameSession{}, models.NewStoreError(err)
	}
	if !snap.Exists {
		return models.GameSession{}, models.NewNotFoundError("game invite", inviteID)
	}
	invite := models.GameInviteFromSnapshot(snap)
	if invite.To != uid {
		return models.GameSession{}, models.NewValidationError("invite is not addressed to you")
	}

	session, err := g.engine.CreateSession(ctx, invite.From, invite.To, invite.From)
	if err != nil {
		return models.GameSession{}, err
	}
	if err := g.store.Delete(ctx, models.GameInviteKey(inviteID)); err != nil {
		// The session exists; a stale invite is harmless and acceptance of it
		// will fail the busy-player check.
		g.log.Error("invite cleanup failed", "invite", inviteID, "error", err)
	}
	g.log.Info("game invite accepted", "invite", inviteID, "game", session.ID)
	return session, nil
}

// Reject deletes a pending invitation. Rejecting one that is already gone is
// a no-op.
func (g *Gate) Reject(ctx context.Context, inviteID string) error {
	if err := g.store.Delete(ctx, models.GameInviteKey(inviteID)); err != nil {
		return models.NewStoreError(err)
	}
	return nil
}

// InvitesWatch is a cancellable stream of a user's pending incoming game
// invitations.
type InvitesWatch struct {
	C      <-chan []models.GameInvite
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *InvitesWatch) Cancel() {
	w.once.Do(w.cancel)
}

// WatchIncoming subscribes to the pending invitations addressed to a user.
func (g *Gate) WatchIncoming(ctx context.Context, uid string) (*InvitesWatch, error) {
	q := store.Query{Collection: models.GameInvitesCollection, OrderBy: "createdAt"}.
		Where("to", store.OpEqual, uid).
		Where("status", store.OpEqual, string(models.InvitePending))
	qw, err := g.store.WatchQuery(ctx, q)
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	out := make(chan []models.GameInvite, 1)
	go func() {
		defer close(out)
		for snap := range qw.C {
			invites := make([]models.GameInvite, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				invites = append(invites, models.GameInviteFromSnapshot(doc))
			}
			select {
			case out <- invites:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &InvitesWatch{C: out, cancel: qw.Cancel}, nil
}
