// Package game runs two-player tic-tac-toe sessions: creation through the
// invitation gate, turn-checked moves, exits, rematches, and win/loss/draw
// tallies on player profiles.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"playroom/internal/models"
	"playroom/internal/store"
)

// Engine executes session state transitions over the document store.
type Engine struct {
	store store.Store
	log   *slog.Logger
}

// NewEngine returns an Engine backed by st.
func NewEngine(st store.Store, log *slog.Logger) *Engine {
	return &Engine{store: st, log: log}
}

func activeQuery(uid string) store.Query {
	return store.Query{Collection: models.GamesCollection}.
		Where("players", store.OpContains, uid).
		Where("status", store.OpEqual, string(models.GameInProgress))
}

// ActiveSession returns the user's in-progress session, if any. A user holds
// at most one at a time; creation enforces it.
func (e *Engine) ActiveSession(ctx context.Context, uid string) (models.GameSession, bool, error) {
	res, err := e.store.GetQuery(ctx, activeQuery(uid))
	if err != nil {
		return models.GameSession{}, false, models.NewStoreError(err)
	}
	if len(res.Docs) == 0 {
		return models.GameSession{}, false, nil
	}
	return models.GameSessionFromSnapshot(res.Docs[0]), true, nil
}

// CreateSession starts a session between two players. The first player is
// the inviter, holds X for the session's lifetime, and currentTurn names who
// moves first. Either player already being in a game aborts the creation.
func (e *Engine) CreateSession(ctx context.Context, first, second, currentTurn string) (models.GameSession, error) {
	for _, uid := range []string{first, second} {
		if _, busy, err := e.ActiveSession(ctx, uid); err != nil {
			return models.GameSession{}, err
		} else if busy {
			return models.GameSession{}, models.NewPreconditionError(models.CodeAlreadyInGame, "One of you is already in a game")
		}
	}

	session := models.GameSession{
		ID:          fmt.Sprintf("%s_%s_%d", first, second, time.Now().UnixMilli()),
		Players:     [2]string{first, second},
		Board:       models.EmptyBoard(),
		CurrentTurn: currentTurn,
		Status:      models.GameInProgress,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := e.store.SetMerge(ctx, models.GameKey(session.ID), session.Doc()); err != nil {
		return models.GameSession{}, models.NewStoreError(err)
	}
	e.log.Info("game session created", "game", session.ID, "first", first, "second", second)
	return session, nil
}

func (e *Engine) session(ctx context.Context, id string) (models.GameSession, error) {
	snap, err := e.store.Get(ctx, models.GameKey(id))
	if err != nil {
		return models.GameSession{}, models.NewStoreError(err)
	}
	if !snap.Exists {
		return models.GameSession{}, models.NewNotFoundError("game", id)
	}
	return models.GameSessionFromSnapshot(snap), nil
}

// ApplyMove places the mover's mark on an empty cell during their turn. A
// terminal board finishes the session and records the result on both player
// profiles; otherwise the turn flips.
func (e *Engine) ApplyMove(ctx context.Context, id, uid string, cell int) (models.GameSession, error) {
	session, err := e.session(ctx, id)
	if err != nil {
		return models.GameSession{}, err
	}
	if session.Status != models.GameInProgress {
		return models.GameSession{}, models.NewValidationError("game is not in progress")
	}
	if !session.HasPlayer(uid) {
		return models.GameSession{}, models.NewValidationError("not a player of this game")
	}
	if session.CurrentTurn != uid {
		return models.GameSession{}, models.NewValidationError("not your turn")
	}
	if cell < 0 || cell >= models.BoardSize {
		return models.GameSession{}, models.NewValidationError("cell out of range")
	}
	if session.Board[cell] != "" {
		return models.GameSession{}, models.NewValidationError("cell already taken")
	}

	session.Board[cell] = models.PlayerMark(session.Players, uid)
	update := store.Doc{"board": boardDoc(session.Board)}

	winner, done := models.Winner(session.Board, session.Players)
	if done {
		session.Status = models.GameFinished
		session.Winner = winner
		session.CurrentTurn = ""
		update["status"] = string(models.GameFinished)
		update["winner"] = winner
		update["currentTurn"] = ""
	} else {
		session.CurrentTurn = session.Opponent(uid)
		update["currentTurn"] = session.CurrentTurn
	}

	if err := e.store.SetMerge(ctx, models.GameKey(id), update); err != nil {
		return models.GameSession{}, models.NewStoreError(err)
	}
	if done {
		e.recordResult(ctx, session)
	}
	return session, nil
}

// Exit marks the session abandoned by one player. The board stays intact so
// the other side can still read the final position.
func (e *Engine) Exit(ctx context.Context, id, uid string) error {
	session, err := e.session(ctx, id)
	if err != nil {
		return err
	}
	if !session.HasPlayer(uid) {
		return models.NewValidationError("not a player of this game")
	}
	if session.Status == models.GameFinished {
		// A finished session already carries its terminal marker in winner.
		// Leaving the result screen must not turn the outcome into an exit.
		return nil
	}
	update := store.Doc{
		"status":   string(models.GameExited),
		"exitedBy": uid,
	}
	if err := e.store.SetMerge(ctx, models.GameKey(id), update); err != nil {
		return models.NewStoreError(err)
	}
	e.log.Info("game exited", "game", id, "by", uid)
	return nil
}

// Rematch restarts a finished or exited session in place: fresh board,
// random first turn, same players and marks.
func (e *Engine) Rematch(ctx context.Context, id, uid string) (models.GameSession, error) {
	session, err := e.session(ctx, id)
	if err != nil {
		return models.GameSession{}, err
	}
	if !session.HasPlayer(uid) {
		return models.GameSession{}, models.NewValidationError("not a player of this game")
	}
	if session.Status == models.GameInProgress {
		return models.GameSession{}, models.NewValidationError("game is still in progress")
	}

	session.Board = models.EmptyBoard()
	session.CurrentTurn = session.Players[rand.Intn(2)]
	session.Winner = ""
	session.ExitedBy = ""
	session.Status = models.GameInProgress

	update := store.Doc{
		"board":       boardDoc(session.Board),
		"currentTurn": session.CurrentTurn,
		"winner":      "",
		"exitedBy":    "",
		"status":      string(models.GameInProgress),
	}
	if err := e.store.SetMerge(ctx, models.GameKey(id), update); err != nil {
		return models.GameSession{}, models.NewStoreError(err)
	}
	e.log.Info("rematch started", "game", id, "firstTurn", session.CurrentTurn)
	return session, nil
}

// Stats returns a player's win/loss/draw tallies.
func (e *Engine) Stats(ctx context.Context, uid string) (wins, losses, draws int64, err error) {
	snap, err := e.store.Get(ctx, models.UserKey(uid))
	if err != nil {
		return 0, 0, 0, models.NewStoreError(err)
	}
	user := models.UserFromSnapshot(snap)
	return user.Wins, user.Losses, user.Draws, nil
}

// recordResult increments profile tallies for a terminal session. Failures
// are logged, not returned: the session document is already final and the
// tallies are advisory.
func (e *Engine) recordResult(ctx context.Context, session models.GameSession) {
	for _, uid := range session.Players {
		field := "draws"
		if session.Winner != models.DrawResult {
			if session.Winner == uid {
				field = "wins"
			} else {
				field = "losses"
			}
		}
		if err := e.incrementStat(ctx, uid, field); err != nil {
			e.log.Error("stat update failed", "uid", uid, "field", field, "error", err)
		}
	}
}

func (e *Engine) incrementStat(ctx context.Context, uid, field string) error {
	snap, err := e.store.Get(ctx, models.UserKey(uid))
	if err != nil {
		return err
	}
	current := int64(0)
	if f, ok := snap.Data[field].(float64); ok {
		current = int64(f)
	}
	return e.store.SetMerge(ctx, models.UserKey(uid), store.Doc{field: current + 1})
}

// SessionWatch is a cancellable stream of one session's state.
type SessionWatch struct {
	C      <-chan models.GameSession
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *SessionWatch) Cancel() {
	w.once.Do(w.cancel)
}

// Watch subscribes to a single session document.
func (e *Engine) Watch(ctx context.Context, id string) (*SessionWatch, error) {
	dw, err := e.store.Watch(ctx, models.GameKey(id))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	out := make(chan models.GameSession, 1)
	go func() {
		defer close(out)
		for snap := range dw.C {
			if !snap.Exists {
				continue
			}
			select {
			case out <- models.GameSessionFromSnapshot(snap):
			case <-ctx.Done():
				return
			}
		}
	}()
	return &SessionWatch{C: out, cancel: dw.Cancel}, nil
}

// ActiveWatch is a cancellable stream of the user's in-progress sessions.
// The list is empty or a single element; a new element means an invitation
// the user sent was accepted somewhere.
type ActiveWatch struct {
	C      <-chan []models.GameSession
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *ActiveWatch) Cancel() {
	w.once.Do(w.cancel)
}

// WatchActive subscribes to the user's in-progress sessions.
func (e *Engine) WatchActive(ctx context.Context, uid string) (*ActiveWatch, error) {
	qw, err := e.store.WatchQuery(ctx, activeQuery(uid))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	out := make(chan []models.GameSession, 1)
	go func() {
		defer close(out)
		for snap := range qw.C {
			sessions := make([]models.GameSession, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				sessions = append(sessions, models.GameSessionFromSnapshot(doc))
			}
			select {
			case out <- sessions:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &ActiveWatch{C: out, cancel: qw.Cancel}, nil
}

func boardDoc(board []string) []any {
	out := make([]any, len(board))
	for i, c := range board {
		out[i] = c
	}
	return out
}
