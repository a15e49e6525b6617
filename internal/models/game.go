package models

import "playroom/internal/store"

// GameType identifies the kind of game a session plays.
type GameType string

// TicTacToe is the only game type currently supported.
const TicTacToe GameType = "tic-tac-toe"

// GameStatus is the lifecycle state of a game session.
type GameStatus string

const (
	// GameInProgress indicates the session is live and accepting moves.
	GameInProgress GameStatus = "in_progress"
	// GameFinished indicates the session ended with a winner or a draw.
	GameFinished GameStatus = "finished"
	// GameExited indicates a player left before the game ended.
	GameExited GameStatus = "exited"
)

// InviteStatus is the lifecycle state of a game invitation.
type InviteStatus string

// InvitePending marks an invitation awaiting accept or reject. Resolution
// deletes the invitation, so no resolved status is ever persisted.
const InvitePending InviteStatus = "pending"

// BoardSize is the cell count of the tic-tac-toe board.
const BoardSize = 9

// DrawResult is the winner value recorded for a drawn game.
const DrawResult = "draw"

// Marks by player order: the first player of a session always plays X, the
// second always O, fixed for the session's lifetime including rematches.
const (
	MarkX = "X"
	MarkO = "O"
)

// EmptyBoard returns a fresh all-empty board.
func EmptyBoard() []string {
	return make([]string, BoardSize)
}

// winLines are the 8 straight lines of the 3x3 board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner evaluates a board. It returns ("", false) while the game is open,
// (uid, true) when a player completed a line, or (DrawResult, true) when the
// board is full with no line.
func Winner(board []string, players [2]string) (string, bool) {
	for _, line := range winLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != "" && a == b && a == c {
			if a == MarkX {
				return players[0], true
			}
			return players[1], true
		}
	}
	for _, cell := range board {
		if cell == "" {
			return "", false
		}
	}
	return DrawResult, true
}

// PlayerMark returns the mark a player holds in the session, by player order.
func PlayerMark(players [2]string, uid string) string {
	if players[0] == uid {
		return MarkX
	}
	return MarkO
}

// GameSession is a two-player game document. It is created on invitation
// acceptance and never deleted by the core.
type GameSession struct {
	ID          string     `json:"id"`
	Players     [2]string  `json:"players"`
	Board       []string   `json:"board"`
	CurrentTurn string     `json:"current_turn"`
	Winner      string     `json:"winner"`
	Status      GameStatus `json:"status"`
	ExitedBy    string     `json:"exited_by"`
	CreatedAt   int64      `json:"created_at"`
}

// Doc returns the full session document.
func (g GameSession) Doc() store.Doc {
	board := make([]any, len(g.Board))
	for i, c := range g.Board {
		board[i] = c
	}
	return store.Doc{
		"players":     []any{g.Players[0], g.Players[1]},
		"board":       board,
		"currentTurn": g.CurrentTurn,
		"winner":      g.Winner,
		"status":      string(g.Status),
		"exitedBy":    g.ExitedBy,
		"createdAt":   g.CreatedAt,
	}
}

// GameSessionFromSnapshot decodes a session snapshot. A malformed or
// truncated board decodes to an empty board of the right size so callers
// never index out of range.
func GameSessionFromSnapshot(snap store.Snapshot) GameSession {
	d := snap.Data
	session := GameSession{
		ID:          snap.Key.ID,
		Board:       docStrings(d, "board"),
		CurrentTurn: docString(d, "currentTurn"),
		Winner:      docString(d, "winner"),
		Status:      GameStatus(docString(d, "status")),
		ExitedBy:    docString(d, "exitedBy"),
		CreatedAt:   docInt(d, "createdAt"),
	}
	players := docStrings(d, "players")
	if len(players) == 2 {
		session.Players = [2]string{players[0], players[1]}
	}
	if len(session.Board) != BoardSize {
		session.Board = EmptyBoard()
	}
	return session
}

// HasPlayer reports whether uid participates in the session.
func (g GameSession) HasPlayer(uid string) bool {
	return g.Players[0] == uid || g.Players[1] == uid
}

// Opponent returns the other participant.
func (g GameSession) Opponent(uid string) string {
	if g.Players[0] == uid {
		return g.Players[1]
	}
	return g.Players[0]
}

// GameInvite is a pending game invitation document. Accepting converts it
// into a GameSession and deletes it; rejecting deletes it.
type GameInvite struct {
	ID           string       `json:"id"`
	From         string       `json:"from"`
	To           string       `json:"to"`
	FromUsername string       `json:"from_username"`
	GameType     GameType     `json:"game_type"`
	Status       InviteStatus `json:"status"`
	CreatedAt    int64        `json:"created_at"`
}

// Doc returns the full invitation document.
func (i GameInvite) Doc() store.Doc {
	return store.Doc{
		"from":      i.From,
		"to":        i.To,
		"username":  i.FromUsername,
		"gameType":  string(i.GameType),
		"status":    string(i.Status),
		"createdAt": i.CreatedAt,
	}
}

// GameInviteFromSnapshot decodes an invitation snapshot.
func GameInviteFromSnapshot(snap store.Snapshot) GameInvite {
	d := snap.Data
	return GameInvite{
		ID:           snap.Key.ID,
		From:         docString(d, "from"),
		To:           docString(d, "to"),
		FromUsername: docString(d, "username"),
		GameType:     GameType(docString(d, "gameType")),
		Status:       InviteStatus(docString(d, "status")),
		CreatedAt:    docInt(d, "createdAt"),
	}
}
