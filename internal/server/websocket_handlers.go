package server

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"playroom/internal/middleware"
	"playroom/internal/models"
	"playroom/internal/store"
)

// wsConn serializes writes to one WebSocket connection. Producers run on
// separate goroutines, and the underlying conn is not safe for concurrent
// writes.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// readUntilClosed discards inbound frames and cancels the stream when the
// client goes away.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel()
			return
		}
	}
}

func connUID(conn *websocket.Conn) string {
	uid, _ := conn.Locals(middleware.UIDLocal).(string)
	return uid
}

// FriendsStream pushes the caller's pending friend requests and friend
// profiles. Profiles are re-sent when any profile document changes, which is
// how friends' presence flips reach the client.
func (s *Server) FriendsStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reqWatch, err := s.friends.WatchIncoming(ctx, uid)
		if err != nil {
			s.log.Error("friends stream failed", "uid", uid, "error", err)
			return
		}
		defer reqWatch.Cancel()
		setWatch, err := s.friends.WatchFriendSet(ctx, uid)
		if err != nil {
			s.log.Error("friends stream failed", "uid", uid, "error", err)
			return
		}
		defer setWatch.Cancel()
		usersWatch, err := s.store.WatchQuery(ctx, store.Query{Collection: models.UsersCollection})
		if err != nil {
			s.log.Error("friends stream failed", "uid", uid, "error", err)
			return
		}
		defer usersWatch.Cancel()

		out := &wsConn{conn: conn}
		go readUntilClosed(conn, cancel)

		var current []string
		sendProfiles := func() bool {
			profiles, err := s.friends.Profiles(ctx, current)
			if err != nil {
				s.log.Error("friend profile fetch failed", "uid", uid, "error", err)
				return true
			}
			return out.writeJSON(map[string]any{"type": "friends", "friends": profiles}) == nil
		}

		for {
			select {
			case reqs, ok := <-reqWatch.C:
				if !ok {
					return
				}
				if out.writeJSON(map[string]any{"type": "requests", "requests": reqs}) != nil {
					return
				}
			case set, ok := <-setWatch.C:
				if !ok {
					return
				}
				current = set
				if !sendProfiles() {
					return
				}
			case _, ok := <-usersWatch.C:
				if !ok {
					return
				}
				if !sendProfiles() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

type chatFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatStream opens the conversation with a peer. Inbound frames carry
// messages and typing keystrokes; outbound frames carry the log, the typing
// indicator, and the peer's presence.
func (s *Server) ChatStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		self, err := s.sessions.Profile(ctx, uid)
		if err != nil {
			s.log.Error("chat stream profile lookup failed", "uid", uid, "error", err)
			return
		}
		ch, err := s.chat.Open(ctx, self, conn.Params("peerId"))
		if err != nil {
			s.log.Error("chat stream open failed", "uid", uid, "error", err)
			return
		}
		defer ch.Close()

		out := &wsConn{conn: conn}
		go func() {
			defer cancel()
			// Closing the conn unblocks the read loop below when the channel
			// winds down first, e.g. after the peer goes offline.
			defer conn.Close()
			for ev := range ch.Events() {
				if out.writeJSON(ev) != nil {
					return
				}
			}
		}()

		for {
			var frame chatFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "message":
				if _, err := ch.Send(ctx, frame.Text); err != nil {
					s.log.Warn("chat send rejected", "uid", uid, "error", err)
					continue
				}
				middleware.MessagesSent.Inc()
			case "typing":
				ch.Typing(ctx)
			}
		}
	})
}

// GroupListStream pushes the groups the caller belongs to.
func (s *Server) GroupListStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w, err := s.chat.WatchGroups(ctx, uid)
		if err != nil {
			s.log.Error("group list stream failed", "uid", uid, "error", err)
			return
		}
		defer w.Cancel()

		out := &wsConn{conn: conn}
		go readUntilClosed(conn, cancel)

		for groups := range w.C {
			if out.writeJSON(map[string]any{"type": "groups", "groups": groups}) != nil {
				return
			}
		}
	})
}

// GroupChatStream opens one group chat. Inbound message frames append to the
// group log; outbound frames carry the full ordered log.
func (s *Server) GroupChatStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		self, err := s.sessions.Profile(ctx, uid)
		if err != nil {
			s.log.Error("group stream profile lookup failed", "uid", uid, "error", err)
			return
		}
		ch, err := s.chat.OpenGroup(ctx, self, conn.Params("id"))
		if err != nil {
			s.log.Error("group stream open failed", "uid", uid, "error", err)
			return
		}
		defer ch.Close()

		out := &wsConn{conn: conn}
		go func() {
			defer cancel()
			for msgs := range ch.C {
				if out.writeJSON(map[string]any{"type": "messages", "messages": msgs}) != nil {
					return
				}
			}
		}()

		for {
			var frame chatFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type != "message" {
				continue
			}
			if _, err := ch.Send(ctx, frame.Text); err != nil {
				s.log.Warn("group send rejected", "uid", uid, "error", err)
				continue
			}
			middleware.MessagesSent.Inc()
		}
	})
}

// LobbyStream pushes the caller's pending game invitations and in-progress
// sessions. A new session appearing here is how an inviter learns their
// invitation was accepted.
func (s *Server) LobbyStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		invWatch, err := s.gate.WatchIncoming(ctx, uid)
		if err != nil {
			s.log.Error("lobby stream failed", "uid", uid, "error", err)
			return
		}
		defer invWatch.Cancel()
		activeWatch, err := s.engine.WatchActive(ctx, uid)
		if err != nil {
			s.log.Error("lobby stream failed", "uid", uid, "error", err)
			return
		}
		defer activeWatch.Cancel()

		out := &wsConn{conn: conn}
		go readUntilClosed(conn, cancel)

		for {
			select {
			case invites, ok := <-invWatch.C:
				if !ok {
					return
				}
				if out.writeJSON(map[string]any{"type": "invites", "invites": invites}) != nil {
					return
				}
			case sessions, ok := <-activeWatch.C:
				if !ok {
					return
				}
				if out.writeJSON(map[string]any{"type": "games", "games": sessions}) != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

// GameStream pushes one session's state after every change. Moves travel
// over the HTTP endpoints; this stream is read-only.
func (s *Server) GameStream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		uid := connUID(conn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		w, err := s.engine.Watch(ctx, conn.Params("id"))
		if err != nil {
			s.log.Error("game stream failed", "uid", uid, "error", err)
			return
		}
		defer w.Cancel()

		out := &wsConn{conn: conn}
		go readUntilClosed(conn, cancel)

		for session := range w.C {
			if out.writeJSON(map[string]any{"type": "session", "session": session}) != nil {
				return
			}
		}
	})
}
