// Package chat implements two-party conversations with delivery receipts and
// a debounced typing indicator, plus group broadcast chats.
package chat

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

// DefaultTypingIdle is the keystroke debounce before the typing indicator
// clears on its own.
const DefaultTypingIdle = time.Second

const writeTimeout = 5 * time.Second

// Service builds chat channels over the document store. Two-party
// conversations are gated on the friend graph.
type Service struct {
	store      store.Store
	friends    *friends.Graph
	log        *slog.Logger
	typingIdle time.Duration
}

// NewService returns a chat Service. A non-positive typingIdle falls back to
// DefaultTypingIdle.
func NewService(st store.Store, graph *friends.Graph, typingIdle time.Duration, log *slog.Logger) *Service {
	if typingIdle <= 0 {
		typingIdle = DefaultTypingIdle
	}
	return &Service{store: st, friends: graph, log: log, typingIdle: typingIdle}
}

// EventKind discriminates channel events.
type EventKind string

const (
	// EventMessages carries the conversation's full ordered message log.
	EventMessages EventKind = "messages"
	// EventTyping carries the conversation's typing indicator.
	EventTyping EventKind = "typing"
	// EventPeer carries the peer's profile, including the online flag.
	EventPeer EventKind = "peer"
	// EventPeerLeft is terminal. The peer went offline, so the conversation
	// is closed and further sends are rejected.
	EventPeerLeft EventKind = "peer_left"
)

// Event is one update delivered on an open channel.
type Event struct {
	Kind     EventKind            `json:"type"`
	Messages []models.Message     `json:"messages,omitempty"`
	Typing   *models.TypingStatus `json:"typing,omitempty"`
	Peer     *models.User         `json:"peer,omitempty"`
}

// Channel is an open two-party conversation from one participant's point of
// view. While open, incoming messages are acknowledged as delivered and seen,
// since an open channel means the log is on screen.
type Channel struct {
	svc     *Service
	self    models.User
	peerUID string
	pairKey string

	events chan Event
	cancel context.CancelFunc

	mu           sync.Mutex
	lastTS       int64
	typingActive bool
	typingTimer  *time.Timer
	peerGone     bool

	closeOnce sync.Once
}

// Open opens the conversation between self and peer. Events stream on
// Events() until Close.
func (s *Service) Open(ctx context.Context, self models.User, peerUID string) (*Channel, error) {
	if self.UID == peerUID {
		return nil, models.NewValidationError("cannot open a conversation with yourself")
	}
	ok, err := s.friends.AreFriends(ctx, self.UID, peerUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewPreconditionError(models.CodeNotFriends, "You can only chat with friends")
	}
	watchCtx, cancel := context.WithCancel(ctx)
	ch := &Channel{
		svc:     s,
		self:    self,
		peerUID: peerUID,
		pairKey: models.PairKey(self.UID, peerUID),
		events:  make(chan Event),
		cancel:  cancel,
	}

	msgWatch, err := s.store.WatchQuery(watchCtx, store.Query{
		Collection: models.MessagesCollection(ch.pairKey),
		OrderBy:    "timestamp",
	})
	if err != nil {
		cancel()
		return nil, models.NewStoreError(err)
	}
	typingWatch, err := s.store.Watch(watchCtx, models.TypingStatusKey(ch.pairKey))
	if err != nil {
		cancel()
		msgWatch.Cancel()
		return nil, models.NewStoreError(err)
	}
	peerWatch, err := s.store.Watch(watchCtx, models.UserKey(peerUID))
	if err != nil {
		cancel()
		msgWatch.Cancel()
		typingWatch.Cancel()
		return nil, models.NewStoreError(err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for snap := range msgWatch.C {
			msgs := ch.decodeAndAcknowledge(watchCtx, snap)
			ch.deliver(watchCtx, Event{Kind: EventMessages, Messages: msgs})
		}
	}()
	go func() {
		defer wg.Done()
		for snap := range typingWatch.C {
			status := models.TypingStatusFromSnapshot(snap)
			if status.TypedBy == ch.self.UID {
				// Own keystrokes are never shown back to the typist.
				status.Typing = false
			}
			ch.deliver(watchCtx, Event{Kind: EventTyping, Typing: &status})
		}
	}()
	go func() {
		defer wg.Done()
		for snap := range peerWatch.C {
			peer := models.UserFromSnapshot(snap)
			ch.deliver(watchCtx, Event{Kind: EventPeer, Peer: &peer})
			// Any snapshot of an offline peer is terminal, the initial one
			// included. Two-party chat has no audience once the peer is gone.
			if snap.Exists && !peer.Online {
				ch.mu.Lock()
				ch.peerGone = true
				ch.mu.Unlock()
				ch.deliver(watchCtx, Event{Kind: EventPeerLeft, Peer: &peer})
				ch.Close()
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(ch.events)
	}()

	return ch, nil
}

// Events returns the channel's update stream. It is closed after Close.
func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) deliver(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// decodeAndAcknowledge decodes a message snapshot and upgrades every peer
// message that is not yet delivered and seen. Both flags go true together:
// the recipient has the log open, so delivery and reading coincide.
func (c *Channel) decodeAndAcknowledge(ctx context.Context, snap store.QuerySnapshot) []models.Message {
	msgs := make([]models.Message, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		msg := models.MessageFromSnapshot(doc)
		msgs = append(msgs, msg)
		if msg.SenderID == c.self.UID || (msg.Delivered && msg.Seen) {
			continue
		}
		key := store.Key{Collection: models.MessagesCollection(c.pairKey), ID: msg.ID}
		if err := c.svc.store.SetMerge(ctx, key, store.Doc{"delivered": true, "seen": true}); err != nil && ctx.Err() == nil {
			c.svc.log.Error("receipt upgrade failed", "conversation", c.pairKey, "message", msg.ID, "error", err)
		}
	}
	c.observeTimestamps(msgs)
	return msgs
}

// observeTimestamps advances the monotonic clock past every message already
// in the log, so a send from this side never ties or precedes history.
func (c *Channel) observeTimestamps(msgs []models.Message) {
	c.mu.Lock()
	for _, m := range msgs {
		if m.Timestamp > c.lastTS {
			c.lastTS = m.Timestamp
		}
	}
	c.mu.Unlock()
}

// Send appends a message to the conversation and force-clears this side's
// typing indicator.
func (c *Channel) Send(ctx context.Context, text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, models.NewValidationError("message text is required")
	}

	c.mu.Lock()
	if c.peerGone {
		c.mu.Unlock()
		return models.Message{}, models.NewValidationError("conversation is closed: peer went offline")
	}
	ts := time.Now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	c.mu.Unlock()

	msg := models.Message{
		ID:         uuid.NewString(),
		Text:       text,
		SenderID:   c.self.UID,
		SenderName: c.self.Username,
		Timestamp:  ts,
	}
	key := store.Key{Collection: models.MessagesCollection(c.pairKey), ID: msg.ID}
	if err := c.svc.store.SetMerge(ctx, key, msg.Doc()); err != nil {
		return models.Message{}, models.NewStoreError(err)
	}
	c.clearTyping(ctx)
	return msg, nil
}

// Typing records a keystroke. The indicator is asserted on the first
// keystroke and cleared after the idle window; further keystrokes inside the
// window only push the deadline out.
func (c *Channel) Typing(ctx context.Context) {
	c.mu.Lock()
	wasActive := c.typingActive
	c.typingActive = true
	if c.typingTimer == nil {
		c.typingTimer = time.AfterFunc(c.svc.typingIdle, c.typingIdleExpired)
	} else {
		c.typingTimer.Reset(c.svc.typingIdle)
	}
	c.mu.Unlock()

	if wasActive {
		return
	}
	status := models.TypingStatus{Typing: true, TypedBy: c.self.UID}
	if err := c.svc.store.SetMerge(ctx, models.TypingStatusKey(c.pairKey), status.Doc()); err != nil {
		// Best-effort: a lost indicator clears itself on the next transition.
		c.svc.log.Error("typing indicator write failed", "conversation", c.pairKey, "error", err)
	}
}

func (c *Channel) typingIdleExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.clearTyping(ctx)
}

func (c *Channel) clearTyping(ctx context.Context) {
	c.mu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	wasActive := c.typingActive
	c.typingActive = false
	c.mu.Unlock()

	if !wasActive {
		return
	}
	status := models.TypingStatus{Typing: false, TypedBy: c.self.UID}
	if err := c.svc.store.SetMerge(ctx, models.TypingStatusKey(c.pairKey), status.Doc()); err != nil && ctx.Err() == nil {
		c.svc.log.Error("typing indicator clear failed", "conversation", c.pairKey, "error", err)
	}
}

// Close tears the channel down, clearing a still-asserted typing indicator
// first. The event stream is closed once the watches drain.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		c.clearTyping(ctx)
		c.cancel()
	})
}
