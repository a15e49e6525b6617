package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"playroom/internal/models"
	"playroom/internal/store"
)

// CreateGroup creates a broadcast chat. The creator is always a member, and
// at least one other member is required.
func (s *Service) CreateGroup(ctx context.Context, creator models.User, name string, members []string) (models.GroupChat, error) {
	if name == "" {
		return models.GroupChat{}, models.NewValidationError("group name is required")
	}
	all := make([]string, 0, len(members)+1)
	seen := map[string]bool{creator.UID: true}
	all = append(all, creator.UID)
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		all = append(all, m)
	}
	if len(all) < 2 {
		return models.GroupChat{}, models.NewValidationError("a group needs at least one other member")
	}

	group := models.GroupChat{
		ID:        uuid.NewString(),
		Name:      name,
		Members:   all,
		CreatedBy: creator.UID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.store.SetMerge(ctx, models.GroupChatKey(group.ID), group.Doc()); err != nil {
		return models.GroupChat{}, models.NewStoreError(err)
	}
	s.log.Info("group created", "group", group.ID, "name", name, "members", len(all))
	return group, nil
}

// GroupsWatch is a cancellable stream of the groups a user belongs to.
type GroupsWatch struct {
	C      <-chan []models.GroupChat
	cancel func()
	once   sync.Once
}

// Cancel tears the subscription down. Safe to call more than once.
func (w *GroupsWatch) Cancel() {
	w.once.Do(w.cancel)
}

// WatchGroups subscribes to the groups that include the user as a member.
func (s *Service) WatchGroups(ctx context.Context, uid string) (*GroupsWatch, error) {
	q := store.Query{Collection: models.GroupChatsCollection, OrderBy: "createdAt"}.
		Where("members", store.OpContains, uid)
	qw, err := s.store.WatchQuery(ctx, q)
	if err != nil {
		return nil, models.NewStoreError(err)
	}

	out := make(chan []models.GroupChat, 1)
	go func() {
		defer close(out)
		for snap := range qw.C {
			groups := make([]models.GroupChat, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				groups = append(groups, models.GroupChatFromSnapshot(doc))
			}
			select {
			case out <- groups:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &GroupsWatch{C: out, cancel: qw.Cancel}, nil
}

// GroupChannel is an open group chat from one member's point of view. Group
// logs carry no per-member receipts, only the ordered messages.
type GroupChannel struct {
	svc   *Service
	self  models.User
	group models.GroupChat

	C      <-chan []models.Message
	cancel func()

	mu     sync.Mutex
	lastTS int64

	closeOnce sync.Once
}

// OpenGroup opens a group chat for a member. Non-members cannot open it.
func (s *Service) OpenGroup(ctx context.Context, self models.User, groupID string) (*GroupChannel, error) {
	snap, err := s.store.Get(ctx, models.GroupChatKey(groupID))
	if err != nil {
		return nil, models.NewStoreError(err)
	}
	if !snap.Exists {
		return nil, models.NewNotFoundError("group", groupID)
	}
	group := models.GroupChatFromSnapshot(snap)
	member := false
	for _, m := range group.Members {
		if m == self.UID {
			member = true
			break
		}
	}
	if !member {
		return nil, models.NewValidationError("not a member of this group")
	}

	qw, err := s.store.WatchQuery(ctx, store.Query{
		Collection: models.GroupMessagesCollection(groupID),
		OrderBy:    "timestamp",
	})
	if err != nil {
		return nil, models.NewStoreError(err)
	}

	out := make(chan []models.Message, 1)
	ch := &GroupChannel{svc: s, self: self, group: group, C: out, cancel: qw.Cancel}
	go func() {
		defer close(out)
		for snap := range qw.C {
			msgs := make([]models.Message, 0, len(snap.Docs))
			for _, doc := range snap.Docs {
				msgs = append(msgs, models.MessageFromSnapshot(doc))
			}
			ch.observeTimestamps(msgs)
			select {
			case out <- msgs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (g *GroupChannel) observeTimestamps(msgs []models.Message) {
	g.mu.Lock()
	for _, m := range msgs {
		if m.Timestamp > g.lastTS {
			g.lastTS = m.Timestamp
		}
	}
	g.mu.Unlock()
}

// Send appends a message to the group log. The sender's name travels with the
// message so readers never resolve uids for display.
func (g *GroupChannel) Send(ctx context.Context, text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, models.NewValidationError("message text is required")
	}

	g.mu.Lock()
	ts := time.Now().UnixMilli()
	if ts <= g.lastTS {
		ts = g.lastTS + 1
	}
	g.lastTS = ts
	g.mu.Unlock()

	msg := models.Message{
		ID:         uuid.NewString(),
		Text:       text,
		SenderID:   g.self.UID,
		SenderName: g.self.Username,
		Timestamp:  ts,
	}
	key := store.Key{Collection: models.GroupMessagesCollection(g.group.ID), ID: msg.ID}
	if err := g.svc.store.SetMerge(ctx, key, msg.Doc()); err != nil {
		return models.Message{}, models.NewStoreError(err)
	}
	return msg, nil
}

// Close tears the group channel down.
func (g *GroupChannel) Close() {
	g.closeOnce.Do(g.cancel)
}
