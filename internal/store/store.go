package store

import (
	"sort"
	"sync"

	"wa-taskboard/internal/core"
)

// Store is the in-memory, file-backed conversation log. All mutation is
// serialized by a single lock over the whole store, because snapshot and
// purge touch every conversation at once.
type Store struct {
	mu       sync.RWMutex
	path     string
	messages map[string][]*core.Message
	contacts map[string]*core.Contact
	dirty    bool
}

// NewStore creates a store backed by the snapshot file at path and loads
// any existing snapshot. A missing or unreadable snapshot is not fatal:
// the store starts empty.
func NewStore(path string) *Store {
	s := &Store{
		path:     path,
		messages: make(map[string][]*core.Message),
		contacts: make(map[string]*core.Contact),
	}
	s.Load()
	return s
}

// Append stores a message in its conversation's log. Re-ingesting an id
// already present in that conversation is a no-op. Returns true when the
// message was stored.
func (s *Store) Append(msg *core.Message) bool {
	if msg == nil || msg.ChatJID == "" || msg.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages[msg.ChatJID] {
		if existing.ID == msg.ID {
			return false
		}
	}
	s.messages[msg.ChatJID] = append(s.messages[msg.ChatJID], msg)
	s.dirty = true
	return true
}

// UpsertContact merges contact metadata into the store.
func (s *Store) UpsertContact(c *core.Contact) {
	if c == nil || c.JID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeContactLocked(c)
	s.dirty = true
}

// UpdateContact applies a partial contact update. Unknown contacts are
// ignored, matching the transport's contacts.update semantics.
func (s *Store) UpdateContact(c *core.Contact) {
	if c == nil || c.JID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.JID]; !ok {
		return
	}
	s.mergeContactLocked(c)
	s.dirty = true
}

// mergeContactLocked merges non-empty fields of c into the stored
// contact. Caller holds the write lock.
func (s *Store) mergeContactLocked(c *core.Contact) {
	existing, ok := s.contacts[c.JID]
	if !ok {
		copied := *c
		s.contacts[c.JID] = &copied
		return
	}
	if c.Name != "" {
		existing.Name = c.Name
	}
	if c.Notify != "" {
		existing.Notify = c.Notify
	}
	if c.VerifiedName != "" {
		existing.VerifiedName = c.VerifiedName
	}
}

// ApplyReaction merges a reaction into the target message: the reactor's
// previous reaction is removed and, when text is non-empty, a new one is
// appended with the given timestamp. A reaction for an untracked message
// is dropped.
func (s *Store) ApplyReaction(chatJID, messageID, reactor, text string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg *core.Message
	for _, m := range s.messages[chatJID] {
		if m.ID == messageID {
			msg = m
			break
		}
	}
	if msg == nil {
		return
	}

	kept := msg.Reactions[:0]
	for _, r := range msg.Reactions {
		if r.Sender != reactor {
			kept = append(kept, r)
		}
	}
	msg.Reactions = kept
	if text != "" {
		msg.Reactions = append(msg.Reactions, core.Reaction{
			Sender:    reactor,
			Text:      text,
			Timestamp: core.UnixTime(ts),
		})
	}
	s.dirty = true
}

// Messages returns up to count most recent messages of a conversation in
// chronological order.
func (s *Store) Messages(chatJID string, count int) []*core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedCopyLocked(chatJID)
	if count > 0 && len(sorted) > count {
		sorted = sorted[len(sorted)-count:]
	}
	return sorted
}

// MessagesSince returns all messages of a conversation with
// timestamp >= since, in chronological order.
func (s *Store) MessagesSince(chatJID string, since int64) []*core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Message
	for _, m := range s.messages[chatJID] {
		if int64(m.Timestamp) >= since {
			out = append(out, copyMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Message looks up a single message by id.
func (s *Store) Message(chatJID, messageID string) (*core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[chatJID] {
		if m.ID == messageID {
			return copyMessage(m), true
		}
	}
	return nil, false
}

// KnownJIDs lists every conversation with at least one stored message.
func (s *Store) KnownJIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jids := make([]string, 0, len(s.messages))
	for jid, msgs := range s.messages {
		if len(msgs) > 0 {
			jids = append(jids, jid)
		}
	}
	sort.Strings(jids)
	return jids
}

// Contact returns stored contact metadata for a JID, trying the
// canonical form first.
func (s *Store) Contact(jid string) (*core.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.contacts[core.NormalizeJID(jid)]; ok {
		copied := *c
		return &copied, true
	}
	if c, ok := s.contacts[jid]; ok {
		copied := *c
		return &copied, true
	}
	return nil, false
}

// ContactCount reports how many contacts are stored.
func (s *Store) ContactCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}

// ChatsSummary lists all conversations with their last message, most
// recently active first.
func (s *Store) ChatsSummary() []core.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := make([]core.ChatSummary, 0, len(s.messages))
	for jid := range s.messages {
		sorted := s.sortedCopyLocked(jid)
		if len(sorted) == 0 {
			continue
		}
		last := sorted[len(sorted)-1]

		name := ""
		if c, ok := s.contacts[jid]; ok {
			name = c.DisplayName()
		}
		if name == "" {
			name = core.LocalPart(jid)
		}

		summary = append(summary, core.ChatSummary{
			ID:            jid,
			Name:          name,
			LastTimestamp: int64(last.Timestamp),
			LastMessage:   last,
		})
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].LastTimestamp != summary[j].LastTimestamp {
			return summary[i].LastTimestamp > summary[j].LastTimestamp
		}
		return summary[i].ID < summary[j].ID
	})
	return summary
}

// sortedCopyLocked returns a chronological copy of one conversation's
// messages. Caller holds at least the read lock.
func (s *Store) sortedCopyLocked(chatJID string) []*core.Message {
	msgs := s.messages[chatJID]
	out := make([]*core.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// copyMessage snapshots a message so readers never share mutable state
// (reaction merges rewrite the Reactions slice in place) with writers.
func copyMessage(m *core.Message) *core.Message {
	copied := *m
	if len(m.Reactions) > 0 {
		copied.Reactions = append([]core.Reaction(nil), m.Reactions...)
	}
	return &copied
}
