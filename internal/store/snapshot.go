package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"wa-taskboard/internal/core"
)

// snapshotFile is the on-disk layout: two top-level keyed collections.
type snapshotFile struct {
	Messages map[string][]*core.Message `json:"messages"`
	Contacts map[string]*core.Contact   `json:"contacts"`
}

// Save writes the whole store to the snapshot file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snapshotFile{
		Messages: s.messages,
		Contacts: s.contacts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store to %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// Load reads the snapshot file into the store. Contacts merge into any
// metadata already present. A legacy file whose top level is just the
// message map still loads. Read or parse failures are logged and leave
// the store as it was; startup never fails on a bad snapshot.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to read store from %s: %v", s.path, err)
		}
		return
	}

	var parsed snapshotFile
	if err := json.Unmarshal(data, &parsed); err == nil && (parsed.Messages != nil || parsed.Contacts != nil) {
		s.applySnapshot(parsed)
		log.Printf("Store loaded from %s", s.path)
		return
	}

	// Legacy shape: the document root is the message map itself.
	var legacy map[string][]*core.Message
	if err := json.Unmarshal(data, &legacy); err != nil {
		log.Printf("Failed to parse store from %s: %v", s.path, err)
		return
	}
	s.applySnapshot(snapshotFile{Messages: legacy})
	log.Printf("Store loaded from %s (legacy format)", s.path)
}

// applySnapshot installs loaded messages and merges loaded contacts.
// Both maps are swapped/merged under the write lock so readers never see
// a half-restored store.
func (s *Store) applySnapshot(parsed snapshotFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jid, msgs := range parsed.Messages {
		if jid == "" {
			continue
		}
		s.messages[jid] = msgs
	}
	for jid, c := range parsed.Contacts {
		if c == nil || jid == "" {
			continue
		}
		c.JID = jid
		s.mergeContactLocked(c)
	}
}

// Purge atomically clears all conversations and contacts and removes the
// snapshot file.
func (s *Store) Purge() {
	s.mu.Lock()
	s.messages = make(map[string][]*core.Message)
	s.contacts = make(map[string]*core.Contact)
	s.dirty = false
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to delete store file %s: %v", s.path, err)
	}
	log.Println("Store purged")
}

// RunAutosave periodically writes the store to disk until ctx is
// cancelled. A failed write is logged and retried on the next tick. A
// final save runs on shutdown so recent messages survive a restart.
func (s *Store) RunAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.isDirty() {
				if err := s.Save(); err != nil {
					log.Printf("Final store save failed: %v", err)
				}
			}
			return
		case <-ticker.C:
			if !s.isDirty() {
				continue
			}
			if err := s.Save(); err != nil {
				log.Printf("Store autosave failed: %v", err)
			}
		}
	}
}

func (s *Store) isDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}
