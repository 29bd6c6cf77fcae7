package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrNotFound reports a missing message or conversation.
var ErrNotFound = errors.New("not found")

// ErrNotConnected reports that the transport has no active session.
var ErrNotConnected = errors.New("whatsapp not connected")

// Store interface defines the methods required from the conversation log
type Store interface {
	Messages(chatJID string, count int) []*Message
	MessagesSince(chatJID string, since int64) []*Message
	Message(chatJID, messageID string) (*Message, bool)
	KnownJIDs() []string
	ChatsSummary() []ChatSummary
	Contact(jid string) (*Contact, bool)
	ContactCount() int
	Purge()
	Save() error
}

// Transport interface defines the operations consumed from the WhatsApp
// transport collaborator. The event feed side writes into the Store
// directly; the Service only pulls metadata and pushes side effects.
type Transport interface {
	Connected() bool
	SelfJID() string
	SendText(ctx context.Context, jid, text string) (string, error)
	Groups(ctx context.Context) ([]GroupInfo, error)
	GroupInfo(ctx context.Context, jid string) (*GroupInfo, error)
	DownloadMedia(ctx context.Context, msg *Message) ([]byte, error)
	Resync(ctx context.Context) error
}

// Service provides the query, scoring and publishing operations exposed
// to the API layer.
type Service struct {
	store     Store
	transport Transport
}

// NewService creates a new Service instance
func NewService(store Store, transport Transport) *Service {
	return &Service{
		store:     store,
		transport: transport,
	}
}

// Connected reports whether the transport session is up.
func (s *Service) Connected() bool {
	return s.transport.Connected()
}

// ListChats lists all known conversations, most recently active first.
func (s *Service) ListChats() []ChatSummary {
	return s.store.ChatsSummary()
}

// ListGroups lists the groups the account participates in.
func (s *Service) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	if !s.transport.Connected() {
		return nil, ErrNotConnected
	}
	return s.transport.Groups(ctx)
}

// GroupMessages returns the most recent messages of a conversation.
func (s *Service) GroupMessages(chatJID string, limit int) []*Message {
	if limit <= 0 {
		limit = 50
	}
	return s.store.Messages(ensureJID(chatJID, "g.us"), limit)
}

// MessagesSince returns all messages of a conversation from the given
// Unix timestamp onward.
func (s *Service) MessagesSince(chatJID string, since int64) []*Message {
	return s.store.MessagesSince(chatJID, since)
}

// GetMessage looks up one message by conversation and message id.
func (s *Service) GetMessage(chatJID, messageID string) (*Message, error) {
	msg, ok := s.store.Message(chatJID, messageID)
	if !ok {
		return nil, ErrNotFound
	}
	return msg, nil
}

// DownloadMedia fetches the media payload of a stored message.
func (s *Service) DownloadMedia(ctx context.Context, chatJID, messageID string) ([]byte, *Message, error) {
	msg, err := s.GetMessage(chatJID, messageID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.transport.DownloadMedia(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, msg, nil
}

// SendText publishes a text message to a conversation and returns the
// sent message id.
func (s *Service) SendText(ctx context.Context, chatJID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message cannot be empty")
	}
	if !s.transport.Connected() {
		return "", ErrNotConnected
	}
	return s.transport.SendText(ctx, chatJID, text)
}

// GroupStats computes the daily leaderboard for a group over a lookback
// window of days. The aggregation itself is stateless: it reads one
// consistent slice of the window's messages and the current admin set,
// so re-running it over an unchanged log yields identical output.
func (s *Service) GroupStats(ctx context.Context, groupJID string, days int) ([]*DaySummary, error) {
	if days <= 0 {
		days = 1
	}
	now := time.Now()
	since := now.Unix() - int64(days)*24*60*60
	msgs := s.store.MessagesSince(groupJID, since)

	admins := s.adminSet(ctx, groupJID)
	self := ""
	if jid := s.transport.SelfJID(); jid != "" {
		self = NormalizeJID(jid)
	}

	return aggregate(msgs, admins, self, now), nil
}

// adminSet fetches the group's current admins as normalized local parts.
// A metadata failure degrades to an empty set: no points get awarded,
// but the scan itself proceeds.
func (s *Service) adminSet(ctx context.Context, groupJID string) map[string]bool {
	admins := make(map[string]bool)
	info, err := s.transport.GroupInfo(ctx, groupJID)
	if err != nil {
		log.Printf("Failed to fetch group metadata for admin check, proceeding without admins: %v", err)
		return admins
	}
	for _, p := range info.Participants {
		if p.Admin == "admin" || p.Admin == "superadmin" {
			admins[LocalPart(p.JID)] = true
		}
	}
	log.Printf("[Stats] Found %d admins in group %s", len(admins), groupJID)
	return admins
}

// PublishStats renders the leaderboard digest and sends it to the group.
// It reports false when the window has nothing to publish; the digest is
// sent at most once per call.
func (s *Service) PublishStats(ctx context.Context, groupJID string, days int) ([]*DaySummary, bool, error) {
	summary, err := s.GroupStats(ctx, groupJID, days)
	if err != nil {
		return nil, false, err
	}
	if len(summary) == 0 {
		return summary, false, nil
	}
	if _, err := s.SendText(ctx, groupJID, RenderDigest(summary)); err != nil {
		return nil, false, fmt.Errorf("failed to publish stats: %w", err)
	}
	return summary, true, nil
}

// GroupName resolves a group's subject, falling back to a placeholder
// when metadata is unavailable.
func (s *Service) GroupName(ctx context.Context, groupJID string) string {
	info, err := s.transport.GroupInfo(ctx, groupJID)
	if err != nil || info == nil {
		return "Unknown Group"
	}
	return info.Name
}

// GroupMember is a group participant with its resolved display name.
type GroupMember struct {
	JID   string `json:"id"`
	Name  string `json:"name"`
	Admin string `json:"admin,omitempty"`
}

// GroupMembers lists a group's participants with display names resolved
// from stored contact metadata, handling the logged-in account itself.
func (s *Service) GroupMembers(ctx context.Context, groupJID string) ([]GroupMember, error) {
	info, err := s.transport.GroupInfo(ctx, groupJID)
	if err != nil {
		return nil, err
	}
	log.Printf("[Members] Store has %d contacts", s.store.ContactCount())

	self := LocalPart(s.transport.SelfJID())
	members := make([]GroupMember, 0, len(info.Participants))
	for _, p := range info.Participants {
		name := ""
		if c, ok := s.store.Contact(p.JID); ok {
			name = c.DisplayName()
		}
		local := LocalPart(p.JID)
		if name == "" && self != "" && local == self {
			name = "Me"
		}
		if name == "" {
			name = local
		}
		members = append(members, GroupMember{JID: p.JID, Name: name, Admin: p.Admin})
	}
	return members, nil
}

// GroupAdmins lists a group's admin participants.
func (s *Service) GroupAdmins(ctx context.Context, groupJID string) ([]GroupParticipant, error) {
	info, err := s.transport.GroupInfo(ctx, groupJID)
	if err != nil {
		return nil, err
	}
	var admins []GroupParticipant
	for _, p := range info.Participants {
		if p.Admin == "admin" || p.Admin == "superadmin" {
			admins = append(admins, p)
		}
	}
	return admins, nil
}

// PurgeAndResync clears the whole store and asks the transport to
// reconnect and resync history. The two steps are best-effort, not a
// transaction: a crash in between leaves an empty store, which is an
// acceptable recovery state.
func (s *Service) PurgeAndResync(ctx context.Context) error {
	log.Println("Purging store and resyncing history...")
	s.store.Purge()
	if err := s.transport.Resync(ctx); err != nil {
		return fmt.Errorf("failed to resync transport: %w", err)
	}
	return nil
}

// ExportCSV renders the last 24 hours of messages as CSV. When groupJID
// is empty every known conversation is scanned.
func (s *Service) ExportCSV(ctx context.Context, groupJID string) (string, error) {
	since := time.Now().Unix() - 24*60*60

	groupNames := make(map[string]string)
	if groups, err := s.transport.Groups(ctx); err != nil {
		log.Printf("Failed to fetch group names for CSV: %v", err)
	} else {
		for _, g := range groups {
			groupNames[g.JID] = g.Name
		}
	}

	jids := []string{groupJID}
	if groupJID == "" {
		jids = s.store.KnownJIDs()
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write([]string{"JID", "Name", "Timestamp", "DateTime", "Sender Name", "Sender ID", "Type", "Content", "Caption", "Media Type", "File Name"})

	for _, jid := range jids {
		name := groupNames[jid]
		if name == "" {
			name = "Unknown/Private"
		}
		for _, msg := range s.store.MessagesSince(jid, since) {
			if msg.Kind == KindProtocol {
				continue
			}
			content, caption, mediaType := csvFields(msg)
			senderName := msg.PushName
			if senderName == "" {
				senderName = "Unknown"
			}
			ts := int64(msg.Timestamp)
			w.Write([]string{
				jid,
				name,
				fmt.Sprintf("%d", ts),
				time.Unix(ts, 0).UTC().Format(time.RFC3339),
				senderName,
				msg.Sender,
				string(msg.Kind),
				content,
				caption,
				mediaType,
				msg.FileName,
			})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to build CSV: %w", err)
	}
	return sb.String(), nil
}

// csvFields splits a message into the export's content, caption and
// media-type columns.
func csvFields(msg *Message) (content, caption, mediaType string) {
	switch msg.Kind {
	case KindText:
		return msg.Text, "", ""
	case KindImage:
		return "[Image]", msg.Text, "image"
	case KindVideo:
		return "[Video]", msg.Text, "video"
	case KindAudio:
		return "[Audio]", "", "audio"
	case KindSticker:
		return "[Sticker]", "", "sticker"
	case KindDocument:
		return fmt.Sprintf("[Document: %s]", msg.FileName), msg.Text, "document"
	default:
		return "[" + string(msg.Kind) + "]", "", ""
	}
}

// ensureJID appends a default server when the id carries none.
func ensureJID(jid, server string) string {
	if strings.ContainsRune(jid, '@') {
		return jid
	}
	return jid + "@" + server
}
