package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ContentKind classifies a message's payload. It is decided once at
// ingestion so consumers never have to re-inspect the raw message shape.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindVideo    ContentKind = "video"
	KindAudio    ContentKind = "audio"
	KindDocument ContentKind = "document"
	KindSticker  ContentKind = "sticker"
	KindSystem   ContentKind = "system"
	KindProtocol ContentKind = "protocol"
	KindUnknown  ContentKind = "unknown"
)

// UnixTime is a Unix-second timestamp that tolerates the shapes older
// snapshot files carry: a plain number, a numeric string, or a 64-bit
// {low, high} pair. Anything unparseable decodes to 0.
type UnixTime int64

// Time converts to time.Time.
func (t UnixTime) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// UnmarshalJSON implements permissive timestamp decoding.
func (t *UnixTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = 0
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = 0
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*t = 0
			return nil
		}
		*t = UnixTime(n)
	case '{':
		var pair struct {
			Low *int64 `json:"low"`
		}
		if err := json.Unmarshal(data, &pair); err != nil || pair.Low == nil {
			*t = 0
			return nil
		}
		*t = UnixTime(*pair.Low)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			*t = 0
			return nil
		}
		*t = UnixTime(int64(f))
	}
	return nil
}

// Reaction is one participant's reaction to a message. A participant has
// at most one active reaction per message.
type Reaction struct {
	Sender    string   `json:"sender"`
	Text      string   `json:"text"`
	Timestamp UnixTime `json:"ts"`
}

// Message is a single stored conversation message.
type Message struct {
	ID           string      `json:"id"`
	ChatJID      string      `json:"chatJid"`
	Sender       string      `json:"sender"`
	FromMe       bool        `json:"fromMe"`
	PushName     string      `json:"pushName,omitempty"`
	Timestamp    UnixTime    `json:"timestamp"`
	Kind         ContentKind `json:"kind"`
	Text         string      `json:"text,omitempty"`
	FileName     string      `json:"fileName,omitempty"`
	MimeType     string      `json:"mimeType,omitempty"`
	QuotedID     string      `json:"quotedId,omitempty"`
	QuotedSender string      `json:"quotedSender,omitempty"`
	Reactions    []Reaction  `json:"reactions,omitempty"`

	// Media metadata kept so the payload can be re-downloaded later.
	DirectPath    string `json:"directPath,omitempty"`
	MediaKey      []byte `json:"mediaKey,omitempty"`
	FileSHA256    []byte `json:"fileSha256,omitempty"`
	FileEncSHA256 []byte `json:"fileEncSha256,omitempty"`
	FileLength    int64  `json:"fileLength,omitempty"`
}

// HasMedia reports whether the message carries a downloadable payload.
func (m *Message) HasMedia() bool {
	return m.DirectPath != "" && len(m.MediaKey) > 0
}

// Preview returns a short human-readable rendering of the message body,
// used for chat summaries and the CSV export.
func (m *Message) Preview() string {
	switch m.Kind {
	case KindText:
		return m.Text
	case KindImage:
		return "[Image]"
	case KindVideo:
		return "[Video]"
	case KindAudio:
		return "[Audio]"
	case KindSticker:
		return "[Sticker]"
	case KindDocument:
		return fmt.Sprintf("[Document: %s]", m.FileName)
	case KindSystem:
		return "[System]"
	case KindProtocol:
		return "[Protocol]"
	default:
		return "[" + string(m.Kind) + "]"
	}
}

// Contact is contact metadata as delivered by the transport.
type Contact struct {
	JID          string `json:"jid"`
	Name         string `json:"name,omitempty"`
	Notify       string `json:"notify,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
}

// DisplayName returns the best available name for the contact, falling
// back to the local part of the JID.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.Name != "" {
		return c.Name
	}
	if c.Notify != "" {
		return c.Notify
	}
	if c.VerifiedName != "" {
		return c.VerifiedName
	}
	return LocalPart(c.JID)
}

// ChatSummary describes one known conversation for listing.
type ChatSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	LastTimestamp int64    `json:"lastMessageTimestamp"`
	LastMessage   *Message `json:"lastMessage,omitempty"`
}

// TaskScore is a task message's scoring state within one aggregation.
type TaskScore struct {
	MessageID string `json:"id"`
	Text      string `json:"text"`
	Points    int    `json:"points"`
	Awarded   bool   `json:"awarded"`
}

// ActivityCounts are per-member per-day activity counters.
type ActivityCounts struct {
	Text      int `json:"text"`
	Image     int `json:"image"`
	Video     int `json:"video"`
	Reactions int `json:"reactions"`
	Replies   int `json:"replies"`
}

// MemberStats is one member's leaderboard entry for a day.
type MemberStats struct {
	JID    string         `json:"jid"`
	Name   string         `json:"name"`
	Points int            `json:"points"`
	Tasks  []*TaskScore   `json:"tasks"`
	Counts ActivityCounts `json:"counts"`
}

// DaySummary is the leaderboard for a single calendar day.
type DaySummary struct {
	Date    string         `json:"date"`
	Members []*MemberStats `json:"members"`

	// day anchors Date to a sortable instant; the display string alone
	// has no year.
	day time.Time
}

// GroupParticipant is one member of a group, with its admin role
// ("admin", "superadmin" or empty).
type GroupParticipant struct {
	JID   string `json:"id"`
	Admin string `json:"admin,omitempty"`
}

// GroupInfo is the transport's snapshot of a group's metadata.
type GroupInfo struct {
	JID          string             `json:"id"`
	Name         string             `json:"subject"`
	Participants []GroupParticipant `json:"participants,omitempty"`
}
