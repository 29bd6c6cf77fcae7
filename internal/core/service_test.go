package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory Store stand-in that records how it is
// queried.
type fakeStore struct {
	msgs      map[string][]*Message
	contacts  map[string]*Contact
	calls     []string
	lastJID   string
	lastLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:     make(map[string][]*Message),
		contacts: make(map[string]*Contact),
	}
}

func (f *fakeStore) Messages(chatJID string, count int) []*Message {
	f.lastJID = chatJID
	f.lastLimit = count
	msgs := f.msgs[chatJID]
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	return msgs
}

func (f *fakeStore) MessagesSince(chatJID string, since int64) []*Message {
	var out []*Message
	for _, m := range f.msgs[chatJID] {
		if int64(m.Timestamp) >= since {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeStore) Message(chatJID, messageID string) (*Message, bool) {
	for _, m := range f.msgs[chatJID] {
		if m.ID == messageID {
			return m, true
		}
	}
	return nil, false
}

func (f *fakeStore) KnownJIDs() []string {
	var jids []string
	for jid := range f.msgs {
		jids = append(jids, jid)
	}
	return jids
}

func (f *fakeStore) ChatsSummary() []ChatSummary { return nil }

func (f *fakeStore) Contact(jid string) (*Contact, bool) {
	c, ok := f.contacts[NormalizeJID(jid)]
	return c, ok
}

func (f *fakeStore) ContactCount() int { return len(f.contacts) }

func (f *fakeStore) Purge() {
	f.calls = append(f.calls, "purge")
	f.msgs = make(map[string][]*Message)
}

func (f *fakeStore) Save() error { return nil }

// fakeTransport is a scriptable Transport stand-in that records sends
// and resyncs.
type fakeTransport struct {
	connected bool
	self      string
	group     *GroupInfo
	groupErr  error
	groups    []GroupInfo
	groupsErr error
	sent      []string
	sendErr   error
	media     []byte
	mediaErr  error
	calls     []string
	resyncErr error
}

func (f *fakeTransport) Connected() bool { return f.connected }
func (f *fakeTransport) SelfJID() string { return f.self }

func (f *fakeTransport) SendText(ctx context.Context, jid, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, text)
	return "SENT1", nil
}

func (f *fakeTransport) Groups(ctx context.Context) ([]GroupInfo, error) {
	return f.groups, f.groupsErr
}

func (f *fakeTransport) GroupInfo(ctx context.Context, jid string) (*GroupInfo, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.group, nil
}

func (f *fakeTransport) DownloadMedia(ctx context.Context, msg *Message) ([]byte, error) {
	return f.media, f.mediaErr
}

func (f *fakeTransport) Resync(ctx context.Context) error {
	f.calls = append(f.calls, "resync")
	return f.resyncErr
}

func taskboardFixture() (*fakeStore, *fakeTransport, *Service) {
	db := newFakeStore()
	transport := &fakeTransport{
		connected: true,
		self:      "555000@s.whatsapp.net",
		group: &GroupInfo{
			JID:  testGroup,
			Name: "Chore Crew",
			Participants: []GroupParticipant{
				{JID: alice},
				{JID: bob, Admin: "admin"},
				{JID: carol},
			},
		},
	}
	return db, transport, NewService(db, transport)
}

func TestPublishStatsNoData(t *testing.T) {
	_, transport, service := taskboardFixture()

	summary, published, err := service.PublishStats(context.Background(), testGroup, 1)
	if err != nil {
		t.Fatalf("PublishStats failed: %v", err)
	}
	if published {
		t.Error("Expected nothing to publish for an empty window")
	}
	if len(summary) != 0 {
		t.Errorf("Expected empty summary, got %d days", len(summary))
	}
	if len(transport.sent) != 0 {
		t.Errorf("Expected no message sent, got %d", len(transport.sent))
	}
}

func TestPublishStatsSendsDigestOnce(t *testing.T) {
	db, transport, service := taskboardFixture()
	now := time.Now().Unix()
	db.msgs[testGroup] = []*Message{
		textMsg("TASK1", alice, now-300, "Task: water the plants"),
		replyMsg("PTS1", bob, now-200, "Points: 15", "TASK1", alice),
	}

	summary, published, err := service.PublishStats(context.Background(), testGroup, 1)
	if err != nil {
		t.Fatalf("PublishStats failed: %v", err)
	}
	if !published {
		t.Fatal("Expected the digest to publish")
	}
	if len(summary) != 1 {
		t.Errorf("Expected 1 day summary, got %d", len(summary))
	}
	if len(transport.sent) != 1 {
		t.Fatalf("Expected exactly 1 message sent, got %d", len(transport.sent))
	}
	digest := transport.sent[0]
	if !strings.Contains(digest, "📊 *Task & Points Summary* 📊") {
		t.Errorf("Digest missing header:\n%s", digest)
	}
	if !strings.Contains(digest, "[✅ 15 pts]") {
		t.Errorf("Digest missing awarded task:\n%s", digest)
	}
}

func TestGroupStatsDegradesWithoutMetadata(t *testing.T) {
	db, transport, service := taskboardFixture()
	transport.groupErr = errors.New("metadata unavailable")
	now := time.Now().Unix()
	db.msgs[testGroup] = []*Message{
		textMsg("TASK1", alice, now-300, "Task: water the plants"),
		replyMsg("PTS1", bob, now-200, "Points: 15", "TASK1", alice),
	}

	stats, err := service.GroupStats(context.Background(), testGroup, 1)
	if err != nil {
		t.Fatalf("GroupStats failed: %v", err)
	}
	task := findMember(stats, alice).Tasks[0]
	if task.Awarded {
		t.Error("Expected no awards without an admin roster")
	}
}

func TestSendTextValidation(t *testing.T) {
	_, transport, service := taskboardFixture()

	if _, err := service.SendText(context.Background(), testGroup, "   "); err == nil {
		t.Error("Expected error for blank message")
	}

	transport.connected = false
	if _, err := service.SendText(context.Background(), testGroup, "hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestListGroupsRequiresConnection(t *testing.T) {
	_, transport, service := taskboardFixture()
	transport.connected = false

	if _, err := service.ListGroups(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	_, _, service := taskboardFixture()

	if _, err := service.GetMessage(testGroup, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGroupMessagesDefaults(t *testing.T) {
	db, _, service := taskboardFixture()

	service.GroupMessages("12345-67890", 0)

	if db.lastJID != testGroup {
		t.Errorf("Expected bare id to get the group server, got %q", db.lastJID)
	}
	if db.lastLimit != 50 {
		t.Errorf("Expected default limit 50, got %d", db.lastLimit)
	}
}

func TestGroupMembersNaming(t *testing.T) {
	db, transport, service := taskboardFixture()
	transport.group.Participants = append(transport.group.Participants,
		GroupParticipant{JID: "555000@s.whatsapp.net", Admin: "superadmin"})
	db.contacts[alice] = &Contact{JID: alice, Name: "Alice"}

	members, err := service.GroupMembers(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("GroupMembers failed: %v", err)
	}

	byJID := make(map[string]GroupMember)
	for _, m := range members {
		byJID[m.JID] = m
	}
	if byJID[alice].Name != "Alice" {
		t.Errorf("Expected stored contact name, got %q", byJID[alice].Name)
	}
	if byJID[bob].Name != "222" {
		t.Errorf("Expected local-part fallback, got %q", byJID[bob].Name)
	}
	if byJID["555000@s.whatsapp.net"].Name != "Me" {
		t.Errorf("Expected Me for the account itself, got %q", byJID["555000@s.whatsapp.net"].Name)
	}
}

func TestGroupAdmins(t *testing.T) {
	_, transport, service := taskboardFixture()
	transport.group.Participants = append(transport.group.Participants,
		GroupParticipant{JID: "555000@s.whatsapp.net", Admin: "superadmin"})

	admins, err := service.GroupAdmins(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("GroupAdmins failed: %v", err)
	}
	if len(admins) != 2 {
		t.Errorf("Expected 2 admins, got %d", len(admins))
	}
}

func TestGroupNameFallback(t *testing.T) {
	_, transport, service := taskboardFixture()

	if got := service.GroupName(context.Background(), testGroup); got != "Chore Crew" {
		t.Errorf("Expected group subject, got %q", got)
	}

	transport.groupErr = errors.New("metadata unavailable")
	if got := service.GroupName(context.Background(), testGroup); got != "Unknown Group" {
		t.Errorf("Expected placeholder name, got %q", got)
	}
}

func TestPurgeAndResyncOrder(t *testing.T) {
	db, transport, service := taskboardFixture()
	db.msgs[testGroup] = []*Message{textMsg("M1", alice, baseTS, "hello")}

	if err := service.PurgeAndResync(context.Background()); err != nil {
		t.Fatalf("PurgeAndResync failed: %v", err)
	}
	if len(db.calls) != 1 || db.calls[0] != "purge" {
		t.Errorf("Expected exactly one purge, got %v", db.calls)
	}
	if len(transport.calls) != 1 || transport.calls[0] != "resync" {
		t.Errorf("Expected exactly one resync, got %v", transport.calls)
	}
	if len(db.msgs[testGroup]) != 0 {
		t.Error("Expected store emptied by purge")
	}
}

func TestExportCSV(t *testing.T) {
	db, transport, service := taskboardFixture()
	transport.groups = []GroupInfo{{JID: testGroup, Name: "Chore Crew"}}
	now := time.Now().Unix()
	img := &Message{ID: "I1", ChatJID: testGroup, Sender: alice, Timestamp: UnixTime(now - 100), Kind: KindImage, Text: "the sink, fixed", PushName: "Alice"}
	db.msgs[testGroup] = []*Message{
		textMsg("M1", alice, now-200, "hello"),
		img,
		{ID: "P1", ChatJID: testGroup, Sender: alice, Timestamp: UnixTime(now - 50), Kind: KindProtocol},
	}

	csvData, err := service.ExportCSV(context.Background(), testGroup)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(csvData), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header + 2 rows (protocol skipped), got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "JID,Name,Timestamp,DateTime") {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.Contains(csvData, "Chore Crew") {
		t.Error("Expected resolved group name in rows")
	}
	if !strings.Contains(csvData, "[Image]") || !strings.Contains(csvData, "the sink, fixed") {
		t.Error("Expected image placeholder content and caption column")
	}
}
