package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wa-taskboard/internal/core"
	"wa-taskboard/internal/store"
)

const testGroup = "12345-67890@g.us"

// stubTransport is a scriptable transport for driving the API without a
// live session.
type stubTransport struct {
	connected bool
	self      string
	group     *core.GroupInfo
	groupErr  error
	groups    []core.GroupInfo
	sent      []string
	media     []byte
	mediaErr  error
	resyncs   int
	downloads int
}

func (f *stubTransport) Connected() bool { return f.connected }
func (f *stubTransport) SelfJID() string { return f.self }

func (f *stubTransport) SendText(ctx context.Context, jid, text string) (string, error) {
	f.sent = append(f.sent, text)
	return "SENT1", nil
}

func (f *stubTransport) Groups(ctx context.Context) ([]core.GroupInfo, error) {
	return f.groups, nil
}

func (f *stubTransport) GroupInfo(ctx context.Context, jid string) (*core.GroupInfo, error) {
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.group, nil
}

func (f *stubTransport) DownloadMedia(ctx context.Context, msg *core.Message) ([]byte, error) {
	f.downloads++
	return f.media, f.mediaErr
}

func (f *stubTransport) Resync(ctx context.Context) error {
	f.resyncs++
	return nil
}

func testServer(t *testing.T) (*store.Store, *stubTransport, http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	db := store.NewStore(filepath.Join(dir, "wa_store.json"))
	transport := &stubTransport{
		connected: true,
		self:      "555000@s.whatsapp.net",
		group: &core.GroupInfo{
			JID:  testGroup,
			Name: "Chore Crew",
			Participants: []core.GroupParticipant{
				{JID: "111@s.whatsapp.net"},
				{JID: "222@s.whatsapp.net", Admin: "admin"},
			},
		},
	}
	service := core.NewService(db, transport)
	mediaDir := filepath.Join(dir, "media")
	server := NewServer(service, filepath.Join(dir, "public"), mediaDir, 1)
	return db, transport, server.Router(), mediaDir
}

func groupMsg(id, sender string, ts int64, kind core.ContentKind, text string) *core.Message {
	return &core.Message{
		ID:        id,
		ChatJID:   testGroup,
		Sender:    sender,
		Timestamp: core.UnixTime(ts),
		Kind:      kind,
		Text:      text,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("Response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, payload
}

func TestStatusEndpoint(t *testing.T) {
	_, transport, router, _ := testServer(t)

	rec, payload := doJSON(t, router, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload["connected"] != true || payload["status"] != "connected" {
		t.Errorf("Unexpected payload: %v", payload)
	}

	transport.connected = false
	_, payload = doJSON(t, router, http.MethodGet, "/api/status", "")
	if payload["connected"] != false || payload["status"] != "disconnected" {
		t.Errorf("Unexpected payload: %v", payload)
	}
}

func TestListChatsEndpoint(t *testing.T) {
	db, _, router, _ := testServer(t)
	db.Append(groupMsg("M1", "111@s.whatsapp.net", 1000, core.KindText, "hello"))

	rec, payload := doJSON(t, router, http.MethodGet, "/api/chats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload["count"] != float64(1) {
		t.Errorf("Expected count 1, got %v", payload["count"])
	}
}

func TestGroupMessagesEndpoint(t *testing.T) {
	db, _, router, _ := testServer(t)
	db.Append(groupMsg("M1", "111@s.whatsapp.net", 1000, core.KindText, "first"))
	db.Append(groupMsg("M2", "111@s.whatsapp.net", 2000, core.KindText, "second"))
	db.Append(groupMsg("M3", "111@s.whatsapp.net", 3000, core.KindText, "third"))

	_, payload := doJSON(t, router, http.MethodGet, "/api/groups/"+testGroup+"/messages?limit=2", "")
	if payload["count"] != float64(2) {
		t.Errorf("Expected 2 messages, got %v", payload["count"])
	}

	_, payload = doJSON(t, router, http.MethodGet, "/api/groups/"+testGroup+"/messages?since=2000", "")
	if payload["count"] != float64(2) {
		t.Errorf("Expected 2 messages since cutoff, got %v", payload["count"])
	}

	rec, _ := doJSON(t, router, http.MethodGet, "/api/groups/"+testGroup+"/messages?since=nonsense", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad since, got %d", rec.Code)
	}
}

func TestGroupStatsEndpoint(t *testing.T) {
	db, _, router, _ := testServer(t)
	now := time.Now().Unix()
	db.Append(groupMsg("TASK1", "111@s.whatsapp.net", now-300, core.KindText, "Task: water the plants"))
	award := groupMsg("PTS1", "222@s.whatsapp.net", now-200, core.KindText, "Points: 15")
	award.QuotedID = "TASK1"
	award.QuotedSender = "111@s.whatsapp.net"
	db.Append(award)

	rec, payload := doJSON(t, router, http.MethodGet, "/api/groups/"+testGroup+"/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["groupName"] != "Chore Crew" {
		t.Errorf("Expected group name, got %v", payload["groupName"])
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"points":15`) || !strings.Contains(body, `"awarded":true`) {
		t.Errorf("Expected an awarded task in the stats:\n%s", body)
	}
}

func TestSendEndpoint(t *testing.T) {
	_, transport, router, _ := testServer(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/send", `{"chatId": "", "message": "hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing chatId, got %d", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/api/send", `{"chatId": "`+testGroup+`", "message": "   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank message, got %d", rec.Code)
	}

	rec, payload := doJSON(t, router, http.MethodPost, "/api/send", `{"chatId": "`+testGroup+`", "message": "hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload["messageId"] != "SENT1" {
		t.Errorf("Expected sent message id, got %v", payload["messageId"])
	}
	if len(transport.sent) != 1 || transport.sent[0] != "hello" {
		t.Errorf("Expected message delivered to transport, got %v", transport.sent)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	_, transport, router, _ := testServer(t)
	transport.connected = false

	rec, payload := doJSON(t, router, http.MethodPost, "/api/send", `{"chatId": "`+testGroup+`", "message": "hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	if payload["success"] != false {
		t.Errorf("Expected error envelope, got %v", payload)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	_, _, router, _ := testServer(t)

	rec, payload := doJSON(t, router, http.MethodGet, "/api/chats/"+testGroup+"/messages/NOPE", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if payload["success"] != false {
		t.Errorf("Expected error envelope, got %v", payload)
	}
}

func TestPublishStatsNoData(t *testing.T) {
	_, transport, router, _ := testServer(t)

	rec, payload := doJSON(t, router, http.MethodPost, "/api/groups/"+testGroup+"/stats/publish", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload["message"] != "No stats to publish." {
		t.Errorf("Unexpected message: %v", payload["message"])
	}
	if len(transport.sent) != 0 {
		t.Errorf("Expected nothing sent, got %v", transport.sent)
	}
}

func TestResyncEndpoint(t *testing.T) {
	db, transport, router, _ := testServer(t)
	db.Append(groupMsg("M1", "111@s.whatsapp.net", 1000, core.KindText, "hello"))

	rec, payload := doJSON(t, router, http.MethodPost, "/api/resync-history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if payload["success"] != true {
		t.Errorf("Unexpected payload: %v", payload)
	}
	if transport.resyncs != 1 {
		t.Errorf("Expected 1 resync, got %d", transport.resyncs)
	}
	if jids := db.KnownJIDs(); len(jids) != 0 {
		t.Errorf("Expected store purged, got %v", jids)
	}
}

func TestExportCSVEndpoint(t *testing.T) {
	db, transport, router, _ := testServer(t)
	transport.groups = []core.GroupInfo{{JID: testGroup, Name: "Chore Crew"}}
	db.Append(groupMsg("M1", "111@s.whatsapp.net", time.Now().Unix()-100, core.KindText, "hello"))

	req := httptest.NewRequest(http.MethodGet, "/api/messages/export-csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "hello") {
		t.Error("Expected exported message in CSV body")
	}
}

func TestDownloadMediaCaches(t *testing.T) {
	db, transport, router, mediaDir := testServer(t)
	transport.media = []byte("fake-jpeg-bytes")
	img := groupMsg("IMG1", "111@s.whatsapp.net", 1000, core.KindImage, "")
	img.MimeType = "image/jpeg"
	img.DirectPath = "/v/t62.7118-24/abc"
	img.MediaKey = []byte{1, 2, 3}
	db.Append(img)

	path := "/api/chats/" + testGroup + "/messages/IMG1/download"

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "fake-jpeg-bytes" {
		t.Errorf("Unexpected media body: %q", rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(mediaDir, "IMG1.jpeg")); err != nil {
		t.Errorf("Expected cached media file: %v", err)
	}

	// Second request is served from the cache without another download.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on cached request, got %d", rec.Code)
	}
	if transport.downloads != 1 {
		t.Errorf("Expected exactly 1 transport download, got %d", transport.downloads)
	}
}
