package wa

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"wa-taskboard/internal/core"
	"wa-taskboard/internal/store"
)

// Client is the WhatsApp transport adapter. It owns the socket session
// and feeds message, contact and reaction events into the conversation
// log; everything else consumes the log, never the socket.
type Client struct {
	wm      *whatsmeow.Client
	history *store.Store
}

// NewClient creates the transport with credentials persisted in a sqlite
// session database at sessionDBPath.
func NewClient(sessionDBPath string, history *store.Store) (*Client, error) {
	dbLog := waLog.Stdout("Session", "WARN", true)
	container, err := sqlstore.New("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", sessionDBPath), dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	c := &Client{
		wm:      whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true)),
		history: history,
	}
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect opens the session. A fresh device prints a pairing QR code to
// the terminal; whatsmeow handles reconnects after that on its own.
func (c *Client) Connect(ctx context.Context) error {
	if c.wm.Store.ID == nil {
		qrChan, err := c.wm.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := c.wm.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					fmt.Println("\n=================================")
					fmt.Println("Scan this QR code with WhatsApp:")
					fmt.Println("=================================")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				} else {
					log.Printf("QR channel: %s", evt.Event)
				}
			}
		}()
		return nil
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect() {
	c.wm.Disconnect()
}

// handleEvent is the single event feed into the conversation log.
func (c *Client) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessage(evt)
	case *events.HistorySync:
		c.handleHistorySync(evt)
	case *events.PushName:
		c.history.UpsertContact(&core.Contact{
			JID:    core.NormalizeJID(evt.JID.String()),
			Notify: evt.NewPushName,
		})
	case *events.Contact:
		c.history.UpsertContact(&core.Contact{
			JID:  core.NormalizeJID(evt.JID.String()),
			Name: evt.Action.GetFullName(),
		})
	case *events.Connected:
		log.Println("✅ WhatsApp connected successfully!")
		if id := c.wm.Store.ID; id != nil {
			log.Printf("Connected as: %s", id.User)
		}
	case *events.LoggedOut:
		log.Println("Logged out. Delete the session database and restart to pair again.")
	case *events.Disconnected:
		log.Println("Connection closed, reconnecting...")
	}
}

// handleMessage stores a live message, or merges it as a reaction when
// the payload is a reaction.
func (c *Client) handleMessage(evt *events.Message) {
	if rm := evt.Message.GetReactionMessage(); rm != nil {
		c.history.ApplyReaction(
			evt.Info.Chat.String(),
			rm.GetKey().GetID(),
			evt.Info.Sender.String(),
			rm.GetText(),
			evt.Info.Timestamp.Unix(),
		)
		return
	}
	c.history.Append(convertMessage(evt))
}

// handleHistorySync ingests one history batch: push names become
// contacts, conversation messages append with the usual dedup.
func (c *Client) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	log.Printf("Store received history sync: type=%v conversations=%d", data.GetSyncType(), len(data.GetConversations()))

	for _, pn := range data.GetPushnames() {
		if pn.GetID() == "" {
			continue
		}
		c.history.UpsertContact(&core.Contact{
			JID:    core.NormalizeJID(pn.GetID()),
			Notify: pn.GetPushname(),
		})
	}

	for _, conv := range data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, historyMsg := range conv.GetMessages() {
			parsed, err := c.wm.ParseWebMessage(chatJID, historyMsg.GetMessage())
			if err != nil {
				continue
			}
			c.handleMessage(parsed)
		}
	}
}

// Connected reports whether the session is up and logged in.
func (c *Client) Connected() bool {
	return c.wm.IsConnected() && c.wm.IsLoggedIn()
}

// SelfJID returns the logged-in account's JID, or empty before pairing.
func (c *Client) SelfJID() string {
	if id := c.wm.Store.ID; id != nil {
		return id.String()
	}
	return ""
}

// SendText sends a plain text message and returns the sent message id.
func (c *Client) SendText(ctx context.Context, jid, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("invalid JID %q: %w", jid, err)
	}
	resp, err := c.wm.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	log.Printf("Message sent to %s", jid)
	return resp.ID, nil
}

// Groups lists the groups the account participates in.
func (c *Client) Groups(ctx context.Context) ([]core.GroupInfo, error) {
	groups, err := c.wm.GetJoinedGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}
	out := make([]core.GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, core.GroupInfo{
			JID:          g.JID.String(),
			Name:         g.Name,
			Participants: convertParticipants(g.Participants),
		})
	}
	return out, nil
}

// GroupInfo fetches one group's metadata snapshot.
func (c *Client) GroupInfo(ctx context.Context, jid string) (*core.GroupInfo, error) {
	j, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("invalid JID %q: %w", jid, err)
	}
	info, err := c.wm.GetGroupInfo(j)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group metadata: %w", err)
	}
	return &core.GroupInfo{
		JID:          info.JID.String(),
		Name:         info.Name,
		Participants: convertParticipants(info.Participants),
	}, nil
}

func convertParticipants(participants []types.GroupParticipant) []core.GroupParticipant {
	out := make([]core.GroupParticipant, 0, len(participants))
	for _, p := range participants {
		admin := ""
		if p.IsSuperAdmin {
			admin = "superadmin"
		} else if p.IsAdmin {
			admin = "admin"
		}
		out = append(out, core.GroupParticipant{JID: p.JID.String(), Admin: admin})
	}
	return out
}

// DownloadMedia fetches a stored message's media payload using the
// reconstruction fields kept on the record.
func (c *Client) DownloadMedia(ctx context.Context, msg *core.Message) ([]byte, error) {
	if !msg.HasMedia() {
		return nil, fmt.Errorf("message %s has no downloadable media", msg.ID)
	}
	var mediaType whatsmeow.MediaType
	switch msg.Kind {
	case core.KindImage, core.KindSticker:
		mediaType = whatsmeow.MediaImage
	case core.KindVideo:
		mediaType = whatsmeow.MediaVideo
	case core.KindAudio:
		mediaType = whatsmeow.MediaAudio
	case core.KindDocument:
		mediaType = whatsmeow.MediaDocument
	default:
		return nil, fmt.Errorf("message %s is not a media message", msg.ID)
	}
	data, err := c.wm.DownloadMediaWithPath(msg.DirectPath, msg.FileEncSHA256, msg.FileSHA256, msg.MediaKey, int(msg.FileLength), mediaType, "")
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	return data, nil
}

// Resync reconnects the session so the server re-delivers what it can.
// Callers purge the store first; the two steps are deliberately not a
// transaction.
func (c *Client) Resync(ctx context.Context) error {
	c.wm.Disconnect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	return nil
}
