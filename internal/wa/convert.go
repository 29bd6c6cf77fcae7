package wa

import (
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"wa-taskboard/internal/core"
)

// convertMessage maps one transport event to the stored record. The
// content kind is decided here, once, so nothing downstream re-inspects
// the raw proto shape.
func convertMessage(evt *events.Message) *core.Message {
	msg := &core.Message{
		ID:        evt.Info.ID,
		ChatJID:   evt.Info.Chat.String(),
		Sender:    evt.Info.Sender.String(),
		FromMe:    evt.Info.IsFromMe,
		PushName:  evt.Info.PushName,
		Timestamp: core.UnixTime(evt.Info.Timestamp.Unix()),
		Kind:      core.KindUnknown,
	}

	m := evt.Message
	if m == nil {
		// History syncs can carry stubs with no payload at all.
		msg.Kind = core.KindSystem
		return msg
	}

	switch {
	case m.GetExtendedTextMessage() != nil:
		ext := m.GetExtendedTextMessage()
		msg.Kind = core.KindText
		msg.Text = ext.GetText()
		applyContext(msg, ext.GetContextInfo())
	case m.GetConversation() != "":
		msg.Kind = core.KindText
		msg.Text = m.GetConversation()
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		msg.Kind = core.KindImage
		msg.Text = img.GetCaption()
		msg.MimeType = img.GetMimetype()
		applyContext(msg, img.GetContextInfo())
		applyMedia(msg, img.GetDirectPath(), img.GetMediaKey(), img.GetFileSHA256(), img.GetFileEncSHA256(), int64(img.GetFileLength()))
	case m.GetVideoMessage() != nil:
		vid := m.GetVideoMessage()
		msg.Kind = core.KindVideo
		msg.Text = vid.GetCaption()
		msg.MimeType = vid.GetMimetype()
		applyContext(msg, vid.GetContextInfo())
		applyMedia(msg, vid.GetDirectPath(), vid.GetMediaKey(), vid.GetFileSHA256(), vid.GetFileEncSHA256(), int64(vid.GetFileLength()))
	case m.GetAudioMessage() != nil:
		aud := m.GetAudioMessage()
		msg.Kind = core.KindAudio
		msg.MimeType = aud.GetMimetype()
		applyMedia(msg, aud.GetDirectPath(), aud.GetMediaKey(), aud.GetFileSHA256(), aud.GetFileEncSHA256(), int64(aud.GetFileLength()))
	case m.GetDocumentMessage() != nil:
		doc := m.GetDocumentMessage()
		msg.Kind = core.KindDocument
		msg.Text = doc.GetCaption()
		msg.FileName = doc.GetFileName()
		msg.MimeType = doc.GetMimetype()
		applyContext(msg, doc.GetContextInfo())
		applyMedia(msg, doc.GetDirectPath(), doc.GetMediaKey(), doc.GetFileSHA256(), doc.GetFileEncSHA256(), int64(doc.GetFileLength()))
	case m.GetStickerMessage() != nil:
		stk := m.GetStickerMessage()
		msg.Kind = core.KindSticker
		msg.MimeType = stk.GetMimetype()
		applyMedia(msg, stk.GetDirectPath(), stk.GetMediaKey(), stk.GetFileSHA256(), stk.GetFileEncSHA256(), int64(stk.GetFileLength()))
	case m.GetProtocolMessage() != nil:
		msg.Kind = core.KindProtocol
	}
	return msg
}

// applyContext copies the quoted-reference, when present, onto the record.
func applyContext(msg *core.Message, ci *waE2E.ContextInfo) {
	if ci == nil || ci.GetQuotedMessage() == nil {
		return
	}
	msg.QuotedID = ci.GetStanzaID()
	msg.QuotedSender = ci.GetParticipant()
}

// applyMedia copies the fields needed to re-download the payload later.
func applyMedia(msg *core.Message, directPath string, mediaKey, fileSHA256, fileEncSHA256 []byte, length int64) {
	msg.DirectPath = directPath
	msg.MediaKey = mediaKey
	msg.FileSHA256 = fileSHA256
	msg.FileEncSHA256 = fileEncSHA256
	msg.FileLength = length
}
