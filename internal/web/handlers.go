package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"wa-taskboard/internal/core"

	"github.com/go-chi/chi/v5"
)

// handleStatus reports transport connection state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	connected := s.service.Connected()
	message := "WhatsApp is not connected. Please scan QR code."
	status := "disconnected"
	if connected {
		message = "WhatsApp is connected and ready"
		status = "connected"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"connected": connected,
		"status":    status,
		"message":   message,
	})
}

// handleListChats lists all known conversations.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats := s.service.ListChats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(chats),
		"chats":   chats,
	})
}

// handleListGroups lists participating groups.
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.service.ListGroups(r.Context())
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(groups),
		"groups":  groups,
	})
}

// handleGroupMessages returns the most recent messages of a group.
func (s *Server) handleGroupMessages(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var messages []*core.Message
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be a Unix timestamp")
			return
		}
		messages = s.service.MessagesSince(groupID, ts)
	} else {
		messages = s.service.GroupMessages(groupID, limit)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(messages),
		"messages": messages,
	})
}

// handleGetMessage returns one message by id.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.service.GetMessage(chi.URLParam(r, "chatID"), chi.URLParam(r, "messageID"))
	if err != nil {
		respondError(w, errorStatus(err), "Message not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": msg,
	})
}

// handleGroupStats computes the leaderboard for a group.
func (s *Server) handleGroupStats(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	days := s.queryDays(r)

	stats, err := s.service.GroupStats(r.Context(), groupID, days)
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"groupId":   groupID,
		"groupName": s.service.GroupName(r.Context(), groupID),
		"days":      days,
		"stats":     stats,
	})
}

// handlePublishStats renders the leaderboard digest and sends it to the
// group.
func (s *Server) handlePublishStats(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	days := s.queryDays(r)

	summary, published, err := s.service.PublishStats(r.Context(), groupID, days)
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	if !published {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "No stats to publish.",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Stats published to group",
		"summary": summary,
	})
}

// handleGroupMembers lists a group's members with resolved names.
func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.service.GroupMembers(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"members": members,
		"count":   len(members),
	})
}

// handleGroupAdmins lists a group's admins.
func (s *Server) handleGroupAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := s.service.GroupAdmins(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"admins":  admins,
	})
}

// handleSend publishes a text message to a conversation.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID  string `json:"chatId"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatID == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "chatId and message are required")
		return
	}

	id, err := s.service.SendText(r.Context(), req.ChatID, req.Message)
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Message sent successfully",
		"messageId": id,
	})
}

// handleResync purges the store and re-initializes the transport.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if err := s.service.PurgeAndResync(r.Context()); err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Store purged and resync initiated. Please wait for history to sync.",
	})
}

// handleExportCSV streams the last 24 hours of messages as CSV.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	csvData, err := s.service.ExportCSV(r.Context(), r.URL.Query().Get("groupId"))
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="recent_messages.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(csvData)); err != nil {
		log.Printf("Failed to write CSV response: %v", err)
	}
}

// handleDownloadMedia serves a message's media payload, caching the
// bytes under the media directory.
func (s *Server) handleDownloadMedia(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	messageID := chi.URLParam(r, "messageID")

	msg, err := s.service.GetMessage(chatID, messageID)
	if err != nil {
		respondError(w, errorStatus(err), "Message not found")
		return
	}

	fileName := fmt.Sprintf("%s.%s", messageID, mediaExtension(msg))
	cachePath := filepath.Join(s.mediaDir, fileName)

	if _, err := os.Stat(cachePath); err == nil {
		w.Header().Set("Content-Type", mediaContentType(msg))
		http.ServeFile(w, r, cachePath)
		return
	}

	data, msg, err := s.service.DownloadMedia(r.Context(), chatID, messageID)
	if err != nil {
		respondError(w, errorStatus(err), err.Error())
		return
	}

	if err := os.MkdirAll(s.mediaDir, 0o755); err == nil {
		if err := os.WriteFile(cachePath, data, 0o644); err != nil {
			log.Printf("Failed to cache media %s: %v", fileName, err)
		} else {
			log.Printf("Cached media: %s", fileName)
		}
	}

	w.Header().Set("Content-Type", mediaContentType(msg))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write media response: %v", err)
	}
}

// queryDays parses the days query parameter with the configured default.
func (s *Server) queryDays(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		return s.defaultDays
	}
	return days
}

// mediaContentType returns the stored mime type with a safe fallback.
func mediaContentType(msg *core.Message) string {
	if msg.MimeType != "" {
		return msg.MimeType
	}
	return "application/octet-stream"
}

// mediaExtension derives a file extension for the media cache.
func mediaExtension(msg *core.Message) string {
	if msg.Kind == core.KindSticker {
		return "webp"
	}
	if msg.Kind == core.KindDocument && msg.FileName != "" {
		if idx := strings.LastIndexByte(msg.FileName, '.'); idx >= 0 && idx < len(msg.FileName)-1 {
			return msg.FileName[idx+1:]
		}
	}
	if parts := strings.SplitN(msg.MimeType, "/", 2); len(parts) == 2 && parts[1] != "" {
		return strings.SplitN(parts[1], ";", 2)[0]
	}
	switch msg.Kind {
	case core.KindImage:
		return "jpg"
	case core.KindVideo:
		return "mp4"
	case core.KindAudio:
		return "ogg"
	default:
		return "bin"
	}
}
