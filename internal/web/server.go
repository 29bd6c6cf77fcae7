package web

import (
	"encoding/json"
	"log"
	"net/http"

	"wa-taskboard/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server represents the HTTP API server
type Server struct {
	service     *core.Service
	publicDir   string
	mediaDir    string
	defaultDays int
}

// NewServer creates a new Server instance
func NewServer(service *core.Service, publicDir, mediaDir string, defaultDays int) *Server {
	if defaultDays <= 0 {
		defaultDays = 1
	}
	return &Server{
		service:     service,
		publicDir:   publicDir,
		mediaDir:    mediaDir,
		defaultDays: defaultDays,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/chats", s.handleListChats)
		r.Get("/groups", s.handleListGroups)
		r.Get("/groups/{groupID}/messages", s.handleGroupMessages)
		r.Get("/groups/{groupID}/stats", s.handleGroupStats)
		r.Post("/groups/{groupID}/stats/publish", s.handlePublishStats)
		r.Get("/groups/{groupID}/members", s.handleGroupMembers)
		r.Get("/groups/{groupID}/admins", s.handleGroupAdmins)
		r.Post("/send", s.handleSend)
		r.Post("/resync-history", s.handleResync)
		r.Get("/messages/export-csv", s.handleExportCSV)
		r.Get("/chats/{chatID}/messages/{messageID}", s.handleGetMessage)
		r.Get("/chats/{chatID}/messages/{messageID}/download", s.handleDownloadMedia)
	})

	// Static frontend
	fileServer := http.FileServer(http.Dir(s.publicDir))
	r.Handle("/*", fileServer)

	return r
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondError writes the standard error envelope.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case err == core.ErrNotFound:
		return http.StatusNotFound
	case err == core.ErrNotConnected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
