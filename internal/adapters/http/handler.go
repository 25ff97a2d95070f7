package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mesami8/llmchatapp/internal/app/conversation"
	"github.com/mesami8/llmchatapp/internal/domain"
)

// Server is the browser-facing surface: one REST endpoint per controller
// action plus a streaming chat relay. Session state lives server-side, keyed
// by a session cookie.
type Server struct {
	svc *conversation.Service

	mu       sync.Mutex
	sessions map[string]*conversation.Session
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{
		svc:      svc,
		sessions: make(map[string]*conversation.Session),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/chat", s.handleChat)

	// /api/conversations               → GET: recent history
	// /api/conversations/save          → POST: save or update
	// /api/conversations/reset         → POST: new chat
	// /api/conversations/active        → GET: snapshot / DELETE: delete saved
	// /api/conversations/{id}/load     → POST: load into the session
	mux.HandleFunc("/api/conversations", s.handleConversations)
	mux.HandleFunc("/api/conversations/", s.handleConversationWithPath)

	return chainMiddlewares(mux, s.withSession, withLogging, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatSendRequest struct {
	Text string `json:"text"`
}

// streamRecord is one NDJSON line of the chat response: fragment records
// while streaming, then a single closing record.
type streamRecord struct {
	Fragment string `json:"fragment,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Saved    bool   `json:"saved,omitempty"`
	Error    string `json:"error,omitempty"`
}

type modelsResponse struct {
	Models []string `json:"models"`
}

type statusResponse struct {
	InferenceConnected bool `json:"inference_connected"`
	PersistenceEnabled bool `json:"persistence_enabled"`
}

type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type summaryResponse struct {
	ID        string    `json:"id"`
	Preview   string    `json:"preview"`
	ModelUsed string    `json:"model_used"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	Conversations []summaryResponse `json:"conversations"`
}

type snapshotResponse struct {
	ID       string            `json:"id,omitempty"`
	Model    string            `json:"model"`
	Messages []messageResponse `json:"messages"`
}

type conversationResponse struct {
	ID        string            `json:"id"`
	ModelUsed string            `json:"model_used"`
	Messages  []messageResponse `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type saveResponse struct {
	ID    string `json:"id,omitempty"`
	Saved bool   `json:"saved"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type selectModelRequest struct {
	Model string `json:"model"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	inferenceOK, persistenceOK := s.svc.Status(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		InferenceConnected: inferenceOK,
		PersistenceEnabled: persistenceOK,
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		models := s.svc.Models(r.Context())
		if models == nil {
			models = []string{}
		}
		writeJSON(w, http.StatusOK, modelsResponse{Models: models})
	case http.MethodPost:
		// Manual model entry / dropdown selection.
		var req selectModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			badRequest(w, "model is required")
			return
		}
		s.svc.SelectModel(sessionFrom(r.Context()), req.Model)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// handleChat relays one exchange. The response body is newline-delimited
// JSON, one fragment record per generated fragment, flushed as they arrive,
// then a closing record. The handler blocks until the upstream stream is
// fully drained; a second send on the same session waits on the session lock.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, "text is required")
		return
	}

	sess := sessionFrom(r.Context())

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	saved, err := s.svc.Send(r.Context(), sess, req.Text, func(fragment string) {
		_ = enc.Encode(streamRecord{Fragment: fragment})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		_ = enc.Encode(streamRecord{Done: true, Error: "inference server unavailable: " + err.Error()})
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	_ = enc.Encode(streamRecord{Done: true, Saved: saved})
	if flusher != nil {
		flusher.Flush()
	}
}

// /api/conversations
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sess := sessionFrom(r.Context())
	summaries := s.svc.History(r.Context(), sess, limit)

	out := make([]summaryResponse, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, toSummaryResponse(sum))
	}
	writeJSON(w, http.StatusOK, historyResponse{Conversations: out})
}

// /api/conversations/{...}
func (s *Server) handleConversationWithPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	sess := sessionFrom(r.Context())
	parts := strings.Split(path, "/")

	if len(parts) == 1 {
		switch parts[0] {
		case "save":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			id, saved := s.svc.Save(r.Context(), sess)
			writeJSON(w, http.StatusOK, saveResponse{ID: string(id), Saved: saved})
			return

		case "reset":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			s.svc.Reset(sess)
			w.WriteHeader(http.StatusNoContent)
			return

		case "active":
			switch r.Method {
			case http.MethodGet:
				messages, model, activeID := s.svc.Snapshot(sess)
				writeJSON(w, http.StatusOK, snapshotResponse{
					ID:       string(activeID),
					Model:    model,
					Messages: toMessagesResponse(messages),
				})
			case http.MethodDelete:
				writeJSON(w, http.StatusOK, deleteResponse{Deleted: s.svc.DeleteActive(r.Context(), sess)})
			default:
				methodNotAllowed(w)
			}
			return
		}

		http.NotFound(w, r)
		return
	}

	if len(parts) == 2 && parts[1] == "load" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		conv, err := s.svc.Load(r.Context(), sess, domain.ConversationID(parts[0]))
		if err != nil {
			if errors.Is(err, conversation.ErrConversationNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
				return
			}
			internalError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConversationResponse(conv))
		return
	}

	http.NotFound(w, r)
}

// ─────────────────────────────────────────────
// Response mapping helpers
// ─────────────────────────────────────────────

func toMessagesResponse(messages []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageResponse{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toSummaryResponse(s domain.ConversationSummary) summaryResponse {
	return summaryResponse{
		ID:        string(s.ID),
		Preview:   s.Preview,
		ModelUsed: s.ModelUsed,
		CreatedAt: s.CreatedAt,
	}
}

func toConversationResponse(c *domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:        string(c.ID),
		ModelUsed: c.ModelUsed,
		Messages:  toMessagesResponse(c.Messages),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}

// sessionCtxKey carries the per-session state through the request context.
type sessionCtxKey struct{}

func sessionFrom(ctx context.Context) *conversation.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*conversation.Session)
	return sess
}
