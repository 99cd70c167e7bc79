package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/seclab-demos/memjack/internal/agent"
	"github.com/seclab-demos/memjack/internal/config"
	"github.com/seclab-demos/memjack/internal/memory"
	"github.com/seclab-demos/memjack/internal/observability"
	"github.com/seclab-demos/memjack/internal/protocol"
	"github.com/seclab-demos/memjack/internal/provider"
	"github.com/seclab-demos/memjack/internal/session"
)

// Orchestrator is the agent surface the HTTP layer consumes. Plain data in,
// plain data out: no framework types cross this boundary.
type Orchestrator interface {
	GenerateResponse(ctx context.Context, input string, convo []provider.Turn) (agent.Reply, error)
	GenerateResponseWithMemory(ctx context.Context, input string, convo []provider.Turn) (agent.Reply, error)
	StreamResponse(ctx context.Context, input string, convo []provider.Turn, onDelta func(delta string) error) (agent.Reply, error)
	StreamResponseWithMemory(ctx context.Context, input string, convo []provider.Turn, onDelta func(delta string) error) (agent.Reply, error)
	UpdateMemoryAfterStream(ctx context.Context, input, output string) agent.UpdateReport
	AllMemories(ctx context.Context) ([]memory.Record, error)
	SearchMemories(ctx context.Context, query string) ([]memory.Record, error)
	RelevantMemories(ctx context.Context, input string) ([]memory.Record, error)
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	memories     *memory.Service
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, orchestrator Orchestrator, memories *memory.Service, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		memories:     memories,
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only same-origin browser connections. Transport
				// security is a stated non-goal, but letting arbitrary sites
				// drive the chat socket would make the demo uselessly noisy.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)

	r.Post("/v1/memories", s.handleCreateMemory)
	r.Get("/v1/memories", s.handleListMemories)
	r.Get("/v1/memories/search", s.handleSearchMemories)
	r.Get("/v1/memories/relevant", s.handleRelevantMemories)
	r.Get("/v1/memories/{id}", s.handleGetMemory)
	r.Patch("/v1/memories/{id}", s.handleUpdateMemory)
	r.Delete("/v1/memories/{id}", s.handleDeleteMemory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Input     string `json:"input"`
	UseMemory bool   `json:"use_memory"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}

	convo, ok := s.conversationContext(w, req.SessionID)
	if !ok {
		return
	}

	var reply agent.Reply
	var err error
	if req.UseMemory {
		reply, err = s.orchestrator.GenerateResponseWithMemory(r.Context(), req.Input, convo)
	} else {
		reply, err = s.orchestrator.GenerateResponse(r.Context(), req.Input, convo)
	}
	if err != nil {
		var vErr *memory.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, http.StatusBadRequest, "invalid_memory", vErr.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "provider_error", err.Error())
		return
	}

	s.recordTurns(req.SessionID, req.Input, reply.Output)
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	conn.SetReadLimit(1 << 20)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(msg.Type)).Inc()

		s.streamTurn(r.Context(), conn, sessionID, msg)
	}
}

// streamTurn runs one streamed exchange over an established websocket.
//
// If the client goes away mid-stream, delta forwarding stops but the
// in-flight provider call and the deferred memory update still complete
// server-side. That is a known resource leak in this design; cancelling
// would also hide the post-stream memory write the demo wants observable.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, sessionID string, msg protocol.ClientMessage) {
	turnID := uuid.NewString()
	convo, err := s.sessions.Context(sessionID)
	if err != nil {
		s.writeWS(conn, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "session_not_found",
			Detail:    err.Error(),
		})
		return
	}

	streamFn := s.orchestrator.StreamResponse
	if msg.UseMemory {
		streamFn = s.orchestrator.StreamResponseWithMemory
	}

	connLost := false
	reply, err := streamFn(ctx, msg.Text, toProviderTurns(convo), func(delta string) error {
		if connLost {
			return nil
		}
		if !s.writeWS(conn, protocol.AssistantTextDelta{
			Type:      protocol.TypeAssistantTextDelta,
			SessionID: sessionID,
			TurnID:    turnID,
			TextDelta: delta,
		}) {
			connLost = true
		}
		return nil
	})
	if err != nil {
		s.writeWS(conn, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "provider_error",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}

	s.recordTurns(sessionID, msg.Text, reply.Output)
	s.writeWS(conn, protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sessionID,
		TurnID:    turnID,
		Reason:    "complete",
	})

	// Memory arbitration for a streamed turn runs at the terminal event with
	// the accumulated output. The directive bypass already wrote during
	// StreamResponse and reports itself via reply.MemoryUpdate.
	update := reply.MemoryUpdate
	path := observability.WritePathDirect
	if update == nil {
		report := s.orchestrator.UpdateMemoryAfterStream(ctx, msg.Text, reply.Output)
		update = &report
		path = observability.WritePathReviewed
	}
	event := protocol.MemoryUpdate{
		Type:      protocol.TypeMemoryUpdate,
		SessionID: sessionID,
		TurnID:    turnID,
		Updated:   update.Updated,
		Reasoning: update.Reasoning,
	}
	if update.Updated {
		event.Path = path
	}
	s.writeWS(conn, event)
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		return false
	}
	if t, ok := messageTypeOf(msg); ok {
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
	return true
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		Content     string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec, err := s.memories.StoreMemory(r.Context(), req.Description, req.Content)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	s.metrics.RecordMemoryWrite(observability.WritePathDirect, "create")
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	records, err := s.orchestrator.AllMemories(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": records})
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	records, err := s.orchestrator.SearchMemories(r.Context(), query)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": records})
}

func (s *Server) handleRelevantMemories(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("input")
	records, err := s.orchestrator.RelevantMemories(r.Context(), input)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": records})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.memories.GetMemory(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "memory_not_found", "no memory with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Description *string `json:"description,omitempty"`
		Content     *string `json:"content,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rec, err := s.memories.UpdateMemory(r.Context(), id, memory.UpdateFields{
		Description: req.Description,
		Content:     req.Content,
	})
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "memory_not_found", "no memory with id "+id)
		return
	}
	s.metrics.RecordMemoryWrite(observability.WritePathDirect, "update")
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.memories.DeleteMemory(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "memory_not_found", "no memory with id "+id)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// conversationContext loads prior turns when a session id is supplied. The
// second return is false when an error response was already written.
func (s *Server) conversationContext(w http.ResponseWriter, sessionID string) ([]provider.Turn, bool) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, true
	}
	turns, err := s.sessions.Context(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return toProviderTurns(turns), true
}

func (s *Server) recordTurns(sessionID, input, output string) {
	if strings.TrimSpace(sessionID) == "" {
		return
	}
	_ = s.sessions.AppendTurn(sessionID, "user", input)
	_ = s.sessions.AppendTurn(sessionID, "assistant", output)
}

func toProviderTurns(turns []session.Turn) []provider.Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]provider.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, provider.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondMemoryError(w http.ResponseWriter, err error) {
	var vErr *memory.ValidationError
	if errors.As(err, &vErr) {
		respondError(w, http.StatusBadRequest, "invalid_memory", vErr.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "store_error", err.Error())
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.MemoryUpdate:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
