package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/penny/internal/config"
	"github.com/ent0n29/penny/internal/observability"
	"github.com/ent0n29/penny/internal/orchestrator"
	"github.com/ent0n29/penny/internal/proactive"
	"github.com/ent0n29/penny/internal/protocol"
)

// userIDHeader identifies the caller. The auth layer in front of this
// service is expected to set it after verifying the session.
const userIDHeader = "X-User-ID"

type Server struct {
	cfg       config.Config
	engine    *orchestrator.Engine
	processor *proactive.Processor
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, engine *orchestrator.Engine, processor *proactive.Processor, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		processor: processor,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
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

	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/proactive/event", s.handleProactiveEvent)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	result, err := s.engine.SubmitTurn(r.Context(), userID, req.Message, req.ThreadID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownUser) {
			respondError(w, http.StatusUnauthorized, "invalid_user", "unknown user")
			return
		}
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "chat_failed"})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleChatWS serves a persistent chat connection. Turns on one connection
// run strictly in order; each inbound chat_message produces exactly one
// chat_reply or error_event.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

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
			s.writeWS(conn, protocol.NewErrorEvent("invalid_client_message", err.Error()))
			continue
		}

		result, err := s.engine.SubmitTurn(r.Context(), userID, msg.Message, msg.ThreadID)
		if err != nil {
			code := "chat_failed"
			if errors.Is(err, orchestrator.ErrUnknownUser) {
				code = "invalid_user"
			}
			s.writeWS(conn, protocol.NewErrorEvent(code, ""))
			continue
		}
		s.writeWS(conn, protocol.NewChatReply(result.Reply, result.ThreadID, result.ToolResults))
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(v)
}

type proactiveRequest struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
}

func (s *Server) handleProactiveEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req proactiveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "event_type is required")
		return
	}

	assessment, err := s.assess(r, userID, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "proactive_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, assessment)
}

// assess routes known event categories to their specializations; anything
// else goes through the generic decision path.
func (s *Server) assess(r *http.Request, userID string, req proactiveRequest) (proactive.Assessment, error) {
	ctx := r.Context()
	switch req.EventType {
	case proactive.EventUnknownSenderMail:
		return s.processor.CheckUnknownSenderEmail(ctx, userID,
			stringField(req.EventData, "senderEmail"),
			stringField(req.EventData, "subject"),
			stringField(req.EventData, "emailContent"))
	case proactive.EventCalendarCreated:
		start, _ := time.Parse(time.RFC3339, stringField(req.EventData, "startTime"))
		end, _ := time.Parse(time.RFC3339, stringField(req.EventData, "endTime"))
		return s.processor.CheckCalendarEvent(ctx, userID,
			stringField(req.EventData, "eventId"),
			stringField(req.EventData, "title"),
			stringSlice(req.EventData, "attendees"),
			start, end)
	case proactive.EventContactCreated:
		return s.processor.CheckContactCreated(ctx, userID,
			stringField(req.EventData, "contactId"),
			stringField(req.EventData, "email"),
			stringField(req.EventData, "firstName"),
			stringField(req.EventData, "lastName"))
	default:
		decision, err := s.processor.ProcessEvent(ctx, userID, req.EventType, req.EventData)
		if err != nil {
			return proactive.Assessment{}, err
		}
		return proactive.Assessment{EventType: req.EventType, Decision: decision}, nil
	}
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "missing_user", "X-User-ID header is required")
		return "", false
	}
	return userID, true
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func stringSlice(data map[string]any, key string) []string {
	raw, _ := data[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
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
