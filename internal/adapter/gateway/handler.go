package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agenthq/internal/domain"
	"agenthq/internal/usecase/chat"
)

// maxBodySize caps request bodies on the REST routes.
const maxBodySize = 1 << 20

// ChatService is what the gateway needs from the chat use case.
type ChatService interface {
	Chat(ctx context.Context, req domain.ChatRequest) domain.ChatResponse
	Status(ctx context.Context) chat.StatusReport
	History(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error)
}

// AgentRegistry is what the gateway needs from the agent registry.
type AgentRegistry interface {
	RegisterAgent(ctx context.Context, url string) (domain.RegisteredAgent, error)
	Get(id string) (domain.RegisteredAgent, bool)
	FindByTags(tags []string) []domain.RegisteredAgent
	ListActive() []domain.RegisteredAgent
	ListAll() []domain.RegisteredAgent
	Remove(ctx context.Context, id string) bool
	HealthCheckAll(ctx context.Context) map[string]bool
}

// Deps holds what the REST and RPC handlers call into.
type Deps struct {
	Chat        ChatService
	Registry    AgentRegistry                     // nil disables the /agents catalog routes
	Bus         domain.EventBus                   // nil disables event-driven counters
	EventCounts func() map[domain.EventType]int64 // nil omits per-event metrics
	Logger      *slog.Logger                      // nil discards
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// RegisterRoutes installs the REST routes and returns the counters they update.
func RegisterRoutes(s *Server, deps Deps) *Metrics {
	deps = deps.withDefaults()
	metrics := &Metrics{started: time.Now()}
	metrics.subscribe(deps.Bus)

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.RegisterHTTPRoute("POST /chat", auth(chatHandler(deps, metrics)))
	s.RegisterHTTPRoute("GET /agents/status", auth(statusHandler(deps)))
	s.RegisterHTTPRoute("GET /conversations", auth(conversationsHandler(deps)))
	s.RegisterHTTPRoute("GET /metrics", auth(metricsHandler(deps, metrics)))

	if deps.Registry != nil {
		s.RegisterHTTPRoute("GET /agents", auth(agentListHandler(deps)))
		s.RegisterHTTPRoute("POST /agents", auth(agentRegisterHandler(deps)))
		s.RegisterHTTPRoute("GET /agents/search", auth(agentSearchHandler(deps)))
		s.RegisterHTTPRoute("POST /agents/health", auth(agentHealthHandler(deps, metrics)))
		s.RegisterHTTPRoute("GET /agents/{id}", auth(agentGetHandler(deps)))
		s.RegisterHTTPRoute("DELETE /agents/{id}", auth(agentDeleteHandler(deps)))
	}
	return metrics
}

// RegisterRPCHandlers installs the WebSocket RPC methods.
func RegisterRPCHandlers(s *Server, deps Deps, metrics *Metrics) {
	deps = deps.withDefaults()
	s.RegisterHandler("chat.send", chatSendRPC(deps, metrics))
	s.RegisterHandler("agents.status", agentsStatusRPC(deps))
	if deps.Registry != nil {
		s.RegisterHandler("agents.list", agentsListRPC(deps))
		s.RegisterHandler("agents.search", agentsSearchRPC(deps))
	}
}

// --- REST ---

// chatHandler passes every well-formed request to the router. A blank message
// is routed like any other and lands on the default agent.
func chatHandler(deps Deps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ChatRequest
		if err := decodeBody(r, &req); err != nil {
			deps.Logger.Debug("chat request rejected", "error", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, runChat(r.Context(), deps, metrics, req))
	}
}

func runChat(ctx context.Context, deps Deps, metrics *Metrics, req domain.ChatRequest) domain.ChatResponse {
	resp := deps.Chat.Chat(ctx, req)
	metrics.ChatRequests.Add(1)
	switch resp.ActionTaken {
	case domain.ActionDefaultRouted:
		metrics.ChatDefaultRouted.Add(1)
	case domain.ActionAgentUnavailable, domain.ActionNoEndpoint:
		metrics.ChatFailures.Add(1)
	}
	return resp
}

func statusHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Chat.Status(r.Context()))
	}
}

func conversationsHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 0
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, domain.NewDomainError("conversations", domain.ErrInvalidInput, "limit must be a non-negative integer"))
				return
			}
			limit = n
		}
		recs, err := deps.Chat.History(r.Context(), q.Get("user_id"), limit)
		if err != nil {
			deps.Logger.Error("conversation history failed", "user_id", q.Get("user_id"), "error", err)
			writeError(w, statusFor(err), err)
			return
		}
		if recs == nil {
			recs = []domain.ConversationRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func agentListHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents := deps.Registry.ListAll()
		if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
			agents = deps.Registry.ListActive()
		}
		writeJSON(w, http.StatusOK, nonNil(agents))
	}
}

type registerRequest struct {
	URL string `json:"url"`
}

func agentRegisterHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		agent, err := deps.Registry.RegisterAgent(r.Context(), req.URL)
		if err != nil {
			deps.Logger.Warn("agent registration via api failed", "url", req.URL, "error", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	}
}

func agentSearchHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tags []string
		for _, t := range strings.Split(r.URL.Query().Get("tags"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		writeJSON(w, http.StatusOK, nonNil(deps.Registry.FindByTags(tags)))
	}
}

func agentHealthHandler(deps Deps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := deps.Registry.HealthCheckAll(r.Context())
		metrics.HealthSweeps.Add(1)
		writeJSON(w, http.StatusOK, results)
	}
}

func agentGetHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		agent, ok := deps.Registry.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, domain.NewDomainError("agents.get", domain.ErrAgentNotFound, id))
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

func agentDeleteHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !deps.Registry.Remove(r.Context(), id) {
			writeError(w, http.StatusNotFound, domain.NewDomainError("agents.delete", domain.ErrAgentNotFound, id))
			return
		}
		deps.Logger.Info("agent removed via api", "agent_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- RPC ---

func chatSendRPC(deps Deps, metrics *Metrics) RPCHandler {
	return func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req domain.ChatRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			deps.Logger.Debug("chat.send payload rejected", "error", err)
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.UserID == "" && client != nil && client.Name != "anonymous" {
			req.UserID = client.Name
		}
		return json.Marshal(runChat(ctx, deps, metrics, req))
	}
}

func agentsStatusRPC(deps Deps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Chat.Status(ctx))
	}
}

type agentsListRequest struct {
	Active bool `json:"active"`
}

func agentsListRPC(deps Deps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req agentsListRequest
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		agents := deps.Registry.ListAll()
		if req.Active {
			agents = deps.Registry.ListActive()
		}
		return json.Marshal(nonNil(agents))
	}
}

type agentsSearchRequest struct {
	Tags []string `json:"tags"`
}

func agentsSearchRPC(deps Deps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req agentsSearchRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		return json.Marshal(nonNil(deps.Registry.FindByTags(req.Tags)))
	}
}

// --- helpers ---

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Detail: err.Error(), Code: string(domain.ErrorCodeOf(err))})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return domain.NewDomainError("decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGatewayAuthFailed):
		return http.StatusUnauthorized
	case domain.IsTransportError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(agents []domain.RegisteredAgent) []domain.RegisteredAgent {
	if agents == nil {
		return []domain.RegisteredAgent{}
	}
	return agents
}
