// Package chat is the conversational front door: it routes a user message to
// one agent, relays the reply, and always answers with displayable text.
package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"agenthq/internal/domain"
	"agenthq/internal/infra/tracer"
)

// Transport delivers a message to an agent and checks agent liveness.
type Transport interface {
	Send(ctx context.Context, baseURL, text string) (string, error)
	Probe(ctx context.Context, baseURL string) bool
}

// Router picks the target for a message.
type Router interface {
	Route(ctx context.Context, message string) domain.RouteDecision
}

// StatusReport is the liveness summary of the configured agents.
type StatusReport struct {
	Agents       map[string]bool `json:"agents"`
	TotalAgents  int             `json:"total_agents"`
	ActiveAgents int             `json:"active_agents"`
	AllActive    bool            `json:"all_active"`
}

// Config holds Service settings.
type Config struct {
	Endpoints        map[string]string // agent category -> base URL
	ProbeConcurrency int
}

// Service handles chat requests.
type Service struct {
	router    Router
	transport Transport
	endpoints map[string]string
	store     domain.ConversationStore
	bus       domain.EventBus
	probeN    int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a chat service. store and bus may be nil.
func NewService(router Router, transport Transport, store domain.ConversationStore, bus domain.EventBus, cfg Config, logger *slog.Logger) *Service {
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for k, v := range cfg.Endpoints {
		endpoints[k] = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	n := cfg.ProbeConcurrency
	if n <= 0 {
		n = 8
	}
	return &Service{
		router:    router,
		transport: transport,
		endpoints: endpoints,
		store:     store,
		bus:       bus,
		probeN:    n,
		logger:    logger,
		now:       time.Now,
	}
}

// Chat routes req to one agent and returns its reply. Transport failures are
// turned into an apology; the response text is never empty.
func (s *Service) Chat(ctx context.Context, req domain.ChatRequest) domain.ChatResponse {
	ctx, span := tracer.StartSpan(ctx, "chat.handle")
	defer span.End()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = domain.DefaultUserID
	}
	message := strings.TrimSpace(req.Message)

	d := s.router.Route(ctx, message)
	resp := domain.ChatResponse{AgentName: d.AgentName}
	span.SetAttributes(tracer.StringAttr("category", d.Category))

	url := d.URL
	if url == "" {
		url = s.endpoints[d.Category]
	}

	var sendErr error
	switch {
	case url == "":
		sendErr = domain.NewDomainError("Chat", domain.ErrNoEndpoint, d.Category)
		resp.Response = "No endpoint is configured for the " + d.AgentName + " agent."
		resp.ActionTaken = domain.ActionNoEndpoint
	default:
		reply, err := s.transport.Send(ctx, url, message)
		if err != nil {
			sendErr = err
			resp.Response = domain.Apology(err, domain.AgentLabel(url))
			resp.ActionTaken = domain.ActionAgentUnavailable
		} else {
			resp.Response = reply
			resp.ActionTaken = domain.ActionRouted
			if d.Fallback {
				resp.ActionTaken = domain.ActionDefaultRouted
			}
		}
	}

	if sendErr != nil {
		tracer.RecordError(span, sendErr)
		s.logger.Warn("chat delivery failed", "category", d.Category, "url", url, "error", sendErr)
		s.publish(ctx, domain.EventChatFailed, map[string]string{
			"user_id":  userID,
			"category": d.Category,
			"error":    sendErr.Error(),
			"code":     string(domain.ErrorCodeOf(sendErr)),
		})
	} else {
		s.logger.Info("chat routed", "category", d.Category, "agent", d.AgentName, "fallback", d.Fallback)
		s.publish(ctx, domain.EventChatRouted, map[string]string{
			"user_id":  userID,
			"category": d.Category,
			"agent":    d.AgentName,
			"action":   resp.ActionTaken,
		})
	}

	s.record(ctx, userID, message, resp)
	return resp
}

// Route returns the reply text and the name of the agent that produced it.
func (s *Service) Route(ctx context.Context, message string) (string, string) {
	resp := s.Chat(ctx, domain.ChatRequest{Message: message})
	return resp.Response, resp.AgentName
}

// Status probes every configured endpoint in parallel.
func (s *Service) Status(ctx context.Context) StatusReport {
	names := make([]string, 0, len(s.endpoints))
	for name := range s.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	agents := make(map[string]bool, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.probeN)
	for _, name := range names {
		url := s.endpoints[name]
		g.Go(func() error {
			ok := s.transport.Probe(gctx, url)
			mu.Lock()
			agents[name] = ok
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report := StatusReport{Agents: agents, TotalAgents: len(agents)}
	for _, ok := range agents {
		if ok {
			report.ActiveAgents++
		}
	}
	report.AllActive = report.TotalAgents > 0 && report.ActiveAgents == report.TotalAgents
	return report
}

// History returns the user's stored exchanges, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	if strings.TrimSpace(userID) == "" {
		userID = domain.DefaultUserID
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// PurgeHistory drops exchanges older than retention.
func (s *Service) PurgeHistory(ctx context.Context, retention time.Duration) (int, error) {
	if s.store == nil || retention <= 0 {
		return 0, nil
	}
	return s.store.PurgeBefore(ctx, s.now().Add(-retention))
}

// Endpoints returns a copy of the category to URL map.
func (s *Service) Endpoints() map[string]string {
	out := make(map[string]string, len(s.endpoints))
	for k, v := range s.endpoints {
		out[k] = v
	}
	return out
}

func (s *Service) record(ctx context.Context, userID, message string, resp domain.ChatResponse) {
	if s.store == nil {
		return
	}
	now := s.now()
	rec := domain.ConversationRecord{
		ID:          newID(now),
		UserID:      userID,
		Message:     message,
		Response:    resp.Response,
		AgentName:   resp.AgentName,
		ActionTaken: resp.ActionTaken,
		CreatedAt:   now,
	}
	if err := s.store.Append(ctx, rec); err != nil {
		s.logger.Error("conversation not recorded", "user_id", userID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, t domain.EventType, detail map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, detail))
}

// newID returns a time-sortable record id. The entropy source is shared and
// monotonic, so ids minted in the same millisecond stay distinct and ordered.
func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
