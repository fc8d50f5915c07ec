package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthq/internal/adapter/store"
	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
	"agenthq/internal/usecase/eventbus"
	"agenthq/internal/usecase/routing"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string // url|text
	replies map[string]string
	errs    map[string]error
	alive   map[string]bool
}

func (f *fakeTransport) Send(_ context.Context, url, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, url+"|"+text)
	if err := f.errs[url]; err != nil {
		return "", err
	}
	return f.replies[url], nil
}

func (f *fakeTransport) Probe(_ context.Context, url string) bool {
	return f.alive[url]
}

var endpoints = map[string]string{
	"secretary":      "http://127.0.0.1:10020",
	"hiring_manager": "http://127.0.0.1:10021/",
	"data_analyst":   "http://127.0.0.1:10022",
}

func testRouter() *routing.Router {
	kw := routing.NewKeywordRouter([]routing.Rule{
		{Category: "hiring_manager", AgentName: "Hiring Manager", Keywords: []string{"hire", "new agent"}},
		{Category: "data_analyst", AgentName: "Data Analyst", Keywords: []string{"analyze", "data"}},
		{Category: "researcher", AgentName: "Researcher", Keywords: []string{"research"}},
	}, routing.Rule{Category: "secretary", AgentName: "Executive Secretary"})
	return routing.New(kw, nil, nil)
}

func newTestService(tr *fakeTransport, st domain.ConversationStore, bus domain.EventBus) *Service {
	return NewService(testRouter(), tr, st, bus, Config{Endpoints: endpoints}, logger.Discard())
}

func TestChat_RoutesByKeyword(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10021": "hired"}}
	s := newTestService(tr, nil, nil)

	resp := s.Chat(context.Background(), domain.ChatRequest{Message: "I need to hire a new agent"})
	assert.Equal(t, domain.ChatResponse{
		Response:    "hired",
		AgentName:   "Hiring Manager",
		ActionTaken: domain.ActionRouted,
	}, resp)
	assert.Equal(t, []string{"http://127.0.0.1:10021|I need to hire a new agent"}, tr.sent)
}

func TestChat_DefaultRoute(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10020": "hello"}}
	s := newTestService(tr, nil, nil)

	resp := s.Chat(context.Background(), domain.ChatRequest{Message: "What's up?"})
	assert.Equal(t, "Executive Secretary", resp.AgentName)
	assert.Equal(t, domain.ActionDefaultRouted, resp.ActionTaken)
	assert.Equal(t, "hello", resp.Response)
}

func TestChat_TransportFailureApologizes(t *testing.T) {
	tr := &fakeTransport{errs: map[string]error{
		"http://127.0.0.1:10022": fmt.Errorf("send: %w", domain.ErrAgentUnreachable),
	}}
	bus := eventbus.New(logger.Discard())
	defer bus.Close()
	failed := make(chan domain.Event, 1)
	bus.Subscribe(domain.EventChatFailed, func(_ context.Context, e domain.Event) { failed <- e })

	s := newTestService(tr, nil, bus)
	resp := s.Chat(context.Background(), domain.ChatRequest{Message: "Analyze this data please"})
	assert.Equal(t, "Data Analyst", resp.AgentName)
	assert.Equal(t, domain.ActionAgentUnavailable, resp.ActionTaken)
	assert.Equal(t, "I'm sorry, I'm having trouble connecting to the 127.0.0.1:10022 agent. Please make sure the A2A agent servers are running.", resp.Response)

	select {
	case e := <-failed:
		assert.Contains(t, string(e.Payload), `"code":"AGENT_UNREACHABLE"`)
	case <-time.After(2 * time.Second):
		t.Fatal("chat.failed not published")
	}
}

func TestChat_NoEndpoint(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestService(tr, nil, nil)

	resp := s.Chat(context.Background(), domain.ChatRequest{Message: "research solar power"})
	assert.Equal(t, "Researcher", resp.AgentName)
	assert.Equal(t, domain.ActionNoEndpoint, resp.ActionTaken)
	assert.Equal(t, "No endpoint is configured for the Researcher agent.", resp.Response)
	assert.Empty(t, tr.sent)
}

func TestChat_RecordsConversation(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10020": "hi there"}}
	st := store.NewMemoryStore()
	s := newTestService(tr, st, nil)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	s.Chat(context.Background(), domain.ChatRequest{Message: "  hello  ", UserID: "alice"})
	s.Chat(context.Background(), domain.ChatRequest{Message: "anyone?"})

	got, err := s.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Message)
	assert.Equal(t, "hi there", got[0].Response)
	assert.Equal(t, "Executive Secretary", got[0].AgentName)
	assert.Len(t, got[0].ID, 26)

	anon, err := s.History(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, domain.DefaultUserID, anon[0].UserID)
}

func TestChat_SameInstantRecordsAreDistinct(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10020": "ok"}}
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer st.Close()
	s := newTestService(tr, st, nil)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	for i := 0; i < 5; i++ {
		s.Chat(context.Background(), domain.ChatRequest{Message: fmt.Sprintf("m%d", i), UserID: "alice"})
	}

	got, err := s.History(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 5, "no record dropped on an id collision")
	ids := map[string]bool{}
	for _, r := range got {
		ids[r.ID] = true
	}
	assert.Len(t, ids, 5)
}

func TestNewIDIsMonotonicWithinATick(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	prev := newID(at)
	for i := 0; i < 100; i++ {
		next := newID(at)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestChat_PurgeHistory(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10020": "ok"}}
	st := store.NewMemoryStore()
	s := newTestService(tr, st, nil)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-48 * time.Hour) }
	s.Chat(context.Background(), domain.ChatRequest{Message: "old"})
	s.now = func() time.Time { return now }
	s.Chat(context.Background(), domain.ChatRequest{Message: "new"})

	n, err := s.PurgeHistory(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PurgeHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRoute(t *testing.T) {
	tr := &fakeTransport{replies: map[string]string{"http://127.0.0.1:10022": "numbers"}}
	s := newTestService(tr, nil, nil)
	text, agent := s.Route(context.Background(), "Analyze this data please")
	assert.Equal(t, "numbers", text)
	assert.Equal(t, "Data Analyst", agent)
}

func TestStatus(t *testing.T) {
	tr := &fakeTransport{alive: map[string]bool{
		"http://127.0.0.1:10020": true,
		"http://127.0.0.1:10021": true,
	}}
	s := newTestService(tr, nil, nil)

	report := s.Status(context.Background())
	assert.Equal(t, map[string]bool{"secretary": true, "hiring_manager": true, "data_analyst": false}, report.Agents)
	assert.Equal(t, 3, report.TotalAgents)
	assert.Equal(t, 2, report.ActiveAgents)
	assert.False(t, report.AllActive)

	tr.alive["http://127.0.0.1:10022"] = true
	assert.True(t, s.Status(context.Background()).AllActive)
}

func TestStatus_NoEndpoints(t *testing.T) {
	s := NewService(testRouter(), &fakeTransport{}, nil, nil, Config{}, logger.Discard())
	report := s.Status(context.Background())
	assert.Empty(t, report.Agents)
	assert.False(t, report.AllActive)
}

func TestEndpointsAreNormalized(t *testing.T) {
	s := newTestService(&fakeTransport{}, nil, nil)
	assert.Equal(t, "http://127.0.0.1:10021", s.Endpoints()["hiring_manager"])
}
