package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthq/internal/domain"
)

// fakeFetcher serves descriptors keyed by base URL. Missing URLs fail.
type fakeFetcher struct {
	mu    sync.Mutex
	cards map[string]domain.AgentDescriptor
	fail  map[string]error
	calls atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{cards: map[string]domain.AgentDescriptor{}, fail: map[string]error{}}
}

func (f *fakeFetcher) set(url string, d domain.AgentDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.URL = url
	f.cards[url] = d
	delete(f.fail, url)
}

func (f *fakeFetcher) breakURL(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = err
}

func (f *fakeFetcher) FetchDescriptor(_ context.Context, url string) (domain.AgentDescriptor, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[url]; ok {
		return domain.AgentDescriptor{}, err
	}
	d, ok := f.cards[url]
	if !ok {
		return domain.AgentDescriptor{}, domain.NewDomainError("fetch", domain.ErrAgentUnreachable, url)
	}
	return d, nil
}

// cachingFetcher records descriptor cache invalidations.
type cachingFetcher struct {
	*fakeFetcher
	mu        sync.Mutex
	forgotten []string
}

func (f *cachingFetcher) ForgetDescriptor(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, url)
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) count(t domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func card(name string, tags ...string) domain.AgentDescriptor {
	return domain.AgentDescriptor{
		Name:        name,
		Description: name + " description",
		Skills:      []domain.Skill{{ID: "s1", Name: "skill", Tags: tags}},
	}
}

func newTestRegistry(f *fakeFetcher) (*Registry, *recordingBus) {
	bus := &recordingBus{}
	return New(f, bus, Config{HealthConcurrency: 4}, testLogger()), bus
}

func TestRegisterSuccess(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("Researcher Agent", "research"))
	r, bus := newTestRegistry(f)

	ok := r.Register(context.Background(), "http://a:1/")
	require.True(t, ok)

	all := r.ListAll()
	require.Len(t, all, 1)
	a := all[0]
	assert.Equal(t, domain.AgentID("Researcher Agent", "http://a:1"), a.ID)
	assert.Equal(t, "http://a:1", a.URL)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
	assert.NotNil(t, a.LastChecked)
	assert.Empty(t, a.ErrorMessage)
	assert.Equal(t, 1, bus.count(domain.EventAgentRegistered))
}

func TestRegisterFailureRecorded(t *testing.T) {
	f := newFakeFetcher()
	r, _ := newTestRegistry(f)

	a, err := r.RegisterAgent(context.Background(), "http://down:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAgentUnreachable)
	assert.Equal(t, domain.AgentStatusError, a.Status)
	assert.Equal(t, domain.UnknownAgentName, a.Descriptor.Name)
	assert.Equal(t, FailedDescription, a.Descriptor.Description)
	assert.Contains(t, a.ErrorMessage, "agent unreachable")

	assert.False(t, r.Register(context.Background(), "http://down:1"))
	assert.Equal(t, 1, r.Len(), "failed entry recorded once")
	assert.Empty(t, r.ListActive())
}

func TestRegisterEmptyURL(t *testing.T) {
	r, _ := newTestRegistry(newFakeFetcher())
	_, err := r.RegisterAgent(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, r.Len())
}

func TestRegisterSameURLTwiceUpdates(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("Writer", "writing"))
	r, _ := newTestRegistry(f)

	require.True(t, r.Register(context.Background(), "http://a:1"))
	f.set("http://a:1", card("Writer", "writing", "blog"))
	require.True(t, r.Register(context.Background(), "http://a:1"))

	require.Equal(t, 1, r.Len())
	a, ok := r.Get(domain.AgentID("Writer", "http://a:1"))
	require.True(t, ok)
	assert.Equal(t, []string{"writing", "blog"}, a.Descriptor.Skills[0].Tags)
}

func TestRegisterReplacesFailedEntryForURL(t *testing.T) {
	f := newFakeFetcher()
	r, _ := newTestRegistry(f)

	require.False(t, r.Register(context.Background(), "http://a:1"))
	f.set("http://a:1", card("Analyst", "data"))
	require.True(t, r.Register(context.Background(), "http://a:1"))

	all := r.ListAll()
	require.Len(t, all, 1, "same url must not leave the failed entry behind")
	assert.Equal(t, "Analyst", all[0].Descriptor.Name)
}

func TestGetMissing(t *testing.T) {
	r, _ := newTestRegistry(newFakeFetcher())
	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("A", "x"))
	r, _ := newTestRegistry(f)
	r.Register(context.Background(), "http://a:1")

	id := domain.AgentID("A", "http://a:1")
	a, _ := r.Get(id)
	a.Status = domain.AgentStatusError
	*a.LastChecked = a.LastChecked.AddDate(-1, 0, 0)

	again, _ := r.Get(id)
	assert.Equal(t, domain.AgentStatusActive, again.Status)
	assert.NotEqual(t, *a.LastChecked, *again.LastChecked)
}

func TestGetByURL(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("A", "x"))
	r, _ := newTestRegistry(f)
	r.Register(context.Background(), "http://a:1")

	a, ok := r.GetByURL("http://a:1/")
	require.True(t, ok)
	assert.Equal(t, "A", a.Descriptor.Name)
}

func TestFindByTags(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://r:1", card("Researcher", "Research", "fact-checking"))
	f.set("http://w:1", card("Writer", "writing", "marketing"))
	f.set("http://d:1", domain.AgentDescriptor{Name: "Analyst", Skills: []domain.Skill{
		{ID: "a", Tags: []string{"data analysis"}},
		{ID: "b", Tags: []string{"research", "statistics"}},
	}})
	r, _ := newTestRegistry(f)
	r.RegisterAll(context.Background(), []string{"http://r:1", "http://w:1", "http://d:1"})

	names := func(as []domain.RegisteredAgent) []string {
		var out []string
		for _, a := range as {
			out = append(out, a.Descriptor.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"Researcher", "Analyst"}, names(r.FindByTags([]string{"RESEARCH"})))
	assert.ElementsMatch(t, []string{"Writer"}, names(r.FindByTags([]string{"marketing", "nothing"})))
	assert.Empty(t, r.FindByTags([]string{"fact"}), "tags match by equality, not substring")
	assert.Empty(t, r.FindByTags(nil))

	// Agent matching through two skills still appears once.
	assert.Len(t, r.FindByTags([]string{"data analysis", "statistics"}), 1)
}

func TestFindByTagsSkipsInactive(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://r:1", card("Researcher", "research"))
	r, _ := newTestRegistry(f)
	r.Register(context.Background(), "http://r:1")

	f.breakURL("http://r:1", errors.New("status 503"))
	r.HealthCheckAll(context.Background())

	assert.Empty(t, r.FindByTags([]string{"research"}))
}

func TestListOrderIsRegistrationOrder(t *testing.T) {
	f := newFakeFetcher()
	urls := []string{"http://c:1", "http://a:1", "http://b:1"}
	for i, u := range urls {
		f.set(u, card(fmt.Sprintf("agent%d", i), "t"))
	}
	r, _ := newTestRegistry(f)
	for _, u := range urls {
		r.Register(context.Background(), u)
	}

	all := r.ListAll()
	require.Len(t, all, 3)
	for i, a := range all {
		assert.Equal(t, urls[i], a.URL)
	}
}

func TestHealthCheckFlipsStatus(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("A", "x"))
	r, bus := newTestRegistry(f)
	require.True(t, r.Register(context.Background(), "http://a:1"))
	id := domain.AgentID("A", "http://a:1")

	f.breakURL("http://a:1", domain.NewDomainError("fetch", domain.ErrAgentBadStatus, "503"))
	res := r.HealthCheckAll(context.Background())
	assert.Equal(t, map[string]bool{id: false}, res)

	a, _ := r.Get(id)
	assert.Equal(t, domain.AgentStatusError, a.Status)
	assert.Contains(t, a.ErrorMessage, "503")

	f.set("http://a:1", card("A", "x"))
	res = r.HealthCheckAll(context.Background())
	assert.Equal(t, map[string]bool{id: true}, res)

	a, _ = r.Get(id)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
	assert.Empty(t, a.ErrorMessage)
	assert.Equal(t, 2, bus.count(domain.EventAgentHealthChanged))
}

func TestHealthCheckRecoveryRekeysEntry(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("First", "x"))
	r, bus := newTestRegistry(f)
	require.True(t, r.Register(context.Background(), "http://a:1"))
	require.False(t, r.Register(context.Background(), "http://late:1"))
	f.set("http://c:1", card("Last", "x"))
	require.True(t, r.Register(context.Background(), "http://c:1"))
	staleID := domain.AgentID(domain.UnknownAgentName, "http://late:1")

	f.set("http://late:1", card("Executive Secretary", "general"))
	res := r.HealthCheckAll(context.Background())

	newID := domain.AgentID("Executive Secretary", "http://late:1")
	assert.True(t, res[newID])
	assert.NotContains(t, res, staleID)
	assert.Equal(t, 3, r.Len())

	a, ok := r.Get(newID)
	require.True(t, ok)
	assert.Equal(t, newID, a.ID)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
	_, ok = r.Get(staleID)
	assert.False(t, ok)

	byURL, ok := r.GetByURL("http://late:1")
	require.True(t, ok)
	assert.Equal(t, newID, byURL.ID)

	all := r.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, newID, all[1].ID, "re-keyed entry keeps its position")
	assert.Equal(t, 4, bus.count(domain.EventAgentRegistered))

	assert.True(t, r.Remove(context.Background(), newID))
	assert.Equal(t, 2, r.Len())
}

func TestHealthCheckIsolatesFailures(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("A", "x"))
	f.set("http://b:1", card("B", "x"))
	r, _ := newTestRegistry(f)
	r.RegisterAll(context.Background(), []string{"http://a:1", "http://b:1"})

	f.breakURL("http://a:1", errors.New("refused"))
	res := r.HealthCheckAll(context.Background())

	assert.False(t, res[domain.AgentID("A", "http://a:1")])
	assert.True(t, res[domain.AgentID("B", "http://b:1")])
	assert.Len(t, r.ListActive(), 1)
}

func TestHealthCheckEmptyRegistry(t *testing.T) {
	r, _ := newTestRegistry(newFakeFetcher())
	assert.Empty(t, r.HealthCheckAll(context.Background()))
}

func TestRemove(t *testing.T) {
	f := newFakeFetcher()
	f.set("http://a:1", card("A", "x"))
	r, bus := newTestRegistry(f)
	r.Register(context.Background(), "http://a:1")
	id := domain.AgentID("A", "http://a:1")

	assert.True(t, r.Remove(context.Background(), id))
	assert.False(t, r.Remove(context.Background(), id))
	assert.Equal(t, 0, r.Len())
	_, ok := r.GetByURL("http://a:1")
	assert.False(t, ok)
	assert.Equal(t, 1, bus.count(domain.EventAgentRemoved))
}

func TestRegisterAndRemoveInvalidateDescriptorCache(t *testing.T) {
	f := &cachingFetcher{fakeFetcher: newFakeFetcher()}
	f.set("http://a:1", card("A", "x"))
	r := New(f, nil, Config{}, testLogger())

	require.True(t, r.Register(context.Background(), "http://a:1/"))
	require.True(t, r.Register(context.Background(), "http://a:1"))
	require.True(t, r.Remove(context.Background(), domain.AgentID("A", "http://a:1")))
	assert.False(t, r.Remove(context.Background(), "missing"))

	assert.Equal(t, []string{"http://a:1", "http://a:1", "http://a:1"}, f.forgotten)
}

func TestConcurrentRegisterAndSweep(t *testing.T) {
	f := newFakeFetcher()
	for i := 0; i < 20; i++ {
		f.set(fmt.Sprintf("http://h%d:1", i), card(fmt.Sprintf("agent%d", i), "t"))
	}
	r, _ := newTestRegistry(f)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(context.Background(), fmt.Sprintf("http://h%d:1", i))
		}()
		go func() {
			defer wg.Done()
			r.HealthCheckAll(context.Background())
			_ = r.FindByTags([]string{"t"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, r.Len())
}
