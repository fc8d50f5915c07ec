// Package registry keeps the catalog of known remote agents: their last fetched
// capability descriptor and liveness. Network failures are recorded on the
// entry, never returned as panics or surfaced to callers listing agents.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"agenthq/internal/domain"
	"agenthq/internal/infra/tracer"
)

// FailedDescription is recorded on entries whose descriptor could not be loaded.
const FailedDescription = "Failed to load"

// DescriptorFetcher fetches an agent's capability descriptor from its base URL.
type DescriptorFetcher interface {
	FetchDescriptor(ctx context.Context, baseURL string) (domain.AgentDescriptor, error)
}

// descriptorCache is implemented by fetchers that also cache descriptors for
// sending. Registration and removal invalidate the cached copy.
type descriptorCache interface {
	ForgetDescriptor(baseURL string)
}

// Config holds registry tuning.
type Config struct {
	HealthConcurrency int // parallel fetches during a sweep; <= 0 means 8
}

// Registry is the in-memory agent catalog. Iteration order is registration order.
//
// Descriptor fetches happen outside the lock. Their results are applied per id
// under the lock and dropped if the entry was removed in the meantime.
type Registry struct {
	mu      sync.RWMutex
	agents  *orderedmap.OrderedMap[string, *domain.RegisteredAgent]
	byURL   map[string]string // normalized url -> id
	fetcher DescriptorFetcher
	bus     domain.EventBus
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Registry. bus may be nil.
func New(fetcher DescriptorFetcher, bus domain.EventBus, cfg Config, logger *slog.Logger) *Registry {
	if cfg.HealthConcurrency <= 0 {
		cfg.HealthConcurrency = 8
	}
	return &Registry{
		agents:  orderedmap.New[string, *domain.RegisteredAgent](),
		byURL:   make(map[string]string),
		fetcher: fetcher,
		bus:     bus,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// NormalizeURL trims whitespace and trailing slashes from an agent base URL.
func NormalizeURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// Register fetches the descriptor at url and stores the agent. It reports
// whether the agent is now active; failures are recorded as an error entry.
func (r *Registry) Register(ctx context.Context, url string) bool {
	_, err := r.RegisterAgent(ctx, url)
	return err == nil
}

// RegisterAgent is Register with the stored entry and the fetch error exposed.
// The entry is stored even when err is non-nil.
func (r *Registry) RegisterAgent(ctx context.Context, url string) (domain.RegisteredAgent, error) {
	url = NormalizeURL(url)
	if url == "" {
		return domain.RegisteredAgent{}, domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "empty url")
	}

	ctx, span := tracer.StartSpan(ctx, "registry.register")
	span.SetAttributes(tracer.StringAttr("url", url))

	r.forgetDescriptor(url)
	desc, err := r.fetcher.FetchDescriptor(ctx, url)
	checked := r.now()

	entry := &domain.RegisteredAgent{URL: url, LastChecked: &checked}
	if err != nil {
		entry.Descriptor = domain.AgentDescriptor{
			Name:        domain.UnknownAgentName,
			Description: FailedDescription,
			URL:         url,
		}
		entry.Status = domain.AgentStatusError
		entry.ErrorMessage = err.Error()
	} else {
		entry.Descriptor = desc
		entry.Status = domain.AgentStatusActive
	}
	entry.ID = domain.AgentID(entry.Descriptor.Name, url)

	r.mu.Lock()
	if oldID, ok := r.byURL[url]; ok && oldID != entry.ID {
		r.agents.Delete(oldID)
	}
	r.agents.Set(entry.ID, entry)
	r.byURL[url] = entry.ID
	stored := clone(entry)
	r.mu.Unlock()

	tracer.Finish(span, err)
	r.publishEvent(ctx, domain.EventAgentRegistered, map[string]string{
		"agent_id": stored.ID,
		"name":     stored.Descriptor.Name,
		"url":      url,
		"status":   string(stored.Status),
	})

	if err != nil {
		r.logger.Warn("agent registration failed", "agent_id", stored.ID, "url", url, "error", err)
		return stored, domain.WrapOp("Registry.Register", err)
	}
	r.logger.Info("agent registered", "agent_id", stored.ID, "name", stored.Descriptor.Name, "url", url)
	return stored, nil
}

// RegisterAll registers every url in parallel and returns url -> active.
func (r *Registry) RegisterAll(ctx context.Context, urls []string) map[string]bool {
	results := make([]bool, len(urls))

	var g errgroup.Group
	g.SetLimit(r.config.HealthConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = r.Register(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(urls))
	for i, u := range urls {
		out[NormalizeURL(u)] = results[i]
	}
	return out
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (domain.RegisteredAgent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents.Get(id)
	if !ok {
		return domain.RegisteredAgent{}, false
	}
	return clone(a), true
}

// GetByURL returns the entry registered for url.
func (r *Registry) GetByURL(url string) (domain.RegisteredAgent, bool) {
	r.mu.RLock()
	id, ok := r.byURL[NormalizeURL(url)]
	r.mu.RUnlock()
	if !ok {
		return domain.RegisteredAgent{}, false
	}
	return r.Get(id)
}

// FindByTags returns active agents with at least one skill carrying any of
// tags, compared case-insensitively. Each agent appears at most once.
func (r *Registry) FindByTags(tags []string) []domain.RegisteredAgent {
	set := domain.TagSet(tags)
	if len(set) == 0 {
		return nil
	}
	return r.filter(func(a *domain.RegisteredAgent) bool {
		return a.Active() && a.Descriptor.MatchesAny(set)
	})
}

// ListActive returns agents whose last check succeeded.
func (r *Registry) ListActive() []domain.RegisteredAgent {
	return r.filter(func(a *domain.RegisteredAgent) bool { return a.Active() })
}

// ListAll returns every entry, including failed ones.
func (r *Registry) ListAll() []domain.RegisteredAgent {
	return r.filter(func(*domain.RegisteredAgent) bool { return true })
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents.Len()
}

func (r *Registry) filter(keep func(*domain.RegisteredAgent) bool) []domain.RegisteredAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RegisteredAgent
	for pair := r.agents.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Value) {
			out = append(out, clone(pair.Value))
		}
	}
	return out
}

// Remove deletes the entry for id and reports whether it existed.
func (r *Registry) Remove(ctx context.Context, id string) bool {
	r.mu.Lock()
	a, ok := r.agents.Delete(id)
	if ok && r.byURL[a.URL] == id {
		delete(r.byURL, a.URL)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.forgetDescriptor(a.URL)
	r.publishEvent(ctx, domain.EventAgentRemoved, map[string]string{"agent_id": id, "url": a.URL})
	r.logger.Info("agent removed", "agent_id", id)
	return true
}

type checkTarget struct {
	id  string
	url string
}

type checkResult struct {
	checkTarget
	desc domain.AgentDescriptor
	err  error
	at   time.Time
}

// HealthCheckAll re-fetches every descriptor in parallel and updates status,
// error message and last-checked time in place. One agent's failure does not
// affect the others. Returns id -> success.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	ctx, span := tracer.StartSpan(ctx, "registry.health_sweep")

	r.mu.RLock()
	targets := make([]checkTarget, 0, r.agents.Len())
	for pair := r.agents.Oldest(); pair != nil; pair = pair.Next() {
		targets = append(targets, checkTarget{id: pair.Key, url: pair.Value.URL})
	}
	r.mu.RUnlock()

	results := make([]checkResult, len(targets))
	var g errgroup.Group
	g.SetLimit(r.config.HealthConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			desc, err := r.fetcher.FetchDescriptor(ctx, t.url)
			results[i] = checkResult{checkTarget: t, desc: desc, err: err, at: r.now()}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(results))
	type change struct {
		id       string
		from, to domain.AgentStatus
	}
	var changes []change
	var rekeyed []domain.RegisteredAgent

	r.mu.Lock()
	for _, res := range results {
		a, ok := r.agents.Get(res.id)
		if !ok || a.URL != res.url {
			continue
		}
		prev := a.Status
		at := res.at
		a.LastChecked = &at
		id := res.id
		if res.err != nil {
			a.Status = domain.AgentStatusError
			a.ErrorMessage = res.err.Error()
		} else {
			a.Status = domain.AgentStatusActive
			a.ErrorMessage = ""
			a.Descriptor = res.desc
			if newID := domain.AgentID(a.Descriptor.Name, a.URL); newID != id {
				r.rekeyLocked(id, newID, a)
				id = newID
				rekeyed = append(rekeyed, clone(a))
			}
		}
		out[id] = res.err == nil
		if prev != a.Status {
			changes = append(changes, change{id: id, from: prev, to: a.Status})
		}
	}
	r.mu.Unlock()

	for _, a := range rekeyed {
		r.logger.Info("agent re-keyed after recovery", "agent_id", a.ID, "name", a.Descriptor.Name, "url", a.URL)
		r.publishEvent(ctx, domain.EventAgentRegistered, map[string]string{
			"agent_id": a.ID,
			"name":     a.Descriptor.Name,
			"url":      a.URL,
			"status":   string(a.Status),
		})
	}
	for _, c := range changes {
		r.logger.Info("agent health changed", "agent_id", c.id, "from", string(c.from), "to", string(c.to))
		r.publishEvent(ctx, domain.EventAgentHealthChanged, map[string]string{
			"agent_id": c.id,
			"from":     string(c.from),
			"to":       string(c.to),
		})
	}

	healthy := 0
	for _, ok := range out {
		if ok {
			healthy++
		}
	}
	span.SetAttributes(tracer.IntAttr("checked", len(out)), tracer.IntAttr("healthy", healthy))
	tracer.Finish(span, nil)
	r.logger.Debug("health sweep finished", "checked", len(out), "healthy", healthy)
	return out
}

// rekeyLocked moves a to newID, keeping its position. The descriptor name
// feeds the id, so a recovered entry stops answering to its old id.
func (r *Registry) rekeyLocked(oldID, newID string, a *domain.RegisteredAgent) {
	r.agents.Delete(newID)
	a.ID = newID
	r.agents.Set(newID, a)
	_ = r.agents.MoveBefore(newID, oldID)
	r.agents.Delete(oldID)
	r.byURL[a.URL] = newID
}

func (r *Registry) forgetDescriptor(url string) {
	if c, ok := r.fetcher.(descriptorCache); ok {
		c.ForgetDescriptor(url)
	}
}

func (r *Registry) publishEvent(ctx context.Context, eventType domain.EventType, detail map[string]string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, domain.NewEvent(eventType, detail))
}

func clone(a *domain.RegisteredAgent) domain.RegisteredAgent {
	c := *a
	if a.LastChecked != nil {
		t := *a.LastChecked
		c.LastChecked = &t
	}
	return c
}
