package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"agenthq/internal/adapter/a2a"
	"agenthq/internal/adapter/gateway"
	"agenthq/internal/adapter/store"
	"agenthq/internal/domain"
	"agenthq/internal/infra/config"
	"agenthq/internal/infra/logger"
	"agenthq/internal/infra/middleware"
	"agenthq/internal/security"
	"agenthq/internal/usecase/chat"
	"agenthq/internal/usecase/delegation"
	"agenthq/internal/usecase/discovery"
	"agenthq/internal/usecase/eventbus"
	"agenthq/internal/usecase/registry"
	"agenthq/internal/usecase/routing"
	"agenthq/internal/usecase/scheduling"
)

// coreComponents are the use cases shared by serve and mcp.
type coreComponents struct {
	Bus      *eventbus.Bus
	Client   *a2a.Client
	Registry *registry.Registry
	Keywords *routing.KeywordRouter
	Router   *routing.Router
	Store    domain.ConversationStore
	Chat     *chat.Service
	Director *delegation.Director
}

// Close releases the store and drains the event bus.
func (c *coreComponents) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	c.Bus.Close()
}

func initCore(_ context.Context, cfg *config.Config, log *slog.Logger) (*coreComponents, error) {
	bus := eventbus.New(logger.Component(log, "eventbus"))
	client := a2a.NewClient(transportConfig(cfg), logger.Component(log, "a2a"))
	reg := registry.New(client, bus, registry.Config{
		HealthConcurrency: cfg.Registry.HealthConcurrency,
	}, logger.Component(log, "registry"))

	keywords := newKeywordRouter(cfg.Routing, log)
	var tags *routing.TagRouter
	if cfg.Routing.UseRegistry {
		tags = routing.NewTagRouter(reg, logger.Component(log, "routing"))
	}
	router := routing.New(keywords, tags, logger.Component(log, "routing"))

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("store: %w", err)
	}

	svc := chat.NewService(router, client, st, bus, chat.Config{
		Endpoints:        cfg.Endpoints,
		ProbeConcurrency: cfg.Registry.HealthConcurrency,
	}, logger.Component(log, "chat"))

	director, err := newDirector(cfg.Delegation, bus, log)
	if err != nil {
		st.Close()
		bus.Close()
		return nil, err
	}

	return &coreComponents{
		Bus:      bus,
		Client:   client,
		Registry: reg,
		Keywords: keywords,
		Router:   router,
		Store:    st,
		Chat:     svc,
		Director: director,
	}, nil
}

// runtimeComponents are the long-running parts of serve.
type runtimeComponents struct {
	Gateway   *gateway.Server
	Scheduler *scheduling.Scheduler
	Discovery *discovery.Service
}

// Close stops the scheduler and the gateway.
func (r *runtimeComponents) Close(ctx context.Context) error {
	var errs []error
	if r.Scheduler != nil {
		errs = append(errs, r.Scheduler.Stop())
	}
	if r.Gateway != nil {
		errs = append(errs, r.Gateway.Stop(ctx))
	}
	return errors.Join(errs...)
}

func initRuntime(ctx context.Context, cfg *config.Config, core *coreComponents, log *slog.Logger) (*runtimeComponents, error) {
	rt := &runtimeComponents{}

	disco := cfg.Registry.Discovery
	if disco.MDNS {
		rt.Discovery = discovery.NewService(
			buildDiscoverer(disco, logger.Component(log, "discovery")),
			core.Registry, core.Bus, logger.Component(log, "discovery"))
	}

	if cfg.Scheduler.Enabled {
		sched, err := initScheduler(cfg, core, rt.Discovery, log)
		if err != nil {
			return nil, err
		}
		rt.Scheduler = sched
	}

	rt.Gateway = initGateway(ctx, cfg, core, log)
	return rt, nil
}

func initScheduler(cfg *config.Config, core *coreComponents, disco *discovery.Service, log *slog.Logger) (*scheduling.Scheduler, error) {
	sched := scheduling.NewScheduler(core.Bus, logger.Component(log, "scheduler"))

	sched.RegisterAction(scheduling.ActionHealthSweep, func(ctx context.Context) error {
		results := core.Registry.HealthCheckAll(ctx)
		log.Debug("health sweep done", "agents", len(results))
		return nil
	})
	sched.RegisterAction(scheduling.ActionConversationRetention, func(ctx context.Context) error {
		n, err := core.Chat.PurgeHistory(ctx, cfg.Store.Retention)
		if n > 0 {
			log.Info("conversations purged", "count", n)
		}
		return err
	})
	sched.RegisterAction(scheduling.ActionDiscoveryScan, func(ctx context.Context) error {
		if disco == nil {
			return nil
		}
		_, err := disco.Scan(ctx)
		return err
	})

	for _, t := range cfg.Scheduler.Tasks {
		err := sched.AddTask(scheduling.Task{
			Name:     t.Name,
			Schedule: t.Schedule,
			Action:   scheduling.Action(t.Action),
			OneShot:  t.OneShot,
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler task %q: %w", t.Name, err)
		}
	}
	return sched, nil
}

func initGateway(ctx context.Context, cfg *config.Config, core *coreComponents, log *slog.Logger) *gateway.Server {
	tokens := make([]gateway.Token, 0, len(cfg.Gateway.Auth.Tokens))
	for _, t := range cfg.Gateway.Auth.Tokens {
		tokens = append(tokens, gateway.Token{Token: t.Token, Name: t.Name})
	}
	srv := gateway.NewServer(core.Bus, gateway.NewAuthenticator(tokens), cfg.Gateway.Addr, logger.Component(log, "gateway"))
	srv.AllowOrigins(originPatterns(cfg.Gateway.CORSOrigins)...)

	mws := []func(next http.Handler) http.Handler{middleware.SecurityHeaders, middleware.CORS(cfg.Gateway.CORSOrigins)}
	if rl := cfg.Gateway.RateLimit; rl.Enabled {
		mws = append(mws, middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		}))
	}
	srv.Use(mws...)

	deps := gateway.Deps{
		Chat:        core.Chat,
		Registry:    core.Registry,
		Bus:         core.Bus,
		EventCounts: core.Bus.Counts,
		Logger:      logger.Component(log, "gateway"),
	}
	metrics := gateway.RegisterRoutes(srv, deps)
	if cfg.Gateway.WebSocket {
		gateway.RegisterRPCHandlers(srv, deps, metrics)
	}
	return srv
}

func transportConfig(cfg *config.Config) a2a.Config {
	t := cfg.Transport
	return a2a.Config{
		Timeout:        t.Timeout,
		ConnectTimeout: t.ConnectTimeout,
		ReadTimeout:    t.ReadTimeout,
		WriteTimeout:   t.WriteTimeout,
		PoolTimeout:    t.PoolTimeout,
		StatusTimeout:  t.StatusTimeout,
		WellKnownPath:  cfg.Registry.WellKnownPath,
		Breaker: a2a.BreakerConfig{
			Enabled:     t.CircuitBreaker.Enabled,
			MaxFailures: t.CircuitBreaker.MaxFailures,
			Timeout:     t.CircuitBreaker.Timeout,
			Interval:    t.CircuitBreaker.Interval,
		},
	}
}

func newKeywordRouter(rc config.RoutingConfig, log *slog.Logger) *routing.KeywordRouter {
	rules := make([]routing.Rule, 0, len(rc.Rules))
	for _, r := range rc.Rules {
		rules = append(rules, routing.Rule{Category: r.Category, AgentName: r.AgentName, Keywords: r.Keywords})
	}
	fallback := routing.Rule{Category: rc.Default.Category, AgentName: rc.Default.AgentName}
	return routing.NewKeywordRouterWithLogger(rules, fallback, routing.Strategy(rc.Strategy), logger.Component(log, "routing"))
}

// newDirector builds the CEO over a factory that creates one project manager
// per goal, each with its own code and filesystem agents.
func newDirector(dc config.DelegationConfig, bus domain.EventBus, log *slog.Logger) (*delegation.Director, error) {
	sandbox, err := security.NewSandbox(dc.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	pmLog := logger.Component(log, "delegation")
	factory := func() *delegation.ProjectManager {
		agents := []delegation.Agent{delegation.CodeAgent{}, delegation.NewFileSystemAgent(sandbox)}
		return delegation.NewProjectManager(delegation.ManagerConfig{
			Name:        dc.ManagerName,
			Description: dc.ManagerDescription,
			Rules:       delegation.DefaultPlanRules(dc.OutputFile),
		}, agents, bus, pmLog)
	}
	return delegation.NewDirector("CEO", factory, bus, pmLog), nil
}

// seedURLs returns the configured seed URLs followed by the endpoint URLs
// when those are registered too. Duplicates keep their first position.
func seedURLs(cfg *config.Config) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = registry.NormalizeURL(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, u := range cfg.Registry.SeedURLs {
		add(u)
	}
	if cfg.Registry.RegisterEndpoints {
		types := make([]string, 0, len(cfg.Endpoints))
		for t := range cfg.Endpoints {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			add(cfg.Endpoints[t])
		}
	}
	return out
}

// originPatterns turns CORS origins into WebSocket origin patterns, which
// match on host only.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
