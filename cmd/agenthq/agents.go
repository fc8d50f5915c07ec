package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"agenthq/internal/adapter/a2a"
	"agenthq/internal/domain"
	"agenthq/internal/infra/config"
	"agenthq/internal/infra/logger"
	"agenthq/internal/usecase/discovery"
	"agenthq/internal/usecase/eventbus"
	"agenthq/internal/usecase/roster"
)

func runAgents() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()
	unsub := bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		log.Debug("event", "type", e.Type, "payload", string(e.Payload))
	})
	defer unsub()

	var advertiser discovery.Advertiser
	if cfg.Agents.Advertise {
		advertiser = buildAdvertiser(cfg.Registry.Discovery, logger.Component(log, "discovery"))
	}
	announce := func(name, addr, url string) {
		if advertiser == nil {
			return
		}
		_, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return
		}
		port, _ := strconv.Atoi(portStr)
		go func() {
			if err := advertiser.Advertise(ctx, name, port, map[string]string{"url": url}); err != nil {
				log.Warn("advertise failed", "agent", name, "error", err)
			}
		}()
	}

	host := a2a.NewHost(cfg.Agents.AdvertiseHost, logger.Component(log, "agents"))
	hirer := newHirer(host, cfg, log)
	hirer.onLaunch = announce
	if err := buildRoster(host, cfg, hirer, bus, log); err != nil {
		return err
	}
	if err := host.Listen(); err != nil {
		return err
	}
	for _, a := range host.Agents() {
		announce(a.Name, a.Addr, a.Descriptor.URL)
	}

	log.Info("agents starting", "count", len(host.Agents()), "version", version)
	return host.Serve(ctx)
}

// buildRoster adds one server per enabled roster entry to host.
func buildRoster(host *a2a.Host, cfg *config.Config, deployer roster.Deployer, bus domain.EventBus, log *slog.Logger) error {
	keywords := newKeywordRouter(cfg.Routing, log)
	director, err := newDirector(cfg.Delegation, bus, log)
	if err != nil {
		return err
	}

	for _, entry := range cfg.Agents.Roster {
		if !entry.Enabled {
			continue
		}
		card, ok := roster.Card(entry.Type, "")
		if !ok {
			return fmt.Errorf("%w: unknown agent type %q", domain.ErrInvalidInput, entry.Type)
		}
		agentLog := logger.Component(log, entry.Type)

		var responder a2a.Responder
		switch entry.Type {
		case roster.TypeSecretary:
			responder = roster.NewSecretary(keywords)
		case roster.TypeHiringManager:
			responder = roster.NewHiringManager(deployer, agentLog)
		case roster.TypeOrchestrator:
			responder = roster.NewOrchestrator(director)
		default:
			responder, _ = roster.Specialist(entry.Type)
		}

		addr := net.JoinHostPort(cfg.Agents.Host, strconv.Itoa(entry.Port))
		host.Add(entry.Type, addr, a2a.NewServer(card, responder, cfg.Registry.WellKnownPath, agentLog))
	}
	return nil
}

// hirer deploys specialists hired at runtime onto the running host.
type hirer struct {
	host          *a2a.Host
	bindHost      string
	wellKnownPath string
	logger        *slog.Logger
	onLaunch      func(name, addr, url string)

	mu       sync.Mutex
	nextPort int // 0 means pick a free port
	count    int
}

var _ roster.Deployer = (*hirer)(nil)

func newHirer(host *a2a.Host, cfg *config.Config, log *slog.Logger) *hirer {
	return &hirer{
		host:          host,
		bindHost:      cfg.Agents.Host,
		wellKnownPath: cfg.Registry.WellKnownPath,
		logger:        logger.Component(log, "hiring"),
		nextPort:      cfg.Agents.HireBasePort,
	}
}

// Deploy starts a new specialist of agentType and returns its url. A port
// that fails to bind is skipped for later hires.
func (h *hirer) Deploy(_ context.Context, agentType string) (string, error) {
	responder, ok := roster.Specialist(agentType)
	if !ok {
		return "", fmt.Errorf("%w: agent type %q cannot be hired", domain.ErrInvalidInput, agentType)
	}
	card, _ := roster.Card(agentType, "")

	h.mu.Lock()
	h.count++
	name := agentType + "-" + strconv.Itoa(h.count)
	port := h.nextPort
	if h.nextPort > 0 {
		h.nextPort++
	}
	h.mu.Unlock()

	srv := a2a.NewServer(card, responder, h.wellKnownPath, logger.Component(h.logger, name))
	url, err := h.host.Launch(name, net.JoinHostPort(h.bindHost, strconv.Itoa(port)), srv)
	if err != nil {
		return "", err
	}
	if h.onLaunch != nil {
		h.onLaunch(name, h.host.BoundAddrs()[name], url)
	}
	return url, nil
}
