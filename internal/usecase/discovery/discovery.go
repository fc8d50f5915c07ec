// Package discovery finds agent services on the local network and registers
// the ones the registry has not seen yet.
package discovery

import (
	"context"
	"log/slog"
	"strings"

	"agenthq/internal/domain"
)

// Discoverer browses for agent base URLs.
type Discoverer interface {
	Scan(ctx context.Context) ([]string, error)
}

// Advertiser announces a local agent service. Advertise blocks until ctx is done.
type Advertiser interface {
	Advertise(ctx context.Context, name string, port int, meta map[string]string) error
}

// Registrar is the slice of the registry that discovery needs.
type Registrar interface {
	GetByURL(url string) (domain.RegisteredAgent, bool)
	RegisterAgent(ctx context.Context, url string) (domain.RegisteredAgent, error)
}

// Service registers newly discovered agents.
type Service struct {
	discoverer Discoverer
	registry   Registrar
	bus        domain.EventBus
	logger     *slog.Logger
}

// NewService creates a discovery service. bus may be nil.
func NewService(d Discoverer, registry Registrar, bus domain.EventBus, logger *slog.Logger) *Service {
	return &Service{discoverer: d, registry: registry, bus: bus, logger: logger}
}

// Scan browses once and registers every URL not already known. It returns
// the ids of the agents that were added.
func (s *Service) Scan(ctx context.Context) ([]string, error) {
	urls, err := s.discoverer.Scan(ctx)
	if err != nil {
		return nil, domain.WrapOp("discovery.Scan", err)
	}

	var added []string
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		if _, ok := s.registry.GetByURL(u); ok {
			continue
		}
		agent, err := s.registry.RegisterAgent(ctx, u)
		if err != nil {
			s.logger.Debug("discovered agent not registered", "url", u, "error", err)
			continue
		}
		added = append(added, agent.ID)
		s.logger.Info("agent discovered", "agent_id", agent.ID, "name", agent.Descriptor.Name, "url", u)
		if s.bus != nil {
			s.bus.Publish(ctx, domain.NewEvent(domain.EventAgentDiscovered, map[string]string{
				"agent_id": agent.ID,
				"name":     agent.Descriptor.Name,
				"url":      u,
			}))
		}
	}
	return added, nil
}

// ParseTXT turns "k=v" TXT records into a map. Values may contain "=".
func ParseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, t := range txt {
		if k, v, ok := strings.Cut(t, "="); ok {
			m[k] = v
		}
	}
	return m
}
