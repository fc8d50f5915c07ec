package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"agenthq/internal/domain"
)

// Metrics holds the gateway counters exposed at /metrics.
type Metrics struct {
	ChatRequests       atomic.Int64
	ChatDefaultRouted  atomic.Int64
	ChatFailures       atomic.Int64
	AgentRegistrations atomic.Int64
	HealthSweeps       atomic.Int64

	started time.Time
}

// subscribe counts registrations and scheduled sweeps from bus events.
func (m *Metrics) subscribe(bus domain.EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(domain.EventAgentRegistered, func(context.Context, domain.Event) {
		m.AgentRegistrations.Add(1)
	})
	bus.Subscribe(domain.EventTaskFired, func(_ context.Context, e domain.Event) {
		var p struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(e.Payload, &p) == nil && p.Action == "health_sweep" {
			m.HealthSweeps.Add(1)
		}
	})
}

// metricsHandler writes the Prometheus text exposition format.
func metricsHandler(deps Deps, m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n", name, v)
		}
		gauge := func(name, help string, v int) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			fmt.Fprintf(w, "%s %d\n", name, v)
		}

		counter("agenthq_chat_requests_total", "Chat messages handled.", m.ChatRequests.Load())
		counter("agenthq_chat_default_routed_total", "Chat messages sent to the default agent.", m.ChatDefaultRouted.Load())
		counter("agenthq_chat_failures_total", "Chat messages whose target agent could not answer.", m.ChatFailures.Load())
		counter("agenthq_agent_registrations_total", "Agent registration attempts.", m.AgentRegistrations.Load())
		counter("agenthq_health_sweeps_total", "Registry health sweeps.", m.HealthSweeps.Load())

		if deps.Registry != nil {
			gauge("agenthq_agents_registered", "Agents in the registry.", len(deps.Registry.ListAll()))
			gauge("agenthq_agents_active", "Agents that answered their last check.", len(deps.Registry.ListActive()))
		}

		if deps.EventCounts != nil {
			counts := deps.EventCounts()
			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, string(t))
			}
			sort.Strings(types)
			fmt.Fprintf(w, "# HELP agenthq_events_total Events published on the bus.\n")
			fmt.Fprintf(w, "# TYPE agenthq_events_total counter\n")
			for _, t := range types {
				fmt.Fprintf(w, "agenthq_events_total{type=%q} %d\n", t, counts[domain.EventType(t)])
			}
		}

		fmt.Fprintf(w, "# HELP agenthq_uptime_seconds Seconds since the gateway started.\n")
		fmt.Fprintf(w, "# TYPE agenthq_uptime_seconds gauge\n")
		fmt.Fprintf(w, "agenthq_uptime_seconds %.0f\n", time.Since(m.started).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge("go_goroutines", "Number of goroutines.", runtime.NumGoroutine())
		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)
	}
}
