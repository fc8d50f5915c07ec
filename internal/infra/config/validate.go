package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	validateTransport(cfg, ve)
	validateRegistry(cfg, ve)
	validateRouting(cfg, ve)
	validateEndpoints(cfg, ve)
	validateAgents(cfg, ve)
	validateDelegation(cfg, ve)
	validateStore(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (valid: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (valid: stdout, noop)", cfg.Tracer.Exporter)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is invalid: %v", cfg.Gateway.Addr, err)
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RequestsPerSecond <= 0 {
			ve.Add("gateway.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if cfg.Gateway.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}
}

func validateTransport(cfg *Config, ve *ValidationError) {
	t := cfg.Transport
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"timeout", t.Timeout},
		{"connect_timeout", t.ConnectTimeout},
		{"read_timeout", t.ReadTimeout},
		{"write_timeout", t.WriteTimeout},
		{"pool_timeout", t.PoolTimeout},
		{"status_timeout", t.StatusTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			ve.Add("transport.%s must be > 0", p.name)
		}
	}
	if t.CircuitBreaker.Enabled {
		if t.CircuitBreaker.MaxFailures == 0 {
			ve.Add("transport.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if t.CircuitBreaker.Timeout <= 0 {
			ve.Add("transport.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateRegistry(cfg *Config, ve *ValidationError) {
	if !strings.HasPrefix(cfg.Registry.WellKnownPath, "/") {
		ve.Add("registry.well_known_path must start with '/'")
	}
	if cfg.Registry.HealthConcurrency <= 0 {
		ve.Add("registry.health_concurrency must be > 0")
	}
	for i, u := range cfg.Registry.SeedURLs {
		if !isHTTPURL(u) {
			ve.Add("registry.seed_urls[%d] %q must be an http(s) URL", i, u)
		}
	}
	if cfg.Registry.Discovery.MDNS {
		if cfg.Registry.Discovery.Service == "" {
			ve.Add("registry.discovery.service must not be empty when mdns is enabled")
		}
		if cfg.Registry.Discovery.ScanTimeout <= 0 {
			ve.Add("registry.discovery.scan_timeout must be > 0 when mdns is enabled")
		}
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	switch cfg.Routing.Strategy {
	case "first_match", "most_hits":
	default:
		ve.Add("routing.strategy %q is invalid (valid: first_match, most_hits)", cfg.Routing.Strategy)
	}
	if cfg.Routing.Default.Category == "" {
		ve.Add("routing.default.category must not be empty")
	}
	seen := make(map[string]bool)
	for i, r := range cfg.Routing.Rules {
		if r.Category == "" {
			ve.Add("routing.rules[%d].category must not be empty", i)
			continue
		}
		if seen[r.Category] {
			ve.Add("routing.rules[%d]: duplicate category %q", i, r.Category)
		}
		seen[r.Category] = true
		if len(r.Keywords) == 0 {
			ve.Add("routing.rules[%d] (%s): keywords must not be empty", i, r.Category)
		}
		for _, kw := range r.Keywords {
			if strings.TrimSpace(kw) == "" {
				ve.Add("routing.rules[%d] (%s): keywords must not contain blanks", i, r.Category)
				break
			}
		}
	}
}

func validateEndpoints(cfg *Config, ve *ValidationError) {
	for name, u := range cfg.Endpoints {
		if !isHTTPURL(u) {
			ve.Add("endpoints.%s %q must be an http(s) URL", name, u)
		}
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.HireBasePort < 0 || cfg.Agents.HireBasePort > 65535 {
		ve.Add("agents.hire_base_port %d out of range", cfg.Agents.HireBasePort)
	}
	ports := make(map[int]string)
	for i, a := range cfg.Agents.Roster {
		if a.Type == "" {
			ve.Add("agents.roster[%d].type must not be empty", i)
		}
		if !a.Enabled {
			continue
		}
		if a.Port <= 0 || a.Port > 65535 {
			ve.Add("agents.roster[%d] (%s): port %d out of range", i, a.Type, a.Port)
			continue
		}
		if other, ok := ports[a.Port]; ok {
			ve.Add("agents.roster[%d] (%s): port %d already used by %s", i, a.Type, a.Port, other)
		}
		ports[a.Port] = a.Type
	}
}

func validateDelegation(cfg *Config, ve *ValidationError) {
	if cfg.Delegation.WorkspaceRoot == "" {
		ve.Add("delegation.workspace_root must not be empty")
	}
	if cfg.Delegation.OutputFile == "" {
		ve.Add("delegation.output_file must not be empty")
	}
	if cfg.Delegation.ManagerName == "" {
		ve.Add("delegation.manager_name must not be empty")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			ve.Add("store.path is required when store.driver is \"sqlite\"")
		}
	default:
		ve.Add("store.driver %q is invalid (valid: memory, sqlite)", cfg.Store.Driver)
	}
	if cfg.Store.Retention < 0 {
		ve.Add("store.retention must be >= 0")
	}
}

var validActions = map[string]bool{
	"health_sweep":           true,
	"discovery_scan":         true,
	"conversation_retention": true,
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	names := make(map[string]bool)
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name must not be empty", i)
		} else if names[t.Name] {
			ve.Add("scheduler.tasks[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule must not be empty", i)
		}
		if !validActions[t.Action] {
			ve.Add("scheduler.tasks[%d].action %q is invalid (valid: health_sweep, discovery_scan, conversation_retention)", i, t.Action)
		}
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
