package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for agenthq.
type Config struct {
	Logger     LoggerConfig      `yaml:"logger"`
	Tracer     TracerConfig      `yaml:"tracer"`
	Gateway    GatewayConfig     `yaml:"gateway"`
	Transport  TransportConfig   `yaml:"transport"`
	Registry   RegistryConfig    `yaml:"registry"`
	Routing    RoutingConfig     `yaml:"routing"`
	Endpoints  map[string]string `yaml:"endpoints"` // agent type -> base URL
	Agents     AgentsConfig      `yaml:"agents"`
	Delegation DelegationConfig  `yaml:"delegation"`
	Store      StoreConfig       `yaml:"store"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	Source bool   `yaml:"source"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// GatewayConfig holds the chat backend HTTP/WebSocket settings.
type GatewayConfig struct {
	Addr        string          `yaml:"addr"`
	CORSOrigins []string        `yaml:"cors_origins"`
	WebSocket   bool            `yaml:"websocket"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
// No tokens means the gateway is open.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig holds per-client rate limiting for the gateway.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TransportConfig holds timeouts for talking to remote agents.
type TransportConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`         // whole request
	ConnectTimeout time.Duration        `yaml:"connect_timeout"` // TCP dial
	ReadTimeout    time.Duration        `yaml:"read_timeout"`    // waiting for response headers
	WriteTimeout   time.Duration        `yaml:"write_timeout"`   // writing the request
	PoolTimeout    time.Duration        `yaml:"pool_timeout"`    // idle pooled connections
	StatusTimeout  time.Duration        `yaml:"status_timeout"`  // liveness probes
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds per-agent circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RegistryConfig holds agent registry settings.
type RegistryConfig struct {
	WellKnownPath     string          `yaml:"well_known_path"`
	SeedURLs          []string        `yaml:"seed_urls"`
	RegisterEndpoints bool            `yaml:"register_endpoints"` // also seed from endpoints
	HealthConcurrency int             `yaml:"health_concurrency"`
	Discovery         DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig holds LAN discovery settings.
// NOTE: mDNS also requires a binary built with the "mdns" build tag; without
// it the noop discoverer is used.
type DiscoveryConfig struct {
	MDNS        bool          `yaml:"mdns"`
	Service     string        `yaml:"service"`
	Domain      string        `yaml:"domain"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// RoutingConfig holds the keyword router settings.
type RoutingConfig struct {
	Strategy    string            `yaml:"strategy"`     // "first_match" or "most_hits"
	UseRegistry bool              `yaml:"use_registry"` // try tag overlap before the default rule
	Default     RouteRuleConfig   `yaml:"default"`
	Rules       []RouteRuleConfig `yaml:"rules"`
}

// RouteRuleConfig maps a keyword set to an agent category. Rule order is priority order.
type RouteRuleConfig struct {
	Category  string   `yaml:"category"`
	AgentName string   `yaml:"agent_name"`
	Keywords  []string `yaml:"keywords,omitempty"`
}

// AgentsConfig holds the built-in agent service host settings.
type AgentsConfig struct {
	Host          string              `yaml:"host"`
	AdvertiseHost string              `yaml:"advertise_host"` // host written into served cards
	Advertise     bool                `yaml:"advertise"`      // announce over mDNS
	HireBasePort  int                 `yaml:"hire_base_port"` // first port for hired agents; 0 picks free ports
	Roster        []RosterAgentConfig `yaml:"roster"`
}

// RosterAgentConfig enables one built-in agent on a port.
type RosterAgentConfig struct {
	Type    string `yaml:"type"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// DelegationConfig holds director/project-manager settings.
type DelegationConfig struct {
	WorkspaceRoot      string `yaml:"workspace_root"`
	OutputFile         string `yaml:"output_file"`
	ManagerName        string `yaml:"manager_name"`
	ManagerDescription string `yaml:"manager_description"`
}

// StoreConfig holds conversation store settings.
type StoreConfig struct {
	Driver    string        `yaml:"driver"` // "memory" or "sqlite"
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// SchedulerConfig holds background task settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
	OneShot  bool   `yaml:"one_shot,omitempty"`
}

// Known agent types served by the roster and addressed by routing rules.
const (
	AgentSecretary      = "secretary"
	AgentHiringManager  = "hiring_manager"
	AgentDataAnalyst    = "data_analyst"
	AgentResearcher     = "researcher"
	AgentContentCreator = "content_creator"
	AgentOrchestrator   = "orchestrator"
)

// defaultPorts lists the conventional port of each built-in agent.
var defaultPorts = []struct {
	agentType string
	port      int
}{
	{AgentSecretary, 10020},
	{AgentHiringManager, 10021},
	{AgentDataAnalyst, 10022},
	{AgentResearcher, 10023},
	{AgentContentCreator, 10024},
	{AgentOrchestrator, 10025},
}

// defaultDataDir returns the persistent data directory under $HOME/.agenthq.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".agenthq")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()

	endpoints := make(map[string]string, len(defaultPorts))
	roster := make([]RosterAgentConfig, 0, len(defaultPorts))
	for _, p := range defaultPorts {
		endpoints[p.agentType] = fmt.Sprintf("http://127.0.0.1:%d", p.port)
		roster = append(roster, RosterAgentConfig{Type: p.agentType, Port: p.port, Enabled: true})
	}

	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Addr:        "127.0.0.1:8000",
			CORSOrigins: []string{"http://localhost:3000"},
			WebSocket:   true,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Transport: TransportConfig{
			Timeout:        60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			PoolTimeout:    5 * time.Second,
			StatusTimeout:  5 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Registry: RegistryConfig{
			WellKnownPath:     "/.well-known/agent-card.json",
			RegisterEndpoints: true,
			HealthConcurrency: 8,
			Discovery: DiscoveryConfig{
				Service:     "_a2a._tcp",
				Domain:      "local.",
				ScanTimeout: 3 * time.Second,
			},
		},
		Routing: RoutingConfig{
			Strategy: "first_match",
			Default:  RouteRuleConfig{Category: AgentSecretary, AgentName: "Executive Secretary"},
			Rules: []RouteRuleConfig{
				{Category: AgentHiringManager, AgentName: "Hiring Manager",
					Keywords: []string{"hire", "create agent", "new agent", "add agent"}},
				{Category: AgentDataAnalyst, AgentName: "Data Analyst",
					Keywords: []string{"analyze", "data", "statistics", "metrics", "report"}},
				{Category: AgentResearcher, AgentName: "Researcher",
					Keywords: []string{"research", "find", "investigate", "fact check", "study"}},
				{Category: AgentContentCreator, AgentName: "Content Creator",
					Keywords: []string{"write", "content", "blog", "article", "marketing", "copy"}},
				{Category: AgentOrchestrator, AgentName: "Master Orchestrator",
					Keywords: []string{"complex", "multiple", "orchestrate", "coordinate"}},
			},
		},
		Endpoints: endpoints,
		Agents: AgentsConfig{
			Host:          "127.0.0.1",
			AdvertiseHost: "127.0.0.1",
			HireBasePort:  10030,
			Roster:        roster,
		},
		Delegation: DelegationConfig{
			WorkspaceRoot:      filepath.Join(dataDir, "workspace"),
			OutputFile:         "pm_generated_script.py",
			ManagerName:        "WebApp_PM",
			ManagerDescription: "Manages web app development projects.",
		},
		Store: StoreConfig{
			Driver:    "memory",
			Path:      filepath.Join(dataDir, "conversations.db"),
			Retention: 30 * 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "agent-health", Schedule: "5m", Action: "health_sweep"},
				{Name: "conversation-retention", Schedule: "0 3 * * *", Action: "conversation_retention"},
			},
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// yaml.v3 merges into existing maps, so a file that lists endpoints replaces the defaults.
	var probe struct {
		Endpoints map[string]string `yaml:"endpoints"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if probe.Endpoints != nil {
		cfg.Endpoints = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// endpointEnvPrefix prefixes per-agent endpoint overrides, e.g. AGENTHQ_ENDPOINT_DATA_ANALYST.
const endpointEnvPrefix = "AGENTHQ_ENDPOINT_"

// ApplyEnvOverrides maps AGENTHQ_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTHQ_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTHQ_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTHQ_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("AGENTHQ_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTHQ_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENTHQ_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("AGENTHQ_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("AGENTHQ_CORS_ORIGINS"); v != "" {
		cfg.Gateway.CORSOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv("AGENTHQ_TRANSPORT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.Timeout = d
		}
	}
	if v := os.Getenv("AGENTHQ_REGISTRY_SEED_URLS"); v != "" {
		cfg.Registry.SeedURLs = splitAndTrim(v, ",")
	}
	if v := os.Getenv("AGENTHQ_REGISTRY_MDNS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Registry.Discovery.MDNS = b
		}
	}
	if v := os.Getenv("AGENTHQ_ROUTING_STRATEGY"); v != "" {
		cfg.Routing.Strategy = v
	}
	if v := os.Getenv("AGENTHQ_AGENTS_HOST"); v != "" {
		cfg.Agents.Host = v
	}
	if v := os.Getenv("AGENTHQ_AGENTS_ADVERTISE_HOST"); v != "" {
		cfg.Agents.AdvertiseHost = v
	}
	if v := os.Getenv("AGENTHQ_WORKSPACE_ROOT"); v != "" {
		cfg.Delegation.WorkspaceRoot = v
	}
	if v := os.Getenv("AGENTHQ_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("AGENTHQ_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, endpointEnvPrefix) || value == "" {
			continue
		}
		if cfg.Endpoints == nil {
			cfg.Endpoints = make(map[string]string)
		}
		agentType := strings.ToLower(strings.TrimPrefix(name, endpointEnvPrefix))
		cfg.Endpoints[agentType] = value
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element, dropping empties.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
