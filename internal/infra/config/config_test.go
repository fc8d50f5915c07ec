package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Transport.Timeout != 60*time.Second {
		t.Errorf("Transport.Timeout = %v, want 60s", cfg.Transport.Timeout)
	}
	if cfg.Transport.ConnectTimeout != 10*time.Second {
		t.Errorf("Transport.ConnectTimeout = %v, want 10s", cfg.Transport.ConnectTimeout)
	}
	if got := cfg.Endpoints[AgentSecretary]; got != "http://127.0.0.1:10020" {
		t.Errorf("Endpoints[secretary] = %q", got)
	}
	if got := cfg.Endpoints[AgentOrchestrator]; got != "http://127.0.0.1:10025" {
		t.Errorf("Endpoints[orchestrator] = %q", got)
	}
	if len(cfg.Routing.Rules) != 5 {
		t.Fatalf("Routing.Rules = %d, want 5", len(cfg.Routing.Rules))
	}
	if cfg.Routing.Rules[0].Category != AgentHiringManager {
		t.Errorf("first rule = %q, want %q", cfg.Routing.Rules[0].Category, AgentHiringManager)
	}
	if cfg.Routing.Default.AgentName != "Executive Secretary" {
		t.Errorf("Default.AgentName = %q", cfg.Routing.Default.AgentName)
	}
	if cfg.Gateway.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("CORSOrigins = %v", cfg.Gateway.CORSOrigins)
	}
	if cfg.Agents.HireBasePort != 10030 {
		t.Errorf("Agents.HireBasePort = %d, want 10030", cfg.Agents.HireBasePort)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-agenthq-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry.WellKnownPath != "/.well-known/agent-card.json" {
		t.Errorf("expected defaults, got WellKnownPath=%q", cfg.Registry.WellKnownPath)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logger:
  level: "debug"
transport:
  timeout: 30s
routing:
  strategy: most_hits
  rules:
    - category: researcher
      agent_name: Researcher
      keywords: ["research"]
endpoints:
  researcher: "http://10.0.0.5:9000"
store:
  driver: sqlite
  path: "` + filepath.Join(dir, "c.db") + `"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("Transport.Timeout = %v, want 30s", cfg.Transport.Timeout)
	}
	if cfg.Routing.Strategy != "most_hits" {
		t.Errorf("Routing.Strategy = %q", cfg.Routing.Strategy)
	}
	if len(cfg.Routing.Rules) != 1 {
		t.Errorf("Routing.Rules = %d, want 1 (file replaces defaults)", len(cfg.Routing.Rules))
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints["researcher"] != "http://10.0.0.5:9000" {
		t.Errorf("Endpoints = %v, want only researcher", cfg.Endpoints)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	// Unset sections keep their defaults.
	if cfg.Transport.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want default 10s", cfg.Transport.ConnectTimeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("logger: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected permission error for world-writable config")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Errorf("err type = %T, want *ValidationError", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTHQ_LOGGER_LEVEL", "warn")
	t.Setenv("AGENTHQ_GATEWAY_ADDR", "0.0.0.0:9000")
	t.Setenv("AGENTHQ_GATEWAY_TOKEN", "s3cret")
	t.Setenv("AGENTHQ_CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("AGENTHQ_TRANSPORT_TIMEOUT", "15s")
	t.Setenv("AGENTHQ_REGISTRY_SEED_URLS", "http://h1:1,http://h2:2")
	t.Setenv("AGENTHQ_REGISTRY_MDNS", "true")
	t.Setenv("AGENTHQ_STORE_DRIVER", "sqlite")
	t.Setenv("AGENTHQ_ENDPOINT_DATA_ANALYST", "http://analyst.internal:8080")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "warn")
	}
	if cfg.Gateway.Addr != "0.0.0.0:9000" {
		t.Errorf("Gateway.Addr = %q", cfg.Gateway.Addr)
	}
	if len(cfg.Gateway.Auth.Tokens) != 1 || cfg.Gateway.Auth.Tokens[0].Token != "s3cret" {
		t.Errorf("Auth.Tokens = %+v", cfg.Gateway.Auth.Tokens)
	}
	if len(cfg.Gateway.CORSOrigins) != 2 || cfg.Gateway.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.Gateway.CORSOrigins)
	}
	if cfg.Transport.Timeout != 15*time.Second {
		t.Errorf("Transport.Timeout = %v", cfg.Transport.Timeout)
	}
	if len(cfg.Registry.SeedURLs) != 2 {
		t.Errorf("SeedURLs = %v", cfg.Registry.SeedURLs)
	}
	if !cfg.Registry.Discovery.MDNS {
		t.Error("Discovery.MDNS should be true")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	if got := cfg.Endpoints["data_analyst"]; got != "http://analyst.internal:8080" {
		t.Errorf("Endpoints[data_analyst] = %q", got)
	}
}

func TestApplyEnvOverridesBadDurationIgnored(t *testing.T) {
	t.Setenv("AGENTHQ_TRANSPORT_TIMEOUT", "soon")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Transport.Timeout != 60*time.Second {
		t.Errorf("Transport.Timeout = %v, want unchanged 60s", cfg.Transport.Timeout)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a , b,,c ", ",")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitAndTrim = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitAndTrim[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
