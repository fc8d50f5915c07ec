package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"agenthq/internal/adapter/store"
	"agenthq/internal/infra/config"
)

type fakeProber map[string]bool

func (f fakeProber) Probe(_ context.Context, baseURL string) bool { return f[baseURL] }

func TestCheckConfigFile_Missing(t *testing.T) {
	fn := checkConfigFile(filepath.Join(t.TempDir(), "config.yaml"), nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	fn := checkConfigFile("config.yaml", &config.ValidationError{Errors: []string{"bad port"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("gateway:\n  addr: 127.0.0.1:9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckEndpoints(t *testing.T) {
	cfg := &config.Config{Endpoints: map[string]string{
		"secretary":    "http://a",
		"data_analyst": "http://b",
	}}

	tests := []struct {
		name   string
		prober fakeProber
		want   CheckStatus
	}{
		{"all up", fakeProber{"http://a": true, "http://b": true}, StatusPass},
		{"one down", fakeProber{"http://a": true}, StatusWarn},
		{"all down", fakeProber{}, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkEndpoints(tt.prober)(cfg)
			if result.Status != tt.want {
				t.Errorf("got %s (%s), want %s", result.Status, result.Message, tt.want)
			}
		})
	}
}

func TestCheckEndpoints_NoConfig(t *testing.T) {
	if r := checkEndpoints(fakeProber{})(nil); r.Status != StatusFail {
		t.Errorf("expected FAIL for nil config, got %s", r.Status)
	}
	if r := checkEndpoints(fakeProber{})(&config.Config{}); r.Status != StatusFail {
		t.Errorf("expected FAIL for no endpoints, got %s", r.Status)
	}
}

func TestCheckRoutingRules(t *testing.T) {
	cfg := config.Defaults()
	if r := checkRoutingRules(cfg); r.Status != StatusPass {
		t.Errorf("defaults: got %s: %s", r.Status, r.Message)
	}

	delete(cfg.Endpoints, "researcher")
	r := checkRoutingRules(cfg)
	if r.Status != StatusWarn {
		t.Errorf("expected WARN, got %s", r.Status)
	}
	if r.Message != "no endpoint for routed categories: researcher" {
		t.Errorf("unexpected message %q", r.Message)
	}
}

func TestCheckWorkspace(t *testing.T) {
	cfg := &config.Config{Delegation: config.DelegationConfig{WorkspaceRoot: filepath.Join(t.TempDir(), "ws")}}
	if r := checkWorkspace(cfg); r.Status != StatusPass {
		t.Errorf("got %s: %s", r.Status, r.Message)
	}
	entries, err := os.ReadDir(cfg.Delegation.WorkspaceRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestCheckStore(t *testing.T) {
	mem := &config.Config{Store: config.StoreConfig{Driver: store.DriverMemory}}
	if r := checkStore(mem); r.Status != StatusPass {
		t.Errorf("memory: got %s: %s", r.Status, r.Message)
	}

	lite := &config.Config{Store: config.StoreConfig{
		Driver: store.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "db", "conversations.db"),
	}}
	if r := checkStore(lite); r.Status != StatusPass {
		t.Errorf("sqlite: got %s: %s", r.Status, r.Message)
	}

	bad := &config.Config{Store: config.StoreConfig{Driver: "redis"}}
	if r := checkStore(bad); r.Status != StatusFail {
		t.Errorf("unknown driver: got %s", r.Status)
	}
}

func TestCheckGatewayAuth(t *testing.T) {
	tests := []struct {
		name string
		gw   config.GatewayConfig
		want CheckStatus
	}{
		{"loopback open", config.GatewayConfig{Addr: "127.0.0.1:8000"}, StatusPass},
		{"public open", config.GatewayConfig{Addr: "0.0.0.0:8000"}, StatusWarn},
		{"public with token", config.GatewayConfig{
			Addr: "0.0.0.0:8000",
			Auth: config.AuthConfig{Tokens: []config.TokenConfig{{Token: "t", Name: "web"}}},
		}, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := checkGatewayAuth(&config.Config{Gateway: tt.gw}); r.Status != tt.want {
				t.Errorf("got %s (%s), want %s", r.Status, r.Message, tt.want)
			}
		})
	}
}

func TestStatusIcon(t *testing.T) {
	if got := statusIcon(StatusFail); got != "[FAIL]" {
		t.Errorf("got %q", got)
	}
	if got := statusIcon(CheckStatus("other")); got != "[????]" {
		t.Errorf("got %q", got)
	}
}
