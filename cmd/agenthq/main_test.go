package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthq/internal/infra/config"
	"agenthq/internal/infra/logger"
	"agenthq/internal/usecase/scheduling"
)

func TestConfigPathFrom(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  string
		want string
	}{
		{"default", nil, "", "config.yaml"},
		{"env", nil, "/etc/agenthq.yaml", "/etc/agenthq.yaml"},
		{"flag wins", []string{"--config", "a.yaml"}, "/etc/agenthq.yaml", "a.yaml"},
		{"flag with equals", []string{"agents", "--config=b.yaml"}, "", "b.yaml"},
		{"dangling flag", []string{"--config"}, "", "config.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, configPathFrom(tt.args, tt.env))
		})
	}
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, []string{"send", "http://x", "hi"},
		commandArgs([]string{"--config", "c.yaml", "send", "http://x", "hi"}))
	assert.Equal(t, []string{"doctor"}, commandArgs([]string{"doctor", "--config=c.yaml"}))
	assert.Empty(t, commandArgs(nil))
}

func TestSeedURLs(t *testing.T) {
	cfg := &config.Config{
		Registry: config.RegistryConfig{
			SeedURLs:          []string{"http://10.0.0.5:9000/", " ", "http://127.0.0.1:10022"},
			RegisterEndpoints: true,
		},
		Endpoints: map[string]string{
			"secretary":    "http://127.0.0.1:10020",
			"data_analyst": "http://127.0.0.1:10022/",
		},
	}
	assert.Equal(t, []string{
		"http://10.0.0.5:9000",
		"http://127.0.0.1:10022",
		"http://127.0.0.1:10020",
	}, seedURLs(cfg))

	cfg.Registry.RegisterEndpoints = false
	assert.Equal(t, []string{"http://10.0.0.5:9000", "http://127.0.0.1:10022"}, seedURLs(cfg))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:3000", "app.example.com"},
		originPatterns([]string{"http://localhost:3000", "https://app.example.com", "not a url"}))
}

func TestNewKeywordRouter(t *testing.T) {
	r := newKeywordRouter(config.Defaults().Routing, logger.Discard())

	d := r.Classify("Please analyze last quarter")
	assert.True(t, d.Matched)
	assert.Equal(t, "data_analyst", d.Category)
	assert.Equal(t, "Data Analyst", d.AgentName)

	fb := r.Fallback()
	assert.Equal(t, "secretary", fb.Category)
	assert.Equal(t, "Executive Secretary", fb.AgentName)
}

func TestTransportConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Transport.Timeout = 7 * time.Second
	cfg.Transport.CircuitBreaker.MaxFailures = 2

	tc := transportConfig(cfg)
	assert.Equal(t, 7*time.Second, tc.Timeout)
	assert.Equal(t, cfg.Transport.StatusTimeout, tc.StatusTimeout)
	assert.Equal(t, "/.well-known/agent-card.json", tc.WellKnownPath)
	assert.True(t, tc.Breaker.Enabled)
	assert.Equal(t, uint32(2), tc.Breaker.MaxFailures)
}

func TestInitCoreAndRuntime(t *testing.T) {
	cfg := config.Defaults()
	cfg.Delegation.WorkspaceRoot = t.TempDir()
	cfg.Gateway.Addr = "127.0.0.1:0"

	core, err := initCore(t.Context(), cfg, logger.Discard())
	require.NoError(t, err)
	defer core.Close()

	rt, err := initRuntime(t.Context(), cfg, core, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, rt.Gateway)
	require.NotNil(t, rt.Scheduler)
	assert.Nil(t, rt.Discovery)

	_, ok := rt.Scheduler.Next("agent-health")
	assert.True(t, ok)
	_, ok = rt.Scheduler.Next("conversation-retention")
	assert.True(t, ok)

	// No agents are registered, so the sweep has nothing to do.
	require.NoError(t, rt.Scheduler.RunNow(t.Context(), scheduling.ActionHealthSweep))
	require.NoError(t, rt.Scheduler.RunNow(t.Context(), scheduling.ActionDiscoveryScan))
	require.NoError(t, rt.Scheduler.RunNow(t.Context(), scheduling.ActionConversationRetention))
	require.NoError(t, rt.Close(t.Context()))
}

func TestInitScheduler_BadTask(t *testing.T) {
	cfg := config.Defaults()
	cfg.Delegation.WorkspaceRoot = t.TempDir()
	cfg.Scheduler.Tasks = append(cfg.Scheduler.Tasks, config.ScheduledTaskConfig{
		Name: "broken", Schedule: "whenever", Action: "health_sweep",
	})

	core, err := initCore(t.Context(), cfg, logger.Discard())
	require.NoError(t, err)
	defer core.Close()

	_, err = initRuntime(t.Context(), cfg, core, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
}
