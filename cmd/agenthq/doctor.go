package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"agenthq/internal/adapter/a2a"
	"agenthq/internal/adapter/store"
	"agenthq/internal/infra/config"
	"agenthq/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// agentProber is the slice of the a2a client the endpoint check needs.
type agentProber interface {
	Probe(ctx context.Context, baseURL string) bool
}

func runDoctor() error {
	cfgPath := configPath()

	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(cfgPath)

	var prober agentProber
	if cfg != nil {
		prober = a2a.NewClient(transportConfig(cfg), logger.Discard())
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Agent endpoints", Fn: checkEndpoints(prober)},
		{Name: "Routing rules", Fn: checkRoutingRules},
		{Name: "Workspace", Fn: checkWorkspace},
		{Name: "Conversation store", Fn: checkStore},
		{Name: "Gateway auth", Fn: checkGatewayAuth},
	}

	fmt.Println("agenthq doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded. A
// missing file is only a warning since defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and permissions (0600 or 0644)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkEndpoints probes every configured agent endpoint.
func checkEndpoints(prober agentProber) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil || prober == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
		}
		if len(cfg.Endpoints) == 0 {
			return CheckResult{
				Status:  StatusFail,
				Message: "no agent endpoints configured",
				Fix:     "Add an endpoints section or set AGENTHQ_ENDPOINT_<TYPE>",
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		names := make([]string, 0, len(cfg.Endpoints))
		for name := range cfg.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)

		var down []string
		for _, name := range names {
			if !prober.Probe(ctx, cfg.Endpoints[name]) {
				down = append(down, name)
			}
		}
		switch {
		case len(down) == 0:
			return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d agents reachable", len(names))}
		case len(down) == len(names):
			return CheckResult{
				Status:  StatusFail,
				Message: "no agent is reachable",
				Fix:     "Start the agents with 'agenthq agents'",
			}
		default:
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%d of %d agents unreachable: %s", len(down), len(names), strings.Join(down, ", ")),
			}
		}
	}
}

// checkRoutingRules warns about rules that point at categories without an endpoint.
func checkRoutingRules(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	var missing []string
	categories := []string{cfg.Routing.Default.Category}
	for _, r := range cfg.Routing.Rules {
		categories = append(categories, r.Category)
	}
	for _, c := range categories {
		if _, ok := cfg.Endpoints[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no endpoint for routed categories: " + strings.Join(missing, ", "),
			Fix:     "Messages routed there will get a no-endpoint reply",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d rules, default %s", len(cfg.Routing.Rules), cfg.Routing.Default.Category)}
}

// checkWorkspace verifies the delegation workspace is writable.
func checkWorkspace(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	root := cfg.Delegation.WorkspaceRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot create %s: %v", root, err)}
	}
	f, err := os.CreateTemp(root, ".doctor-*")
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s is not writable: %v", root, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Status: StatusPass, Message: root}
}

// checkStore opens the conversation store.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	st.Close()
	if cfg.Store.Driver == store.DriverSQLite {
		return CheckResult{Status: StatusPass, Message: "sqlite at " + cfg.Store.Path}
	}
	return CheckResult{Status: StatusPass, Message: "memory (history is lost on restart)"}
}

// checkGatewayAuth warns when a non-loopback gateway has no tokens.
func checkGatewayAuth(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.Gateway.Auth.Tokens) > 0 {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d token(s) configured", len(cfg.Gateway.Auth.Tokens))}
	}
	addr := cfg.Gateway.Addr
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return CheckResult{Status: StatusPass, Message: "open on loopback " + addr}
	}
	return CheckResult{
		Status:  StatusWarn,
		Message: "gateway on " + addr + " accepts unauthenticated requests",
		Fix:     "Add gateway.auth.tokens or set AGENTHQ_GATEWAY_TOKEN",
	}
}
