package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agenthq/internal/adapter/a2a"
	"agenthq/internal/adapter/mcpserver"
	"agenthq/internal/infra/config"
	"agenthq/internal/infra/logger"
	"agenthq/internal/infra/tracer"
)

const version = "0.3.0"

func main() {
	// .env is optional; real env vars win over it.
	_ = godotenv.Load()

	args := commandArgs(os.Args[1:])
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "--help", "-h", "help":
		showUsage()
		return
	case "serve":
		err = runServe()
	case "agents":
		err = runAgents()
	case "delegate":
		err = runDelegate(args)
	case "send":
		err = runSend(args)
	case "mcp":
		err = runMCP()
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'agenthq --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agenthq - agent registry, keyword router and delegation hierarchy

USAGE:
    agenthq [COMMAND] [FLAGS]

COMMANDS:
    serve                 Run the chat backend (default)
    agents                Run the built-in agent servers
    delegate "<goal>"     Run a goal through the director and project manager
    send <url> "<msg>"    Send one message to an agent and print the reply
    mcp                   Serve route_message, list_agents and delegate_goal over MCP stdio
    doctor                Check config, agent endpoints and storage

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (missing file means defaults)
    Environment: AGENTHQ_* variables override config, .env is loaded if present
    Endpoints:   AGENTHQ_ENDPOINT_<TYPE>=http://host:port

EXAMPLES:
    agenthq agents &                      # start the roster on ports 10020-10025
    agenthq                               # start the backend on 127.0.0.1:8000
    agenthq send http://127.0.0.1:10022 "analyze 10, 20, 30"
    agenthq delegate "generate and save a python script"`)
}

// commandArgs drops --config and its value from args.
func commandArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "--config="):
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func configPath() string {
	return configPathFrom(os.Args[1:], os.Getenv("AGENTHQ_CONFIG"))
}

// configPathFrom resolves the config file: --config flag, then env, then ./config.yaml.
func configPathFrom(args []string, env string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if env != "" {
		return env
	}
	return "config.yaml"
}

// bootstrap loads config and sets up logging and tracing. The returned
// cleanup flushes both.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, nil, fmt.Errorf("tracer: %w", err)
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerShutdown(shutdownCtx)
		logCloser()
	}
	return cfg, log, cleanup, nil
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	core, err := initCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	rt, err := initRuntime(ctx, cfg, core, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Error("runtime cleanup error", "error", err)
		}
	}()

	// Seeding talks to agents that may still be starting, so it runs in the background.
	go func() {
		seeds := seedURLs(cfg)
		if len(seeds) == 0 {
			return
		}
		results := core.Registry.RegisterAll(ctx, seeds)
		var ok int
		for _, good := range results {
			if good {
				ok++
			}
		}
		log.Info("registry seeded", "urls", len(seeds), "active", ok)
	}()

	if rt.Scheduler != nil {
		if err := rt.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	log.Info("agenthq starting",
		"version", version,
		"addr", cfg.Gateway.Addr,
		"endpoints", len(cfg.Endpoints),
		"store", cfg.Store.Driver,
		"routing", cfg.Routing.Strategy,
	)
	if err := rt.Gateway.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

func runDelegate(args []string) error {
	goal := strings.TrimSpace(strings.Join(args, " "))
	if goal == "" {
		return errors.New(`usage: agenthq delegate "<goal>"`)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	director, err := newDirector(cfg.Delegation, nil, log)
	if err != nil {
		return err
	}
	res, report := director.DelegateWithReport(ctx, goal)
	for _, step := range report.Steps {
		fmt.Printf("[%s] %s: %s\n", step.Key, step.Agent, firstLine(step.Output))
	}
	fmt.Println(res.Text())
	if res.Failed() {
		return res.Err
	}
	return nil
}

func runSend(args []string) error {
	if len(args) < 2 {
		return errors.New(`usage: agenthq send <url> "<message>"`)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	client := a2a.NewClient(transportConfig(cfg), logger.Component(log, "a2a"))
	fmt.Println(client.SendText(ctx, args[0], strings.Join(args[1:], " ")))
	return nil
}

func runMCP() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, log, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	core, err := initCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	if seeds := seedURLs(cfg); len(seeds) > 0 {
		core.Registry.RegisterAll(ctx, seeds)
	}

	srv := mcpserver.New("agenthq", version, mcpserver.Deps{
		Router:    core.Chat,
		Catalog:   core.Registry,
		Delegator: core.Director,
	}, logger.Component(log, "mcp"))
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
