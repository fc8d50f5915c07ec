package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"agenthq/internal/domain"
)

// hosted is one agent server bound to its own port.
type hosted struct {
	name     string
	addr     string
	server   *Server
	listener net.Listener
	httpSrv  *http.Server
	started  bool
}

// Host runs several agent servers, each on its own port.
type Host struct {
	advertiseHost string
	logger        *slog.Logger

	mu     sync.Mutex
	agents []*hosted
}

// NewHost creates a host. advertiseHost fills the url of cards that have none.
func NewHost(advertiseHost string, logger *slog.Logger) *Host {
	if advertiseHost == "" {
		advertiseHost = "127.0.0.1"
	}
	return &Host{advertiseHost: advertiseHost, logger: logger}
}

// Add registers srv to be served on addr. Must be called before Listen.
func (h *Host) Add(name, addr string, srv *Server) {
	h.mu.Lock()
	h.agents = append(h.agents, &hosted{name: name, addr: addr, server: srv})
	h.mu.Unlock()
}

// Listen binds every added server. On failure the listeners opened so far are closed.
func (h *Host) Listen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, a := range h.agents {
		if a.listener != nil {
			continue
		}
		if err := h.bind(a); err != nil {
			for _, prev := range h.agents[:i] {
				if !prev.started && prev.listener != nil {
					prev.listener.Close()
					prev.listener = nil
					prev.httpSrv = nil
				}
			}
			return err
		}
	}
	return nil
}

func (h *Host) bind(a *hosted) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("agent %s listen %s: %w", a.name, a.addr, err)
	}
	a.listener = ln
	port := ln.Addr().(*net.TCPAddr).Port
	a.server.setURL("http://" + net.JoinHostPort(h.advertiseHost, strconv.Itoa(port)))
	a.httpSrv = &http.Server{Handler: a.server, ReadHeaderTimeout: 10 * time.Second}
	return nil
}

// Launch binds and starts serving srv right away. It is used for agents
// created while the host is already running. Returns the advertised url.
func (h *Host) Launch(name, addr string, srv *Server) (string, error) {
	a := &hosted{name: name, addr: addr, server: srv}
	if err := h.bind(a); err != nil {
		return "", err
	}
	a.started = true
	h.mu.Lock()
	h.agents = append(h.agents, a)
	h.mu.Unlock()

	h.logger.Info("agent server launched", "agent", name, "addr", a.listener.Addr().String(), "url", srv.Card().URL)
	go func() {
		if err := a.httpSrv.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("agent server stopped", "agent", name, "error", err)
		}
	}()
	return srv.Card().URL, nil
}

// Serve serves all bound agents until ctx is cancelled, then shuts them down.
func (h *Host) Serve(ctx context.Context) error {
	h.mu.Lock()
	var agents []*hosted
	for _, a := range h.agents {
		if a.listener == nil {
			h.mu.Unlock()
			return fmt.Errorf("agent %s: not listening", a.name)
		}
		if !a.started {
			a.started = true
			agents = append(agents, a)
		}
	}
	h.mu.Unlock()

	errCh := make(chan error, len(agents))
	for _, a := range agents {
		h.logger.Info("agent server started", "agent", a.name, "addr", a.listener.Addr().String(), "url", a.server.Card().URL)
		go func(a *hosted) {
			if err := a.httpSrv.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("agent %s serve: %w", a.name, err)
			}
		}(a)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	if err := h.Stop(context.Background()); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Start binds and serves. Blocks until ctx is cancelled.
func (h *Host) Start(ctx context.Context) error {
	if err := h.Listen(); err != nil {
		return err
	}
	return h.Serve(ctx)
}

// Stop gracefully shuts down every agent server.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	agents := append([]*hosted(nil), h.agents...)
	h.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var errs []error
	for _, a := range agents {
		if a.httpSrv == nil || a.listener == nil {
			continue
		}
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("agent %s shutdown: %w", a.name, err))
		}
		// Shutdown only closes listeners that reached Serve.
		a.listener.Close()
	}
	return errors.Join(errs...)
}

// BoundAddrs maps agent name to bound address. Only valid after Listen.
func (h *Host) BoundAddrs() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.agents))
	for _, a := range h.agents {
		if a.listener != nil {
			out[a.name] = a.listener.Addr().String()
		}
	}
	return out
}

// HostedAgent describes one served agent.
type HostedAgent struct {
	Name       string
	Addr       string // bound address, empty before Listen
	Descriptor domain.AgentDescriptor
}

// Agents returns every hosted agent, in the order added.
func (h *Host) Agents() []HostedAgent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HostedAgent, 0, len(h.agents))
	for _, a := range h.agents {
		ha := HostedAgent{Name: a.name, Descriptor: a.server.Card()}
		if a.listener != nil {
			ha.Addr = a.listener.Addr().String()
		}
		out = append(out, ha)
	}
	return out
}
