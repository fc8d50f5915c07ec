//go:build mdns

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	DefaultService     = "_a2a._tcp"
	DefaultDomain      = "local."
	defaultScanTimeout = 3 * time.Second
)

// MDNS browses and advertises agent services over mDNS/DNS-SD.
type MDNS struct {
	service string
	domain  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMDNS creates an mDNS discoverer. Empty values take the defaults.
func NewMDNS(service, domain string, timeout time.Duration, logger *slog.Logger) *MDNS {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	return &MDNS{service: service, domain: domain, timeout: timeout, logger: logger}
}

// Scan browses for the configured service type until the scan timeout.
func (m *MDNS) Scan(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu   sync.Mutex
		urls []string
		wg   sync.WaitGroup
	)

	scanCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			u := entryURL(entry)
			if u == "" {
				continue
			}
			mu.Lock()
			urls = append(urls, u)
			mu.Unlock()
			m.logger.Debug("mdns entry", "instance", entry.Instance, "url", u)
		}
	}()

	if err := resolver.Browse(scanCtx, m.service, m.domain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), urls...), nil
}

// Advertise registers name on port with meta as TXT records and blocks until
// ctx is cancelled.
func (m *MDNS) Advertise(ctx context.Context, name string, port int, meta map[string]string) error {
	txt := make([]string, 0, len(meta))
	for k, v := range meta {
		txt = append(txt, k+"="+v)
	}
	server, err := zeroconf.Register(name, m.service, m.domain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	m.logger.Info("mdns advertising", "name", name, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// entryURL prefers an explicit "url" TXT record, then the first address.
func entryURL(entry *zeroconf.ServiceEntry) string {
	if u := ParseTXT(entry.Text)["url"]; u != "" {
		return u
	}
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return ""
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(entry.Port))
}
