//go:build mdns

package main

import (
	"log/slog"

	"agenthq/internal/infra/config"
	"agenthq/internal/usecase/discovery"
)

func buildDiscoverer(dc config.DiscoveryConfig, logger *slog.Logger) discovery.Discoverer {
	return discovery.NewMDNS(dc.Service, dc.Domain, dc.ScanTimeout, logger)
}

func buildAdvertiser(dc config.DiscoveryConfig, logger *slog.Logger) discovery.Advertiser {
	return discovery.NewMDNS(dc.Service, dc.Domain, dc.ScanTimeout, logger)
}
