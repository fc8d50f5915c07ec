//go:build !mdns

package main

import (
	"log/slog"

	"agenthq/internal/infra/config"
	"agenthq/internal/usecase/discovery"
)

func buildDiscoverer(_ config.DiscoveryConfig, logger *slog.Logger) discovery.Discoverer {
	logger.Warn("mdns discovery requested but binary built without the mdns tag")
	return discovery.Noop{}
}

func buildAdvertiser(_ config.DiscoveryConfig, logger *slog.Logger) discovery.Advertiser {
	logger.Warn("mdns advertising requested but binary built without the mdns tag")
	return discovery.Noop{}
}
