package discovery

import "context"

// Noop is used when mDNS support is not compiled in.
type Noop struct{}

// Scan finds nothing.
func (Noop) Scan(context.Context) ([]string, error) { return nil, nil }

// Advertise returns immediately.
func (Noop) Advertise(context.Context, string, int, map[string]string) error { return nil }
