package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthq/internal/domain"
	"agenthq/internal/infra/logger"
	"agenthq/internal/usecase/eventbus"
	"agenthq/internal/usecase/registry"
)

type staticDiscoverer struct {
	urls []string
	err  error
}

func (s staticDiscoverer) Scan(context.Context) ([]string, error) { return s.urls, s.err }

type cardFetcher map[string]string // url -> agent name

func (f cardFetcher) FetchDescriptor(_ context.Context, url string) (domain.AgentDescriptor, error) {
	name, ok := f[url]
	if !ok {
		return domain.AgentDescriptor{}, domain.ErrAgentUnreachable
	}
	return domain.AgentDescriptor{Name: name, URL: url}, nil
}

func TestService_ScanRegistersNewAgents(t *testing.T) {
	fetch := cardFetcher{
		"http://10.0.0.5:10023": "Researcher Agent",
		"http://10.0.0.6:10024": "Content Creator Agent",
	}
	reg := registry.New(fetch, nil, registry.Config{}, logger.Discard())
	reg.Register(context.Background(), "http://10.0.0.5:10023")

	bus := eventbus.New(logger.Discard())
	found := make(chan domain.Event, 4)
	bus.Subscribe(domain.EventAgentDiscovered, func(_ context.Context, e domain.Event) { found <- e })

	svc := NewService(staticDiscoverer{urls: []string{
		"http://10.0.0.5:10023/",
		"http://10.0.0.6:10024",
		"http://10.0.0.6:10024",
		"",
	}}, reg, bus, logger.Discard())

	added, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, domain.AgentID("Content Creator Agent", "http://10.0.0.6:10024"), added[0])
	assert.Equal(t, 2, reg.Len())

	bus.Close()
	require.Len(t, found, 1)
	e := <-found
	assert.Contains(t, string(e.Payload), "Content Creator Agent")
}

func TestService_ScanSkipsUnreachable(t *testing.T) {
	reg := registry.New(cardFetcher{}, nil, registry.Config{}, logger.Discard())
	svc := NewService(staticDiscoverer{urls: []string{"http://10.0.0.9:1"}}, reg, nil, logger.Discard())

	added, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestService_ScanError(t *testing.T) {
	reg := registry.New(cardFetcher{}, nil, registry.Config{}, logger.Discard())
	svc := NewService(staticDiscoverer{err: errors.New("no multicast")}, reg, nil, logger.Discard())
	_, err := svc.Scan(context.Background())
	assert.ErrorContains(t, err, "no multicast")
}

func TestNoop(t *testing.T) {
	urls, err := Noop{}.Scan(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, urls)
	assert.NoError(t, Noop{}.Advertise(context.Background(), "x", 1, nil))
}

func TestParseTXT(t *testing.T) {
	m := ParseTXT([]string{"key1=val1", "novalue", "key3=val=with=equals"})
	assert.Equal(t, map[string]string{"key1": "val1", "key3": "val=with=equals"}, m)
}
