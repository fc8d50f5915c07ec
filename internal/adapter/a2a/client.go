package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"agenthq/internal/domain"
	"agenthq/internal/infra/tracer"
)

// NoResponse is returned by Send when the agent answered with an empty result.
const NoResponse = "No response received from the agent."

const maxBodySize = 4 << 20

// Default transport settings.
const (
	defaultTimeout        = 60 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultPoolTimeout    = 5 * time.Second
	defaultStatusTimeout  = 5 * time.Second

	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the per-agent circuit breaker.
type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

// Config holds client timeouts. Zero values fall back to defaults.
type Config struct {
	Timeout        time.Duration // whole request
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // response headers
	WriteTimeout   time.Duration
	PoolTimeout    time.Duration // idle pooled connections
	StatusTimeout  time.Duration // liveness probes
	WellKnownPath  string
	Breaker        BreakerConfig
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = c.Timeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = defaultPoolTimeout
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = defaultStatusTimeout
	}
	if c.WellKnownPath == "" {
		c.WellKnownPath = DefaultWellKnownPath
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = defaultCBMaxFailures
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = defaultCBTimeout
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = defaultCBInterval
	}
	return c
}

// Client talks to remote agents. Descriptors are cached per base URL for the
// life of the client.
type Client struct {
	cfg    Config
	http   *http.Client
	probe  *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	cards    map[string]domain.AgentDescriptor
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewClient creates a client with pooled transport built from cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	transport := newTransport(cfg)
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		probe:    &http.Client{Transport: transport, Timeout: cfg.StatusTimeout},
		logger:   logger,
		cards:    make(map[string]domain.AgentDescriptor),
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

func newTransport(cfg Config) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &writeDeadlineConn{Conn: conn, timeout: cfg.WriteTimeout}, nil
		},
		ResponseHeaderTimeout: cfg.ReadTimeout,
		IdleConnTimeout:       cfg.PoolTimeout,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
	}
}

// writeDeadlineConn bounds every write on the connection.
type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeDeadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// FetchDescriptor GETs and validates the descriptor at baseURL. It bypasses the cache.
func (c *Client) FetchDescriptor(ctx context.Context, baseURL string) (domain.AgentDescriptor, error) {
	cardURL, err := CardURL(baseURL, c.cfg.WellKnownPath)
	if err != nil {
		return domain.AgentDescriptor{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AgentDescriptor{}, classifyNetErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.AgentDescriptor{}, fmt.Errorf("%w: GET %s: %d", domain.ErrAgentBadStatus, cardURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return domain.AgentDescriptor{}, classifyNetErr(err)
	}
	return DecodeDescriptor(body)
}

// Descriptor returns the cached descriptor for baseURL, fetching it on first use.
// Failed fetches are not cached.
func (c *Client) Descriptor(ctx context.Context, baseURL string) (domain.AgentDescriptor, error) {
	key := agentKey(baseURL)
	c.mu.Lock()
	d, ok := c.cards[key]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	d, err := c.FetchDescriptor(ctx, key)
	if err != nil {
		return domain.AgentDescriptor{}, err
	}
	c.mu.Lock()
	c.cards[key] = d
	c.mu.Unlock()
	return d, nil
}

// ForgetDescriptor drops the cached descriptor for baseURL so the next Send
// fetches it again. The registry calls it when an agent is (re)registered or removed.
func (c *Client) ForgetDescriptor(baseURL string) {
	c.mu.Lock()
	delete(c.cards, agentKey(baseURL))
	c.mu.Unlock()
}

// agentKey is the cache and breaker key for an agent base URL.
func agentKey(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

// Send delivers text to the agent at baseURL and returns the reply text.
// The message is posted to the descriptor's url, or baseURL when it has none.
func (c *Client) Send(ctx context.Context, baseURL, text string) (reply string, err error) {
	ctx, span := tracer.StartSpan(ctx, "a2a.send", tracer.StringAttr("agent.url", baseURL))
	defer func() { tracer.Finish(span, err) }()

	card, err := c.Descriptor(ctx, baseURL)
	if err != nil {
		return "", domain.WrapOp("Client.Send", err)
	}
	endpoint := strings.TrimSpace(card.URL)
	if endpoint == "" {
		endpoint = baseURL
	}

	call := func() (string, error) { return c.post(ctx, endpoint, text) }
	if !c.cfg.Breaker.Enabled {
		reply, err = call()
		return reply, domain.WrapOp("Client.Send", err)
	}

	reply, err = c.breaker(baseURL).Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", domain.NewDomainError("Client.Send", domain.ErrCircuitOpen, baseURL)
	}
	return reply, domain.WrapOp("Client.Send", err)
}

// SendText is Send with failures converted into a displayable apology.
func (c *Client) SendText(ctx context.Context, baseURL, text string) string {
	reply, err := c.Send(ctx, baseURL, text)
	if err != nil {
		c.logger.Error("agent send failed", "url", baseURL, "error", err)
		return domain.Apology(err, domain.AgentLabel(baseURL))
	}
	return reply
}

// Probe reports whether the agent's descriptor endpoint answers 200.
func (c *Client) Probe(ctx context.Context, baseURL string) bool {
	cardURL, err := CardURL(baseURL, c.cfg.WellKnownPath)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) breaker(baseURL string) *gobreaker.CircuitBreaker[string] {
	key := agentKey(baseURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}
	maxFailures := c.cfg.Breaker.MaxFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "agent:" + key,
		MaxRequests: 1, // one probe while half-open
		Interval:    c.cfg.Breaker.Interval,
		Timeout:     c.cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// An agent that answered with a protocol error is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrAgentProtocol)
		},
	})
	c.breakers[key] = cb
	return cb
}

func (c *Client) post(ctx context.Context, endpoint, text string) (string, error) {
	rpcReq, err := newRequest(MethodMessageSend, MessageSendParams{Message: NewUserMessage(text)})
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyNetErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: POST %s: %d", domain.ErrAgentBadStatus, endpoint, resp.StatusCode)
	}

	payload, err := readFirstPayload(resp)
	if err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return NoResponse, nil
	}

	var rpcResp Response
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrAgentProtocol, err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAgentProtocol, rpcResp.Error)
	}
	return ExtractText(rpcResp.Result), nil
}

// readFirstPayload returns the JSON body, or the data of the first event when
// the agent streamed its answer.
func readFirstPayload(resp *http.Response) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	body := io.LimitReader(resp.Body, maxBodySize)
	if mediaType != "text/event-stream" {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, classifyNetErr(err)
		}
		return bytes.TrimSpace(raw), nil
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxBodySize)
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				break
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil && len(data) == 0 {
		return nil, classifyNetErr(err)
	}
	return []byte(strings.Join(data, "\n")), nil
}

// ExtractText pulls artifacts[0].parts[0].text out of a task result. Message
// results yield parts[0].text. Anything else is returned as its raw JSON.
func ExtractText(result json.RawMessage) string {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NoResponse
	}
	var shape struct {
		Artifacts []struct {
			Parts []Part `json:"parts"`
		} `json:"artifacts"`
		Parts []Part `json:"parts"`
	}
	if err := json.Unmarshal(trimmed, &shape); err == nil {
		if len(shape.Artifacts) > 0 && len(shape.Artifacts[0].Parts) > 0 && shape.Artifacts[0].Parts[0].Text != "" {
			return shape.Artifacts[0].Parts[0].Text
		}
		if len(shape.Parts) > 0 && shape.Parts[0].Text != "" {
			return shape.Parts[0].Text
		}
	}
	return string(trimmed)
}

func classifyNetErr(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w: %v", domain.ErrAgentUnreachable, domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrAgentUnreachable, err)
}
