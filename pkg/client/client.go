package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/avast/retry-go"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"nakula/internal/circuitbreaker"
	"nakula/internal/ratelimit"
	"nakula/internal/rest"
	"nakula/internal/ws"
	"nakula/pkg/auth"
	"nakula/pkg/core"
)

// Client is the entry point of the library: typed REST calls through the
// request pipeline plus managed stream subscriptions behind one handle.
// Stream connections are dialed lazily, one per registered endpoint, and
// shared by every subscription on that endpoint. A Client is safe for
// concurrent use.
type Client struct {
	baseURL   string
	auth      auth.Authenticator
	reqCfg    core.RequestConfig
	streamCfg core.StreamConfig
	limiter   *ratelimit.Limiter
	breaker   *circuitbreaker.Breaker
	logger    zerolog.Logger

	pipeline *rest.Pipeline
	host     string

	mu        sync.Mutex
	closed    bool
	endpoints map[string]endpoint
	conns     map[string]*ws.Conn
}

type endpoint struct {
	url    string
	framer core.Framer
}

type Option func(*Client)

// WithBaseURL sets the REST endpoint all request paths resolve against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithAuthenticator enables signed requests.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithRequestConfig replaces the default HTTP knobs.
func WithRequestConfig(cfg core.RequestConfig) Option {
	return func(c *Client) {
		c.reqCfg = cfg
	}
}

// WithStreamConfig replaces the default knobs shared by every stream
// connection.
func WithStreamConfig(cfg core.StreamConfig) Option {
	return func(c *Client) {
		c.streamCfg = cfg
	}
}

// WithStream registers a named stream endpoint speaking the framer's
// dialect. The connection is dialed on first use.
func WithStream(name, url string, framer core.Framer) Option {
	return func(c *Client) {
		c.endpoints[name] = endpoint{url: url, framer: framer}
	}
}

// WithRateLimit applies a weight-aware budget of rps tokens per second
// with the given burst to every Call. Without it calls are not limited.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = ratelimit.New(rps, burst)
	}
}

// WithCircuitBreaker guards every Call with a circuit breaker. While
// the circuit is open, Call fails immediately with core.ErrCircuitOpen.
// Transport errors and 5xx responses count against the breaker; 4xx
// does not.
func WithCircuitBreaker(cfg circuitbreaker.Config) Option {
	return func(c *Client) {
		c.breaker = circuitbreaker.New(cfg)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a Client. At least one endpoint, REST or stream, must be
// configured.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		reqCfg:    core.DefaultRequestConfig(),
		streamCfg: core.DefaultStreamConfig(),
		logger:    zerolog.Nop(),
		endpoints: make(map[string]endpoint),
		conns:     make(map[string]*ws.Conn),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" && len(c.endpoints) == 0 {
		return nil, fmt.Errorf("a base url or at least one stream endpoint is required")
	}
	if err := c.reqCfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.streamCfg.Validate(); err != nil {
		return nil, err
	}

	if c.baseURL != "" {
		pipeOpts := []rest.Option{rest.WithLogger(c.logger)}
		if c.auth != nil {
			pipeOpts = append(pipeOpts, rest.WithAuthenticator(c.auth))
		}
		pipeline, err := rest.New(rest.Config{BaseURL: c.baseURL, Timeout: c.reqCfg.Timeout}, pipeOpts...)
		if err != nil {
			return nil, err
		}
		c.pipeline = pipeline
		if u, err := url.Parse(c.baseURL); err == nil {
			c.host = u.Host
		}
	}

	return c, nil
}

// Call executes one request and decodes the response body into out. A
// nil out skips decoding. Any non-2xx status comes back as a
// *core.ExchangeError carrying the raw body; a body that does not match
// out comes back as a *core.DecodeError.
func (c *Client) Call(ctx context.Context, req *core.Request, out any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.ErrClientClosed
	}
	if c.pipeline == nil {
		return fmt.Errorf("no base url configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req.Weight); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return core.ErrCircuitOpen
	}

	resp, err := c.execute(ctx, req)
	if c.breaker != nil {
		// Only venue outcomes feed the breaker: failed transport, or any
		// HTTP answer with 5xx as failure. Local failures (missing
		// credentials, encoding) are not recorded.
		switch {
		case core.IsNetworkError(err) || core.IsTimeoutError(err):
			c.breaker.Record(false)
		case err == nil:
			c.breaker.Record(resp.Status < http.StatusInternalServerError)
		}
	}
	if err != nil {
		return err
	}

	if !resp.IsSuccess() {
		return c.statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(resp.Body, out); err != nil {
		return &core.DecodeError{Raw: resp.Body, Err: err}
	}
	return nil
}

// execute runs the pipeline once, or under the retry policy when more
// than one attempt is configured. Only timed-out attempts are retried;
// every other failure surfaces immediately.
func (c *Client) execute(ctx context.Context, req *core.Request) (*core.Response, error) {
	if c.reqCfg.MaxTries <= 1 {
		return c.pipeline.Execute(ctx, req)
	}

	var resp *core.Response
	err := retry.Do(
		func() error {
			r, err := c.pipeline.Execute(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.reqCfg.MaxTries)),
		retry.Delay(c.reqCfg.RetryWait),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(core.IsTimeoutError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn().
				Uint("attempt", n+1).
				Str("method", req.Method).
				Str("path", req.Path).
				Err(err).
				Msg("retrying request")
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// statusError converts a non-2xx response into a *core.ExchangeError.
// The classification here is by status code only; adapters refine it
// from exchange error codes in the body.
func (c *Client) statusError(resp *core.Response) error {
	message := string(resp.Body)
	if message == "" {
		message = http.StatusText(resp.Status)
	}
	exErr := core.NewExchangeError(c.host, core.ClassifyStatus(resp.Status), resp.Status, message)
	exErr.RawBody = resp.Body
	return exErr
}

// Stream subscribes to one topic on the named stream endpoint, dialing
// the connection on first use. The call waits until the connection is
// open, bounded by ctx; the subscription itself survives later
// reconnects.
func (c *Client) Stream(ctx context.Context, stream, topic string) (*Stream, error) {
	conn, err := c.connFor(stream)
	if err != nil {
		return nil, err
	}
	if err := conn.WaitOpen(ctx); err != nil {
		return nil, err
	}
	id, ch, err := conn.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &Stream{C: ch, topic: topic, conn: conn, id: id}, nil
}

// connFor returns the managed connection for a named endpoint, dialing
// it the first time.
func (c *Client) connFor(name string) (*ws.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClientClosed
	}
	if conn, ok := c.conns[name]; ok {
		return conn, nil
	}
	ep, ok := c.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", name)
	}

	conn, err := ws.Dial(ws.Config{
		URL:    ep.url,
		Framer: ep.framer,
		Stream: c.streamCfg,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}
	c.conns[name] = conn
	return conn, nil
}

// Close shuts down every stream connection and the request pipeline.
// Close is idempotent; all later calls on the client fail with
// core.ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	if c.pipeline != nil {
		return c.pipeline.Close()
	}
	return nil
}
