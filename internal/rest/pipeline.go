package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"nakula/pkg/auth"
	"nakula/pkg/core"
)

var validate = validator.New()

// Config bounds one pipeline instance. BaseURL is the scheme and host all
// request paths are resolved against; Headers are attached to every call.
type Config struct {
	BaseURL string            `validate:"required,url"`
	Timeout time.Duration     `validate:"min=1ms"`
	Headers map[string]string `validate:"omitempty"`
}

// Pipeline executes single requests against one base URL. It holds no
// state between calls: no retries, no caching, no session. Any HTTP
// status, success or not, comes back as a populated *core.Response with a
// nil error; only transport-level failures produce errors.
type Pipeline struct {
	client *resty.Client
	auth   auth.Authenticator
	logger zerolog.Logger
	mu     sync.RWMutex
	closed bool
}

type Option func(*Pipeline)

// WithAuthenticator enables signed requests. Requests that do not require
// auth never see authenticator output, even when one is configured.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(p *Pipeline) {
		p.auth = a
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func New(config Config, opts ...Option) (*Pipeline, error) {
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	p := &Pipeline{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}

	client := resty.New()
	client.SetBaseURL(config.BaseURL)
	client.SetTimeout(config.Timeout)
	for k, v := range config.Headers {
		client.SetHeader(k, v)
	}

	client.AddRequestMiddleware(func(_ *resty.Client, req *resty.Request) error {
		p.logger.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("http request")
		return nil
	})

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		p.logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Int("size", len(resp.Bytes())).
			Msg("http response")
		return nil
	})

	p.client = client
	return p, nil
}

// Execute performs one request. The body is marshaled before signing so
// the signature covers the exact bytes sent, and the query string is
// encoded in insertion order for the same reason.
func (p *Pipeline) Execute(ctx context.Context, req *core.Request) (*core.Response, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, core.ErrClientClosed
	}

	var body []byte
	if req.Body != nil {
		data, err := sonic.Marshal(req.Body)
		if err != nil {
			return nil, &core.TransportError{Type: core.ErrorTypeEncoding, URL: req.Path, Err: err}
		}
		body = data
	}

	query := req.Query.Clone()
	headers := make(map[string]string, len(req.Headers)+6)
	for k, v := range req.Headers {
		headers[k] = v
	}

	if req.RequireAuth {
		if p.auth == nil {
			return nil, core.ErrNoCredentials
		}
		sig, err := p.auth.Sign(req, body)
		if err != nil {
			return nil, err
		}
		query = append(query, sig.Query...)
		for k, v := range sig.Headers {
			headers[k] = v
		}
	}

	url := req.Path
	if enc := query.Encode(); enc != "" {
		url += "?" + enc
	}

	r := p.client.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(body)
	}

	resp, err := r.Execute(req.Method, url)
	if err != nil {
		return nil, classifyTransport(url, err)
	}

	return &core.Response{
		Status:  resp.StatusCode(),
		Headers: resp.Header(),
		Body:    resp.Bytes(),
	}, nil
}

func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Close()
}

func classifyTransport(url string, err error) error {
	errType := core.ErrorTypeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		errType = core.ErrorTypeTimeout
	}
	return &core.TransportError{Type: errType, URL: url, Err: err}
}
