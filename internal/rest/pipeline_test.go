package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nakula/pkg/auth"
	"nakula/pkg/core"
)

type stubAuthenticator struct {
	signedBody []byte
	err        error
}

func (s *stubAuthenticator) Sign(req *core.Request, body []byte) (*auth.Signature, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.signedBody = append([]byte(nil), body...)
	return &auth.Signature{
		Headers: map[string]string{"X-Test-Key": "test-key"},
		Query:   []core.QueryParam{{Key: "signature", Value: "stub"}},
	}, nil
}

func newTestPipeline(t *testing.T, baseURL string, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(Config{BaseURL: baseURL, Timeout: 2 * time.Second}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "", Timeout: time.Second})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost", Timeout: 0})
	assert.Error(t, err)
}

func TestPipeline_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Used", "5")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"price":"50000.00"}`))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL)

	resp, err := p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/api/v3/ticker/price"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, `{"price":"50000.00"}`, string(resp.Body))
	assert.Equal(t, "5", resp.Headers.Get("X-Ratelimit-Used"))
}

func TestPipeline_QueryOrderPreserved(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL)

	req := core.NewRequest(http.MethodGet, "/api/v3/klines").
		SetQuery("symbol", "BTCUSDT").
		SetQuery("interval", "1m").
		SetQuery("limit", 500)

	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "symbol=BTCUSDT&interval=1m&limit=500", rawQuery)
}

func TestPipeline_ErrorStatusReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Way too much request weight used"}`))
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL)

	resp, err := p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/api/v3/account"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.False(t, resp.IsSuccess())
	assert.Contains(t, string(resp.Body), "Way too much request weight used")
}

func TestPipeline_SignedRequest(t *testing.T) {
	var (
		rawQuery string
		keySent  string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		keySent = r.Header.Get("X-Test-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stub := &stubAuthenticator{}
	p := newTestPipeline(t, server.URL, WithAuthenticator(stub))

	req := core.NewRequest(http.MethodGet, "/api/v3/account").
		SetQuery("symbol", "BTCUSDT").
		SetRequireAuth(true)

	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "symbol=BTCUSDT&signature=stub", rawQuery)
	assert.Equal(t, "test-key", keySent)
}

func TestPipeline_SignatureCoversSentBody(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stub := &stubAuthenticator{}
	p := newTestPipeline(t, server.URL, WithAuthenticator(stub))

	type transfer struct {
		Coin string `json:"coin"`
	}
	req := core.NewRequest(http.MethodPost, "/v5/asset/transfer").
		SetBody(transfer{Coin: "BTC"}).
		SetRequireAuth(true)

	_, err := p.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, `{"coin":"BTC"}`, string(received))
	assert.Equal(t, received, stub.signedBody)
}

func TestPipeline_AuthRequiredWithoutAuthenticator(t *testing.T) {
	p := newTestPipeline(t, "http://localhost:1")

	req := core.NewRequest(http.MethodGet, "/api/v3/account").SetRequireAuth(true)

	_, err := p.Execute(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrNoCredentials)
}

func TestPipeline_SignErrorPropagates(t *testing.T) {
	signErr := errors.New("clock skew")
	p := newTestPipeline(t, "http://localhost:1", WithAuthenticator(&stubAuthenticator{err: signErr}))

	req := core.NewRequest(http.MethodGet, "/api/v3/account").SetRequireAuth(true)

	_, err := p.Execute(context.Background(), req)
	assert.ErrorIs(t, err, signErr)
}

func TestPipeline_NoAuthWhenNotRequired(t *testing.T) {
	var keySent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keySent = r.Header.Get("X-Test-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := newTestPipeline(t, server.URL, WithAuthenticator(&stubAuthenticator{}))

	_, err := p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/api/v3/time"))
	require.NoError(t, err)

	assert.Empty(t, keySent)
}

func TestPipeline_EncodingError(t *testing.T) {
	p := newTestPipeline(t, "http://localhost:1")

	req := core.NewRequest(http.MethodPost, "/api/v3/order").SetBody(make(chan int))

	_, err := p.Execute(context.Background(), req)

	var trErr *core.TransportError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, core.ErrorTypeEncoding, trErr.Type)
}

func TestPipeline_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/slow"))
	require.Error(t, err)
	assert.True(t, core.IsTimeoutError(err))
}

func TestPipeline_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	p := newTestPipeline(t, server.URL)

	_, err := p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/api/v3/time"))
	require.Error(t, err)
	assert.True(t, core.IsNetworkError(err))
}

func TestPipeline_Closed(t *testing.T) {
	p := newTestPipeline(t, "http://localhost:1")
	require.NoError(t, p.Close())

	_, err := p.Execute(context.Background(), core.NewRequest(http.MethodGet, "/api/v3/time"))
	assert.ErrorIs(t, err, core.ErrClientClosed)

	assert.NoError(t, p.Close())
}
