package auth

import (
	"net/http"
	"strconv"
	"time"

	"nakula/pkg/core"
)

// DefaultRecvWindow is the Bybit request validity window applied when no
// explicit window is configured.
const DefaultRecvWindow = 5 * time.Second

// streamAuthLifetime is how far in the future a private stream auth frame
// expires. Bybit rejects frames whose expiry is already in the past, so
// the window only needs to outlive the send.
const streamAuthLifetime = time.Second

// Bybit signs requests for the Bybit V5 REST API. The canonical string is
// the millisecond timestamp, the API key, and the recv window, followed
// by the encoded query for GET and DELETE requests or the raw body for
// everything else. The hex HMAC-SHA256 travels in the X-BAPI-SIGN header
// alongside the key, timestamp, and window.
type Bybit struct {
	key        string
	secret     []byte
	clock      core.Clock
	recvWindow time.Duration
}

// NewBybit builds a Bybit V5 authenticator. The credential is validated
// once here; a nil or incomplete credential fails with *CredentialError.
func NewBybit(cred *core.Credential, opts ...Option) (*Bybit, error) {
	if err := checkCredential(cred); err != nil {
		return nil, err
	}
	options := buildOptions(opts)
	if options.RecvWindow <= 0 {
		options.RecvWindow = DefaultRecvWindow
	}
	return &Bybit{
		key:        cred.Key(),
		secret:     cred.Secret(),
		clock:      options.Clock,
		recvWindow: options.RecvWindow,
	}, nil
}

func (b *Bybit) Sign(req *core.Request, body []byte) (*Signature, error) {
	timestamp := timestampMillis(b.clock)
	window := strconv.FormatInt(b.recvWindow.Milliseconds(), 10)

	canonical := timestamp + b.key + window
	switch req.Method {
	case http.MethodGet, http.MethodDelete:
		canonical += req.Query.Encode()
	default:
		canonical += string(body)
	}

	return &Signature{
		Headers: map[string]string{
			"X-BAPI-API-KEY":     b.key,
			"X-BAPI-TIMESTAMP":   timestamp,
			"X-BAPI-RECV-WINDOW": window,
			"X-BAPI-SIGN":        signHex(b.secret, canonical),
			"X-BAPI-SIGN-TYPE":   "2",
		},
		Canonical: canonical,
	}, nil
}

// StreamAuth produces the fields of a private stream authentication
// frame: the API key, an expiry instant in Unix milliseconds, and a hex
// HMAC-SHA256 over "GET/realtime" concatenated with that expiry.
func (b *Bybit) StreamAuth() (key string, expires int64, signature string) {
	expires = b.clock.Now().Add(streamAuthLifetime).UnixMilli()
	signature = signHex(b.secret, "GET/realtime"+strconv.FormatInt(expires, 10))
	return b.key, expires, signature
}
