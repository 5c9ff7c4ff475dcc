package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"nakula/pkg/core"
)

// Signature carries everything a signing scheme attaches to an outgoing
// request. Query entries are appended after the request's own parameters
// in the order given, Headers are set verbatim. Canonical holds the exact
// string that was signed so tests can assert coverage without ever seeing
// the secret.
type Signature struct {
	Headers   map[string]string
	Query     []core.QueryParam
	Canonical string
}

// Authenticator computes request signatures for one credential under one
// exchange scheme. Implementations are pure: the same request, body, and
// clock instant always yield a byte-identical Signature, and Sign never
// performs I/O.
type Authenticator interface {
	Sign(req *core.Request, body []byte) (*Signature, error)
}

// Options holds knobs shared across signing schemes.
type Options struct {
	Clock      core.Clock
	RecvWindow time.Duration
}

type Option func(*Options)

// WithClock overrides the time source used for signing timestamps.
func WithClock(clock core.Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithRecvWindow sets the validity window sent alongside signed requests.
// Schemes without a window concept ignore it.
func WithRecvWindow(window time.Duration) Option {
	return func(o *Options) {
		o.RecvWindow = window
	}
}

func buildOptions(opts []Option) Options {
	options := Options{Clock: core.SystemClock{}}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func checkCredential(cred *core.Credential) error {
	if cred == nil || cred.Key() == "" {
		return &core.CredentialError{Reason: "missing API key"}
	}
	if len(cred.Secret()) == 0 {
		return &core.CredentialError{Reason: "missing API secret"}
	}
	return nil
}

func signHex(secret []byte, message string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func signBase64(secret []byte, message string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func timestampMillis(clock core.Clock) string {
	return strconv.FormatInt(clock.Now().UnixMilli(), 10)
}
