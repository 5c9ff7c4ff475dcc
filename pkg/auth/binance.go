package auth

import (
	"strconv"
	"time"

	"nakula/pkg/core"
)

// queryStringSigner implements the timestamp-in-query scheme shared by
// Binance and MEXC: the signature is a hex HMAC-SHA256 over the encoded
// query string followed by the raw body, and travels as the final
// "signature" query parameter.
type queryStringSigner struct {
	apiKeyHeader string
	key          string
	secret       []byte
	clock        core.Clock
	recvWindow   time.Duration
}

func (s *queryStringSigner) Sign(req *core.Request, body []byte) (*Signature, error) {
	extra := core.Query{{Key: "timestamp", Value: timestampMillis(s.clock)}}
	if s.recvWindow > 0 {
		extra = append(extra, core.QueryParam{
			Key:   "recvWindow",
			Value: strconv.FormatInt(s.recvWindow.Milliseconds(), 10),
		})
	}

	// The canonical string covers the query exactly as it will be sent:
	// the request's own parameters first, then the signing parameters.
	signed := append(req.Query.Clone(), extra...)
	canonical := signed.Encode() + string(body)

	return &Signature{
		Headers:   map[string]string{s.apiKeyHeader: s.key},
		Query:     append(extra, core.QueryParam{Key: "signature", Value: signHex(s.secret, canonical)}),
		Canonical: canonical,
	}, nil
}

// Binance signs requests for the Binance spot and futures REST APIs. The
// API key travels in the X-MBX-APIKEY header; the signature covers the
// encoded query plus the raw body and is appended as the last query
// parameter.
type Binance struct {
	queryStringSigner
}

// NewBinance builds a Binance authenticator. The credential is validated
// once here; a nil or incomplete credential fails with *CredentialError.
func NewBinance(cred *core.Credential, opts ...Option) (*Binance, error) {
	if err := checkCredential(cred); err != nil {
		return nil, err
	}
	options := buildOptions(opts)
	return &Binance{queryStringSigner{
		apiKeyHeader: "X-MBX-APIKEY",
		key:          cred.Key(),
		secret:       cred.Secret(),
		clock:        options.Clock,
		recvWindow:   options.RecvWindow,
	}}, nil
}
