package auth

import (
	"nakula/pkg/core"
)

// MEXC signs requests for the MEXC REST API. The scheme mirrors the
// Binance one with the API key carried in the X-MEXC-APIKEY header.
type MEXC struct {
	queryStringSigner
}

// NewMEXC builds a MEXC authenticator. The credential is validated once
// here; a nil or incomplete credential fails with *CredentialError.
func NewMEXC(cred *core.Credential, opts ...Option) (*MEXC, error) {
	if err := checkCredential(cred); err != nil {
		return nil, err
	}
	options := buildOptions(opts)
	return &MEXC{queryStringSigner{
		apiKeyHeader: "X-MEXC-APIKEY",
		key:          cred.Key(),
		secret:       cred.Secret(),
		clock:        options.Clock,
		recvWindow:   options.RecvWindow,
	}}, nil
}
