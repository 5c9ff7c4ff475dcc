package auth

import (
	"strings"

	"nakula/pkg/core"
)

// KuCoin signs requests for the KuCoin REST API. The canonical string is
// the millisecond timestamp, the uppercase method, the path including the
// encoded query, and the raw body; the base64 HMAC-SHA256 travels in the
// KC-API-SIGN header. The passphrase header carries the passphrase signed
// with the same secret, as required by key version 2.
type KuCoin struct {
	key        string
	secret     []byte
	passphrase string
	clock      core.Clock
}

// NewKuCoin builds a KuCoin authenticator. The credential must carry a
// passphrase; a nil or incomplete credential fails with *CredentialError.
func NewKuCoin(cred *core.Credential, opts ...Option) (*KuCoin, error) {
	if err := checkCredential(cred); err != nil {
		return nil, err
	}
	if !cred.HasPassphrase() {
		return nil, &core.CredentialError{Reason: "missing passphrase"}
	}
	options := buildOptions(opts)
	secret := cred.Secret()
	return &KuCoin{
		key:        cred.Key(),
		secret:     secret,
		passphrase: signBase64(secret, string(cred.Passphrase())),
		clock:      options.Clock,
	}, nil
}

func (k *KuCoin) Sign(req *core.Request, body []byte) (*Signature, error) {
	timestamp := timestampMillis(k.clock)
	canonical := timestamp + strings.ToUpper(req.Method) + req.PathWithQuery() + string(body)

	return &Signature{
		Headers: map[string]string{
			"KC-API-KEY":         k.key,
			"KC-API-SIGN":        signBase64(k.secret, canonical),
			"KC-API-TIMESTAMP":   timestamp,
			"KC-API-PASSPHRASE":  k.passphrase,
			"KC-API-KEY-VERSION": "2",
		},
		Canonical: canonical,
	}, nil
}
