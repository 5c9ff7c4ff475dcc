package core

// Credential holds the secret material for one exchange account. It is
// immutable after construction, never serialized in cleartext, and wiped
// by Zero once no longer needed.
type Credential struct {
	key        string
	secret     []byte
	passphrase []byte
}

// CredentialOption customizes credential construction.
type CredentialOption func(*Credential)

// WithPassphrase attaches the extra credential some exchanges require
// alongside the key pair.
func WithPassphrase(passphrase string) CredentialOption {
	return func(c *Credential) {
		c.passphrase = []byte(passphrase)
	}
}

// NewCredential validates and wraps API key material. Malformed material
// is rejected here with a *CredentialError so that a broken credential
// fails once at construction rather than on every signed call.
func NewCredential(key, secret string, opts ...CredentialOption) (*Credential, error) {
	if key == "" {
		return nil, &CredentialError{Reason: "empty API key"}
	}
	if secret == "" {
		return nil, &CredentialError{Reason: "empty API secret"}
	}
	if containsUnsafe(key) {
		return nil, &CredentialError{Reason: "API key contains whitespace or control characters"}
	}
	if containsUnsafe(secret) {
		return nil, &CredentialError{Reason: "API secret contains whitespace or control characters"}
	}

	c := &Credential{
		key:    key,
		secret: []byte(secret),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func containsUnsafe(s string) bool {
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return true
		}
	}
	return false
}

// Key returns the public API key identifier.
func (c *Credential) Key() string { return c.key }

// Secret returns a copy of the signing secret.
func (c *Credential) Secret() []byte {
	out := make([]byte, len(c.secret))
	copy(out, c.secret)
	return out
}

// Passphrase returns a copy of the optional passphrase, nil when unset.
func (c *Credential) Passphrase() []byte {
	if c.passphrase == nil {
		return nil
	}
	out := make([]byte, len(c.passphrase))
	copy(out, c.passphrase)
	return out
}

// HasPassphrase reports whether a passphrase was provided.
func (c *Credential) HasPassphrase() bool { return len(c.passphrase) > 0 }

// Zero wipes the secret material in place. The credential is unusable
// afterwards.
func (c *Credential) Zero() {
	for i := range c.secret {
		c.secret[i] = 0
	}
	for i := range c.passphrase {
		c.passphrase[i] = 0
	}
	c.secret = nil
	c.passphrase = nil
	c.key = ""
}

// Masked returns the API key with the middle replaced, safe for logs.
func (c *Credential) Masked() string {
	if len(c.key) <= 8 {
		return "****"
	}
	return c.key[:4] + "****" + c.key[len(c.key)-4:]
}

// String implements fmt.Stringer without exposing secret material.
func (c *Credential) String() string {
	return "credential(" + c.Masked() + ")"
}

// MarshalJSON emits the masked form only.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.Masked() + `"`), nil
}
