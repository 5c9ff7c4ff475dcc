package core

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredential(t *testing.T) {
	cred, err := NewCredential("test-key-12345", "test-secret")

	require.NoError(t, err)
	assert.Equal(t, "test-key-12345", cred.Key())
	assert.Equal(t, []byte("test-secret"), cred.Secret())
	assert.False(t, cred.HasPassphrase())
}

func TestNewCredential_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		secret string
	}{
		{"empty key", "", "secret"},
		{"empty secret", "key", ""},
		{"key with space", "my key", "secret"},
		{"secret with newline", "key", "sec\nret"},
		{"key with tab", "my\tkey", "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCredential(tt.key, tt.secret)

			require.Error(t, err)
			var credErr *CredentialError
			assert.ErrorAs(t, err, &credErr)
		})
	}
}

func TestCredential_Passphrase(t *testing.T) {
	cred, err := NewCredential("key-1234567890", "secret", WithPassphrase("hunter2"))

	require.NoError(t, err)
	assert.True(t, cred.HasPassphrase())
	assert.Equal(t, []byte("hunter2"), cred.Passphrase())
}

func TestCredential_SecretReturnsCopy(t *testing.T) {
	cred, err := NewCredential("key-1234567890", "secret")
	require.NoError(t, err)

	s := cred.Secret()
	s[0] = 'X'

	assert.Equal(t, []byte("secret"), cred.Secret())
}

func TestCredential_Zero(t *testing.T) {
	cred, err := NewCredential("key-1234567890", "secret", WithPassphrase("hunter2"))
	require.NoError(t, err)

	cred.Zero()

	assert.Empty(t, cred.Key())
	assert.Empty(t, cred.Secret())
	assert.Nil(t, cred.Passphrase())
	assert.False(t, cred.HasPassphrase())
}

func TestCredential_Masked(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"long key", "abcdefghijklmnop", "abcd****mnop"},
		{"short key", "abcdefgh", "****"},
		{"tiny key", "ab", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := NewCredential(tt.key, "secret")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cred.Masked())
		})
	}
}

func TestCredential_NeverSerializesSecret(t *testing.T) {
	cred, err := NewCredential("abcdefghijklmnop", "super-secret-value")
	require.NoError(t, err)

	assert.NotContains(t, cred.String(), "super-secret-value")

	data, err := sonic.Marshal(cred)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret-value")
	assert.Contains(t, string(data), "abcd****mnop")
}
