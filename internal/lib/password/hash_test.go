package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGetHash(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "regular token", token: "dashboard-token-123"},
		{name: "token with special chars", token: "t@k3n!@#$%^&*()"},
		{name: "72 bytes", token: strings.Repeat("a", 72)},
		{name: "too long", token: strings.Repeat("a", 73), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := GetHash(tt.token)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, tt.token, hash)
			assert.NoError(t, CompareHash(hash, tt.token))
		})
	}
}

func TestCompareHash(t *testing.T) {
	hash, err := GetHash("correct_token")
	require.NoError(t, err)

	tests := []struct {
		name      string
		hash      string
		candidate string
		wantErr   bool
	}{
		{name: "match", hash: hash, candidate: "correct_token"},
		{name: "mismatch", hash: hash, candidate: "wrong_token", wantErr: true},
		{name: "case sensitive", hash: hash, candidate: "CORRECT_TOKEN", wantErr: true},
		{name: "empty candidate", hash: hash, candidate: "", wantErr: true},
		{name: "invalid hash", hash: "not-a-bcrypt-hash", candidate: "correct_token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CompareHash(tt.hash, tt.candidate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCompareHash_WrapsMismatch(t *testing.T) {
	hash, err := GetHash("a")
	require.NoError(t, err)

	err = CompareHash(hash, "b")
	assert.True(t, errors.Is(err, bcrypt.ErrMismatchedHashAndPassword))
}

func TestMatches(t *testing.T) {
	hash, err := GetHash("token")
	require.NoError(t, err)

	assert.True(t, Matches(hash, "token"))
	assert.False(t, Matches(hash, "other"))
	assert.False(t, Matches("", "token"))
	assert.False(t, Matches(hash, ""))
}
