package auth

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostTokenRoundTrip(t *testing.T) {
	iss, err := NewIssuer(time.Hour)
	require.NoError(t, err)

	tok, err := iss.IssueHostToken(7)
	require.NoError(t, err)
	assert.NoError(t, iss.VerifyHostToken(tok, 7))
	assert.ErrorIs(t, iss.VerifyHostToken(tok, 8), ErrInvalidToken)
	assert.ErrorIs(t, iss.VerifyHostToken("", 7), ErrInvalidToken)
	assert.ErrorIs(t, iss.VerifyHostToken("not.a.token", 7), ErrInvalidToken)
}

func TestHostTokenExpires(t *testing.T) {
	iss, err := NewIssuer(time.Minute)
	require.NoError(t, err)
	base := time.Now()
	iss.now = func() time.Time { return base }

	tok, err := iss.IssueHostToken(1)
	require.NoError(t, err)

	iss.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.ErrorIs(t, iss.VerifyHostToken(tok, 1), ErrInvalidToken)
}

func TestHostTokenFromOtherIssuer(t *testing.T) {
	a, err := NewIssuer(0)
	require.NoError(t, err)
	b, err := NewIssuer(0)
	require.NoError(t, err)

	tok, err := a.IssueHostToken(3)
	require.NoError(t, err)
	assert.ErrorIs(t, b.VerifyHostToken(tok, 3), ErrInvalidToken)
}

func TestLoadIssuer(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "key")
	pubPath := filepath.Join(dir, "key.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o600))

	iss, err := LoadIssuer(privPath, pubPath, 0)
	require.NoError(t, err)
	tok, err := iss.IssueHostToken(2)
	require.NoError(t, err)
	assert.NoError(t, iss.VerifyHostToken(tok, 2))

	_, err = LoadIssuer(filepath.Join(dir, "missing"), pubPath, 0)
	assert.Error(t, err)
}
