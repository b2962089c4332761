// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that does not grant host rights
// on the requested room.
var ErrInvalidToken = errors.New("invalid host token")

const hostAudience = "pricecheck:host"

// Issuer signs and verifies host tokens. A host token proves its bearer
// created a room and may claim host when joining it.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ttl of issued tokens; 0 means they never expire.
	ttl time.Duration
	now func() time.Time
}

// NewIssuer generates a fresh ed25519 key pair. Tokens do not survive a
// restart, which matches the lifetime of the rooms they refer to.
func NewIssuer(ttl time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, ttl: ttl, now: time.Now}, nil
}

// LoadIssuer reads a raw ed25519 key pair from disk.
func LoadIssuer(privatePath, publicPath string, ttl time.Duration) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 key files have the wrong size")
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// IssueHostToken returns a signed token with sub = roomID.
func (i *Issuer) IssueHostToken(roomID int) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:  strconv.Itoa(roomID),
		Audience: jwt.ClaimStrings{hostAudience},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// VerifyHostToken checks that tokenString is a valid host token for roomID.
func (i *Issuer) VerifyHostToken(tokenString string, roomID int) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	},
		jwt.WithAudience(hostAudience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !t.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != strconv.Itoa(roomID) {
		return fmt.Errorf("%w: token is for another room", ErrInvalidToken)
	}
	return nil
}
