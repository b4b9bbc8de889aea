package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs access-token claims.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier parses and verifies a raw token string into Claims.
type Verifier interface {
	Verify(raw string) (Claims, error)
}

// EdDSAKeyPair implements Signer and Verifier using Ed25519. Keys are
// generated at startup; access tokens are short-lived so losing the key on
// restart only forces re-login.
type EdDSAKeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEdDSAKeyPair generates a fresh Ed25519 key pair.
func NewEdDSAKeyPair() (*EdDSAKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate ed25519 key: %w", err)
	}
	return &EdDSAKeyPair{priv: priv, pub: pub}, nil
}

// NewEdDSAKeyPairFromSeed builds a deterministic key pair, useful for tests.
func NewEdDSAKeyPairFromSeed(seed []byte) (*EdDSAKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("jwtx: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &EdDSAKeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (k *EdDSAKeyPair) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

// Public returns the verification key.
func (k *EdDSAKeyPair) Public() ed25519.PublicKey { return k.pub }

// Sign takes claims and turns them into a signed JWT string.
func (k *EdDSAKeyPair) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return t.SignedString(k.priv)
}

// Verify parses the raw token, checks the signature and returns the claims.
func (k *EdDSAKeyPair) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
		}
		return k.pub, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !tok.Valid {
		return Claims{}, errors.New("jwtx: invalid token")
	}
	return claims, nil
}
