package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for refresh and reset tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// ErrInvalidToken is returned by ParseAccessToken for malformed, expired or
// wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short‑lived and encoded
// in the Authorization header when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// OpaqueToken is a random token returned to the client once.  In the
// database only a SHA‑256 hash of Raw is stored.  Refresh tokens and
// password-reset tokens are both opaque tokens.
type OpaqueToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// AccessClaims is the decoded content of an access token.  Custom claims
// assigned by an administrator (for example "role") are carried verbatim.
type AccessClaims struct {
	UID    string
	Custom map[string]any
	Exp    time.Time
}

// reserved claim names that are never copied into AccessClaims.Custom.
var reserved = map[string]bool{"sub": true, "exp": true, "iat": true, "nbf": true, "iss": true, "aud": true, "jti": true}

// NewAccessToken builds and signs an HS256 JWT for an identity.  The subject
// is the uid; custom claims are added as top-level claims next to exp and
// iat.
func NewAccessToken(secret, uid string, custom map[string]any, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{}
	for k, v := range custom {
		if !reserved[k] {
			claims[k] = v
		}
	}
	claims["sub"] = uid
	claims["exp"] = exp.Unix()
	claims["iat"] = now.Unix()

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature, algorithm and expiry of raw.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	out := AccessClaims{UID: sub, Custom: map[string]any{}}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.Exp = exp.Time.UTC()
	}
	for k, v := range mc {
		if !reserved[k] {
			out.Custom[k] = v
		}
	}
	return out, nil
}

// NewOpaqueToken returns a cryptographically secure random token (raw) and
// its expiration time.
func NewOpaqueToken(ttl time.Duration) (OpaqueToken, error) {
	// 48 bytes -> 96 hex chars
	raw, err := randomHex(48)
	if err != nil {
		return OpaqueToken{}, err
	}
	return OpaqueToken{Raw: raw, Exp: time.Now().UTC().Add(ttl)}, nil
}

// HashToken returns the SHA‑256 hash of a raw opaque token as a hex
// string.  Storing only the hash in the database prevents attackers from
// using stolen database entries to refresh sessions or reset passwords.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
