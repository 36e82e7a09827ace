// Package auth implements the signed access-token codec: compact HS256 JWTs
// carrying a user id, verifiable without any storage round trip.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSigning means the token could not be produced (bad key or input).
	ErrSigning = errors.New("token signing failed")
	// ErrInvalidSignature covers malformed tokens, unexpected algorithms and
	// signature mismatches.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired means the signature is fine but exp has passed.
	ErrExpired = errors.New("token expired")
)

// DefaultAccessTokenTTL is used when a Codec is built with a zero TTL.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims is the access token payload: the standard iat/exp claims plus the
// user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Codec issues and verifies access tokens. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a Codec signing with secretKey. A zero ttl selects
// DefaultAccessTokenTTL.
func NewCodec(secretKey []byte, ttl time.Duration) (*Codec, error) {
	if len(secretKey) == 0 {
		return nil, fmt.Errorf("%w: empty secret key", ErrSigning)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: negative ttl", ErrSigning)
	}
	if ttl == 0 {
		ttl = DefaultAccessTokenTTL
	}
	key := make([]byte, len(secretKey))
	copy(key, secretKey)
	return &Codec{secret: key, ttl: ttl, now: time.Now}, nil
}

// WithClock returns a copy of c that reads time from now. Used by tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue mints a token for userID valid for the codec TTL.
func (c *Codec) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty user id", ErrSigning)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns the
// embedded user id.
func (c *Codec) Verify(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidSignature
	}

	return claims.UserID, nil
}
