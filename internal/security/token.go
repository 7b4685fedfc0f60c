package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenTTL is the lifetime of a session token.
const SessionTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for malformed, tampered or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the identity facts embedded in a session token.
type Claims struct {
	UserID    string
	SessionID string
}

// TokenIssuer mints and validates signed, expiring session tokens.
// It does not know about revocation; callers compare the token against the
// stored session.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer constructs an issuer signing with HS256 and the given secret.
func NewTokenIssuer(secret string, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	issuer := &TokenIssuer{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a token carrying claims that expires after ttl.
func (i *TokenIssuer) Issue(claims Claims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return "", errors.New("missing subject")
	}
	now := i.now()
	registered := jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ID:        claims.SessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	return token.SignedString(i.secret)
}

// Verify checks the signature and expiry of tokenString and returns its claims.
func (i *TokenIssuer) Verify(tokenString string) (Claims, error) {
	registered := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &registered, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(registered.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: registered.Subject, SessionID: registered.ID}, nil
}

// HashToken returns the hex SHA-256 of a bearer token for storage.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MatchTokenHash compares a bearer token against a stored hash in constant time.
func MatchTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
