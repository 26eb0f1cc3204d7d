package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the claim set carried by access tokens. It mirrors the
// session profile so callers can render identity without a store round trip;
// the token itself is only valid for the configured access TTL.
type AccessClaims struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	jwt.RegisteredClaims
}

// TelegramID parses the numeric subject claim.
func (c *AccessClaims) TelegramID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Signer mints and verifies HMAC-SHA256 signed access tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// SignAccessToken issues a signed access token for the given identity.
func (s *Signer) SignAccessToken(telegramID int64, username, firstName string, now time.Time) (string, error) {
	claims := AccessClaims{
		Username:  username,
		FirstName: firstName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", telegramID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyAccessToken parses and validates a signed access token, returning its
// claims. Expired or tampered tokens fail verification.
func (s *Signer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
