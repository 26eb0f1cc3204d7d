package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/token"
)

type contextKey string

const ClaimsContextKey contextKey = "accessClaims"

// GetClaims returns the verified access token claims from the request context.
func GetClaims(ctx context.Context) *token.AccessClaims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*token.AccessClaims); ok {
		return claims
	}
	return nil
}

// AccessTokenMiddleware guards endpoints behind a Bearer access token. Claims
// are trusted here because the token is HMAC signed; no store round trip.
type AccessTokenMiddleware struct {
	signer *token.Signer
}

func NewAccessTokenMiddleware(signer *token.Signer) *AccessTokenMiddleware {
	return &AccessTokenMiddleware{signer: signer}
}

func (m *AccessTokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing access token",
			})
			return
		}

		claims, err := m.signer.VerifyAccessToken(raw)
		if err != nil {
			log.Warn().Err(err).Msg("access token verification failed")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid or expired access token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
