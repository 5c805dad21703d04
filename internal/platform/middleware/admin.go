package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/httputil"
	"clubpay/pkg/requestcontext"
)

// AdminRole must appear in a token's roles claim for admin routes.
const AdminRole = "admin"

// AdminClaims is the subset of the site's access-token claims we rely on.
// Tokens are issued elsewhere; this service only validates them.
type AdminClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 bearer tokens signed with the shared key.
type TokenValidator struct {
	signingKey []byte
	issuer     string
}

func NewTokenValidator(signingKey, issuer string) *TokenValidator {
	return &TokenValidator{signingKey: []byte(signingKey), issuer: issuer}
}

func (v *TokenValidator) ValidateToken(tokenString string) (*AdminClaims, error) {
	if len(v.signingKey) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "admin access is not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (any, error) {
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// RequireAdmin rejects requests without a valid bearer token carrying the
// admin role, and stores the token subject in the context.
func RequireAdmin(validator *TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized admin access",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}
			if !slices.Contains(claims.Roles, AdminRole) {
				logger.WarnContext(ctx, "admin role missing",
					"subject", claims.Subject,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
				return
			}
			ctx = requestcontext.WithAdminSubject(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
