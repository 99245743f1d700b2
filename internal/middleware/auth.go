// Package middleware provides the HTTP middleware of the LMS API and the
// process supervisor.
package middleware

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/errors"
	internalhttputil "github.com/aetherlms/lms-server/internal/httputil"
	"github.com/aetherlms/lms-server/internal/logging"
)

// Claims are the session token claims issued by the identity provider. The
// subject is the user's external ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParsePublicKey decodes a PEM RSA public key. An empty string yields a nil
// key, which makes every protected route reject requests.
func ParsePublicKey(pemData string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(pemData) == "" {
		return nil, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return key, nil
}

// AuthMiddleware verifies RS256 bearer tokens. Public routes are public for
// GET and HEAD only; any other method on them needs a token.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	logger    *logging.Logger
	routes    *config.RoutesConfig
}

// NewAuthMiddleware creates the authentication middleware. Public paths are
// taken from routes.
func NewAuthMiddleware(publicKey *rsa.PublicKey, logger *logging.Logger, routes *config.RoutesConfig) *AuthMiddleware {
	if routes == nil {
		routes = config.DefaultRoutesConfig()
	}
	return &AuthMiddleware{
		publicKey: publicKey,
		logger:    logger,
		routes:    routes,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || (isReadOnly(r.Method) && m.routes.IsPublic(r.URL.Path)) {
			next.ServeHTTP(w, r)
			return
		}

		if m.publicKey == nil {
			m.respondError(w, r, errors.Unauthorized("Authentication is not configured"))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.Subject)
		if claims.Role != "" {
			ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		}

		m.logger.WithContext(ctx).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "missing subject")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}

	internalhttputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	}).Warn("Authentication failed")
}

// GetUserID extracts the authenticated external user ID from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts user role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}

// RequireUserID rejects requests that carry no authenticated user.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			internalhttputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
