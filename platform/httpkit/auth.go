package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ContextSubjectKey holds the identity-provider user ID from the session token.
	ContextSubjectKey = "authSubject"
	// ContextUserIDKey holds the local user ID.
	ContextUserIDKey = "userID"
	// ContextTenantIDKey holds the dealership ID of the authenticated user.
	ContextTenantIDKey = "tenantID"
	// ContextRolesKey holds the user's roles.
	ContextRolesKey = "roles"
)

// ErrUnknownPrincipal is returned by a PrincipalResolver when the token
// subject has no local user yet.
var ErrUnknownPrincipal = errors.New("unknown principal")

// Principal is the local view of an authenticated token subject.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
}

// PrincipalResolver maps an identity-provider subject to a local user.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, subject string) (Principal, error)
}

// NewJWKS fetches the identity provider's signing keys and keeps them refreshed.
func NewJWKS(cfg config.AuthConfig) (*keyfunc.JWKS, error) {
	return keyfunc.Get(cfg.GetJWKSURL(), keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
}

// AuthRequired validates the bearer session token against the supplied key
// function and stores the token subject on the context.
func AuthRequired(keyFunc jwt.Keyfunc, issuer string, log *logger.Logger) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		token, err := jwt.Parse(raw, keyFunc, opts...)
		if err != nil || !token.Valid {
			if log != nil {
				log.Debug("session token rejected", "error", err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextSubjectKey, subject)
		c.Next()
	}
}

// RequirePrincipal resolves the token subject to a local user and dealership.
// Must run after AuthRequired.
func RequirePrincipal(resolver PrincipalResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(ContextSubjectKey)
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			return
		}

		principal, err := resolver.ResolvePrincipal(c.Request.Context(), subject)
		if errors.Is(err, ErrUnknownPrincipal) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "user is not provisioned"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		c.Set(ContextUserIDKey, principal.UserID)
		c.Set(ContextTenantIDKey, principal.TenantID)
		c.Set(ContextRolesKey, []string{principal.Role})

		ctx := context.WithValue(c.Request.Context(), logger.TenantIDKey, principal.TenantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := MustGetIdentity(c)
		if id == nil {
			return
		}
		for _, role := range roles {
			if id.HasRole(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	}
}
