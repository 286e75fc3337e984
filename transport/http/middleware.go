package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/tokengate/adapters/tokenizer"
	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ratelimit"
	"github.com/layer-3/tokengate/service"
)

// Context keys set by AuthMiddleware for downstream handlers.
const (
	ContextIdentity = "identity"
	ContextGrant    = "grant"
	ContextJTI      = "jti"
)

// AuthMiddleware is the authorization gate: it validates the bearer access
// credential and attaches the admitted identity and grant to the request
// context. Every rejection carries exactly one reason.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_credential"})
			return
		}

		credential, err := authService.Authorize(c.Request.Context(), token)
		if err != nil {
			status, reason := rejectionFor(err)
			c.AbortWithStatusJSON(status, gin.H{"error": reason})
			return
		}

		c.Set(ContextIdentity, credential.Grant.Identity)
		c.Set(ContextGrant, credential.Grant)
		c.Set(ContextJTI, credential.JTI)

		c.Next()
	}
}

// RateLimitMiddleware counts protected-resource calls per identity or
// origin before the gate runs.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ok, retryAfter := limiter.Allow(limitKey(c)); !ok {
			seconds := int(retryAfter.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// limitKey prefers a stable identity over network origin, because origin is
// unreliable behind shared proxies. The subject is read WITHOUT signature
// verification and is only ever a counting key; the gate re-verifies
// everything.
func limitKey(c *gin.Context) string {
	if token, ok := bearerToken(c); ok {
		if subject, ok := tokenizer.UnverifiedSubject(token); ok {
			return strings.ToLower(subject)
		}
	}
	return c.ClientIP()
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	return auth[7:], true
}

// rejectionFor maps a gate or issuer error to a status and terminal reason.
func rejectionFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrMissingCredential):
		return http.StatusUnauthorized, "missing_credential"
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "expired_credential"
	case errors.Is(err, core.ErrWrongTokenKind):
		return http.StatusUnauthorized, "wrong_credential_kind"
	case errors.Is(err, core.ErrTokenMalformed):
		return http.StatusUnauthorized, "malformed_credential"
	case errors.Is(err, core.ErrTokenRevoked):
		return http.StatusUnauthorized, "credential_revoked"
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_not_found"
	case errors.Is(err, core.ErrRequirementMismatch):
		return http.StatusForbidden, "requirement_mismatch"
	case errors.Is(err, core.ErrInvalidIdentity):
		return http.StatusBadRequest, "invalid_identity"
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, core.ErrOwnershipNotSatisfied):
		return http.StatusForbidden, "ownership_not_satisfied"
	case errors.Is(err, core.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
