package http

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/tokengate/adapters/tokenizer"
	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ratelimit"
	"github.com/layer-3/tokengate/service"
)

// AuthHandlers contains HTTP handlers for issuance, refresh and revocation.
type AuthHandlers struct {
	authService *service.AuthService

	// authLimiter guards issuance and refresh, keyed by identity when one
	// is present in the request, falling back to client IP.
	authLimiter *ratelimit.Limiter
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService, authLimiter *ratelimit.Limiter) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		authLimiter: authLimiter,
	}
}

// TokenResponse carries an issued pair with absolute Unix-second expiries.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

func tokenResponse(pair core.CredentialPair) TokenResponse {
	return TokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  pair.AccessExpiry.Unix(),
		RefreshExpiresAt: pair.RefreshExpiry.Unix(),
	}
}

// IssueStatic handles issuance against the process-wide requirement.
func (h *AuthHandlers) IssueStatic(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.allow(c, identityKey(req.Address, c)) {
		return
	}

	pair, err := h.authService.IssueStatic(c.Request.Context(), req.Address)
	if err != nil {
		status, reason := rejectionFor(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// IssueDynamic handles issuance against a requirement carried by the
// request.
func (h *AuthHandlers) IssueDynamic(c *gin.Context) {
	var req struct {
		Address  string `json:"address" binding:"required"`
		Contract string `json:"contract" binding:"required"`
		TokenID  string `json:"token_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.allow(c, identityKey(req.Address, c)) {
		return
	}

	// The service re-checks sign and nil; a parse failure lands on the same
	// invalid_request reason either way.
	tokenID, _ := new(big.Int).SetString(req.TokenID, 10)

	pair, err := h.authService.IssueDynamic(c.Request.Context(), req.Address, req.Contract, tokenID)
	if err != nil {
		status, reason := rejectionFor(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh rotates a credential pair.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	key := c.ClientIP()
	if subject, ok := tokenizer.UnverifiedSubject(req.RefreshToken); ok {
		key = strings.ToLower(subject)
	}
	if !h.allow(c, key) {
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		status, reason := rejectionFor(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Revoke blacklists a jti. The route sits behind the authorization gate.
func (h *AuthHandlers) Revoke(c *gin.Context) {
	var req struct {
		JTI string `json:"jti" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), req.JTI); err != nil {
		status, reason := rejectionFor(err)
		c.JSON(status, gin.H{"error": reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": req.JTI})
}

// Me returns the admitted identity and grant.
func (h *AuthHandlers) Me(c *gin.Context) {
	grant, exists := c.Get(ContextGrant)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"grant": grant})
}

// Resource stands in for the protected downstream endpoint. Reaching it
// means the gate admitted the request.
func (h *AuthHandlers) Resource(c *gin.Context) {
	identity, exists := c.Get(ContextIdentity)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    identity,
	})
}

func (h *AuthHandlers) allow(c *gin.Context, key string) bool {
	ok, retryAfter := h.authLimiter.Allow(key)
	if !ok {
		seconds := int(retryAfter.Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limited",
			"retry_after": seconds,
		})
	}
	return ok
}

// identityKey lowercases a well-formed address so checksum variants share a
// counter; anything else falls back to origin.
func identityKey(address string, c *gin.Context) string {
	if common.IsHexAddress(address) {
		return strings.ToLower(address)
	}
	return c.ClientIP()
}
