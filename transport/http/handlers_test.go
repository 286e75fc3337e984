package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tokengate/adapters/store"
	"github.com/layer-3/tokengate/adapters/tokenizer"
	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ratelimit"
	"github.com/layer-3/tokengate/service"
)

const (
	testContract = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"
	testWallet   = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
)

type fakeOracle struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

func (o *fakeOracle) setBalance(wallet string, balance int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[wallet] = big.NewInt(balance)
}

func (o *fakeOracle) BalanceOf(_ context.Context, _ core.Requirement, wallet string) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if balance, ok := o.balances[wallet]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

type routerEnv struct {
	router *gin.Engine
	oracle *fakeOracle
	codec  *tokenizer.JWTTokenizer
}

func newRouterEnv(t *testing.T, authMax, apiMax int) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	oracle := &fakeOracle{balances: make(map[string]*big.Int)}
	codec := tokenizer.NewJWTTokenizer([]byte("test-secret"))

	svc, err := service.NewAuthService(service.Params{
		Oracle:    oracle,
		Tokenizer: codec,
		Store:     store.NewMemoryStore(),
		Logger:    slog.New(slog.DiscardHandler),
		Requirement: core.Requirement{
			ChainID:  1,
			Contract: testContract,
			TokenID:  big.NewInt(7),
		},
	})
	require.NoError(t, err)

	authLimiter := ratelimit.NewLimiter(ratelimit.Config{Max: authMax, Window: time.Minute})
	apiLimiter := ratelimit.NewLimiter(ratelimit.Config{Max: apiMax, Window: time.Minute})
	handlers := NewAuthHandlers(svc, authLimiter)

	return &routerEnv{
		router: SetupRouter(svc, handlers, apiLimiter),
		oracle: oracle,
		codec:  codec,
	}
}

func (e *routerEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *routerEnv) issue(t *testing.T) TokenResponse {
	t.Helper()

	w := e.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": testWallet})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorReason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	reason, _ := resp["error"].(string)
	return reason
}

func TestIssueAndAccess(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)
	env.oracle.setBalance(testWallet, 1)

	resp := env.issue(t)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Less(t, resp.AccessExpiresAt, resp.RefreshExpiresAt)

	w := env.do(t, http.MethodGet, "/api/resource", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), testWallet)

	w = env.do(t, http.MethodGet, "/api/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestIssue_Rejections(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)

	w := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_identity", errorReason(t, w))

	// Zero balance: a normal outcome with its own reason.
	w = env.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": testWallet})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ownership_not_satisfied", errorReason(t, w))
}

func TestIssueDynamic_BadTokenID(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)
	env.oracle.setBalance(testWallet, 1)

	w := env.do(t, http.MethodPost, "/auth/token/dynamic", "", gin.H{
		"address":  testWallet,
		"contract": testContract,
		"token_id": "not-a-number",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorReason(t, w))
}

func TestGate_Rejections(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)
	env.oracle.setBalance(testWallet, 1)
	pair := env.issue(t)

	t.Run("missing credential", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/resource", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "missing_credential", errorReason(t, w))
	})

	t.Run("malformed credential", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/resource", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "malformed_credential", errorReason(t, w))
	})

	t.Run("refresh token at the resource", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/resource", pair.RefreshToken, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "wrong_credential_kind", errorReason(t, w))
	})

	t.Run("expired credential", func(t *testing.T) {
		expiredCodec := tokenizer.NewJWTTokenizer([]byte("test-secret"))
		expired, err := expiredCodec.Encode(core.Credential{
			Kind:     core.KindAccess,
			Grant:    core.Grant{Identity: testWallet, TokenID: big.NewInt(7)},
			JTI:      "expired-jti",
			IssuedAt: time.Now().Add(-2 * time.Hour),
			Expiry:   time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		w := env.do(t, http.MethodGet, "/api/resource", expired, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "expired_credential", errorReason(t, w))
	})

	t.Run("requirement mismatch", func(t *testing.T) {
		mismatched, err := env.codec.Encode(core.Credential{
			Kind:     core.KindAccess,
			Grant:    core.Grant{Identity: testWallet, TokenID: big.NewInt(999)},
			JTI:      "mismatch-jti",
			IssuedAt: time.Now(),
			Expiry:   time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		w := env.do(t, http.MethodGet, "/api/resource", mismatched, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "requirement_mismatch", errorReason(t, w))
	})
}

func TestRevoke_RequiresGateAndKillsCredential(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)
	env.oracle.setBalance(testWallet, 1)
	pair := env.issue(t)

	access, err := env.codec.DecodeAccess(pair.AccessToken)
	require.NoError(t, err)

	// Unauthenticated revocation is refused.
	w := env.do(t, http.MethodPost, "/auth/revoke", "", gin.H{"jti": access.JTI})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_credential", errorReason(t, w))

	w = env.do(t, http.MethodPost, "/auth/revoke", pair.AccessToken, gin.H{"jti": access.JTI})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/resource", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "credential_revoked", errorReason(t, w))

	w = env.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, []string{"session_not_found", "credential_revoked"}, errorReason(t, w))
}

func TestRefreshEndpoint_Rotation(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 100)
	env.oracle.setBalance(testWallet, 1)
	pair := env.issue(t)

	w := env.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rotated TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rotated))
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The consumed token is dead.
	w = env.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, []string{"session_not_found", "credential_revoked"}, errorReason(t, w))
}

func TestIssuanceRateLimit(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 2, 100)
	env.oracle.setBalance(testWallet, 1)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": testWallet})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": testWallet})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorReason(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp struct {
		RetryAfter int `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Positive(t, resp.RetryAfter)

	// Checksum variants of the same address share a counter.
	w = env.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": "0xab5801a7d398351b8be11c439e05c5b3259aec9b"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestProtectedRateLimit_KeyedByCredentialSubject(t *testing.T) {
	t.Parallel()

	env := newRouterEnv(t, 100, 2)
	env.oracle.setBalance(testWallet, 1)
	pair := env.issue(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodGet, "/api/resource", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/resource", pair.AccessToken, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorReason(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
