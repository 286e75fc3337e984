package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ports"
)

const (
	// DefaultAccessTTL is the default access credential lifetime.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is the default refresh credential lifetime.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// minRevocationTTL keeps a revocation entry alive for at least an hour
	// even when the credential it covers has already expired.
	minRevocationTTL = time.Hour
)

// Params configures an AuthService. Oracle, Tokenizer, Store and
// Requirement are required; the rest default.
type Params struct {
	Oracle    ports.OwnershipOracle
	Tokenizer ports.Tokenizer
	Store     ports.Store
	Events    ports.EventPublisher // optional
	Logger    *slog.Logger         // optional

	// Requirement is the process-wide ownership requirement for static
	// issuance. Dynamic issuance reuses its ChainID.
	Requirement core.Requirement

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the time source. Tests use it to cross expiry instants
	// without sleeping.
	Now func() time.Time
}

// AuthService owns credential issuance, rotation, revocation and the
// verification core behind the authorization gate. It is the only writer of
// the session store and revocation set.
type AuthService struct {
	oracle    ports.OwnershipOracle
	tokenizer ports.Tokenizer
	store     ports.Store
	events    ports.EventPublisher
	log       *slog.Logger

	requirement core.Requirement
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time

	// mu is the single mutual-exclusion domain around every compound store
	// sequence, so that two concurrent refreshes of the same credential can
	// never both succeed.
	mu sync.Mutex
}

// NewAuthService creates an AuthService, applying defaults.
func NewAuthService(p Params) (*AuthService, error) {
	if p.Oracle == nil || p.Tokenizer == nil || p.Store == nil {
		return nil, fmt.Errorf("oracle, tokenizer and store are required")
	}
	if !common.IsHexAddress(p.Requirement.Contract) {
		return nil, fmt.Errorf("requirement contract: %w", core.ErrInvalidAddress)
	}
	if p.Requirement.TokenID == nil || p.Requirement.TokenID.Sign() < 0 {
		return nil, fmt.Errorf("requirement token id must be a non-negative integer")
	}
	if p.AccessTTL <= 0 {
		p.AccessTTL = DefaultAccessTTL
	}
	if p.RefreshTTL <= 0 {
		p.RefreshTTL = DefaultRefreshTTL
	}
	if p.AccessTTL >= p.RefreshTTL {
		return nil, fmt.Errorf("access TTL %s must be shorter than refresh TTL %s", p.AccessTTL, p.RefreshTTL)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &AuthService{
		oracle:      p.Oracle,
		tokenizer:   p.Tokenizer,
		store:       p.Store,
		events:      p.Events,
		log:         p.Logger,
		requirement: p.Requirement,
		accessTTL:   p.AccessTTL,
		refreshTTL:  p.RefreshTTL,
		now:         p.Now,
	}, nil
}

// IssueStatic verifies the identity against the process-wide requirement
// and mints a credential pair.
func (s *AuthService) IssueStatic(ctx context.Context, identity string) (core.CredentialPair, error) {
	if !common.IsHexAddress(identity) {
		return core.CredentialPair{}, core.ErrInvalidIdentity
	}

	grant := core.Grant{
		Identity: common.HexToAddress(identity).Hex(),
		TokenID:  s.requirement.TokenID,
	}

	if err := s.checkOwnership(ctx, s.requirement, grant.Identity); err != nil {
		return core.CredentialPair{}, err
	}

	return s.mint(ctx, grant)
}

// IssueDynamic verifies the identity against a requirement supplied with
// the request. The minted access credential embeds the contract so the gate
// can tell the grant is dynamic.
func (s *AuthService) IssueDynamic(ctx context.Context, identity, contract string, tokenID *big.Int) (core.CredentialPair, error) {
	if !common.IsHexAddress(identity) || !common.IsHexAddress(contract) {
		return core.CredentialPair{}, core.ErrInvalidRequest
	}
	if tokenID == nil || tokenID.Sign() < 0 {
		return core.CredentialPair{}, core.ErrInvalidRequest
	}

	requirement := core.Requirement{
		ChainID:  s.requirement.ChainID,
		Contract: common.HexToAddress(contract).Hex(),
		TokenID:  tokenID,
	}
	grant := core.Grant{
		Identity: common.HexToAddress(identity).Hex(),
		TokenID:  tokenID,
		Contract: requirement.Contract,
	}

	if err := s.checkOwnership(ctx, requirement, grant.Identity); err != nil {
		return core.CredentialPair{}, err
	}

	return s.mint(ctx, grant)
}

// Refresh rotates a credential pair: the old jti is revoked and its session
// deleted in the same critical section that records the replacement, so a
// replayed refresh token can never yield a second live pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.CredentialPair, error) {
	credential, err := s.tokenizer.DecodeRefresh(refreshToken)
	if err != nil {
		return core.CredentialPair{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, found, err := s.store.GetSession(ctx, refreshToken)
	if err != nil {
		return core.CredentialPair{}, err
	}
	if !found {
		return core.CredentialPair{}, core.ErrSessionNotFound
	}

	revoked, err := s.store.IsRevoked(ctx, credential.JTI)
	if err != nil {
		return core.CredentialPair{}, err
	}
	if revoked {
		// A session surviving alongside a revoked jti is an inconsistency;
		// favor the stricter outcome.
		return core.CredentialPair{}, core.ErrTokenRevoked
	}

	if err := s.store.Revoke(ctx, session.JTI, s.revocationTTL(session.RefreshExpiry)); err != nil {
		return core.CredentialPair{}, err
	}
	if err := s.store.DeleteSession(ctx, refreshToken); err != nil {
		return core.CredentialPair{}, err
	}

	pair, err := s.mintLocked(ctx, session.Grant)
	if err != nil {
		return core.CredentialPair{}, err
	}

	s.publishRevoked(ctx, session.Identity, session.JTI)
	s.log.Info("credential pair rotated", "identity", session.Identity, "old_jti", session.JTI)

	return pair, nil
}

// Revoke adds a jti to the revocation set and drops any matching session.
// Revoking an unknown or already-revoked jti succeeds.
func (s *AuthService) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return core.ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Without a session we cannot know the remaining refresh lifetime, so
	// cover the maximum possible one.
	if err := s.store.Revoke(ctx, jti, s.refreshTTL); err != nil {
		return err
	}
	if err := s.store.DeleteSessionByJTI(ctx, jti); err != nil {
		return err
	}

	s.publishRevoked(ctx, "", jti)
	s.log.Info("credential revoked", "jti", jti)

	return nil
}

// Authorize runs the gate's verification chain over an access token and
// returns the admitted credential. Each rejection carries exactly one
// terminal reason.
func (s *AuthService) Authorize(ctx context.Context, accessToken string) (core.Credential, error) {
	if accessToken == "" {
		return core.Credential{}, core.ErrMissingCredential
	}

	credential, err := s.tokenizer.DecodeAccess(accessToken)
	if err != nil {
		return core.Credential{}, err
	}

	revoked, err := s.store.IsRevoked(ctx, credential.JTI)
	if err != nil {
		return core.Credential{}, err
	}
	if revoked {
		return core.Credential{}, core.ErrTokenRevoked
	}

	// Dynamic grants were checked against their own requirement at
	// issuance; static grants stay pinned to configuration.
	if !credential.Grant.Dynamic() {
		if credential.Grant.TokenID == nil || credential.Grant.TokenID.Cmp(s.requirement.TokenID) != 0 {
			return core.Credential{}, core.ErrRequirementMismatch
		}
	}

	s.log.Info("request admitted",
		"identity", credential.Grant.Identity,
		"jti", credential.JTI,
		"dynamic", credential.Grant.Dynamic(),
	)

	return credential, nil
}

// RunSweeper periodically reclaims expired store entries until ctx is done.
// It is a no-op for stores with native per-key expiry.
func (s *AuthService) RunSweeper(ctx context.Context, interval time.Duration) error {
	sweeper, ok := s.store.(ports.Sweeper)
	if !ok {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := sweeper.Sweep(ctx)
			if err != nil {
				s.log.Error("store sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.log.Debug("store sweep", "reclaimed", removed)
			}
		}
	}
}

func (s *AuthService) checkOwnership(ctx context.Context, requirement core.Requirement, identity string) error {
	balance, err := s.oracle.BalanceOf(ctx, requirement, identity)
	if err != nil {
		return err
	}
	if balance == nil || balance.Sign() == 0 {
		return core.ErrOwnershipNotSatisfied
	}
	return nil
}

// mint builds and records a credential pair for an already-verified grant.
func (s *AuthService) mint(ctx context.Context, grant core.Grant) (core.CredentialPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked(ctx, grant)
}

func (s *AuthService) mintLocked(ctx context.Context, grant core.Grant) (core.CredentialPair, error) {
	jti := uuid.New().String()
	now := s.now()
	accessExpiry := now.Add(s.accessTTL)
	refreshExpiry := now.Add(s.refreshTTL)

	accessToken, err := s.tokenizer.Encode(core.Credential{
		Kind:     core.KindAccess,
		Grant:    grant,
		JTI:      jti,
		IssuedAt: now,
		Expiry:   accessExpiry,
	})
	if err != nil {
		return core.CredentialPair{}, fmt.Errorf("failed to mint access token: %w", err)
	}

	refreshToken, err := s.tokenizer.Encode(core.Credential{
		Kind:     core.KindRefresh,
		Grant:    grant,
		JTI:      jti,
		IssuedAt: now,
		Expiry:   refreshExpiry,
	})
	if err != nil {
		return core.CredentialPair{}, fmt.Errorf("failed to mint refresh token: %w", err)
	}

	session := core.Session{
		Identity:      grant.Identity,
		Grant:         grant,
		JTI:           jti,
		CreatedAt:     now,
		RefreshExpiry: refreshExpiry,
	}
	if err := s.store.SaveSession(ctx, refreshToken, session); err != nil {
		return core.CredentialPair{}, err
	}

	s.publishIssued(ctx, grant.Identity, jti)
	s.log.Info("credential pair issued", "identity", grant.Identity, "jti", jti, "dynamic", grant.Dynamic())

	return core.CredentialPair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

func (s *AuthService) revocationTTL(refreshExpiry time.Time) time.Duration {
	ttl := refreshExpiry.Sub(s.now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	return ttl
}

// Event delivery is best effort; the store update is the part that matters.
func (s *AuthService) publishIssued(ctx context.Context, identity, jti string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishIssued(ctx, identity, jti); err != nil {
		s.log.Warn("failed to publish issued event", "jti", jti, "error", err)
	}
}

func (s *AuthService) publishRevoked(ctx context.Context, identity, jti string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRevoked(ctx, identity, jti); err != nil {
		s.log.Warn("failed to publish revoked event", "jti", jti, "error", err)
	}
}
