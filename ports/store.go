package ports

import (
	"context"
	"time"

	"github.com/layer-3/tokengate/core"
)

// Store holds session records keyed by the serialized refresh token, plus
// the revocation set keyed by jti. Only the credential issuer mutates it;
// the authorization gate reads it.
type Store interface {
	// SaveSession records a session under its refresh token.
	SaveSession(ctx context.Context, refreshToken string, session core.Session) error

	// GetSession looks up a session by refresh token. An expired or absent
	// record reports found=false, not an error.
	GetSession(ctx context.Context, refreshToken string) (session core.Session, found bool, err error)

	// DeleteSession removes a session by refresh token.
	DeleteSession(ctx context.Context, refreshToken string) error

	// DeleteSessionByJTI removes the session whose jti matches, if any.
	DeleteSessionByJTI(ctx context.Context, jti string) error

	// Revoke adds a jti to the revocation set for at least ttl. Revoking an
	// already-revoked jti is a no-op.
	Revoke(ctx context.Context, jti string, ttl time.Duration) error

	// IsRevoked checks the revocation set.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Sweeper is implemented by stores that need a periodic pass to reclaim
// expired entries. Stores with native per-key expiry do not implement it.
type Sweeper interface {
	// Sweep removes expired sessions and revocation entries, returning how
	// many were reclaimed.
	Sweep(ctx context.Context) (int, error)
}
