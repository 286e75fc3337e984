package tokenizer

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/tokengate/core"
)

const testIdentity = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func testCredential(kind core.Kind, issuedAt time.Time, ttl time.Duration) core.Credential {
	return core.Credential{
		Kind: kind,
		Grant: core.Grant{
			Identity: testIdentity,
			TokenID:  big.NewInt(7),
		},
		JTI:      "jti-1",
		IssuedAt: issuedAt,
		Expiry:   issuedAt.Add(ttl),
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewJWTTokenizer([]byte("secret"))
	now := time.Now()

	for _, kind := range []core.Kind{core.KindAccess, core.KindRefresh} {
		credential := testCredential(kind, now, time.Hour)
		credential.Grant.Contract = "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"

		signed, err := codec.Encode(credential)
		require.NoError(t, err)

		var decoded core.Credential
		if kind == core.KindAccess {
			decoded, err = codec.DecodeAccess(signed)
		} else {
			decoded, err = codec.DecodeRefresh(signed)
		}
		require.NoError(t, err)

		assert.Equal(t, credential.Kind, decoded.Kind)
		assert.Equal(t, credential.JTI, decoded.JTI)
		assert.Equal(t, credential.Grant.Identity, decoded.Grant.Identity)
		assert.Equal(t, credential.Grant.Contract, decoded.Grant.Contract)
		assert.Zero(t, credential.Grant.TokenID.Cmp(decoded.Grant.TokenID))
		assert.WithinDuration(t, credential.Expiry, decoded.Expiry, time.Second)
	}
}

func TestDecode_KindConfusion(t *testing.T) {
	t.Parallel()

	codec := NewJWTTokenizer([]byte("secret"))
	now := time.Now()

	access, err := codec.Encode(testCredential(core.KindAccess, now, time.Hour))
	require.NoError(t, err)
	refresh, err := codec.Encode(testCredential(core.KindRefresh, now, time.Hour))
	require.NoError(t, err)

	_, err = codec.DecodeAccess(refresh)
	assert.ErrorIs(t, err, core.ErrWrongTokenKind)

	_, err = codec.DecodeRefresh(access)
	assert.ErrorIs(t, err, core.ErrWrongTokenKind)
}

func TestDecode_ExpiredIsDistinctFromMalformed(t *testing.T) {
	t.Parallel()

	clock := time.Now()
	codec := NewJWTTokenizerWithClock([]byte("secret"), func() time.Time { return clock })

	signed, err := codec.Encode(testCredential(core.KindAccess, clock.Add(-2*time.Hour), time.Hour))
	require.NoError(t, err)

	_, err = codec.DecodeAccess(signed)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.NotErrorIs(t, err, core.ErrTokenMalformed)

	_, err = codec.DecodeAccess("not-a-token")
	assert.ErrorIs(t, err, core.ErrTokenMalformed)
}

func TestDecode_WrongSecret(t *testing.T) {
	t.Parallel()

	signer := NewJWTTokenizer([]byte("secret-a"))
	verifier := NewJWTTokenizer([]byte("secret-b"))

	signed, err := signer.Encode(testCredential(core.KindAccess, time.Now(), time.Hour))
	require.NoError(t, err)

	_, err = verifier.DecodeAccess(signed)
	assert.ErrorIs(t, err, core.ErrTokenMalformed)
}

func TestDecode_ValidityIntervalIsClosedOpen(t *testing.T) {
	t.Parallel()

	issuedAt := time.Now().Truncate(time.Second)
	expiry := issuedAt.Add(time.Minute)

	credential := testCredential(core.KindAccess, issuedAt, time.Minute)

	// Valid one instant before expiry.
	before := NewJWTTokenizerWithClock([]byte("secret"), func() time.Time { return expiry.Add(-time.Second) })
	signed, err := before.Encode(credential)
	require.NoError(t, err)
	_, err = before.DecodeAccess(signed)
	require.NoError(t, err)

	// Invalid at the expiry instant itself.
	at := NewJWTTokenizerWithClock([]byte("secret"), func() time.Time { return expiry })
	_, err = at.DecodeAccess(signed)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestEncode_NilTokenID(t *testing.T) {
	t.Parallel()

	codec := NewJWTTokenizer([]byte("secret"))
	credential := testCredential(core.KindAccess, time.Now(), time.Hour)
	credential.Grant.TokenID = nil

	_, err := codec.Encode(credential)
	require.Error(t, err)
}

func TestUnverifiedSubject(t *testing.T) {
	t.Parallel()

	codec := NewJWTTokenizer([]byte("secret"))
	signed, err := codec.Encode(testCredential(core.KindAccess, time.Now(), time.Hour))
	require.NoError(t, err)

	subject, ok := UnverifiedSubject(signed)
	require.True(t, ok)
	assert.Equal(t, testIdentity, subject)

	// Extraction succeeds even when the signature would not verify; the
	// value is only ever a rate-limit key.
	other := NewJWTTokenizer([]byte("different-secret"))
	foreign, err := other.Encode(testCredential(core.KindAccess, time.Now(), time.Hour))
	require.NoError(t, err)

	subject, ok = UnverifiedSubject(foreign)
	require.True(t, ok)
	assert.Equal(t, testIdentity, subject)

	_, ok = UnverifiedSubject("junk")
	assert.False(t, ok)
}
