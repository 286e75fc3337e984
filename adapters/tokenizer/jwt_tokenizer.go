package tokenizer

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ports"
)

// JWTTokenizer implements the Tokenizer port with HS256 and a single shared
// signing secret.
type JWTTokenizer struct {
	secret []byte
	now    func() time.Time
}

// NewJWTTokenizer creates a tokenizer signing with the shared secret.
func NewJWTTokenizer(secret []byte) *JWTTokenizer {
	return NewJWTTokenizerWithClock(secret, time.Now)
}

// NewJWTTokenizerWithClock pins the time source used for expiry validation.
func NewJWTTokenizerWithClock(secret []byte, now func() time.Time) *JWTTokenizer {
	return &JWTTokenizer{secret: secret, now: now}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// Encode signs a credential as a JWT.
func (j *JWTTokenizer) Encode(credential core.Credential) (string, error) {
	if credential.Grant.TokenID == nil {
		return "", core.ErrInvalidRequest
	}

	claims := GrantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   credential.Grant.Identity,
			ID:        credential.JTI,
			IssuedAt:  jwt.NewNumericDate(credential.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(credential.Expiry),
		},
		Type:     string(credential.Kind),
		TokenID:  credential.Grant.TokenID.String(),
		Contract: credential.Grant.Contract,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", credential.Kind, err)
	}

	return signed, nil
}

// DecodeAccess verifies and decodes an access token.
func (j *JWTTokenizer) DecodeAccess(token string) (core.Credential, error) {
	return j.decode(token, core.KindAccess)
}

// DecodeRefresh verifies and decodes a refresh token.
func (j *JWTTokenizer) DecodeRefresh(token string) (core.Credential, error) {
	return j.decode(token, core.KindRefresh)
}

func (j *JWTTokenizer) decode(tokenStr string, kind core.Kind) (core.Credential, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &GrantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))

	if err != nil {
		// Expiry is recoverable via refresh; everything else is not. Report
		// the two as distinct conditions.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.Credential{}, core.ErrTokenExpired
		}
		return core.Credential{}, core.ErrTokenMalformed
	}

	if !token.Valid {
		return core.Credential{}, core.ErrTokenMalformed
	}

	claims, ok := token.Claims.(*GrantClaims)
	if !ok {
		return core.Credential{}, core.ErrTokenMalformed
	}

	if claims.Type != string(kind) {
		return core.Credential{}, core.ErrWrongTokenKind
	}

	tokenID, ok := new(big.Int).SetString(claims.TokenID, 10)
	if !ok || tokenID.Sign() < 0 {
		return core.Credential{}, core.ErrTokenMalformed
	}

	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return core.Credential{}, core.ErrTokenMalformed
	}

	return core.Credential{
		Kind: kind,
		Grant: core.Grant{
			Identity: claims.Subject,
			TokenID:  tokenID,
			Contract: claims.Contract,
		},
		JTI:      claims.ID,
		IssuedAt: claims.IssuedAt.Time,
		Expiry:   claims.ExpiresAt.Time,
	}, nil
}

// UnverifiedSubject extracts the subject claim WITHOUT verifying the
// signature. Only fit for rate-limit keying; never an authorization input.
func UnverifiedSubject(tokenStr string) (string, bool) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, &GrantClaims{})
	if err != nil {
		return "", false
	}
	claims, ok := token.Claims.(*GrantClaims)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
