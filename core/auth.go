package core

import (
	"math/big"
	"time"
)

// Kind discriminates the two credential flavors sharing one wire shape.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Requirement is the (chain, contract, token id) tuple an identity must
// satisfy for a grant. In static mode it comes from configuration; in
// dynamic mode the contract and token id arrive with the request.
type Requirement struct {
	ChainID  uint64
	Contract string
	TokenID  *big.Int
}

// Grant records what an identity was granted at issuance time. Contract is
// empty for static grants; dynamic grants carry it so the gate can tell the
// two apart without consulting configuration.
type Grant struct {
	Identity string   `json:"identity"`
	TokenID  *big.Int `json:"token_id"`
	Contract string   `json:"contract,omitempty"`
}

// Dynamic reports whether the grant self-describes its requirement.
func (g Grant) Dynamic() bool {
	return g.Contract != ""
}

// Credential is the decoded form of a signed access or refresh token.
// A credential is valid for [IssuedAt, Expiry).
type Credential struct {
	Kind     Kind
	Grant    Grant
	JTI      string
	IssuedAt time.Time
	Expiry   time.Time
}

// Session links a live refresh credential to its identity, grant and jti.
// It is created at issuance, consumed at rotation and reclaimed once
// RefreshExpiry has passed.
type Session struct {
	Identity      string    `json:"identity"`
	Grant         Grant     `json:"grant"`
	JTI           string    `json:"jti"`
	CreatedAt     time.Time `json:"created_at"`
	RefreshExpiry time.Time `json:"refresh_expiry"`
}

// CredentialPair is the issuance result: sibling access and refresh tokens
// sharing one jti, plus their absolute expiries.
type CredentialPair struct {
	AccessToken   string
	RefreshToken  string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}
