package tokenizer

import "github.com/golang-jwt/jwt/v5"

// GrantClaims is the single wire shape shared by access and refresh tokens,
// discriminated by the Type field.
type GrantClaims struct {
	jwt.RegisteredClaims
	Type     string `json:"type"`
	TokenID  string `json:"tid"`
	Contract string `json:"contract,omitempty"`
}
