package ports

import "github.com/layer-3/tokengate/core"

// Tokenizer converts between decoded credentials and their signed wire form.
type Tokenizer interface {
	// Encode signs a credential.
	Encode(credential core.Credential) (string, error)

	// DecodeAccess verifies and decodes an access token. Returns
	// core.ErrTokenExpired for a valid-but-expired token,
	// core.ErrWrongTokenKind for a refresh token, and
	// core.ErrTokenMalformed for anything else.
	DecodeAccess(token string) (core.Credential, error)

	// DecodeRefresh is DecodeAccess for refresh tokens.
	DecodeRefresh(token string) (core.Credential, error)
}
