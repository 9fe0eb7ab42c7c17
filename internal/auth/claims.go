package auth

import (
	"time"
)

// AccessClaims represents the claims stored in a PASETO access token.
// The subject is the owner every task library request is scoped to.
type AccessClaims struct {
	Owner string `json:"owner"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
