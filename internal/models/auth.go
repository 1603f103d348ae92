package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by transport session tokens. Token
// issuance lives entirely in the HTTP layer; the security engine itself never
// creates or inspects tokens.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
