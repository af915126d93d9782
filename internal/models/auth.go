package models

import "github.com/golang-jwt/jwt/v5"

// Token types accepted by the verifier API
const (
	TokenTypeAccess = "access"
)

// TokenClaims identifies a member on authenticated pass endpoints.
// UserID doubles as the pass subject identifier.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
