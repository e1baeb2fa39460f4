package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload accepted by lplens. UserID is the account that
// owns landing pages; Subject mirrors it for standard tooling.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}
