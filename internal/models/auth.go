package models

import "github.com/golang-jwt/jwt/v5"

// UserRole scopes what an authenticated operator may do.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleOperator   UserRole = "OPERATOR"
)

// JWTClaims are the token claims issued by the external identity provider.
// This service only validates and reads them.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
