package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload of access tokens issued by the upstream API.
type JWTClaims struct {
	UserID        string   `json:"user_id"`
	Role          UserRole `json:"role"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	InstitutionID int64    `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a gateway request.
type Principal struct {
	UserID        string   `json:"user_id"`
	Role          UserRole `json:"role"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	InstitutionID int64    `json:"institution_id,omitempty"`
	// Token is forwarded upstream unchanged.
	Token string `json:"-"`
}
