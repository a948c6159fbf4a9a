package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the portal roles carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleMentor  UserRole = "MENTOR"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether r is a known portal role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleMentor, RoleStudent:
		return true
	}
	return false
}

// EvaluatorRoleFor maps a portal role to the evaluation it may submit.
func EvaluatorRoleFor(role UserRole) (EvaluatorRole, bool) {
	switch role {
	case RoleMentor:
		return EvaluatorMentor, true
	case RoleTeacher:
		return EvaluatorTeacher, true
	case RoleStudent:
		return EvaluatorSelf, true
	}
	return "", false
}

// JWTClaims represents the access token payload issued by the auth service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
