package models

import "github.com/golang-jwt/jwt/v5"

// Permissions carried in access tokens.
const (
	PermissionTransferRead  = "transfer:read"
	PermissionTransferWrite = "transfer:write"
	PermissionAdmin         = "admin:read"
)

// UserClaims are the access-token claims the API accepts. UserID is the
// requester identity matched against account ownership.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Requester is the authenticated caller of a transfer operation.
type Requester struct {
	UserID    string
	AuthToken string
}
