package keycloak

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/training-management/internal/model"
)

// Role names that make a Keycloak user an administrator of this system.
var (
	adminRealmRoles = []string{"admin", "realm-admin"}
	adminClient     = "realm-management"
	adminClientRole = "manage-users"
)

// RoleList is the {"roles": [...]} shape Keycloak uses for realm and client roles.
type RoleList struct {
	Roles []string `json:"roles"`
}

// Claims is the subset of a Keycloak access token the backend reads.
type Claims struct {
	Email             string              `json:"email"`
	GivenName         string              `json:"given_name"`
	FamilyName        string              `json:"family_name"`
	PreferredUsername string              `json:"preferred_username"`
	RealmAccess       RoleList            `json:"realm_access"`
	ResourceAccess    map[string]RoleList `json:"resource_access"`
	jwt.RegisteredClaims
}

// Role maps realm and client roles onto the local role model: admin when
// the token lists an administrative realm role or realm-management's
// manage-users, student otherwise.
func (c *Claims) Role() string {
	for _, r := range adminRealmRoles {
		if slices.Contains(c.RealmAccess.Roles, r) {
			return model.RoleAdmin
		}
	}
	if slices.Contains(c.ResourceAccess[adminClient].Roles, adminClientRole) {
		return model.RoleAdmin
	}
	return model.RoleStudent
}
