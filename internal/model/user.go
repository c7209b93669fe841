package model

import "time"

// Roles a local user can hold.  Keycloak is authoritative; the local copy is
// refreshed on every login.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User lifecycle states.  A pending user is an email reservation made by an
// enrollment that has not finished; only active users are visible as
// students.  Records written before the status field existed have an empty
// status and count as active.
const (
	UserStatusPending = "pending"
	UserStatusActive  = "active"
)

// User is the local mirror of a Keycloak account, stored in the `users`
// collection.  Email is the business key (unique, lower-cased) and
// KeycloakID links the record to the identity provider.
type User struct {
	ID           string     `bson:"_id" json:"id"`
	KeycloakID   string     `bson:"keycloak_id,omitempty" json:"keycloakId,omitempty"`
	Email        string     `bson:"email" json:"email"`
	FirstName    string     `bson:"first_name" json:"firstName"`
	LastName     string     `bson:"last_name" json:"lastName"`
	Role         string     `bson:"role" json:"role"`
	Phone        *string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Status       string     `bson:"status,omitempty" json:"status,omitempty"`
	PendingSince *time.Time `bson:"pending_since,omitempty" json:"-"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updatedAt"`
}

// DisplayName joins first and last name, trimmed.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsPending reports whether the record is an unfinished enrollment.
func (u User) IsPending() bool { return u.Status == UserStatusPending }
