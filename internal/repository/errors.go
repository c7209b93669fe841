// Package repository defines the MongoDB-backed stores and the error values
// they share.  These sentinel values allow higher layers such as services
// to distinguish between different failure scenarios without looking at
// driver errors.
package repository

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when a lookup by id, email or code matches no
// document.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when inserting a user whose email is already
// taken.  It is raised by the unique index, not by a prior lookup.
var ErrEmailExists = errors.New("email already exists")

// ErrIdentityLinked is returned when a different local user is already
// linked to the same Keycloak account.
var ErrIdentityLinked = errors.New("identity already linked to another user")

// ErrConflict is returned when a write violates a uniqueness rule that has
// no more specific error.
var ErrConflict = errors.New("conflict")

// duplicateOn reports whether err is a duplicate-key error raised by the
// named index.  The driver only exposes the index name inside the server
// message, so the match is textual.
func duplicateOn(err error, index string) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), index)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
