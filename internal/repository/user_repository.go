package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/training-management/internal/database"
	"github.com/iliyamo/training-management/internal/model"
)

type UserRepo struct{ col *mongo.Collection }

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{col: db.Collection(database.UsersCollection)}
}

// NormalizeEmail lower-cases and trims an address so lookups and the unique
// index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u, assigning an id and timestamps when missing.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		switch {
		case duplicateOn(err, "uniq_email"):
			return ErrEmailExists
		case duplicateOn(err, "uniq_keycloak_id"):
			return ErrIdentityLinked
		case mongo.IsDuplicateKeyError(err):
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.col.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&u)
	return u, notFound(err)
}

// GetByKeycloakID fetches the user linked to a Keycloak account.
func (r *UserRepo) GetByKeycloakID(ctx context.Context, keycloakID string) (model.User, error) {
	var u model.User
	err := r.col.FindOne(ctx, bson.M{"keycloak_id": keycloakID}).Decode(&u) // sparse unique index
	return u, notFound(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	return u, notFound(err)
}

// GetByIDs returns the users among ids that exist, in no particular order.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var out []model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of users with the given role (any role when empty),
// newest first, plus the total matching count.  Pending reservations are
// never listed.
func (r *UserRepo) List(ctx context.Context, role string, p Page) ([]model.User, int64, error) {
	filter := activeUsers(role)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.col.Find(ctx, filter, findPage(p))
	if err != nil {
		return nil, 0, err
	}
	var out []model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CountByRole counts active users holding role.
func (r *UserRepo) CountByRole(ctx context.Context, role string) (int64, error) {
	return r.col.CountDocuments(ctx, activeUsers(role))
}

func activeUsers(role string) bson.M {
	filter := bson.M{"status": bson.M{"$ne": model.UserStatusPending}}
	if role != "" {
		filter["role"] = role
	}
	return filter
}

// UpdateRole sets the role and returns the updated document.
func (r *UserRepo) UpdateRole(ctx context.Context, id, role string) (model.User, error) {
	var u model.User
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	return u, notFound(err)
}

// UpdateEmail replaces the stored address and returns the updated document.
// An address held by another user yields ErrEmailExists.
func (r *UserRepo) UpdateEmail(ctx context.Context, id, email string) (model.User, error) {
	var u model.User
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"email": NormalizeEmail(email), "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if duplicateOn(err, "uniq_email") {
		return model.User{}, ErrEmailExists
	}
	return u, notFound(err)
}

// LinkPending records the Keycloak account created for a reservation that
// is still pending.  It reports false when the record is no longer pending.
func (r *UserRepo) LinkPending(ctx context.Context, id, keycloakID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.UserStatusPending},
		bson.M{"$set": bson.M{"keycloak_id": keycloakID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		if duplicateOn(err, "uniq_keycloak_id") {
			return false, ErrIdentityLinked
		}
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// Activate links a user to its Keycloak account and ends its pending state.
func (r *UserRepo) Activate(ctx context.Context, id, keycloakID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"keycloak_id": keycloakID, "status": model.UserStatusActive, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"pending_since": ""},
		},
	)
	if err != nil {
		if duplicateOn(err, "uniq_keycloak_id") {
			return ErrIdentityLinked
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ReclaimPending takes over a pending reservation whose pending_since is
// older than staleBefore.  It reports false when the record is not pending
// or is still fresh.  The check and the update are one atomic write, so
// only one caller can reclaim a given reservation.
func (r *UserRepo) ReclaimPending(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"_id":           id,
			"status":        model.UserStatusPending,
			"pending_since": bson.M{"$lt": staleBefore},
		},
		bson.M{"$set": bson.M{"pending_since": now, "updated_at": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// DeletePending removes a reservation.  Active users are left untouched.
func (r *UserRepo) DeletePending(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "status": model.UserStatusPending})
	return err
}
