package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iliyamo/training-management/internal/keycloak"
	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

// UserStore is the user directory.  *repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByKeycloakID(ctx context.Context, keycloakID string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	List(ctx context.Context, role string, p repository.Page) ([]model.User, int64, error)
	CountByRole(ctx context.Context, role string) (int64, error)
	UpdateRole(ctx context.Context, id, role string) (model.User, error)
	UpdateEmail(ctx context.Context, id, email string) (model.User, error)
	LinkPending(ctx context.Context, id, keycloakID string) (bool, error)
	Activate(ctx context.Context, id, keycloakID string) error
	ReclaimPending(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	DeletePending(ctx context.Context, id string) error
}

// BatchStore is implemented by *repository.BatchRepo.
type BatchStore interface {
	Create(ctx context.Context, b *model.Batch) error
	GetByID(ctx context.Context, id string) (model.Batch, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Batch, error)
	List(ctx context.Context, status string, p repository.Page) ([]model.Batch, int64, error)
	Count(ctx context.Context) (int64, error)
}

// MembershipStore is implemented by *repository.StudentBatchRepo.
type MembershipStore interface {
	Assign(ctx context.Context, studentID, batchID string) (model.StudentBatch, error)
	RemoveByStudent(ctx context.Context, studentID string) error
	ListByBatch(ctx context.Context, batchID string) ([]model.StudentBatch, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.StudentBatch, error)
}

// IdentityProvider is the subset of *keycloak.Client the services call.
type IdentityProvider interface {
	PasswordGrant(ctx context.Context, username, password string) (keycloak.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error)
	UserInfo(ctx context.Context, accessToken string) (keycloak.UserInfo, error)
	CreateUser(ctx context.Context, u keycloak.NewUser) (string, error)
	ResetPassword(ctx context.Context, id, password string, temporary bool) error
	DeleteUser(ctx context.Context, id string) error
}

// TokenVerifier checks an access token's signature and claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*keycloak.Claims, error)
}
