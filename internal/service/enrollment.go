package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/keycloak"
	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/notify"
	"github.com/iliyamo/training-management/internal/repository"
)

// TemporaryPasswordTTL is the validity window announced to the student.
// Keycloak does not enforce it; the credential is marked temporary so the
// student must replace it on first login.
const TemporaryPasswordTTL = 24 * time.Hour

const maxPhoneLength = 32

// EnrollInput is the admin's enrollment request.
type EnrollInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	BatchID   string
}

// BatchInfo identifies the batch a student was enrolled into.
type BatchInfo struct {
	BatchID   string `json:"batchId"`
	BatchCode string `json:"batchCode"`
	BatchName string `json:"batchName"`
}

// EnrollResult is returned to the admin.  TemporaryPassword is included so
// the admin is never blocked on email delivery.
type EnrollResult struct {
	UserID            string    `json:"userId"`
	KeycloakID        string    `json:"keycloakId"`
	Email             string    `json:"email"`
	TemporaryPassword string    `json:"temporaryPassword"`
	PasswordExpiry    time.Time `json:"passwordExpiry"`
	BatchInfo         BatchInfo `json:"batchInfo"`
}

// EnrollmentService creates students across Keycloak and the local store.
//
// Enrollment is a saga.  The email is first reserved by a pending local
// user (the unique index serialises concurrent attempts), then the Keycloak
// account is created and recorded on the reservation, the membership link
// is made and finally the user is activated.  Any failure undoes what the
// call did.  A reservation abandoned by a crashed process is reclaimed
// after PendingLease and the enrollment resumes, reusing only the Keycloak
// account recorded on the reservation.
type EnrollmentService struct {
	Users        UserStore
	Batches      BatchStore
	Members      MembershipStore
	IdP          IdentityProvider
	Mail         notify.Sender
	Passwords    PasswordPolicy
	PendingLease time.Duration
	Log          *zap.Logger

	now func() time.Time
}

func NewEnrollmentService(users UserStore, batches BatchStore, members MembershipStore, idp IdentityProvider,
	mail notify.Sender, passwords PasswordPolicy, lease time.Duration, log *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		Users: users, Batches: batches, Members: members, IdP: idp, Mail: mail,
		Passwords: passwords, PendingLease: lease, Log: log, now: time.Now,
	}
}

// enrollment tracks what a single Enroll call has done so far.
type enrollment struct {
	user       model.User
	resumed    bool
	keycloakID string // account owned by this enrollment, created or recorded
	linked     bool
}

// Enroll creates a student account, links it to a batch and sends the
// welcome email.
func (s *EnrollmentService) Enroll(ctx context.Context, in EnrollInput) (EnrollResult, error) {
	in = trimEnrollInput(in)
	if err := validateEnroll(in); err != nil {
		return EnrollResult{}, err
	}

	batch, err := s.Batches.GetByID(ctx, in.BatchID)
	if errors.Is(err, repository.ErrNotFound) {
		return EnrollResult{}, NotFound("batch")
	}
	if err != nil {
		return EnrollResult{}, Internal("load batch", err)
	}

	e, err := s.reserve(ctx, in)
	if err != nil {
		return EnrollResult{}, err
	}
	log := s.Log.With(zap.String("user_id", e.user.ID), zap.String("batch_id", batch.ID), zap.Bool("resumed", e.resumed))

	password, err := s.Passwords.Generate()
	if err != nil {
		s.compensate(ctx, e, log)
		return EnrollResult{}, Internal("generate temporary password", err)
	}

	if err := s.provision(ctx, e, password); err != nil {
		s.compensate(ctx, e, log)
		return EnrollResult{}, mapProvisionError(err)
	}
	if e.keycloakID != e.user.KeycloakID {
		if err := s.record(ctx, e); err != nil {
			s.compensate(ctx, e, log)
			return EnrollResult{}, err
		}
	}

	if _, err := s.Members.Assign(ctx, e.user.ID, batch.ID); err != nil {
		s.compensate(ctx, e, log)
		return EnrollResult{}, Internal("link student to batch", err)
	}
	e.linked = true

	if err := s.Users.Activate(ctx, e.user.ID, e.keycloakID); err != nil {
		s.compensate(ctx, e, log)
		if errors.Is(err, repository.ErrIdentityLinked) {
			return EnrollResult{}, Conflict("identity provider account already linked to another user", err)
		}
		return EnrollResult{}, Internal("activate student", err)
	}

	expiry := s.now().UTC().Add(TemporaryPasswordTTL).Truncate(time.Second)
	log.Info("student enrolled", zap.String("keycloak_id", e.keycloakID))

	welcome := notify.Message{
		To:       e.user.Email,
		Template: notify.TemplateStudentWelcome,
		Vars: map[string]string{
			"firstName":         in.FirstName,
			"lastName":          in.LastName,
			"email":             e.user.Email,
			"batchName":         batch.Name,
			"temporaryPassword": password,
			"passwordExpiry":    expiry.Format(time.RFC3339),
		},
	}
	if err := s.Mail.Send(ctx, welcome); err != nil {
		log.Warn("welcome email not sent", zap.Error(err))
	}

	return EnrollResult{
		UserID:            e.user.ID,
		KeycloakID:        e.keycloakID,
		Email:             e.user.Email,
		TemporaryPassword: password,
		PasswordExpiry:    expiry,
		BatchInfo:         BatchInfo{BatchID: batch.ID, BatchCode: batch.BatchCode, BatchName: batch.Name},
	}, nil
}

// reserve claims the email with a pending user, or reclaims a stale
// reservation.
func (s *EnrollmentService) reserve(ctx context.Context, in EnrollInput) (*enrollment, error) {
	existing, err := s.Users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil && !existing.IsPending():
		return nil, Conflict("a user with this email already exists", nil)
	case err == nil:
		ok, err := s.Users.ReclaimPending(ctx, existing.ID, s.now().UTC().Add(-s.PendingLease))
		if err != nil {
			return nil, Internal("reclaim enrollment", err)
		}
		if !ok {
			return nil, Conflict("an enrollment for this email is already in progress", nil)
		}
		s.Log.Info("resuming interrupted enrollment", zap.String("user_id", existing.ID))
		return &enrollment{user: existing, resumed: true, keycloakID: existing.KeycloakID}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, Internal("look up user", err)
	}

	since := s.now().UTC()
	u := model.User{
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         model.RoleStudent,
		Status:       model.UserStatusPending,
		PendingSince: &since,
	}
	if in.Phone != "" {
		phone := in.Phone
		u.Phone = &phone
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, Conflict("a user with this email already exists", err)
		}
		return nil, Internal("reserve email", err)
	}
	return &enrollment{user: u}, nil
}

// provision creates the Keycloak account.  A resumed enrollment first
// tries the account recorded by the interrupted attempt and gives it the new
// password; an account with the same email that was never recorded is not
// ours and surfaces as ErrDuplicateUser.
func (s *EnrollmentService) provision(ctx context.Context, e *enrollment, password string) error {
	if e.keycloakID != "" {
		err := s.IdP.ResetPassword(ctx, e.keycloakID, password, true)
		if !errors.Is(err, keycloak.ErrUserNotFound) {
			return err
		}
		// removed from Keycloak since; start over
		e.keycloakID = ""
	}

	id, err := s.IdP.CreateUser(ctx, keycloak.NewUser{
		Username:  e.user.Email,
		Email:     e.user.Email,
		FirstName: e.user.FirstName,
		LastName:  e.user.LastName,
		Password:  password,
		Temporary: true,
	})
	if err != nil {
		return err
	}
	e.keycloakID = id
	return nil
}

// record stores the new Keycloak id on the reservation so a resumed
// enrollment can tell its own account from a foreign one.
func (s *EnrollmentService) record(ctx context.Context, e *enrollment) error {
	ok, err := s.Users.LinkPending(ctx, e.user.ID, e.keycloakID)
	switch {
	case errors.Is(err, repository.ErrIdentityLinked):
		return Conflict("identity provider account already linked to another user", err)
	case err != nil:
		return Internal("record identity provider account", err)
	case !ok:
		return Conflict("enrollment reservation is no longer pending", nil)
	}
	e.user.KeycloakID = e.keycloakID
	return nil
}

// compensate undoes the steps recorded in e.  It runs detached from the
// request so a cancelled client does not leave half an enrollment behind.
// Failures are logged; the original error is what the caller sees.
func (s *EnrollmentService) compensate(ctx context.Context, e *enrollment, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	if e.linked || e.resumed {
		// the user is still pending, so every link it has belongs to this
		// enrollment or to the interrupted one
		if err := s.Members.RemoveByStudent(ctx, e.user.ID); err != nil {
			log.Error("compensation: remove memberships failed", zap.Error(err))
		}
	}
	if e.keycloakID != "" {
		if err := s.IdP.DeleteUser(ctx, e.keycloakID); err != nil {
			log.Error("compensation: delete keycloak user failed", zap.String("keycloak_id", e.keycloakID), zap.Error(err))
		}
	}
	if err := s.Users.DeletePending(ctx, e.user.ID); err != nil {
		log.Error("compensation: delete pending user failed", zap.Error(err))
	}
	log.Warn("enrollment rolled back")
}

// mapProvisionError translates a Keycloak failure into the service taxonomy.
func mapProvisionError(err error) error {
	switch {
	case errors.Is(err, keycloak.ErrDuplicateUser):
		return Conflict("a user with this email already exists in the identity provider", err)
	case errors.Is(err, keycloak.ErrMisconfigured):
		return ConfigurationError(err)
	}
	return IdentityProviderError(err)
}

func trimEnrollInput(in EnrollInput) EnrollInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = repository.NormalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.BatchID = strings.TrimSpace(in.BatchID)
	return in
}

func validateEnroll(in EnrollInput) error {
	f := fieldErrors{}
	f.name("firstName", in.FirstName)
	f.name("lastName", in.LastName)
	f.email("email", in.Email)
	f.required("batchId", in.BatchID)
	if len(in.Phone) > maxPhoneLength {
		f["phone"] = fmt.Sprintf("phone must be at most %d characters", maxPhoneLength)
	}
	return f.err("invalid enrollment request")
}
