package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/training-management/internal/keycloak"
	"github.com/iliyamo/training-management/internal/model"
	"github.com/iliyamo/training-management/internal/repository"
)

// defaultFirstName is stored when a token carries no given_name.
const defaultFirstName = "User"

// UserView is the public projection of a local user.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResult carries the provider's tokens and the synced local user.
type LoginResult struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int      `json:"expiresIn"`
	User         UserView `json:"user"`
}

// SignupInput is a self-service registration.
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// AuthService authenticates against Keycloak and keeps the local user
// directory in step with it.  Keycloak is authoritative for credentials and
// roles; the local record is a mirror refreshed on every login.
type AuthService struct {
	Users    UserStore
	IdP      IdentityProvider
	Verifier TokenVerifier
	Log      *zap.Logger
}

func NewAuthService(users UserStore, idp IdentityProvider, verifier TokenVerifier, log *zap.Logger) *AuthService {
	return &AuthService{Users: users, IdP: idp, Verifier: verifier, Log: log}
}

// Login exchanges credentials for tokens and syncs the local user.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	f := fieldErrors{}
	f.required("username", username)
	f.required("password", password)
	if err := f.err("username and password are required"); err != nil {
		return LoginResult{}, err
	}

	ts, err := s.IdP.PasswordGrant(ctx, username, password)
	if err != nil {
		return LoginResult{}, grantError(err)
	}
	if ts.AccessToken == "" {
		return LoginResult{}, InvalidToken("identity provider returned no access token", nil)
	}

	claims, err := s.Verifier.Verify(ctx, ts.AccessToken)
	if err != nil {
		return LoginResult{}, InvalidToken("access token could not be verified", err)
	}

	id := identity{
		subject:   claims.Subject,
		email:     claims.Email,
		firstName: claims.GivenName,
		lastName:  claims.FamilyName,
		role:      claims.Role(),
	}
	if id.email == "" {
		ui, err := s.IdP.UserInfo(ctx, ts.AccessToken)
		if err != nil {
			s.Log.Warn("userinfo lookup failed", zap.String("sub", id.subject), zap.Error(err))
		}
		id.email = ui.Email
		if id.firstName == "" {
			id.firstName = ui.GivenName
		}
		if id.lastName == "" {
			id.lastName = ui.FamilyName
		}
	}
	if id.email == "" {
		return LoginResult{}, InvalidToken("access token carries no email", nil)
	}

	u, err := s.sync(ctx, id)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:        ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresIn:    ts.ExpiresIn,
		User:         viewOf(u),
	}, nil
}

// identity is what a verified token says about its holder.
type identity struct {
	subject   string
	email     string
	firstName string
	lastName  string
	role      string
}

// sync makes the local user match id: it creates a missing user, finishes
// a pending one and follows role changes.
func (s *AuthService) sync(ctx context.Context, id identity) (model.User, error) {
	log := s.Log.With(zap.String("email", id.email), zap.String("sub", id.subject))

	u, err := s.Users.GetByEmail(ctx, id.email)
	if errors.Is(err, repository.ErrNotFound) && id.subject != "" {
		// the address may have changed in Keycloak; the subject has not
		u, err = s.relink(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return model.User{}, err
		}
	}
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.provision(ctx, id)
		if err != nil {
			return model.User{}, err
		}
		log.Info("user provisioned on first login", zap.String("user_id", u.ID), zap.String("role", u.Role))
		return u, nil
	}
	if err != nil {
		return model.User{}, Internal("look up user", err)
	}

	if u.IsPending() {
		if err := s.Users.Activate(ctx, u.ID, id.subject); err != nil {
			return model.User{}, Internal("activate user", err)
		}
		u.Status, u.KeycloakID = model.UserStatusActive, id.subject
		log.Info("pending user activated on login", zap.String("user_id", u.ID))
	}

	if u.Role != id.role {
		updated, err := s.Users.UpdateRole(ctx, u.ID, id.role)
		if err != nil {
			return model.User{}, Internal("update role", err)
		}
		log.Info("role synced from identity provider", zap.String("from", u.Role), zap.String("to", id.role))
		u = updated
	}
	return u, nil
}

// relink finds the user by Keycloak subject and adopts the token's email.
// repository.ErrNotFound is returned as is when no user holds the subject.
func (s *AuthService) relink(ctx context.Context, id identity) (model.User, error) {
	u, err := s.Users.GetByKeycloakID(ctx, id.subject)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}
	if err != nil {
		return model.User{}, Internal("look up user by subject", err)
	}
	previous := u.Email
	u, err = s.Users.UpdateEmail(ctx, u.ID, id.email)
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, Conflict("email already belongs to another user", err)
	}
	if err != nil {
		return model.User{}, Internal("update email", err)
	}
	s.Log.Info("email synced from identity provider",
		zap.String("user_id", u.ID), zap.String("from", previous), zap.String("to", u.Email))
	return u, nil
}

// provision creates the local mirror of a Keycloak user.  A concurrent
// login that inserted the same email first wins; its record is returned.
func (s *AuthService) provision(ctx context.Context, id identity) (model.User, error) {
	first := strings.TrimSpace(id.firstName)
	if first == "" {
		first = defaultFirstName
	}
	u := model.User{
		KeycloakID: id.subject,
		Email:      id.email,
		FirstName:  first,
		LastName:   strings.TrimSpace(id.lastName),
		Role:       id.role,
		Status:     model.UserStatusActive,
	}
	err := s.Users.Create(ctx, &u)
	if errors.Is(err, repository.ErrEmailExists) {
		existing, err := s.Users.GetByEmail(ctx, id.email)
		if err != nil {
			return model.User{}, Internal("re-read user", err)
		}
		return existing, nil
	}
	if errors.Is(err, repository.ErrIdentityLinked) {
		return model.User{}, Conflict("identity provider account already linked to another user", err)
	}
	if err != nil {
		return model.User{}, Internal("create user", err)
	}
	return u, nil
}

// Signup registers a student with a permanent password.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (string, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = repository.NormalizeEmail(in.Email)
	f := fieldErrors{}
	f.name("firstName", in.FirstName)
	f.name("lastName", in.LastName)
	f.email("email", in.Email)
	f.required("password", in.Password)
	if err := f.err("invalid signup request"); err != nil {
		return "", err
	}

	if _, err := s.Users.GetByEmail(ctx, in.Email); err == nil {
		return "", Conflict("a user with this email already exists", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", Internal("look up user", err)
	}

	kcID, err := s.IdP.CreateUser(ctx, keycloak.NewUser{
		Username:  in.Email,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  in.Password,
	})
	if err != nil {
		return "", mapProvisionError(err)
	}

	u := model.User{
		KeycloakID: kcID,
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Role:       model.RoleStudent,
		Status:     model.UserStatusActive,
	}
	if err := s.Users.Create(ctx, &u); err != nil {
		if derr := s.IdP.DeleteUser(context.WithoutCancel(ctx), kcID); derr != nil {
			s.Log.Error("signup: delete keycloak user failed", zap.String("keycloak_id", kcID), zap.Error(derr))
		}
		if errors.Is(err, repository.ErrEmailExists) {
			return "", Conflict("a user with this email already exists", err)
		}
		return "", Internal("create user", err)
	}
	s.Log.Info("user signed up", zap.String("user_id", u.ID))
	return u.ID, nil
}

// Refresh exchanges a refresh token.  The provider's response is passed
// through untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ValidationError("refreshToken is required", map[string]string{"refreshToken": "refreshToken is required"})
	}
	body, err := s.IdP.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, grantError(err)
	}
	return body, nil
}

// Me returns the local user behind a verified token's email.
func (s *AuthService) Me(ctx context.Context, email string) (UserView, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return UserView{}, lookupError("user", err)
	}
	return viewOf(u), nil
}

// grantError maps a failed token grant.  Anything the provider answered
// with a 4xx is an authentication failure carrying the provider's status.
func grantError(err error) error {
	var pe *keycloak.ProviderError
	if errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500 {
		msg := pe.Description
		if msg == "" {
			msg = "invalid credentials"
		}
		return Unauthorized(msg, pe.Status, err)
	}
	if errors.Is(err, keycloak.ErrMisconfigured) {
		return ConfigurationError(err)
	}
	return IdentityProviderError(err)
}

func viewOf(u model.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Name: u.DisplayName(), Role: u.Role}
}
