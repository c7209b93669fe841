package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-management/internal/middleware"
	"github.com/iliyamo/training-management/internal/service"
)

// AuthService is implemented by *service.AuthService.
type AuthService interface {
	Login(ctx context.Context, username, password string) (service.LoginResult, error)
	Signup(ctx context.Context, in service.SignupInput) (string, error)
	Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error)
	Me(ctx context.Context, email string) (service.UserView, error)
}

// AuthHandler serves /auth.
type AuthHandler struct {
	Auth AuthService
}

func NewAuthHandler(a AuthService) *AuthHandler { return &AuthHandler{Auth: a} }

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupReq struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

// Login: POST /auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.Auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return ok(c, res)
}

// Signup: POST /auth/signup.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	id, err := h.Auth.Signup(c.Request().Context(), service.SignupInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}
	return created(c, "account created", echo.Map{"userId": id})
}

// Refresh: POST /auth/refresh.  The provider's token response is returned
// verbatim.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bind(c, &req); err != nil {
		return err
	}
	body, err := h.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, body)
}

// Me: GET /auth/me.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := h.Auth.Me(c.Request().Context(), middleware.Email(c))
	if err != nil {
		return err
	}
	return ok(c, u)
}
