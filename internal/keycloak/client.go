// Package keycloak talks to a Keycloak realm: token grants for end users,
// admin user management through a service account, and access-token
// verification against the realm's published keys.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxBody caps how much of a Keycloak response is read.
const maxBody = 1 << 20

// Config identifies the realm and the confidential client.
type Config struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
}

// TokenSet is the token endpoint's response.
type TokenSet struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
	IDToken          string `json:"id_token,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// NewUser is the input for CreateUser.  Temporary marks the password as one
// Keycloak forces the user to change on first login.
type NewUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Temporary bool
}

// UserInfo is the subset of the userinfo response the backend uses.
type UserInfo struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Client is safe for concurrent use.  One instance is built at startup and
// shared by every request.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenCache
	log    *zap.Logger
}

// New builds a Client.  tokens may be nil, in which case the service-account
// token is fetched for every admin call.
func New(cfg Config, httpClient *http.Client, tokens TokenCache, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if tokens == nil {
		tokens = noCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, tokens: tokens, log: log}
}

// Issuer is the iss claim of tokens minted by the realm.
func (c *Client) Issuer() string {
	return c.cfg.BaseURL + "/realms/" + url.PathEscape(c.cfg.Realm)
}

func (c *Client) tokenURL() string    { return c.Issuer() + "/protocol/openid-connect/token" }
func (c *Client) userInfoURL() string { return c.Issuer() + "/protocol/openid-connect/userinfo" }

// CertsURL is the realm's JWKS endpoint.
func (c *Client) CertsURL() string { return c.Issuer() + "/protocol/openid-connect/certs" }

func (c *Client) usersURL() string {
	return c.cfg.BaseURL + "/admin/realms/" + url.PathEscape(c.cfg.Realm) + "/users"
}

// PasswordGrant exchanges end-user credentials for a token set.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (TokenSet, error) {
	form := c.clientForm("password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", "openid profile email")

	var ts TokenSet
	body, err := c.postForm(ctx, "password grant", form)
	if err != nil {
		return ts, err
	}
	if err := json.Unmarshal(body, &ts); err != nil {
		return ts, transportError("password grant", fmt.Errorf("decode token response: %w", err))
	}
	return ts, nil
}

// Refresh exchanges a refresh token.  The provider's body is returned as is.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	form := c.clientForm("refresh_token")
	form.Set("refresh_token", refreshToken)
	body, err := c.postForm(ctx, "refresh grant", form)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, transportError("refresh grant", fmt.Errorf("response is not JSON"))
	}
	return json.RawMessage(body), nil
}

// UserInfo calls the userinfo endpoint with an end-user access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	var ui UserInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL(), nil)
	if err != nil {
		return ui, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	_, body, err := c.do(req, "userinfo")
	if err != nil {
		return ui, err
	}
	if err := json.Unmarshal(body, &ui); err != nil {
		return ui, transportError("userinfo", fmt.Errorf("decode userinfo: %w", err))
	}
	return ui, nil
}

// ServiceToken returns an access token for the client's service account,
// served from the cache while it is valid.  A refused client-credentials
// grant means the client is misconfigured, so it is reported as
// ErrMisconfigured rather than ErrRejected.
func (c *Client) ServiceToken(ctx context.Context) (string, error) {
	key := c.serviceTokenKey()
	if tok, ok := c.tokens.Get(ctx, key); ok {
		return tok, nil
	}

	body, err := c.postForm(ctx, "service token", c.clientForm("client_credentials"))
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Kind == ErrRejected {
			pe.Kind = ErrMisconfigured
		}
		return "", err
	}
	var ts TokenSet
	if err := json.Unmarshal(body, &ts); err != nil || ts.AccessToken == "" {
		return "", transportError("service token", fmt.Errorf("no access_token in response"))
	}
	if ttl := time.Duration(ts.ExpiresIn)*time.Second - serviceTokenSkew; ttl > 0 {
		c.tokens.Set(ctx, key, ts.AccessToken, ttl)
	}
	return ts.AccessToken, nil
}

func (c *Client) serviceTokenKey() string {
	return "kc:svc-token:" + c.cfg.Realm + ":" + c.cfg.ClientID
}

// CreateUser creates an enabled account with one password credential and
// returns its Keycloak id.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (string, error) {
	username := u.Username
	if username == "" {
		username = u.Email
	}
	payload := map[string]any{
		"username":      username,
		"email":         u.Email,
		"firstName":     u.FirstName,
		"lastName":      u.LastName,
		"enabled":       true,
		"emailVerified": false,
		"credentials": []map[string]any{{
			"type":      "password",
			"value":     u.Password,
			"temporary": u.Temporary,
		}},
	}
	resp, _, err := c.adminJSON(ctx, "create user", http.MethodPost, c.usersURL(), payload)
	if err != nil {
		return "", err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		if id := path.Base(strings.TrimRight(loc, "/")); id != "" && id != "." && id != "/" {
			return id, nil
		}
	}
	c.log.Debug("keycloak create user returned no location, falling back to lookup")
	return c.FindUserIDByEmail(ctx, u.Email)
}

// FindUserIDByEmail looks an account up by exact email.
func (c *Client) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("exact", "true")
	_, body, err := c.adminJSON(ctx, "find user", http.MethodGet, c.usersURL()+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var users []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &users); err != nil {
		return "", transportError("find user", fmt.Errorf("decode users: %w", err))
	}
	for _, u := range users {
		if strings.EqualFold(u.Email, email) && u.ID != "" {
			return u.ID, nil
		}
	}
	return "", &ProviderError{Op: "find user", Status: http.StatusNotFound, Kind: ErrUserNotFound}
}

// ResetPassword replaces the account's password credential.
func (c *Client) ResetPassword(ctx context.Context, id, password string, temporary bool) error {
	payload := map[string]any{"type": "password", "value": password, "temporary": temporary}
	_, _, err := c.adminJSON(ctx, "reset password", http.MethodPut, c.usersURL()+"/"+url.PathEscape(id)+"/reset-password", payload)
	return err
}

// DeleteUser removes an account.  A missing account is not an error.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, _, err := c.adminJSON(ctx, "delete user", http.MethodDelete, c.usersURL()+"/"+url.PathEscape(id), nil)
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

func (c *Client) clientForm(grant string) url.Values {
	form := url.Values{}
	form.Set("grant_type", grant)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	return form
}

func (c *Client) postForm(ctx context.Context, op string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, body, err := c.do(req, op)
	return body, err
}

// adminJSON performs an admin API call authenticated as the service account.
func (c *Client) adminJSON(ctx context.Context, op, method, target string, payload any) (*http.Response, []byte, error) {
	token, err := c.ServiceToken(ctx)
	if err != nil {
		return nil, nil, err
	}
	var rd io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, body, err := c.do(req, op)
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
		// cached token revoked or expired early
		c.tokens.Delete(ctx, c.serviceTokenKey())
	}
	return resp, body, err
}

func (c *Client) do(req *http.Request, op string) (*http.Response, []byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, transportError(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp, nil, transportError(op, err)
	}
	c.log.Debug("keycloak call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode >= 300 {
		return resp, body, classify(op, resp.StatusCode, body)
	}
	return resp, body, nil
}
