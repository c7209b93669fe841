package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key, token string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = token
}

func (c *memCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// fakeRealm serves the token endpoint and the admin users endpoint of realm
// "tms".  createStatus controls the answer to user creation.
type fakeRealm struct {
	createStatus   int
	omitLocation   bool
	serviceGrants  atomic.Int32
	createdPayload map[string]any
}

func (f *fakeRealm) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/tms/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tms-backend", r.PostForm.Get("client_id"))
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			if r.PostForm.Get("client_secret") != "s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized_client","error_description":"Invalid client secret"}`))
				return
			}
			f.serviceGrants.Add(1)
			_, _ = w.Write([]byte(`{"access_token":"svc-token","expires_in":300}`))
		case "password":
			if r.PostForm.Get("password") != "correct" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid user credentials"}`))
				return
			}
			assert.Equal(t, "openid profile email", r.PostForm.Get("scope"))
			_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":300,"token_type":"Bearer"}`))
		case "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":300}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/admin/realms/tms/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f.createdPayload))
			if f.createStatus != 0 && f.createStatus != http.StatusCreated {
				w.WriteHeader(f.createStatus)
				_, _ = w.Write([]byte(`{"errorMessage":"User exists with same username"}`))
				return
			}
			if !f.omitLocation {
				w.Header().Set("Location", "http://"+r.Host+"/admin/realms/tms/users/kc-123")
			}
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			assert.Equal(t, "true", r.URL.Query().Get("exact"))
			if r.URL.Query().Get("email") == "ada@example.com" {
				_, _ = w.Write([]byte(`[{"id":"kc-found","email":"ada@example.com"}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/admin/realms/tms/users/kc-123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/realms/tms/users/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/admin/realms/tms/users/kc-123/reset-password", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["temporary"])
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeRealm, secret string) (*Client, *memCache) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cache := &memCache{m: map[string]string{}}
	c := New(Config{BaseURL: srv.URL + "/", Realm: "tms", ClientID: "tms-backend", ClientSecret: secret}, srv.Client(), cache, nil)
	return c, cache
}

func TestCreateUserUsesLocationHeader(t *testing.T) {
	f := &fakeRealm{}
	c, _ := newTestClient(t, f, "s3cret")

	id, err := c.CreateUser(context.Background(), NewUser{
		Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Password: "Tmp#1234abcd", Temporary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "kc-123", id)
	assert.Equal(t, "ada@example.com", f.createdPayload["username"])
	creds := f.createdPayload["credentials"].([]any)
	assert.Equal(t, true, creds[0].(map[string]any)["temporary"])
}

func TestCreateUserFallsBackToLookup(t *testing.T) {
	f := &fakeRealm{omitLocation: true}
	c, _ := newTestClient(t, f, "s3cret")

	id, err := c.CreateUser(context.Background(), NewUser{Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "kc-found", id)
}

func TestCreateUserFailureClasses(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, ErrDuplicateUser},
		{http.StatusForbidden, ErrMisconfigured},
		{http.StatusBadGateway, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newTestClient(t, &fakeRealm{createStatus: tt.status}, "s3cret")
			_, err := c.CreateUser(context.Background(), NewUser{Email: "ada@example.com", Password: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.Status)
		})
	}
}

func TestServiceTokenIsCached(t *testing.T) {
	f := &fakeRealm{}
	c, cache := newTestClient(t, f, "s3cret")
	ctx := context.Background()

	_, err := c.CreateUser(ctx, NewUser{Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)
	_, err = c.CreateUser(ctx, NewUser{Email: "ada@example.com", Password: "x"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.serviceGrants.Load())
	tok, ok := cache.Get(ctx, "kc:svc-token:tms:tms-backend")
	assert.True(t, ok)
	assert.Equal(t, "svc-token", tok)
}

func TestServiceTokenRefusedIsMisconfiguration(t *testing.T) {
	c, _ := newTestClient(t, &fakeRealm{}, "wrong")
	_, err := c.CreateUser(context.Background(), NewUser{Email: "ada@example.com", Password: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfigured)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestPasswordGrant(t *testing.T) {
	c, _ := newTestClient(t, &fakeRealm{}, "s3cret")

	ts, err := c.PasswordGrant(context.Background(), "ada@example.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, "at", ts.AccessToken)
	assert.Equal(t, "rt", ts.RefreshToken)
	assert.Equal(t, 300, ts.ExpiresIn)

	_, err = c.PasswordGrant(context.Background(), "ada@example.com", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Equal(t, "Invalid user credentials", pe.Description)
}

func TestRefreshReturnsRawBody(t *testing.T) {
	c, _ := newTestClient(t, &fakeRealm{}, "s3cret")
	raw, err := c.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"access_token":"at2"`))
}

func TestDeleteAndResetPassword(t *testing.T) {
	c, _ := newTestClient(t, &fakeRealm{}, "s3cret")
	ctx := context.Background()
	assert.NoError(t, c.DeleteUser(ctx, "kc-123"))
	assert.NoError(t, c.DeleteUser(ctx, "gone"))
	assert.NoError(t, c.ResetPassword(ctx, "kc-123", "Tmp#1234abcd", true))
}

func TestFindUserIDByEmailMissing(t *testing.T) {
	c, _ := newTestClient(t, &fakeRealm{}, "s3cret")
	_, err := c.FindUserIDByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, Realm: "tms", ClientID: "tms-backend", ClientSecret: "s3cret"}, nil, nil, nil)
	_, err := c.PasswordGrant(context.Background(), "u", "p")
	assert.ErrorIs(t, err, ErrUnavailable)
}
