package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennethcanega/userdesk/internal/config"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
)

// fakeProvider emulates the slice of the Keycloak API the client talks to.
type fakeProvider struct {
	mu sync.Mutex

	createStatus int  // status for POST /users, 0 means 201
	withLocation bool // whether create responds with a Location header
	roleAddFail  bool // make POST role-mappings fail
	updateFail   bool // make PUT /users/{id} fail
	passwordFail bool // make reset-password fail
	currentRoles []string

	createdUsers   []map[string]any
	updatedUsers   []map[string]any
	passwordResets []map[string]any
	removedRoles   [][]realmRole
	addedRoles     [][]realmRole
	deletedIDs     []string
	loggedOut      []string
}

const fakeUserID = "kc-123"

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /realms/acme/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") == "password" && r.FormValue("password") != "good-pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "provider-access",
			"refresh_token":      "provider-refresh",
			"expires_in":         300,
			"refresh_expires_in": 1800,
		})
	})

	mux.HandleFunc("POST /realms/acme/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.loggedOut = append(f.loggedOut, r.FormValue("refresh_token"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /realms/acme/protocol/openid-connect/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                fakeUserID,
			"preferred_username": "carol",
		})
	})

	mux.HandleFunc("POST /admin/realms/acme/users", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.createdUsers = append(f.createdUsers, body)
		f.mu.Unlock()

		status := f.createStatus
		if status == 0 {
			status = http.StatusCreated
		}
		if status == http.StatusCreated && f.withLocation {
			w.Header().Set("Location", "http://keycloak/admin/realms/acme/users/"+fakeUserID)
		}
		w.WriteHeader(status)
	})

	mux.HandleFunc("GET /admin/realms/acme/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("exact"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"id": fakeUserID, "username": r.URL.Query().Get("username")},
		})
	})

	mux.HandleFunc("PUT /admin/realms/acme/users/"+fakeUserID, func(w http.ResponseWriter, r *http.Request) {
		if f.updateFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.updatedUsers = append(f.updatedUsers, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /admin/realms/acme/users/"+fakeUserID+"/reset-password", func(w http.ResponseWriter, r *http.Request) {
		if f.passwordFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.passwordResets = append(f.passwordResets, body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /admin/realms/acme/users/"+fakeUserID, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deletedIDs = append(f.deletedIDs, fakeUserID)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /admin/realms/acme/roles/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/admin/realms/acme/roles/")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(realmRole{ID: "role-" + name, Name: name})
	})

	mux.HandleFunc("GET /admin/realms/acme/users/"+fakeUserID+"/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		roles := make([]realmRole, 0, len(f.currentRoles))
		for _, name := range f.currentRoles {
			roles = append(roles, realmRole{ID: "role-" + name, Name: name})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(roles)
	})

	mux.HandleFunc("DELETE /admin/realms/acme/users/"+fakeUserID+"/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		var roles []realmRole
		require.NoError(t, json.NewDecoder(r.Body).Decode(&roles))
		f.mu.Lock()
		f.removedRoles = append(f.removedRoles, roles)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /admin/realms/acme/users/"+fakeUserID+"/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		if f.roleAddFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var roles []realmRole
		require.NoError(t, json.NewDecoder(r.Body).Decode(&roles))
		f.mu.Lock()
		f.addedRoles = append(f.addedRoles, roles)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeProvider) *Client {
	t.Helper()
	srv := f.server(t)
	return New(config.Keycloak{
		BaseURL:      srv.URL,
		Realm:        "acme",
		ClientID:     "userdesk",
		ClientSecret: "secret",
	}, logger.Nop())
}

func TestExchangePassword(t *testing.T) {
	client := newTestClient(t, &fakeProvider{})

	tokens, err := client.ExchangePassword(context.Background(), "carol", "good-pw")
	require.NoError(t, err)
	assert.Equal(t, "provider-access", tokens.AccessToken)
	assert.Equal(t, "provider-refresh", tokens.RefreshToken)
	assert.Equal(t, 1800, tokens.RefreshExpiresIn)

	_, err = client.ExchangePassword(context.Background(), "carol", "bad-pw")
	assert.Error(t, err)
}

func TestUserInfo(t *testing.T) {
	client := newTestClient(t, &fakeProvider{})

	id, err := client.UserInfo(context.Background(), "provider-access")
	require.NoError(t, err)
	assert.Equal(t, "carol", id.Username)
	assert.Equal(t, fakeUserID, id.Subject)

	_, err = client.UserInfo(context.Background(), "expired-token")
	assert.Error(t, err)
}

func TestLogout(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	require.NoError(t, client.Logout(context.Background(), "provider-refresh"))
	assert.Equal(t, []string{"provider-refresh"}, f.loggedOut)
}

func TestCreateUser_LocationHeader(t *testing.T) {
	f := &fakeProvider{withLocation: true, currentRoles: []string{"user"}}
	client := newTestClient(t, f)

	id, warnings, err := client.CreateUser(context.Background(), UserCommand{
		Username: "carol", Email: "carol@example.com", Name: "Carol",
		Password: "pw", Role: "admin", Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, fakeUserID, id)
	assert.Empty(t, warnings)

	require.Len(t, f.createdUsers, 1)
	assert.Equal(t, "carol", f.createdUsers[0]["username"])
	assert.Equal(t, true, f.createdUsers[0]["enabled"])

	// held managed role removed before the target one is added
	require.Len(t, f.removedRoles, 1)
	assert.Equal(t, "user", f.removedRoles[0][0].Name)
	require.Len(t, f.addedRoles, 1)
	assert.Equal(t, "admin", f.addedRoles[0][0].Name)
}

func TestCreateUser_NoLocationFallsBackToLookup(t *testing.T) {
	f := &fakeProvider{withLocation: false}
	client := newTestClient(t, f)

	id, _, err := client.CreateUser(context.Background(), UserCommand{
		Username: "carol", Role: "user", Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, fakeUserID, id)
}

func TestCreateUser_ConflictRecovery(t *testing.T) {
	f := &fakeProvider{createStatus: http.StatusConflict}
	client := newTestClient(t, f)

	id, _, err := client.CreateUser(context.Background(), UserCommand{
		Username: "carol", Password: "new-pw", Role: "user", Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, fakeUserID, id)

	// adopted record is normalized and gets the requested password
	require.Len(t, f.updatedUsers, 1)
	assert.Equal(t, true, f.updatedUsers[0]["emailVerified"])
	assert.Empty(t, f.updatedUsers[0]["requiredActions"])
	require.Len(t, f.passwordResets, 1)
	assert.Equal(t, "new-pw", f.passwordResets[0]["value"])
}

func TestCreateUser_RoleFailureIsWarning(t *testing.T) {
	f := &fakeProvider{withLocation: true, roleAddFail: true}
	client := newTestClient(t, f)

	id, warnings, err := client.CreateUser(context.Background(), UserCommand{
		Username: "carol", Role: "admin", Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, fakeUserID, id)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "role assignment failed")
}

func TestUpdateUser_ProfileFailureIsFatal(t *testing.T) {
	f := &fakeProvider{updateFail: true}
	client := newTestClient(t, f)

	_, err := client.UpdateUser(context.Background(), fakeUserID, UserCommand{
		Username: "carol", Role: "user", Active: true,
	})
	assert.Error(t, err)
}

func TestUpdateUser_PasswordFailureIsWarning(t *testing.T) {
	f := &fakeProvider{passwordFail: true}
	client := newTestClient(t, f)

	warnings, err := client.UpdateUser(context.Background(), fakeUserID, UserCommand{
		Username: "carol", Password: "new-pw", Role: "user", Active: true,
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "password reset failed")

	require.Len(t, f.updatedUsers, 1)
	assert.Contains(t, f.updatedUsers[0], "enabled")
}

func TestUpdateUser_SkipsPasswordWhenEmpty(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	warnings, err := client.UpdateUser(context.Background(), fakeUserID, UserCommand{
		Username: "carol", Role: "user", Active: false,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, f.passwordResets)
}

func TestDeleteUser(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	require.NoError(t, client.DeleteUser(context.Background(), fakeUserID))
	assert.Equal(t, []string{fakeUserID}, f.deletedIDs)

	err := client.DeleteUser(context.Background(), "")
	assert.Error(t, err)
}

func TestTokenIdentity(t *testing.T) {
	username, subject, ok := TokenIdentity("eyJhbGciOiJSUzI1NiJ9.eyJwcmVmZXJyZWRfdXNlcm5hbWUiOiJjYXJvbCIsInN1YiI6ImtjLTEyMyJ9.sig")
	require.True(t, ok)
	assert.Equal(t, "carol", username)
	assert.Equal(t, "kc-123", subject)

	_, _, ok = TokenIdentity("opaque-token")
	assert.False(t, ok)
}
