package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kennethcanega/userdesk/internal/database"
	"github.com/kennethcanega/userdesk/internal/middleware"
	"github.com/kennethcanega/userdesk/internal/modules/auth"
	"github.com/kennethcanega/userdesk/internal/modules/token"
	"github.com/kennethcanega/userdesk/internal/modules/users"
	jwtsvc "github.com/kennethcanega/userdesk/internal/pkg/jwt"
	"github.com/kennethcanega/userdesk/internal/pkg/logger"
	"github.com/kennethcanega/userdesk/internal/repository"
	"github.com/kennethcanega/userdesk/internal/router"
	"github.com/kennethcanega/userdesk/internal/seed"
)

type testSuite struct {
	router *gin.Engine
	db     *gorm.DB
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *errorDetail           `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func setupSuite(t *testing.T) *testSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	log := logger.Nop()
	require.NoError(t, seed.Run(t.Context(), db, log))

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)

	jwtService := jwtsvc.New("userdesk-e2e", "test_secret_key_32_characters_min", 15*time.Minute)
	tokenService := token.NewService(db, userRepo, tokenRepo, 168*time.Hour)

	authService := auth.NewService(userRepo, tokenService, jwtService, nil)
	authHandler := auth.NewHandler(authService, log, false)

	usersService := users.NewService(userRepo, nil, log)
	usersHandler := users.NewHandler(usersService, log)

	r := router.New(router.Deps{
		Log:    log,
		Auth:   authHandler,
		Users:  usersHandler,
		AuthMW: middleware.JWTAuth(jwtService, userRepo),
	})

	return &testSuite{router: r, db: db}
}

func (s *testSuite) request(t *testing.T, method, path string, body interface{}, accessToken string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func parse(t *testing.T, w *httptest.ResponseRecorder) *envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp),
		"status %d body %s", w.Code, w.Body.String())
	return &resp
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			return c
		}
	}
	return nil
}

// login returns the access token and the refresh cookie of a fresh session.
func (s *testSuite) login(t *testing.T, username, password string) (string, *http.Cookie) {
	t.Helper()
	w := s.request(t, "POST", "/auth/login", gin.H{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())

	resp := parse(t, w)
	access, _ := resp.Data["access_token"].(string)
	require.NotEmpty(t, access)

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	require.NotEmpty(t, cookie.Value)
	return access, cookie
}

// createUser provisions a user through the admin API and returns its id.
func (s *testSuite) createUser(t *testing.T, adminToken string, body gin.H) int64 {
	t.Helper()
	w := s.request(t, "POST", "/users", body, adminToken)
	require.Equal(t, http.StatusCreated, w.Code, "create failed: %s", w.Body.String())

	resp := parse(t, w)
	user := resp.Data["user"].(map[string]interface{})
	return int64(user["id"].(float64))
}

func TestAdminLoginAndOwnProfile(t *testing.T) {
	s := setupSuite(t)

	access, cookie := s.login(t, "admin", "admin")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	w := s.request(t, "GET", "/users/me", nil, access)
	require.Equal(t, http.StatusOK, w.Code)

	resp := parse(t, w)
	assert.Equal(t, "admin", resp.Data["username"])
	assert.Equal(t, "admin", resp.Data["role"])
	assert.Equal(t, true, resp.Data["active"])
}

func TestListUsers(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")

	// a fresh database contains exactly the seeded admin
	w := s.request(t, "GET", "/users", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                     `json:"success"`
		Data    []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "admin", resp.Data[0]["username"])
	assert.NotContains(t, resp.Data[0], "password_hash")
}

func TestLogin_WrongPassword(t *testing.T) {
	s := setupSuite(t)

	w := s.request(t, "POST", "/auth/login", gin.H{
		"username": "admin",
		"password": "not-the-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", parse(t, w).Error.Code)
	assert.Nil(t, refreshCookie(w))
}

func TestAdminCreatesUserWhoLogsIn(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")

	id := s.createUser(t, adminToken, gin.H{
		"name":     "Bob Builder",
		"email":    "bob@example.com",
		"username": "bob",
		"password": "bobpass",
	})
	assert.Positive(t, id)

	bobToken, _ := s.login(t, "bob", "bobpass")

	w := s.request(t, "GET", "/users/me", nil, bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	resp := parse(t, w)
	assert.Equal(t, "bob", resp.Data["username"])
	assert.Equal(t, "user", resp.Data["role"])
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	s.createUser(t, adminToken, gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "bobpass",
	})
	bobToken, _ := s.login(t, "bob", "bobpass")

	// no token at all
	w := s.request(t, "GET", "/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_HEADER_MISSING", parse(t, w).Error.Code)

	// a plain user on each admin operation
	for _, tc := range []struct{ method, path string }{
		{"GET", "/users"},
		{"POST", "/users"},
		{"PUT", "/users/1"},
		{"DELETE", "/users/1"},
	} {
		w := s.request(t, tc.method, tc.path, gin.H{}, bobToken)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}

	// non-admin endpoints still work for bob
	w = s.request(t, "GET", "/users/search?q=bob", nil, bobToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDuplicateUsernameRejected(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")

	body := gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "x",
	}
	s.createUser(t, adminToken, body)

	body["email"] = "other@example.com"
	w := s.request(t, "POST", "/users", body, adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USERNAME_TAKEN", parse(t, w).Error.Code)
}

func TestSearch(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	s.createUser(t, adminToken, gin.H{
		"name": "Jane Roe", "email": "jane@corp.example.com", "username": "jane", "password": "x",
	})

	// case-insensitive match on the name
	w := s.request(t, "GET", "/users/search?q=JANE", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jane@corp.example.com")
	// the reduced shape carries no role or username
	assert.NotContains(t, w.Body.String(), `"role"`)

	// match on the email domain
	w = s.request(t, "GET", "/users/search?q=corp.example", nil, adminToken)
	assert.Contains(t, w.Body.String(), "Jane Roe")

	// blank query is an empty result, not an error
	w = s.request(t, "GET", "/users/search?q=", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestRefreshRotationAndReuse(t *testing.T) {
	s := setupSuite(t)
	_, first := s.login(t, "admin", "admin")

	// rotation hands out a different token
	w := s.request(t, "POST", "/auth/refresh", nil, "", first)
	require.Equal(t, http.StatusOK, w.Code)
	second := refreshCookie(w)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)
	assert.NotEmpty(t, parse(t, w).Data["access_token"])

	// replaying the consumed token fails and clears the cookie
	w = s.request(t, "POST", "/auth/refresh", nil, "", first)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", parse(t, w).Error.Code)
	cleared := refreshCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// the successor is unaffected by the failed replay
	w = s.request(t, "POST", "/auth/refresh", nil, "", second)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewLoginInvalidatesOldSession(t *testing.T) {
	s := setupSuite(t)
	_, oldCookie := s.login(t, "admin", "admin")
	s.login(t, "admin", "admin")

	w := s.request(t, "POST", "/auth/refresh", nil, "", oldCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	s := setupSuite(t)
	_, cookie := s.login(t, "admin", "admin")

	w := s.request(t, "POST", "/auth/logout", nil, "", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)
	cleared := refreshCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	w = s.request(t, "POST", "/auth/refresh", nil, "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// logout without a session is still a 204
	w = s.request(t, "POST", "/auth/logout", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeactivationLocksAccountOut(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	id := s.createUser(t, adminToken, gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "bobpass",
	})
	bobToken, bobCookie := s.login(t, "bob", "bobpass")

	w := s.request(t, "PUT", fmt.Sprintf("/users/%d", id), gin.H{"active": false}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	// password, refresh token and access token all stop working
	w = s.request(t, "POST", "/auth/login", gin.H{"username": "bob", "password": "bobpass"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, "POST", "/auth/refresh", nil, "", bobCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, "GET", "/users/me", nil, bobToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	id := s.createUser(t, adminToken, gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "bobpass",
	})
	bobToken, bobCookie := s.login(t, "bob", "bobpass")

	w := s.request(t, "DELETE", fmt.Sprintf("/users/%d", id), nil, adminToken)
	require.Equal(t, http.StatusNoContent, w.Code)

	// the row is gone and no session survives
	w = s.request(t, "GET", "/users/me", nil, bobToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.request(t, "POST", "/auth/refresh", nil, "", bobCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.request(t, "DELETE", fmt.Sprintf("/users/%d", id), nil, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPartialUpdate(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	id := s.createUser(t, adminToken, gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "bobpass",
	})

	w := s.request(t, "PUT", fmt.Sprintf("/users/%d", id), gin.H{"name": "Robert"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	user := parse(t, w).Data["user"].(map[string]interface{})
	assert.Equal(t, "Robert", user["name"])
	assert.Equal(t, "bob@example.com", user["email"])
	assert.Equal(t, "bob", user["username"])

	// the untouched password still authenticates
	s.login(t, "bob", "bobpass")

	w = s.request(t, "PUT", "/users/999", gin.H{"name": "Nobody"}, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleChangeTakesEffect(t *testing.T) {
	s := setupSuite(t)
	adminToken, _ := s.login(t, "admin", "admin")
	id := s.createUser(t, adminToken, gin.H{
		"name": "Bob", "email": "bob@example.com", "username": "bob", "password": "bobpass",
	})
	bobToken, _ := s.login(t, "bob", "bobpass")

	w := s.request(t, "GET", "/users", nil, bobToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.request(t, "PUT", fmt.Sprintf("/users/%d", id), gin.H{"role": "admin"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	// the existing access token picks up the new role because the
	// middleware reads it from the database on each request
	w = s.request(t, "GET", "/users", nil, bobToken)
	assert.Equal(t, http.StatusOK, w.Code)
}
