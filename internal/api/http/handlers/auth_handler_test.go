package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/event-service/internal/api/http"
	"github.com/spec-kit/event-service/internal/api/http/handlers"
	"github.com/spec-kit/event-service/internal/auth"
	"github.com/spec-kit/event-service/internal/config"
	"github.com/spec-kit/event-service/internal/domain"
	"github.com/spec-kit/event-service/internal/events"
	"github.com/spec-kit/event-service/internal/observability"
	"github.com/spec-kit/event-service/internal/persistence"
	"github.com/spec-kit/event-service/internal/service"
)

type memoryUserRepo struct {
	users map[string]*domain.User
	auths map[string]*domain.UserAuth
	seq   int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users: make(map[string]*domain.User),
		auths: make(map[string]*domain.UserAuth),
	}
}

func (m *memoryUserRepo) CreateWithAuth(_ context.Context, user *domain.User, passwordHash string) error {
	m.seq++
	user.ID = "user-" + user.Username
	m.users[user.Email] = user
	m.auths[user.ID] = &domain.UserAuth{UserID: user.ID, PasswordHash: passwordHash}
	return nil
}

func (m *memoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUserRepo) FindByIdentifier(_ context.Context, username, email, phoneNumber string) (*domain.User, error) {
	for _, user := range m.users {
		if (username != "" && user.Username == username) ||
			(email != "" && user.Email == email) ||
			(phoneNumber != "" && user.PhoneNumber == phoneNumber) {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUserRepo) GetAuthByUserID(_ context.Context, userID string) (*domain.UserAuth, error) {
	if userAuth, ok := m.auths[userID]; ok {
		return userAuth, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUserRepo) UpdateProfile(_ context.Context, user *domain.User) error {
	m.users[user.Email] = user
	return nil
}

func (m *memoryUserRepo) TouchLastLogin(_ context.Context, _ string) error { return nil }

func (m *memoryUserRepo) List(_ context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, *user)
	}
	return users, nil
}

func newTestApp(t *testing.T) (*fiber.App, *memoryUserRepo) {
	t.Helper()

	repo := newMemoryUserRepo()
	logger := zap.NewNop()
	cfg := config.AuthConfig{
		AccessTokenSecret:     "test-access-secret",
		RefreshTokenSecret:    "test-refresh-secret",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
		BcryptCost:            4,
	}

	dispatcher := events.NewInMemoryDispatcher()
	authService := service.NewAuthService(cfg, repo, dispatcher, logger)
	userService := service.NewUserService(repo, dispatcher)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("event-service", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Auth:           handlers.NewAuthHandler(authService),
		Profile:        handlers.NewProfileHandler(userService),
		AuthMiddleware: auth.NewMiddleware(authService.AccessTokens(), repo),
	})
	return app, repo
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == auth.RefreshCookieName {
			return cookie
		}
	}
	return nil
}

func registerAndLogin(t *testing.T, app *fiber.App, email, password string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/register", fiber.Map{
		"email": email, "password": password,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/login", fiber.Map{
		"email": email, "password": password,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp, decodeBody(t, resp)
}

func accessTokenFromLogin(t *testing.T, body map[string]any) string {
	t.Helper()
	data := body["data"].(map[string]any)
	authData := data["auth"].(map[string]any)
	token, ok := authData["access_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func TestRegister_ThenDuplicate(t *testing.T) {
	app, repo := newTestApp(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/register", fiber.Map{
		"email": "a@x.com", "password": "pw123456",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "a", user["username"])
	assert.Equal(t, "a@x.com", user["email"])
	// the response never carries credential material
	raw, _ := json.Marshal(body)
	assert.NotContains(t, string(raw), "password")

	require.Len(t, repo.users, 1)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/register", fiber.Map{
		"email": "a@x.com", "password": "other",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = decodeBody(t, resp)
	assert.Equal(t, "User already exists", body["error"].(map[string]any)["message"])
	assert.Len(t, repo.users, 1)
}

func TestLogin_InvalidThenSuccess(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/register", fiber.Map{
		"email": "a@x.com", "password": "pw123456",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/login", fiber.Map{
		"email": "a@x.com", "password": "wrong",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Invalid credentials", body["error"].(map[string]any)["message"])

	resp, err = app.Test(jsonRequest(http.MethodPost, "/auth/login", fiber.Map{
		"email": "a@x.com", "password": "pw123456",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body = decodeBody(t, resp)
	assert.NotEmpty(t, accessTokenFromLogin(t, body))

	cookie := refreshCookie(resp)
	require.NotNil(t, cookie, "login must set the refresh cookie")
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.NotEmpty(t, cookie.Value)
	// the refresh token never appears in the response body
	raw, _ := json.Marshal(body)
	assert.NotContains(t, string(raw), cookie.Value)
}

func TestLogin_MissingIdentifier(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/login", fiber.Map{
		"password": "pw123456",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"].(map[string]any)["message"], "required")
}

func TestLogin_UnknownUser(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/auth/login", fiber.Map{
		"email": "nobody@x.com", "password": "pw123456",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "User not found", body["error"].(map[string]any)["message"])
}

func TestVerifyToken(t *testing.T) {
	app, _ := newTestApp(t)
	_, loginBody := registerAndLogin(t, app, "a@x.com", "pw123456")
	token := accessTokenFromLogin(t, loginBody)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify-token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
}

func TestVerifyToken_Invalid(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify-token", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyToken_MissingHeader(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/verify-token", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefresh_Flow(t *testing.T) {
	app, _ := newTestApp(t)
	loginResp, _ := registerAndLogin(t, app, "a@x.com", "pw123456")
	cookie := refreshCookie(loginResp)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/auth/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: cookie.Value})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["access_token"])
}

func TestRefresh_MissingCookie(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/refresh-token", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Refresh token missing", body["error"].(map[string]any)["message"])
}

func TestRefresh_TamperedCookie(t *testing.T) {
	app, _ := newTestApp(t)
	loginResp, _ := registerAndLogin(t, app, "a@x.com", "pw123456")
	cookie := refreshCookie(loginResp)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/auth/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: cookie.Value + "xx"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Invalid refresh token", body["error"].(map[string]any)["message"])
}

func TestLogout_ClearsCookie(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := refreshCookie(resp)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.LessOrEqual(t, cookie.MaxAge, 0)
}

func TestProfile_RequiresAuth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfile_GetAndUpdate(t *testing.T) {
	app, _ := newTestApp(t)
	_, loginBody := registerAndLogin(t, app, "a@x.com", "pw123456")
	token := accessTokenFromLogin(t, loginBody)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	update := jsonRequest(http.MethodPatch, "/profile", fiber.Map{
		"first_name": "Ada", "last_name": "Lovelace",
	})
	update.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(update)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "Ada", user["first_name"])
	assert.Equal(t, "Lovelace", user["last_name"])
}

func TestListUsers_AdminOnly(t *testing.T) {
	app, repo := newTestApp(t)
	_, loginBody := registerAndLogin(t, app, "a@x.com", "pw123456")
	token := accessTokenFromLogin(t, loginBody)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	repo.users["a@x.com"].Role = domain.RoleAdmin

	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
