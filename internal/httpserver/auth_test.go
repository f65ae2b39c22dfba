package httpserver

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leeluca/seon-sub000/internal/config"
	"github.com/leeluca/seon-sub000/internal/keys"
	"github.com/leeluca/seon-sub000/internal/middleware"
	"github.com/leeluca/seon-sub000/internal/models"
	"github.com/leeluca/seon-sub000/internal/repo"
	"github.com/leeluca/seon-sub000/internal/service"
	"github.com/leeluca/seon-sub000/internal/token"
)

type testEnv struct {
	T   *testing.T
	E   *echo.Echo
	Svc *service.AuthService
	DB  *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}))

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	km := &keys.Material{
		PrivateKey:  priv,
		PublicKey:   &priv.PublicKey,
		KeyID:       keys.Thumbprint(&priv.PublicKey),
		RefreshKey:  []byte("test-refresh-secret"),
		DBAccessKey: []byte("test-db-secret"),
	}
	cfg := &config.Config{
		AccessExpiresIn:   15 * 60,
		RefreshExpiresIn:  24 * 60 * 60,
		DBAccessExpiresIn: 5 * 60,
	}
	tokens := token.NewService(keys.NewRegistry(km, cfg), "")

	svc := &service.AuthService{
		Users:   &repo.UserRepo{DB: db},
		Store:   repo.NewRefreshTokenStore(db, tokens),
		Tokens:  tokens,
		SyncURL: "https://sync.example.com",
	}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler: &AuthHTTP{Svc: svc, Tokens: tokens},
		Auth:        middleware.NewAuth(tokens, svc),
	})

	return &testEnv{T: t, E: e, Svc: svc, DB: db}
}

func (env *testEnv) doJSON(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	env.T.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func signUpBody() map[string]string {
	return map[string]string{
		"email":      "u1@example.com",
		"name":       "u1",
		"password":   "s3cret-password",
		"externalId": uuid.NewString(),
	}
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := rec.Result()
	defer res.Body.Close()
	var found *http.Cookie
	for _, ck := range res.Cookies() {
		if ck.Name == name {
			found = ck
		}
	}
	require.NotNil(t, found, "cookie %s not set", name)
	return found
}

func (env *testEnv) signUp(t *testing.T) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	body := signUpBody()
	rec := env.doJSON(http.MethodPost, "/signup", body)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec, body
}

func TestSignUpHandler(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.signUp(t)

	var resp struct {
		Result    bool  `json:"result"`
		ExpiresAt int64 `json:"expiresAt"`
		User      struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result)
	assert.NotZero(t, resp.ExpiresAt)
	assert.Equal(t, body["externalId"], resp.User.ID)
	assert.Equal(t, body["email"], resp.User.Email)

	access := cookieByName(t, rec, keys.CookieAccess)
	refresh := cookieByName(t, rec, keys.CookieRefresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)

	// Duplicate sign-up conflicts.
	rec = env.doJSON(http.MethodPost, "/signup", body)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Malformed external id is a bad request.
	bad := signUpBody()
	bad["externalId"] = "not-a-uuid"
	rec = env.doJSON(http.MethodPost, "/signup", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignInHandler(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.signUp(t)

	rec := env.doJSON(http.MethodPost, "/signin", map[string]string{
		"email":    body["email"],
		"password": body["password"],
	})
	require.Equal(t, http.StatusOK, rec.Code)
	cookieByName(t, rec, keys.CookieAccess)
	cookieByName(t, rec, keys.CookieRefresh)

	// Wrong password and unknown email produce the same terse 401.
	recWrong := env.doJSON(http.MethodPost, "/signin", map[string]string{
		"email":    body["email"],
		"password": "wrong",
	})
	recUnknown := env.doJSON(http.MethodPost, "/signin", map[string]string{
		"email":    "nobody@example.com",
		"password": body["password"],
	})
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, recWrong.Body.String(), recUnknown.Body.String())
}

func TestRefreshHandler_RotatesCookies(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.signUp(t)
	refresh := cookieByName(t, rec, keys.CookieRefresh)

	recRefresh := env.doJSON(http.MethodGet, "/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, recRefresh.Code)

	rotated := cookieByName(t, recRefresh, keys.CookieRefresh)
	assert.NotEqual(t, refresh.Value, rotated.Value)
	cookieByName(t, recRefresh, keys.CookieAccess)

	// The race: the original cookie is inside the grace window and still
	// refreshes successfully.
	recRace := env.doJSON(http.MethodGet, "/refresh", nil, refresh)
	assert.Equal(t, http.StatusOK, recRace.Code)

	// No cookie at all is a 401.
	recNone := env.doJSON(http.MethodGet, "/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, recNone.Code)
}

func TestRefreshHandler_StorageFailureKeepsCookies(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.signUp(t)
	refresh := cookieByName(t, rec, keys.CookieRefresh)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// The session is still valid; only storage is down. That is a 500, and
	// the client's cookies must survive it.
	recFail := env.doJSON(http.MethodGet, "/refresh", nil, refresh)
	assert.Equal(t, http.StatusInternalServerError, recFail.Code)
	res := recFail.Result()
	defer res.Body.Close()
	assert.Empty(t, res.Cookies())

	// Same split on the guarded routes, where the middleware refreshes.
	recMw := env.doJSON(http.MethodGet, "/credentials/sync", nil, refresh)
	assert.Equal(t, http.StatusInternalServerError, recMw.Code)
	resMw := recMw.Result()
	defer resMw.Body.Close()
	assert.Empty(t, resMw.Cookies())

	recStatus := env.doJSON(http.MethodGet, "/status", nil, refresh)
	assert.Equal(t, http.StatusInternalServerError, recStatus.Code)
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["result"])

	recUp, _ := env.signUp(t)
	refresh := cookieByName(t, recUp, keys.CookieRefresh)

	rec = env.doJSON(http.MethodGet, "/status", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["result"])
	assert.NotZero(t, resp["expiresAt"])
}

func TestSignOutHandler(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.signUp(t)
	refresh := cookieByName(t, rec, keys.CookieRefresh)

	recOut := env.doJSON(http.MethodPost, "/signout", nil, refresh)
	require.Equal(t, http.StatusOK, recOut.Code)
	cleared := cookieByName(t, recOut, keys.CookieRefresh)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)

	// The deleted token no longer refreshes.
	recRefresh := env.doJSON(http.MethodGet, "/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, recRefresh.Code)

	// Signing out again is fine.
	recAgain := env.doJSON(http.MethodPost, "/signout", nil, refresh)
	assert.Equal(t, http.StatusOK, recAgain.Code)
}

func TestCredentialsRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodGet, "/credentials/db", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The rejection expires every session cookie, db_access included.
	for _, name := range []string{keys.CookieAccess, keys.CookieRefresh, keys.CookieDBAccess} {
		cleared := cookieByName(t, rec, name)
		assert.Equal(t, -1, cleared.MaxAge, name)
	}

	recUp, _ := env.signUp(t)
	access := cookieByName(t, recUp, keys.CookieAccess)
	refresh := cookieByName(t, recUp, keys.CookieRefresh)

	rec = env.doJSON(http.MethodGet, "/credentials/db", nil, access)
	require.Equal(t, http.StatusOK, rec.Code)
	var dbResp struct {
		Result    bool   `json:"result"`
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dbResp))
	assert.True(t, dbResp.Result)

	payload := env.Svc.Tokens.Verify(dbResp.Token, keys.TypeDBAccess)
	require.NotNil(t, payload)
	assert.Equal(t, "authenticated", payload.Audience)

	// With only the refresh cookie the middleware refreshes in place and
	// still serves the request, setting fresh cookies.
	rec = env.doJSON(http.MethodGet, "/credentials/sync", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	cookieByName(t, rec, keys.CookieAccess)
	var syncResp struct {
		Result  bool   `json:"result"`
		Token   string `json:"token"`
		SyncURL string `json:"syncUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &syncResp))
	assert.True(t, syncResp.Result)
	assert.Equal(t, "https://sync.example.com", syncResp.SyncURL)
	require.NotNil(t, env.Svc.Tokens.Verify(syncResp.Token, keys.TypeAccess))
}

func TestJWKSHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(http.MethodGet, "/jwks", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var set struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Alg string `json:"alg"`
			N   string `json:"n"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.Equal(t, "RS256", set.Keys[0].Alg)
	assert.NotEmpty(t, set.Keys[0].Kid)
	assert.NotEmpty(t, set.Keys[0].N)
}
