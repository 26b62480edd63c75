package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/config"
	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/service"
	"github.com/jmrl23/token-based-authentication/internal/storage"
	"github.com/jmrl23/token-based-authentication/mocks"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// stubKeyView — детерминированная подмена KeyRing для HTTP-тестов.
type stubKeyView struct {
	key  *models.SigningKey
	jwks []models.JWK
	err  error
}

func (s *stubKeyView) SigningKey(context.Context) (*models.SigningKey, error) {
	return s.key, s.err
}

func (s *stubKeyView) JWKS(context.Context) ([]models.JWK, error) {
	return s.jwks, s.err
}

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenTTL:    5 * time.Minute,
		RefreshTokenTTL:   time.Hour,
		AttemptTTL:        5 * time.Minute,
		NegativeVerifyTTL: 30 * time.Minute,
		BcryptCost:        bcrypt.MinCost,
	}
}

func newTestKey(t *testing.T) *models.SigningKey {
	t.Helper()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &models.SigningKey{
		Kid:       "0123456789abcdef0123456789abcdef",
		Public:    &private.PublicKey,
		Private:   private,
		PublicPEM: []byte("-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----\n"),
	}
}

// newHandlers — собирает Handlers поверх настоящего сервиса с мок-зависимостями.
func newHandlers(t *testing.T, kv KeyView) (*Handlers, *mocks.MockStorage, *mocks.MockCache, *mocks.MockSource) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	st := mocks.NewMockStorage(ctrl)
	ch := mocks.NewMockCache(ctrl)
	ks := mocks.NewMockSource(ctrl)
	svc := service.New(st, ch, ks, testAuthCfg())

	return New(svc, kv, testAuthCfg()), st, ch, ks
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeData(t *testing.T, body *bytes.Buffer, into any) {
	t.Helper()
	var env dataEnvelope
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func findCookie(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func credentialsBody(t *testing.T, username, password string) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestPublicKey_OK(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)
	h, _, _, _ := newHandlers(t, &stubKeyView{key: key})

	rr := httptest.NewRecorder()
	h.PublicKey(rr, httptest.NewRequest(http.MethodGet, "/auth/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/x-pem-file", rr.Header().Get("Content-Type"))
	require.Equal(t, string(key.PublicPEM), rr.Body.String())
}

func TestPublicKey_KeysUnavailable_500(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newHandlers(t, &stubKeyView{err: errors.New("no keys")})

	rr := httptest.NewRecorder()
	h.PublicKey(rr, httptest.NewRequest(http.MethodGet, "/auth/", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestJWKS_OK(t *testing.T) {
	t.Parallel()

	jwks := []models.JWK{{Kty: "RSA", Kid: "k1", Use: "sig", Alg: "RS256", N: "n", E: "AQAB"}}
	h, _, _, _ := newHandlers(t, &stubKeyView{jwks: jwks})

	rr := httptest.NewRecorder()
	h.JWKS(rr, httptest.NewRequest(http.MethodGet, "/well-known/jwks.json", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Keys []models.JWK `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, jwks, out.Keys)
}

func TestSignUp_OK_SetsRefreshCookie(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)
	h, st, ch, ks := newHandlers(t, &stubKeyView{key: key})

	user := &models.User{ID: uuid.New(), Username: "alice"}
	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	ch.EXPECT().Set(gomock.Any(), gomock.Any(), "1", gomock.Any()).Return(nil)
	st.EXPECT().SaveUser(gomock.Any(), "alice", gomock.Any()).Return(user, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	ks.EXPECT().SigningKey(gomock.Any()).Return(key, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", credentialsBody(t, "alice", "Abcdef1!"))
	h.SignUp(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, rr.Body, &out)
	require.NotEmpty(t, out.AccessToken)

	cookie := findCookie(t, rr, refreshCookieName)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.WithinDuration(t, time.Now().Add(h.Auth.RefreshTokenTTL), cookie.Expires, 5*time.Second)
}

func TestSignUp_BadBody_400(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newHandlers(t, &stubKeyView{})

	cases := []string{
		`{"username":"alice"}`,
		`{"password":"x"}`,
		`{"username":"alice","password":"x","extra":true}`,
		`not json`,
	}
	for _, body := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", bytes.NewReader([]byte(body)))
		h.SignUp(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, "body: %s", body)
	}
}

func TestSignUp_UsernameTaken_409(t *testing.T) {
	t.Parallel()

	h, _, ch, _ := newHandlers(t, &stubKeyView{})

	// Троттлинг повторной идентичной попытки неотличим от занятого username.
	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return("1", true, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-up", credentialsBody(t, "alice", "Abcdef1!"))
	h.SignUp(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "conflict", env.Error.Code)
}

func TestSignIn_InvalidCredentials_401(t *testing.T) {
	t.Parallel()

	h, st, ch, _ := newHandlers(t, &stubKeyView{})

	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
	st.EXPECT().UserByUsername(gomock.Any(), "alice").Return(nil, storage.ErrNotFound)
	ch.EXPECT().Set(gomock.Any(), gomock.Any(), "1", gomock.Any()).Return(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/sign-in", credentialsBody(t, "alice", "Abcdef1!"))
	h.SignIn(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "unauthorized", env.Error.Code)
}

func TestRotateAccess_NoCookie_401(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newHandlers(t, &stubKeyView{})

	rr := httptest.NewRecorder()
	h.RotateAccess(rr, httptest.NewRequest(http.MethodPost, "/auth/access", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRotateAccess_OK(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)
	h, st, _, ks := newHandlers(t, &stubKeyView{key: key})

	userID := uuid.New()
	st.EXPECT().UsableRefreshToken(gomock.Any(), "refresh_live", gomock.Any()).
		Return(&models.RefreshToken{
			Value:     "refresh_live",
			UserID:    userID,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil)
	ks.EXPECT().SigningKey(gomock.Any()).Return(key, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/access", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh_live"})
	h.RotateAccess(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeData(t, rr.Body, &out)
	require.NotEmpty(t, out.AccessToken)

	// Refresh-cookie не переустанавливается.
	for _, c := range rr.Result().Cookies() {
		require.NotEqual(t, refreshCookieName, c.Name)
	}
}

func TestRotateTokens_OK_ReplacesCookie(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)
	h, st, _, ks := newHandlers(t, &stubKeyView{key: key})

	userID := uuid.New()
	st.EXPECT().ClaimRefreshToken(gomock.Any(), "refresh_old", gomock.Any()).Return(userID, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
	ks.EXPECT().SigningKey(gomock.Any()).Return(key, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh_old"})
	h.RotateTokens(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	cookie := findCookie(t, rr, refreshCookieName)
	require.NotEmpty(t, cookie.Value)
	require.NotEqual(t, "refresh_old", cookie.Value)
}

func TestRotateTokens_InvalidToken_401(t *testing.T) {
	t.Parallel()

	h, st, _, _ := newHandlers(t, &stubKeyView{})

	st.EXPECT().ClaimRefreshToken(gomock.Any(), "refresh_dead", gomock.Any()).
		Return(uuid.Nil, storage.ErrNotFound)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh_dead"})
	h.RotateTokens(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignOut_OK_ClearsCookie(t *testing.T) {
	t.Parallel()

	h, st, _, _ := newHandlers(t, &stubKeyView{})

	st.EXPECT().RevokeRefreshToken(gomock.Any(), "refresh_live").Return(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/auth/sign-out", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "refresh_live"})
	h.SignOut(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	cookie := findCookie(t, rr, refreshCookieName)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)
}

func TestSession_MalformedAuthorization_401(t *testing.T) {
	t.Parallel()

	h, _, _, _ := newHandlers(t, &stubKeyView{})

	cases := []string{"", "Basic abc", "Bearer ", "Bearer"}
	for _, auth := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/users/session", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		h.Session(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code, "auth: %q", auth)
	}
}

func TestSession_OK_FromMemoizedVerification(t *testing.T) {
	t.Parallel()

	h, _, ch, _ := newHandlers(t, &stubKeyView{})

	userID := uuid.New()
	payload, err := json.Marshal(map[string]any{"id": userID, "username": "alice"})
	require.NoError(t, err)

	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return(string(payload), true, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/session", nil)
	req.Header.Set("Authorization", "Bearer memoized-token")
	h.Session(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var out sessionUser
	decodeData(t, rr.Body, &out)
	require.Equal(t, userID, out.ID)
	require.Equal(t, "alice", out.Username)
}

// TestSession_SameBodyOnColdAndMemoizedVerification —
// тело ответа /users/session не зависит от того, прошла проверка токена
// полный путь или попала в мемо-запись: оба пути несут ровно id и username.
func TestSession_SameBodyOnColdAndMemoizedVerification(t *testing.T) {
	t.Parallel()

	key := newTestKey(t)
	h, st, ch, ks := newHandlers(t, &stubKeyView{key: key})

	user := &models.User{
		ID:        uuid.New(),
		Username:  "alice",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	claims := jwt.MapClaims{
		"userId": user.ID.String(),
		"exp":    time.Now().Add(5 * time.Minute).Unix(),
		"iat":    time.Now().Unix(),
	}
	signed := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed.Header["kid"] = key.Kid
	raw, err := signed.SignedString(key.Private)
	require.NoError(t, err)

	// Холодный путь: полная проверка, мемо-запись уходит в кэш.
	var memoized string
	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
	ks.EXPECT().PublicKeyByKid(gomock.Any(), key.Kid).Return(key.Public, nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	ch.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, payload string, _ time.Duration) error {
			memoized = payload
			return nil
		})

	cold := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/session", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.Session(cold, req)
	require.Equal(t, http.StatusOK, cold.Code)

	// Тёплый путь: тот же токен обслуживается из мемо-записи.
	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return(memoized, true, nil)

	warm := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/users/session", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.Session(warm, req)
	require.Equal(t, http.StatusOK, warm.Code)

	require.JSONEq(t, cold.Body.String(), warm.Body.String())

	// В ответе ровно два поля, как в публичной схеме сессии.
	var env dataEnvelope
	require.NoError(t, json.Unmarshal(cold.Body.Bytes(), &env))
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	require.Len(t, fields, 2)
	require.Contains(t, fields, "id")
	require.Contains(t, fields, "username")
}

func TestSession_RejectedToken_401(t *testing.T) {
	t.Parallel()

	h, _, ch, _ := newHandlers(t, &stubKeyView{})

	ch.EXPECT().Get(gomock.Any(), gomock.Any()).Return("", false, nil)
	ch.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/users/session", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	h.Session(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
