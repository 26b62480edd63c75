package handlers

import (
	"net/http"

	apierrors "github.com/jmrl23/token-based-authentication/internal/errors"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type dataResponse struct {
	Data any `json:"data"`
}

// PublicKey отдаёт публичную половину активного ключа подписи (SPKI PEM).
func (h *Handlers) PublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.Keys.SigningKey(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(key.PublicPEM)
}

// JWKS отдаёт публичный JWK-набор всех известных ключей.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	jwks, err := h.Keys.JWKS(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": jwks})
}

// SignUp регистрирует пользователя; access-токен возвращается в теле,
// refresh-токен уезжает клиенту в HttpOnly cookie.
func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(r, &in); err != nil || in.Username == "" || in.Password == "" {
		apierrors.BadRequest(w, r, "invalid request body")
		return
	}

	pair, _, err := h.Service.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(pair.RefreshToken))
	writeJSON(w, http.StatusOK, dataResponse{Data: tokenResponse{AccessToken: pair.AccessToken}})
}

// SignIn выполняет вход; формат ответа идентичен SignUp.
func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(r, &in); err != nil || in.Username == "" || in.Password == "" {
		apierrors.BadRequest(w, r, "invalid request body")
		return
	}

	pair, _, err := h.Service.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(pair.RefreshToken))
	writeJSON(w, http.StatusOK, dataResponse{Data: tokenResponse{AccessToken: pair.AccessToken}})
}

// RotateAccess выпускает свежий access-токен по refresh-токену из cookie;
// сам refresh-токен при этом не меняется.
func (h *Handlers) RotateAccess(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		apierrors.Unauthorized(w, r, "invalid refresh token")
		return
	}

	accessToken, err := h.Service.RotateAccessToken(r.Context(), cookie.Value)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: tokenResponse{AccessToken: accessToken}})
}

// RotateTokens отзывает предъявленный refresh-токен и выдаёт целиком
// новую пару: access — в теле, новый refresh — в cookie.
func (h *Handlers) RotateTokens(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		apierrors.Unauthorized(w, r, "invalid refresh token")
		return
	}

	pair, err := h.Service.RotateTokens(r.Context(), cookie.Value)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, h.refreshCookie(pair.RefreshToken))
	writeJSON(w, http.StatusOK, dataResponse{Data: tokenResponse{AccessToken: pair.AccessToken}})
}

// SignOut отзывает refresh-токен независимо от срока его действия
// и затирает cookie у клиента.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		apierrors.Unauthorized(w, r, "invalid refresh token")
		return
	}

	if err := h.Service.Logout(r.Context(), cookie.Value); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	http.SetCookie(w, expiredRefreshCookie())
	writeJSON(w, http.StatusOK, dataResponse{Data: "ok"})
}
