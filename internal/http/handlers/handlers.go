// handlers содержит HTTP-обработчики поверх сервисного слоя.
// Здесь выполняется только разбор запросов и маппинг данных/ошибок
// доменного слоя в HTTP; вся бизнес-логика находится в пакете service.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/config"
	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/service"
)

// refreshCookieName — имя cookie, в которой клиенту выдаётся refresh-токен.
const refreshCookieName = "refresh_token"

// KeyView — срез KeyRing, нужный HTTP-слою: активный публичный ключ
// и экспорт JWK-набора.
type KeyView interface {
	SigningKey(ctx context.Context) (*models.SigningKey, error)
	JWKS(ctx context.Context) ([]models.JWK, error)
}

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	Service *service.Service
	Keys    KeyView
	Auth    config.AuthConfig
}

func New(svc *service.Service, keys KeyView, auth config.AuthConfig) *Handlers {
	return &Handlers{Service: svc, Keys: keys, Auth: auth}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через errors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// refreshCookie собирает cookie с refresh-токеном: HttpOnly, SameSite=Lax,
// срок жизни равен сроку жизни самого токена.
func (h *Handlers) refreshCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(h.Auth.RefreshTokenTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// expiredRefreshCookie собирает cookie, затирающую refresh-токен у клиента.
func expiredRefreshCookie() *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
