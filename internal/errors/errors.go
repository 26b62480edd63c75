// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку доменного слоя (service), а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки внутренних деталей.
//
// Маппинг:
//   - service.ErrUsernameTaken -> 409 Conflict;
//   - service.ErrInvalidCredentials, service.ErrInvalidToken -> 401 Unauthorized;
//   - прочее -> 500 Internal (детали остаются в логах).
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmrl23/token-based-authentication/internal/service"
)

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
// err == nil — программная ошибка вызова: возвращаем 500/internal, чтобы
// не послать "200 OK" с телом ошибки и не замаскировать баг.
func ToHTTP(err error) (int, ErrorResponse) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, newResponse("internal", "internal error")
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, newResponse("conflict", "username already taken")
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, newResponse("unauthorized", "incorrect username or password")
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, newResponse("unauthorized", "invalid refresh token")
	default:
		return http.StatusInternalServerError, newResponse("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// BadRequest пишет 400 для нечитаемого/неполного тела запроса.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	resp := newResponse("invalid_argument", message)
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
}

// Unauthorized пишет 401 без привязки к доменной ошибке
// (отсутствующий/искажённый заголовок авторизации).
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	resp := newResponse("unauthorized", message)
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(resp)
}

func newResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: message}}
}
