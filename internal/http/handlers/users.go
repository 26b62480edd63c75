package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/jmrl23/token-based-authentication/internal/errors"

	"github.com/google/uuid"
)

// sessionUser — публичное представление владельца сессии: только id и
// username. Ровно эти же поля несёт мемо-запись проверки токена, поэтому
// ответ не зависит от того, попала проверка в кэш или прошла полный путь.
type sessionUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Session возвращает владельца access-токена из заголовка Authorization.
// Искажённый заголовок и непроверяемый токен одинаково дают 401 —
// для вызывающего это "не аутентифицирован", а не сбой системы.
// Параметр ?revalidate=true сбрасывает мемоизацию перед проверкой.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	const bearerPrefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		apierrors.Unauthorized(w, r, "user not found")
		return
	}

	token := strings.TrimSpace(auth[len(bearerPrefix):])
	if token == "" {
		apierrors.Unauthorized(w, r, "user not found")
		return
	}

	revalidate := r.URL.Query().Get("revalidate") == "true"

	user := h.Service.VerifyAccessToken(r.Context(), token, revalidate)
	if user == nil {
		apierrors.Unauthorized(w, r, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Data: sessionUser{
		ID:       user.ID,
		Username: user.Username,
	}})
}
