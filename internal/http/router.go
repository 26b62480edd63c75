package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmrl23/token-based-authentication/internal/http/handlers"
	"github.com/jmrl23/token-based-authentication/internal/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// NewRouter собирает http.Handler: chi-роутер с маршрутами, обёрнутый
// общей цепочкой middleware.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()
	registerRoutes(root, h)

	// Внешний -> внутренний: Recover ловит паники всего конвейера,
	// RequestID проставляется до логирования.
	mws := []middleware.Middleware{
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
	}
	if opts.Timeout > 0 {
		mws = append(mws, middleware.Timeout(opts.Timeout))
	}

	return middleware.Chain(root, mws...)
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// auth
	r.Route("/auth", func(r chi.Router) {
		r.Get("/", h.PublicKey)
		r.Post("/sign-up", h.SignUp)
		r.Post("/sign-in", h.SignIn)
		r.Post("/access", h.RotateAccess)
		r.Post("/refresh", h.RotateTokens)
		r.Delete("/sign-out", h.SignOut)
	})

	// users
	r.Get("/users/session", h.Session)

	// публичный набор ключей подписи
	r.Get("/well-known/jwks.json", h.JWKS)
}
