// Пакет log привязывает request-scoped *slog.Logger к context.Context,
// чтобы атрибуты запроса (request_id и пр.) ехали сквозь слои вместе с ним.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into возвращает контекст-потомок с привязанным логгером.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From возвращает логгер запроса; если в контексте его нет
// (или по ключу лежит что-то другое) — текущий slog.Default().
func From(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || l == nil {
		return slog.Default()
	}

	return l
}
