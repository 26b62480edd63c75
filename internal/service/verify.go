package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/pkg/log"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// verifyDeniedSentinel — маркер негативного исхода проверки в кэше.
const verifyDeniedSentinel = "denied"

// verifyAttemptKey — ключ мемоизации результата проверки access-токена;
// ключом служит точная строка токена.
func verifyAttemptKey(accessToken string) string {
	return "access_token_verify_attempt_result:" + accessToken
}

// cachedUser — то, что мы храним в кэше по успешно проверенному токену.
type cachedUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// VerifyAccessToken проверяет access-токен и возвращает его владельца.
//
// Контракт: любой отказ (плохая подпись, незнакомый kid, чужой алгоритм,
// истёкший срок, отсутствующий пользователь, недоступный кэш) поглощается
// локально и превращается в nil — "пользователя нет". Ошибка наружу не
// поднимается никогда: отсутствие пользователя для вызывающего означает
// "не аутентифицирован", а не сбой системы.
//
// Кэширование: успешный исход мемоизируется под строкой токена с TTL,
// ограниченным остатком жизни самого токена (exp-now), поэтому запись
// не может пережить токен. Негативный исход кэшируется под коротким
// фиксированным TTL (cfg.NegativeVerifyTTL). forceRevalidate сбрасывает
// мемоизацию перед проверкой.
func (s *Service) VerifyAccessToken(ctx context.Context, accessToken string, forceRevalidate bool) *models.User {
	const op = "service.verify.VerifyAccessToken"

	lg := log.From(ctx)

	user, err := s.verifyAccessToken(ctx, accessToken, forceRevalidate)
	if err != nil {
		lg.Warn("access_token_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)

		// Негативный кэш — best-effort: отказ в проверке не должен
		// зависеть от доступности Redis.
		_ = s.cache.Set(ctx, verifyAttemptKey(accessToken), verifyDeniedSentinel, s.cfg.NegativeVerifyTTL)

		return nil
	}

	return user
}

// verifyAccessToken — основной путь проверки; (nil, nil) означает
// закэшированный негативный исход.
func (s *Service) verifyAccessToken(ctx context.Context, accessToken string, forceRevalidate bool) (*models.User, error) {
	const op = "service.verify.verifyAccessToken"

	cacheKey := verifyAttemptKey(accessToken)

	if forceRevalidate {
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	cached, hit, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if hit {
		if cached == verifyDeniedSentinel {
			return nil, nil
		}

		var cu cachedUser
		if err := json.Unmarshal([]byte(cached), &cu); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return &models.User{ID: cu.ID, Username: cu.Username}, nil
	}

	claims, err := s.parseAccessToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// TTL записи ограничен остатком жизни токена.
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		payload, err := json.Marshal(cachedUser{ID: user.ID, Username: user.Username})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := s.cache.Set(ctx, cacheKey, string(payload), ttl); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return user, nil
}

// parseAccessToken разбирает и проверяет JWT: подпись строго RS256
// (защита от подмены алгоритма), ключ проверки выбирается по kid из
// заголовка, незнакомый kid отклоняется.
func (s *Service) parseAccessToken(ctx context.Context, accessToken string) (*accessClaims, error) {
	const op = "service.verify.parseAccessToken"

	token, err := jwt.ParseWithClaims(accessToken, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("%s: missing kid header", op)
			}

			public, err := s.keys.PublicKeyByKid(ctx, kid)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			return public, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid claims", op)
	}

	return claims, nil
}
