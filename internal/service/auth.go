package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/pkg/log"
	"github.com/jmrl23/token-based-authentication/internal/pkg/redact"
	"github.com/jmrl23/token-based-authentication/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// registerAttemptKey — ключ троттлинга повторных попыток регистрации.
// Намеренно включает точную пару (username, password): повторную отправку
// той же формы отсекаем ещё до похода в хранилище.
func registerAttemptKey(username, password string) string {
	return fmt.Sprintf("register_attempt:username=%s:password=%s", username, password)
}

// loginAttemptKey — ключ троттлинга попыток входа; неймспейс отделён
// от регистрации.
func loginAttemptKey(username, password string) string {
	return fmt.Sprintf("login_attempt:username=%s:password=%s", username, password)
}

// Register регистрирует нового пользователя и выпускает пару токенов.
//
// Пред-проверка существования username выполняет роль троттлинга;
// авторитетной защитой от дублей служит unique-констрейнт БД: конкурентная
// регистрация, проскочившая пред-проверку, упрётся в ErrAlreadyExists
// на вставке и будет замаплена в ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Register"

	lg := log.From(ctx)

	attemptKey := registerAttemptKey(username, password)
	_, hit, err := s.cache.Get(ctx, attemptKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if hit {
		lg.Warn("register_throttled",
			slog.String("op", op),
			slog.String("username", redact.Username(username)),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}

	_, lookupErr := s.storage.UserByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, lookupErr)
	}

	if err := s.cache.Set(ctx, attemptKey, "1", s.cfg.AttemptTTL); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if lookupErr == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}

	passwordHash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.SaveUser(ctx, username, passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// Login выполняет вход по username+пароль и выпускает пару токенов.
// Повторная идентичная попытка в окне троттлинга отклоняется без
// повторного сравнения пароля; успешный вход снимает троттл-запись.
func (s *Service) Login(ctx context.Context, username, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	attemptKey := loginAttemptKey(username, password)
	_, hit, err := s.cache.Get(ctx, attemptKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if hit {
		lg.Warn("login_throttled",
			slog.String("op", op),
			slog.String("username", redact.Username(username)),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, lookupErr := s.storage.UserByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, lookupErr)
	}

	if err := s.cache.Set(ctx, attemptKey, "1", s.cfg.AttemptTTL); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if lookupErr != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.cache.Delete(ctx, attemptKey); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// Logout отзывает refresh-токен независимо от срока его действия.
// Отзыв — односторонний переход: обратно в Active токен не возвращается.
func (s *Service) Logout(ctx context.Context, refreshValue string) error {
	const op = "service.auth.Logout"

	if err := s.storage.RevokeRefreshToken(ctx, refreshValue); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// hashPassword хэширует пароль с помощью bcrypt (адаптивный salted-хэш).
func hashPassword(password string, cost int) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
