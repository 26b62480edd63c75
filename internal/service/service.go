// service содержит бизнес-логику подсистемы выдачи и проверки учётных данных:
// регистрацию/аутентификацию пользователей, выпуск/ротацию/отзыв refresh-токенов
// и проверку access-токенов. Персистентность — через контракт storage.Storage,
// троттлинг и мемоизация — через cache.Cache, ключи подписи — через keys.Source.
//
// Основные аспекты:
//   - Сервис не хранит состояние запроса; экземпляр Service безопасен для
//     конкурентного использования из разных горутин при потокобезопасных
//     зависимостях. Межзапросных блокировок нет: атомарность отдельных
//     операций делегирована хранилищу (условный UPDATE при ротации,
//     unique-констрейнт при регистрации).
//   - Ошибки возвращаются наверх и маппятся транспортом на типизированные
//     ответы (см. комментарии к переменным ошибок ниже). Исключение —
//     VerifyAccessToken: все его отказы поглощаются локально.
package service

import (
	"errors"

	"github.com/jmrl23/token-based-authentication/internal/cache"
	"github.com/jmrl23/token-based-authentication/internal/config"
	"github.com/jmrl23/token-based-authentication/internal/keys"
	"github.com/jmrl23/token-based-authentication/internal/storage"
)

var (
	// ErrUsernameTaken — username уже занят либо идентичная попытка
	// регистрации уже была в окне троттлинга. HTTP 409 (Conflict).
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials — пара логин/пароль неверна, пользователь
	// не найден либо сработал троттлинг попыток входа. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — refresh-токен не найден, отозван или просрочен.
	// HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальное
	// значение refresh-токена (крайне редкие коллизии). HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// Service реализует бизнес-логику подсистемы.
type Service struct {
	storage storage.Storage
	cache   cache.Cache
	keys    keys.Source
	cfg     config.AuthConfig
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cache cache.Cache, keys keys.Source, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cache:   cache,
		keys:    keys,
		cfg:     cfg,
	}
}
