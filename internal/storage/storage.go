package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (username/refresh-token value).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя; id и таймстемпы генерирует БД.
	// Нарушение уникальности username транслируется в ErrAlreadyExists —
	// это авторитетная защита от дублей, пред-проверка выше по стеку
	// выполняет лишь роль троттлинга.
	SaveUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	// UserByUsername находит пользователя по username.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен; дубликат value -> ErrAlreadyExists.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// UsableRefreshToken находит токен по value при условии
	// revoked=false и expires_at > now; иначе ErrNotFound.
	UsableRefreshToken(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error)
	// ClaimRefreshToken атомарно отзывает токен, если он всё ещё пригоден
	// (не отозван и не просрочен на момент now), и возвращает ID владельца.
	// Единый условный UPDATE закрывает гонку двух конкурентных ротаций:
	// успеть может ровно один вызов, второй получит ErrNotFound.
	ClaimRefreshToken(ctx context.Context, value string, now time.Time) (uuid.UUID, error)
	// RevokeRefreshToken помечает токен отозванным независимо от срока
	// действия; если записи с таким value нет — ErrNotFound.
	RevokeRefreshToken(ctx context.Context, value string) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
