package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — данные refresh-токена для управления сессиями.
//
// Состояния: Active -> Revoked (однонаправленный переход, обратного нет).
// "Expired" не хранится в БД — это производный предикат от ExpiresAt,
// вычисляемый в момент использования (см. Usable).
type RefreshToken struct {
	ID        uuid.UUID
	Value     string
	UserID    uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Usable сообщает, пригоден ли токен к использованию в момент now:
// не отозван и срок действия ещё не истёк.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
