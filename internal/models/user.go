package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
// ID и таймстемпы генерируются на стороне БД; UpdatedAt
// автоматически обновляется триггером при любой мутации записи.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
