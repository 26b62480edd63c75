package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
		INSERT INTO refresh_tokens(value, user_id, expires_at, is_revoked)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		token.Value,
		token.UserID,
		token.ExpiresAt,
		token.Revoked,
	).Scan(
		&token.ID,
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UsableRefreshToken находит пригодный к использованию токен по value:
// не отозванный и с expires_at строго больше now.
func (s *Storage) UsableRefreshToken(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error) {
	const op = "storage.postgres.UsableRefreshToken"

	query := `
		SELECT id, value, user_id, created_at, updated_at, expires_at, is_revoked
		FROM refresh_tokens
		WHERE value = $1 AND is_revoked = FALSE AND expires_at > $2
	`

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, value, now).Scan(
		&token.ID,
		&token.Value,
		&token.UserID,
		&token.CreatedAt,
		&token.UpdatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// ClaimRefreshToken атомарно отзывает пригодный токен и возвращает ID владельца.
// Проверка пригодности и запись revoked выполняются одним условным UPDATE,
// поэтому из двух конкурентных ротаций успевает ровно одна.
func (s *Storage) ClaimRefreshToken(ctx context.Context, value string, now time.Time) (uuid.UUID, error) {
	const op = "storage.postgres.ClaimRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE
		WHERE value = $1 AND is_revoked = FALSE AND expires_at > $2
		RETURNING user_id
	`

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, query, value, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return userID, nil
}

// RevokeRefreshToken помечает токен отозванным независимо от срока действия.
func (s *Storage) RevokeRefreshToken(ctx context.Context, value string) error {
	const op = "storage.postgres.RevokeRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE
		WHERE value = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}
