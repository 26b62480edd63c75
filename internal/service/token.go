package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/pkg/log"
	"github.com/jmrl23/token-based-authentication/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenPrefix — фиксированный литеральный префикс значения
// refresh-токена; позволяет опознать тип секрета по виду строки.
const refreshTokenPrefix = "refresh_"

type accessClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// IssueTokenPair выпускает новую пару токенов для пользователя:
// непрозрачный refresh-токен (строка в БД, revoked=false, expires_at=now+TTL)
// и access-токен — JWT, подписанный текущим активным ключом, с kid
// этого ключа в заголовке.
func (s *Service) IssueTokenPair(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.token.IssueTokenPair"

	refreshValue, err := s.generateRefreshToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	accessToken, err := s.generateAccessToken(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshValue,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// RotateAccessToken выпускает свежий access-токен по пригодному
// refresh-токену. Сама запись refresh-токена не меняется.
func (s *Service) RotateAccessToken(ctx context.Context, refreshValue string) (string, error) {
	const op = "service.token.RotateAccessToken"

	token, err := s.storage.UsableRefreshToken(ctx, refreshValue, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	// SQL-фильтр оценивает пригодность на момент запроса; к моменту выпуска
	// access-токена срок мог успеть истечь.
	if !token.Usable(time.Now().UTC()) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	accessToken, err := s.generateAccessToken(ctx, token.UserID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return accessToken, nil
}

// RotateTokens отзывает предъявленный refresh-токен и выпускает целиком
// новую пару для его владельца. Ротация инвалидирует, а не продлевает:
// старое значение становится навсегда непригодным, даже если его срок
// ещё не истёк.
//
// Проверка пригодности и отзыв выполняются одним условным UPDATE
// (claim-if-active), поэтому из двух конкурентных ротаций одного значения
// успевает ровно одна — вторая получает ErrInvalidToken.
func (s *Service) RotateTokens(ctx context.Context, refreshValue string) (*models.TokenPair, error) {
	const op = "service.token.RotateTokens"

	userID, err := s.storage.ClaimRefreshToken(ctx, refreshValue, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.IssueTokenPair(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// generateAccessToken подписывает access-токен активным ключом (RS256),
// проставляя его kid в заголовок.
func (s *Service) generateAccessToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		lg.Error("signing_key_unavailable",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	claims := accessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.Kid

	signed, err := token.SignedString(key.Private)
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// generateRefreshToken создаёт новый refresh-токен: фиксированный префикс
// плюс 128 hex-символов (64 случайных байта). Глобальную уникальность
// значения гарантирует unique-констрейнт; на маловероятную коллизию
// отвечаем перегенерацией.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 64)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		value := refreshTokenPrefix + hex.EncodeToString(b)

		now := time.Now().UTC()
		token := &models.RefreshToken{
			Value:     value,
			UserID:    userID,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
			Revoked:   false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		return value, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}
