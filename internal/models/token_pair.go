package models

import "time"

// TokenPair — пара токенов, выдаваемая при регистрации/аутентификации/ротации.
//
// Описание:
//   - AccessToken — короткоживущий JWT (RS256, kid в заголовке) для доступа к API;
//   - RefreshToken — непрозрачный случайный секрет с фиксированным префиксом,
//     который клиент предъявляет для выпуска новой пары токенов;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	// AccessToken — JWT для авторизации запросов.
	AccessToken string
	// RefreshToken — непрозрачный секрет для обновления пары.
	RefreshToken string
	// AccessExpiresAt — время истечения действия access-токена (UTC).
	AccessExpiresAt time.Time
}
