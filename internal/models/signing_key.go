package models

import (
	"crypto/rsa"
	"time"
)

// SigningKey — RSA-пара для подписи и проверки access-токенов.
//
// Kid — случайный 128-битный идентификатор в hex (имя каталога на диске),
// он же попадает в заголовок JWT и в JWKS. CreatedAt берётся из метаданных
// хранилища ключа, а не из wall-clock в момент генерации, чтобы порядок
// ключей переживал рестарты и миграции.
type SigningKey struct {
	Kid        string
	Public     *rsa.PublicKey
	Private    *rsa.PrivateKey
	PublicPEM  []byte
	PrivatePEM []byte
	CreatedAt  time.Time
}

// JWK — публичная часть ключа подписи в формате RFC 7517.
// N и E — base64url (без паддинга) от big-endian байтов модуля и экспоненты.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}
