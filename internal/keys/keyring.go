// keys реализует управление ключами подписи access-токенов (KeyRing).
//
// Каждый ключ — каталог на диске с именем из 32 hex-символов (kid),
// внутри которого лежат private.key (PKCS8 PEM) и public.key (SPKI PEM).
// Временем создания ключа считается mtime каталога: метаданные хранилища
// переживают рестарты и миграции, в отличие от wall-clock в момент генерации.
//
// Список ключей и публичный JWK-набор кэшируются в памяти с независимыми
// TTL и инвалидируются только по их истечении. Свежесгенерированный ключ
// может быть не виден читателям до одного TTL-окна — это осознанный
// компромисс, а не ошибка: проверка всегда резолвится по kid в рамках
// текущего кэша и уже выданные токены не ломает.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmrl23/token-based-authentication/internal/config"
	"github.com/jmrl23/token-based-authentication/internal/models"
	"github.com/jmrl23/token-based-authentication/internal/pkg/log"
)

// Algorithm — единственный поддерживаемый алгоритм подписи.
const Algorithm = "RS256"

const (
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
)

var (
	// ErrNoKeys — набор ключей пуст (KeyRing не инициализирован).
	ErrNoKeys = errors.New("no signing keys")
	// ErrUnknownKid — ключ с указанным kid отсутствует в наборе.
	ErrUnknownKid = errors.New("unknown kid")
)

// Source — контракт KeyRing, потребляемый сервисным слоем:
// выбор активного ключа для подписи и прямой маппинг kid -> публичный ключ
// для проверки (без callback-индирекции).
type Source interface {
	// SigningKey возвращает активный ключ подписи (максимальный CreatedAt).
	SigningKey(ctx context.Context) (*models.SigningKey, error)
	// PublicKeyByKid возвращает публичный ключ по kid из заголовка токена.
	PublicKeyByKid(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// KeyRing владеет набором RSA-пар. Создаётся один раз при старте процесса
// и передаётся в сервис по ссылке; глобального состояния нет.
// Безопасен для конкурентного использования.
type KeyRing struct {
	cfg config.KeysConfig

	mu         sync.Mutex
	keys       map[string]*models.SigningKey
	keysExpiry time.Time
	jwks       []models.JWK
	jwksExpiry time.Time
}

// New создаёт KeyRing поверх каталога cfg.Dir.
func New(cfg config.KeysConfig) *KeyRing {
	return &KeyRing{cfg: cfg}
}

var _ Source = (*KeyRing)(nil)

// Initialize сканирует каталог ключей и, если там нет ни одного подкаталога,
// генерирует первую пару. Идемпотентен: после вызова в хранилище всегда >= 1 ключа.
func (r *KeyRing) Initialize(ctx context.Context) error {
	const op = "keys.keyring.Initialize"

	if err := os.MkdirAll(r.cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return nil
		}
	}

	if _, err := r.GenerateKeyPair(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GenerateKeyPair создаёт RSA-пару (cfg.Bits), назначает ей случайный
// 128-битный hex-идентификатор и сохраняет обе PEM-кодировки в каталог kid.
// Кэш списка при этом не сбрасывается — новый ключ станет видимым
// читателям после истечения TTL.
func (r *KeyRing) GenerateKeyPair(ctx context.Context) (*models.SigningKey, error) {
	const op = "keys.keyring.GenerateKeyPair"

	lg := log.From(ctx)

	private, err := rsa.GenerateKey(rand.Reader, r.cfg.Bits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	kidBytes := make([]byte, 16)
	if _, err := rand.Read(kidBytes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	kid := hex.EncodeToString(kidBytes)

	privateDER, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})

	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	dir := filepath.Join(r.cfg.Dir, kid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), privatePEM, 0o600); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), publicPEM, 0o600); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// CreatedAt — из метаданных хранилища, не из wall-clock.
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("signing_key_generated",
		slog.String("op", op),
		slog.String("kid", kid),
		slog.Int("bits", r.cfg.Bits),
	)

	return &models.SigningKey{
		Kid:        kid,
		Public:     &private.PublicKey,
		Private:    private,
		PublicPEM:  publicPEM,
		PrivatePEM: privatePEM,
		CreatedAt:  info.ModTime().UTC(),
	}, nil
}

// ListKeys возвращает маппинг kid -> ключ. Результат кэшируется на cfg.ListTTL,
// чтобы не сканировать хранилище на каждый запрос; кэш сбрасывается только по TTL.
func (r *KeyRing) ListKeys(ctx context.Context) (map[string]*models.SigningKey, error) {
	const op = "keys.keyring.ListKeys"

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.keys != nil && now.Before(r.keysExpiry) {
		return r.keys, nil
	}

	keys, err := r.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.keys = keys
	r.keysExpiry = now.Add(r.cfg.ListTTL)

	return keys, nil
}

// SigningKey возвращает активный ключ подписи — явная max-by-CreatedAt
// свёртка по набору. При равных таймстемпах стабильно побеждает
// лексикографически больший kid.
func (r *KeyRing) SigningKey(ctx context.Context) (*models.SigningKey, error) {
	const op = "keys.keyring.SigningKey"

	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var active *models.SigningKey
	for _, key := range keys {
		if active == nil {
			active = key
			continue
		}

		if key.CreatedAt.After(active.CreatedAt) {
			active = key
			continue
		}

		if key.CreatedAt.Equal(active.CreatedAt) && key.Kid > active.Kid {
			active = key
		}
	}

	if active == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoKeys)
	}

	return active, nil
}

// PublicKeyByKid возвращает публичный ключ по kid; незнакомый kid — ошибка.
func (r *KeyRing) PublicKeyByKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	const op = "keys.keyring.PublicKeyByKid"

	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrUnknownKid)
	}

	return key.Public, nil
}

// JWKS экспортирует все известные публичные ключи в формате RFC 7517.
// Кэшируется отдельно от списка ключей, с более коротким cfg.JWKSTTL.
func (r *KeyRing) JWKS(ctx context.Context) ([]models.JWK, error) {
	const op = "keys.keyring.JWKS"

	r.mu.Lock()
	if r.jwks != nil && time.Now().Before(r.jwksExpiry) {
		jwks := r.jwks
		r.mu.Unlock()
		return jwks, nil
	}
	r.mu.Unlock()

	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	jwks := make([]models.JWK, 0, len(keys))
	for kid, key := range keys {
		jwks = append(jwks, models.JWK{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: Algorithm,
			N:   base64.RawURLEncoding.EncodeToString(key.Public.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.Public.E)).Bytes()),
		})
	}

	r.mu.Lock()
	r.jwks = jwks
	r.jwksExpiry = time.Now().Add(r.cfg.JWKSTTL)
	r.mu.Unlock()

	return jwks, nil
}

// scan читает каталоги ключей с диска. Нечитаемый корневой каталог —
// фатальная ошибка вызова; каталог без одной из половин пары считается
// повреждённым, пропускается с предупреждением и листинг продолжается.
// Вызывается под r.mu.
func (r *KeyRing) scan(ctx context.Context) (map[string]*models.SigningKey, error) {
	lg := log.From(ctx)

	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]*models.SigningKey)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		kid := entry.Name()
		dir := filepath.Join(r.cfg.Dir, kid)

		key, err := readKeyPair(dir, kid)
		if err != nil {
			lg.Warn("signing_key_skipped",
				slog.String("kid", kid),
				slog.String("err", err.Error()),
			)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			lg.Warn("signing_key_skipped",
				slog.String("kid", kid),
				slog.String("err", err.Error()),
			)
			continue
		}
		key.CreatedAt = info.ModTime().UTC()

		keys[kid] = key
	}

	return keys, nil
}

// readKeyPair читает и разбирает обе половины пары из каталога ключа.
func readKeyPair(dir, kid string) (*models.SigningKey, error) {
	publicPEM, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	privatePEM, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	publicBlock, _ := pem.Decode(publicPEM)
	if publicBlock == nil {
		return nil, errors.New("malformed public key pem")
	}

	publicAny, err := x509.ParsePKIXPublicKey(publicBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	public, ok := publicAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}

	privateBlock, _ := pem.Decode(privatePEM)
	if privateBlock == nil {
		return nil, errors.New("malformed private key pem")
	}

	privateAny, err := x509.ParsePKCS8PrivateKey(privateBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	private, ok := privateAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}

	return &models.SigningKey{
		Kid:        kid,
		Public:     public,
		Private:    private,
		PublicPEM:  publicPEM,
		PrivatePEM: privatePEM,
	}, nil
}
