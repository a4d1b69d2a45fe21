// Package jwt выпускает и проверяет токены доступа к дашборду.
//
// Токен подписывается HS256 общим секретом и несёт subject (кому выдан)
// и scope. Сервис принимает только токены со scope ScopeDashboardRead.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeDashboardRead право читать снапшот.
	ScopeDashboardRead = "dashboard:read"
	// Issuer издатель токенов.
	Issuer = "subscription-snapshot"
)

// DashboardClaims описывает данные, хранящиеся в токене.
type DashboardClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Maker описывает выпуск и разбор токенов.
type Maker interface {
	GenerateToken(subject string) (string, error)
	ParseToken(tokenStr string) (*DashboardClaims, error)
}

// MakerImpl реализует Maker с секретным ключом и временем жизни токена.
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl. Нулевой ttl означает токен без срока действия.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
