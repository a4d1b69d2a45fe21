package middlewarectx

import (
	"crypto/subtle"
	"strings"

	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/password"
)

const staticSubject = "api-token"

// Tokens принимает статический токен, токен под bcrypt-хешем или подписанный JWT.
type Tokens struct {
	static string
	hash   string
	maker  jwt.Maker
}

// NewTokens собирает проверку токенов из настроек доступа.
func NewTokens(cfg config.Auth) *Tokens {
	t := &Tokens{
		static: strings.TrimSpace(cfg.APIToken),
		hash:   cfg.APITokenHash,
	}
	if cfg.JWTSecret != "" {
		t.maker = jwt.NewJWTMaker(cfg.JWTSecret, cfg.TokenTTL)
	}
	return t
}

// Verify реализует TokenVerifier.
func (t *Tokens) Verify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	if t.static != "" && subtle.ConstantTimeCompare([]byte(token), []byte(t.static)) == 1 {
		return staticSubject, true
	}
	if t.hash != "" && password.Matches(t.hash, token) {
		return staticSubject, true
	}
	if t.maker != nil {
		if claims, err := t.maker.ParseToken(token); err == nil {
			return claims.Subject, true
		}
	}
	return "", false
}
