// Package password хеширует и проверяет статический токен API bcrypt-ом,
// чтобы в конфиге можно было хранить хеш вместо самого токена.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GetHash возвращает bcrypt-хеш токена. Токены длиннее 72 байт отклоняются.
func GetHash(token string) (string, error) {
	const op = "password.GetHash"
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashed), nil
}

// CompareHash сравнивает bcrypt-хеш с предъявленным токеном.
//
// Возвращает nil, если токен соответствует хешу, иначе ошибку.
func CompareHash(originalHash, candidate string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(candidate)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Matches CompareHash в виде предиката. Пустой хеш не совпадает ни с чем.
func Matches(originalHash, candidate string) bool {
	if originalHash == "" || candidate == "" {
		return false
	}
	return CompareHash(originalHash, candidate) == nil
}
