package service

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/valtp/saas-platform/panel-service/internal/config"
)

const (
	passwordLength   = 16
	passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// PasswordGenerator issues panel login passwords.
type PasswordGenerator struct {
	mode   string
	suffix string
}

func NewPasswordGenerator(mode, suffix string) *PasswordGenerator {
	return &PasswordGenerator{mode: mode, suffix: suffix}
}

// Generate returns a new password for username. Legacy mode derives it as
// username+suffix; otherwise it is random and unrelated to the username.
func (g *PasswordGenerator) Generate(username string) (string, error) {
	if g.mode == config.PasswordModeLegacy {
		return username + g.suffix, nil
	}

	buf := make([]byte, passwordLength)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// HashPassword returns the bcrypt hash stored in place of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
