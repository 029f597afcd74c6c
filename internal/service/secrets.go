package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"egobar/internal/domain"
)

const (
	verificationTokenTTL = 24 * time.Hour
	otpTTL               = 5 * time.Minute
)

// newVerificationSecret genera un token de verificacion de alta entropia.
// El token viaja en la URL y se usa como clave de busqueda, por eso se
// almacena tal cual se emitio.
func newVerificationSecret(now time.Time) (string, domain.Secret, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.Secret{}, err
	}
	token := hex.EncodeToString(raw)
	return token, domain.Secret{
		Value:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(verificationTokenTTL),
	}, nil
}

// newOTPSecret genera un codigo de 6 digitos y su hash salteado para reposo.
func newOTPSecret(now time.Time) (string, domain.Secret, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", domain.Secret{}, err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", domain.Secret{}, err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	hash := base64.StdEncoding.EncodeToString(hashBytes[:])

	return code, domain.Secret{
		Value:     saltStr + ":" + hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(otpTTL),
	}, nil
}

// otpMatches recomputa el hash salteado y compara en tiempo constante.
func otpMatches(secret *domain.Secret, code string) bool {
	if secret == nil {
		return false
	}
	parts := strings.Split(secret.Value, ":")
	if len(parts) != 2 {
		return false
	}
	saltStr := parts[0]
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	hash := base64.StdEncoding.EncodeToString(hashBytes[:])
	return secret.Matches(saltStr + ":" + hash)
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
