package domain

import (
	"crypto/subtle"
	"time"
)

// Secret es el slot unico para un secreto pendiente de una cuenta: el token
// de verificacion de email o el OTP de sign-in. Emitir uno nuevo reemplaza
// al anterior (last write wins); consumirlo limpia el slot.
type Secret struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired indica si el secreto ya no es valido en el instante dado.
// El limite es exclusivo: en ExpiresAt exacto el secreto ya expiro.
func (s *Secret) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// Matches compara un valor candidato en tiempo constante.
func (s *Secret) Matches(value string) bool {
	if s == nil || s.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.Value), []byte(value)) == 1
}
