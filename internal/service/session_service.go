package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"egobar/internal/domain"
)

// SessionService emite y lee la credencial de sesion (JWT HS256 en cookie).
// No hay revocacion server-side: una credencial robada vale hasta expirar.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SessionState distingue cookie ausente de cookie presente pero inservible,
// para que cada caller decida que tan estricto ser.
type SessionState int

const (
	SessionNone SessionState = iota
	SessionActive
	SessionRejected
)

// SessionResult es el resultado de leer la cookie de sesion.
type SessionResult struct {
	State     SessionState
	AccountID string
	Username  string
}

const sessionTTL = time.Hour

func NewSessionService(secret string) *SessionService {
	return &SessionService{
		secret: []byte(secret),
		ttl:    sessionTTL,
		issuer: "egobar",
	}
}

func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue firma una credencial de 1 hora para una cuenta ya autenticada.
// Sin secreto configurado falla cerrado: no se emite nada.
func (s *SessionService) Issue(account domain.Account) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSessionUnavailable
	}
	now := time.Now().UTC()
	claims := SessionClaims{
		Username: account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Read clasifica la credencial sin devolver error: token vacio es SessionNone,
// cualquier token presente pero invalido (firma, expiracion, claims) es
// SessionRejected. Los callers degradan a anonimo o rechazan segun el caso.
func (s *SessionService) Read(token string) SessionResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionResult{State: SessionNone}
	}
	if len(s.secret) == 0 {
		return SessionResult{State: SessionRejected}
	}

	var claims SessionClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return SessionResult{State: SessionRejected}
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Issuer != s.issuer {
		return SessionResult{State: SessionRejected}
	}
	return SessionResult{
		State:     SessionActive,
		AccountID: claims.Subject,
		Username:  claims.Username,
	}
}
