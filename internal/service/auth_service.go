package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"egobar/internal/domain"
	"egobar/internal/email"
	"egobar/internal/repository"
)

// AuthService implementa el flujo de sign-in en dos pasos y los tokens de
// verificacion de email. Nunca emite sesiones: eso es de SessionService.
type AuthService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	emailSender email.Sender
	otpLimiter  OTPRateLimiter
	appURL      string
}

func NewAuthService(logger *zap.Logger, accounts repository.AccountRepository, emailSender email.Sender, otpLimiter OTPRateLimiter, appURL string) *AuthService {
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(otpTTL, 3)
	}
	return &AuthService{
		logger:      logger,
		accounts:    accounts,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
		appURL:      strings.TrimRight(appURL, "/"),
	}
}

// SignIn verifica credenciales y despacha un OTP fresco por email. El error
// de credenciales es generico para no revelar que campo existe. Cada llamada
// exitosa sobreescribe el OTP anterior: hay a lo sumo uno vigente por cuenta.
func (s *AuthService) SignIn(ctx context.Context, contact, password string) error {
	if s.accounts == nil {
		return errors.New("auth service not configured")
	}

	contact = strings.TrimSpace(contact)
	password = strings.TrimSpace(password)
	if contact == "" || password == "" {
		return ErrInvalidCredentials
	}

	account, err := s.accounts.GetByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !account.Verified {
		return ErrUnverified
	}
	if account.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	if !account.HasEmail() {
		// Email es el unico canal out-of-band; una cuenta solo-mobile
		// no puede recibir el codigo.
		return ErrNoDeliveryChannel
	}
	if s.otpLimiter != nil && !s.otpLimiter.Allow(contact) {
		return ErrRateLimited
	}

	now := time.Now().UTC()
	code, secret, err := newOTPSecret(now)
	if err != nil {
		return err
	}
	if err := s.accounts.SetOTPSecret(ctx, account.ID, secret); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := s.emailSender.SendLoginOTP(ctx, account.Email, code, secret.ExpiresAt); err != nil {
		s.logger.Warn("send login otp failed", zap.Error(err), zap.String("account_id", account.ID))
		return ErrEmailSendFailure
	}
	return nil
}

// VerifyOTP consume el codigo vigente. Cualquier fallo (cuenta inexistente,
// slot vacio, codigo vencido o incorrecto) responde el mismo error generico.
func (s *AuthService) VerifyOTP(ctx context.Context, contact, code string) (domain.Account, error) {
	if s.accounts == nil {
		return domain.Account{}, errors.New("auth service not configured")
	}

	contact = strings.TrimSpace(contact)
	code = strings.TrimSpace(code)
	if contact == "" || !isValidOTPCode(code) {
		return domain.Account{}, ErrOTPInvalid
	}

	account, err := s.accounts.GetByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrOTPInvalid
		}
		return domain.Account{}, err
	}

	now := time.Now().UTC()
	if account.OTP.Expired(now) || !otpMatches(account.OTP, code) {
		return domain.Account{}, ErrOTPInvalid
	}

	// Un solo uso: el slot se limpia antes de responder exito.
	if err := s.accounts.ClearOTPSecret(ctx, account.ID); err != nil {
		return domain.Account{}, err
	}
	account.OTP = nil
	return account, nil
}

// ConsumeVerificationToken marca la cuenta como verificada y limpia el token
// en la misma operacion, de modo que un segundo uso del mismo token falle.
func (s *AuthService) ConsumeVerificationToken(ctx context.Context, token string) (domain.Account, error) {
	if s.accounts == nil {
		return domain.Account{}, errors.New("auth service not configured")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Account{}, ErrTokenInvalid
	}

	now := time.Now().UTC()
	account, err := s.accounts.GetByVerificationToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, ErrTokenInvalid
		}
		return domain.Account{}, err
	}
	if err := s.accounts.MarkVerified(ctx, account.ID); err != nil {
		return domain.Account{}, err
	}
	account.Verified = true
	account.Verification = nil
	return account, nil
}

// ResendVerification rota el token solo para cuentas aun sin verificar.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	if s.accounts == nil {
		return errors.New("auth service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return newValidationError("email is required")
	}

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if account.Verified {
		return ErrAlreadyVerified
	}

	now := time.Now().UTC()
	token, secret, err := newVerificationSecret(now)
	if err != nil {
		return err
	}
	if err := s.accounts.SetVerificationSecret(ctx, account.ID, secret); err != nil {
		return err
	}

	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	url := fmt.Sprintf("%s/auth/verify-email?token=%s", s.appURL, token)
	if err := s.emailSender.SendVerificationLink(ctx, account.Email, account.Username, url, secret.ExpiresAt); err != nil {
		s.logger.Warn("resend verification email failed", zap.Error(err), zap.String("account_id", account.ID))
		return ErrEmailSendFailure
	}
	return nil
}
