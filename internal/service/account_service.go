package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"egobar/internal/domain"
	"egobar/internal/email"
	"egobar/internal/repository"
	"egobar/internal/storage"
)

// AccountService coordina registro, disponibilidad y avatar de cuentas.
type AccountService struct {
	logger      *zap.Logger
	accounts    repository.AccountRepository
	emailSender email.Sender
	avatars     storage.AvatarStore
	appURL      string
}

func NewAccountService(logger *zap.Logger, accounts repository.AccountRepository, emailSender email.Sender, avatars storage.AvatarStore, appURL string) *AccountService {
	return &AccountService{
		logger:      logger,
		accounts:    accounts,
		emailSender: emailSender,
		avatars:     avatars,
		appURL:      strings.TrimRight(appURL, "/"),
	}
}

type SignupInput struct {
	Username        string
	Email           string
	Mobile          string
	Password        string
	ConfirmPassword string
	Birthday        string
}

var (
	emailRegex  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobileRegex = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
)

const minSignupAgeYears = 13

// Signup valida el input completo antes de mutar el store, crea la cuenta
// sin verificar y despacha el link de verificacion si hay email. Un fallo
// de envio no revierte la creacion: resend-verification es la recuperacion.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (domain.Account, error) {
	if s.accounts == nil {
		return domain.Account{}, errors.New("account service not configured")
	}

	username := strings.TrimSpace(input.Username)
	emailAddr := normalizeEmail(input.Email)
	mobile := strings.TrimSpace(input.Mobile)

	if len(username) < 3 || len(username) > 20 {
		return domain.Account{}, newValidationError("username must be between 3 and 20 characters")
	}
	if emailAddr == "" && mobile == "" {
		return domain.Account{}, newValidationError("either email or mobile number is required")
	}
	if emailAddr != "" && !emailRegex.MatchString(emailAddr) {
		return domain.Account{}, newValidationError("invalid email format")
	}
	if mobile != "" && !mobileRegex.MatchString(mobile) {
		return domain.Account{}, newValidationError("invalid mobile number format")
	}
	if !validPassword(input.Password) {
		return domain.Account{}, newValidationError("password must be at least 8 characters long and include uppercase, lowercase, number, and special character")
	}
	if input.Password != input.ConfirmPassword {
		return domain.Account{}, newValidationError("passwords do not match")
	}
	if strings.TrimSpace(input.Birthday) == "" {
		return domain.Account{}, newValidationError("birthday is required")
	}
	birthday, err := time.Parse("2006-01-02", strings.TrimSpace(input.Birthday))
	if err != nil {
		return domain.Account{}, newValidationError("invalid birthday format")
	}
	now := time.Now().UTC()
	if birthday.AddDate(minSignupAgeYears, 0, 0).After(now) {
		return domain.Account{}, newValidationError("you must be at least 13 years old")
	}

	if err := s.checkConflicts(ctx, username, emailAddr, mobile); err != nil {
		return domain.Account{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Account{}, err
	}

	token, secret, err := newVerificationSecret(now)
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        emailAddr,
		Mobile:       mobile,
		PasswordHash: string(hashBytes),
		Birthday:     birthday,
		Verified:     false,
		Verification: &secret,
		CreatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Account{}, ErrConflict
		}
		return domain.Account{}, err
	}

	if account.HasEmail() {
		url := s.verificationURL(token)
		if err := s.emailSender.SendVerificationLink(ctx, account.Email, account.Username, url, secret.ExpiresAt); err != nil {
			s.logger.Error("verification email dispatch failed",
				zap.Error(err),
				zap.String("account_id", account.ID),
			)
		}
	} else {
		s.logger.Info("account created without email channel; verification link not sent",
			zap.String("account_id", account.ID),
		)
	}

	return account, nil
}

func (s *AccountService) checkConflicts(ctx context.Context, username, emailAddr, mobile string) error {
	taken, err := s.accounts.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if !taken && emailAddr != "" {
		if taken, err = s.accounts.EmailExists(ctx, emailAddr); err != nil {
			return err
		}
	}
	if !taken && mobile != "" {
		if taken, err = s.accounts.MobileExists(ctx, mobile); err != nil {
			return err
		}
	}
	if taken {
		return ErrConflict
	}
	return nil
}

// GetSummary devuelve la vista publica de la cuenta.
func (s *AccountService) GetSummary(ctx context.Context, id string) (domain.Summary, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Summary{}, ErrAccountNotFound
		}
		return domain.Summary{}, err
	}
	return account.Summary(), nil
}

// UsernameTaken es un predicado sin efectos para feedback de formularios.
func (s *AccountService) UsernameTaken(ctx context.Context, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return s.accounts.UsernameExists(ctx, value)
}

func (s *AccountService) EmailTaken(ctx context.Context, value string) (bool, error) {
	value = normalizeEmail(value)
	if value == "" {
		return false, nil
	}
	return s.accounts.EmailExists(ctx, value)
}

func (s *AccountService) MobileTaken(ctx context.Context, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return s.accounts.MobileExists(ctx, value)
}

// SaveAvatar persiste el archivo y guarda solo la referencia en la cuenta.
func (s *AccountService) SaveAvatar(ctx context.Context, accountID, filename string, content io.Reader) (string, error) {
	if s.avatars == nil {
		return "", errors.New("avatar store not configured")
	}
	name := fmt.Sprintf("%s-%d-%s", accountID, time.Now().UnixMilli(), filepath.Base(filename))
	url, err := s.avatars.Save(ctx, name, content)
	if err != nil {
		return "", err
	}
	if err := s.accounts.SetAvatar(ctx, accountID, url); err != nil {
		return "", err
	}
	return url, nil
}

// RemoveAvatar limpia la referencia; el blob se borra best effort.
func (s *AccountService) RemoveAvatar(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	if err := s.accounts.SetAvatar(ctx, accountID, ""); err != nil {
		return err
	}
	if account.Avatar != "" && s.avatars != nil {
		if err := s.avatars.Remove(ctx, path.Base(account.Avatar)); err != nil {
			s.logger.Warn("avatar blob removal failed",
				zap.Error(err),
				zap.String("account_id", accountID),
			)
		}
	}
	return nil
}

func (s *AccountService) verificationURL(token string) string {
	return fmt.Sprintf("%s/auth/verify-email?token=%s", s.appURL, token)
}

func validPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	return lower && upper && digit && special
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
