package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"egobar/internal/domain"
)

// AccountRepository define el contrato de persistencia para cuentas.
// El store es la unica fuente de verdad; los servicios no cachean cuentas.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByUsername(ctx context.Context, username string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	GetByContact(ctx context.Context, contact string) (domain.Account, error)
	GetByVerificationToken(ctx context.Context, token string, now time.Time) (domain.Account, error)
	SetVerificationSecret(ctx context.Context, id string, secret domain.Secret) error
	MarkVerified(ctx context.Context, id string) error
	SetOTPSecret(ctx context.Context, id string, secret domain.Secret) error
	ClearOTPSecret(ctx context.Context, id string) error
	SetAvatar(ctx context.Context, id, avatar string) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	MobileExists(ctx context.Context, mobile string) (bool, error)
}

// ErrDuplicate indica violacion de unicidad en username/email/mobile.
var ErrDuplicate = errors.New("duplicate account field")

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `
	id, username, email, mobile, password_hash, birthday, verified,
	verification_value, verification_issued_at, verification_expires_at,
	otp_value, otp_issued_at, otp_expires_at,
	avatar, created_at
`

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	verValue, verIssued, verExpires := secretColumns(account.Verification)
	otpValue, otpIssued, otpExpires := secretColumns(account.OTP)
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Username,
		nullIfEmpty(account.Email),
		nullIfEmpty(account.Mobile),
		account.PasswordHash,
		account.Birthday,
		account.Verified,
		verValue, verIssued, verExpires,
		otpValue, otpIssued, otpExpires,
		nullIfEmpty(account.Avatar),
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgAccountRepository) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanOne(ctx, query, username)
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

// GetByContact busca por email o mobile indistintamente.
func (r *PgAccountRepository) GetByContact(ctx context.Context, contact string) (domain.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 OR mobile = $1`
	return r.scanOne(ctx, query, contact)
}

// GetByVerificationToken solo devuelve cuentas cuyo token sigue vigente.
func (r *PgAccountRepository) GetByVerificationToken(ctx context.Context, token string, now time.Time) (domain.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE verification_value = $1 AND verification_expires_at > $2
	`
	return r.scanOne(ctx, query, token, now)
}

func (r *PgAccountRepository) SetVerificationSecret(ctx context.Context, id string, secret domain.Secret) error {
	const query = `
		UPDATE accounts
		SET verification_value = $2, verification_issued_at = $3, verification_expires_at = $4
		WHERE id = $1
	`
	return r.exec(ctx, query, id, secret.Value, secret.IssuedAt, secret.ExpiresAt)
}

// MarkVerified limpia el token en la misma sentencia: el primer uso lo consume.
func (r *PgAccountRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE accounts
		SET verified = TRUE,
		    verification_value = NULL, verification_issued_at = NULL, verification_expires_at = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *PgAccountRepository) SetOTPSecret(ctx context.Context, id string, secret domain.Secret) error {
	const query = `
		UPDATE accounts
		SET otp_value = $2, otp_issued_at = $3, otp_expires_at = $4
		WHERE id = $1
	`
	return r.exec(ctx, query, id, secret.Value, secret.IssuedAt, secret.ExpiresAt)
}

func (r *PgAccountRepository) ClearOTPSecret(ctx context.Context, id string) error {
	const query = `
		UPDATE accounts
		SET otp_value = NULL, otp_issued_at = NULL, otp_expires_at = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *PgAccountRepository) SetAvatar(ctx context.Context, id, avatar string) error {
	const query = `UPDATE accounts SET avatar = $2 WHERE id = $1`
	return r.exec(ctx, query, id, nullIfEmpty(avatar))
}

func (r *PgAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username)
}

func (r *PgAccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email)
}

func (r *PgAccountRepository) MobileExists(ctx context.Context, mobile string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE mobile = $1)`, mobile)
}

func (r *PgAccountRepository) scanOne(ctx context.Context, query string, args ...any) (domain.Account, error) {
	var (
		a              domain.Account
		email, mobile  *string
		avatar         *string
		verValue       *string
		verIssued      *time.Time
		verExpires     *time.Time
		otpValue       *string
		otpIssued      *time.Time
		otpExpires     *time.Time
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Username,
		&email,
		&mobile,
		&a.PasswordHash,
		&a.Birthday,
		&a.Verified,
		&verValue, &verIssued, &verExpires,
		&otpValue, &otpIssued, &otpExpires,
		&avatar,
		&a.CreatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}
	a.Email = deref(email)
	a.Mobile = deref(mobile)
	a.Avatar = deref(avatar)
	a.Verification = buildSecret(verValue, verIssued, verExpires)
	a.OTP = buildSecret(otpValue, otpIssued, otpExpires)
	return a, nil
}

func (r *PgAccountRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgAccountRepository) exists(ctx context.Context, query, value string) (bool, error) {
	var taken bool
	if err := r.pool.QueryRow(ctx, query, value).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

func secretColumns(s *domain.Secret) (any, any, any) {
	if s == nil {
		return nil, nil, nil
	}
	return s.Value, s.IssuedAt, s.ExpiresAt
}

func buildSecret(value *string, issued, expires *time.Time) *domain.Secret {
	if value == nil || issued == nil || expires == nil {
		return nil
	}
	return &domain.Secret{Value: *value, IssuedAt: *issued, ExpiresAt: *expires}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
