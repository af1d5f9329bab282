package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("an account with that email already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrCodeNotFound    = errors.New("no pending verification code")
)

type AccountRepository interface {
	// CreateAccount inserts the identity and its profile in one transaction.
	CreateAccount(ctx context.Context, email, passwordHash string, role Role, meta SignUpMetadata) (Account, error)
	GetAccountByID(ctx context.Context, id string) (Account, error)
	GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error)
	GetPasswordHash(ctx context.Context, id string) (string, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, email string, at time.Time) error

	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error)
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	RevokeSession(ctx context.Context, id string) error
	RevokeOtherSessions(ctx context.Context, userID, keepID string) error
}

type VerificationRepository interface {
	CreateCode(ctx context.Context, email, code string, expiresAt time.Time) (VerificationCode, error)
	CountCodesSince(ctx context.Context, email string, since time.Time) (int, error)
	GetLatestCode(ctx context.Context, email string) (VerificationCode, error)
	MarkCodeUsed(ctx context.Context, id int64) error
	DeleteExpiredCodes(ctx context.Context) error
}

type postgresAuthRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &postgresAuthRepository{pool: pool}
}

func NewPostgresVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &postgresAuthRepository{pool: pool}
}

func (r *postgresAuthRepository) CreateAccount(ctx context.Context, email, passwordHash string, role Role, meta SignUpMetadata) (Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback(ctx)

	var a Account
	err = tx.QueryRow(ctx, `INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, role, verified_at, created_at`, email, passwordHash, string(role)).
		Scan(&a.ID, &a.Email, &a.Role, &a.VerifiedAt, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}

	exhibits := meta.ExhibitHistory
	if exhibits == nil {
		exhibits = []Exhibit{}
	}
	_, err = tx.Exec(ctx, `INSERT INTO profiles (id, role, full_name, bio, statement, exhibit_history, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, a.ID, string(role), meta.FullName, meta.Bio, meta.Statement, exhibits, email)
	if err != nil {
		return Account{}, fmt.Errorf("create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *postgresAuthRepository) GetAccountByID(ctx context.Context, id string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT id, email, role, verified_at, created_at FROM users WHERE id = $1`, id).
		Scan(&a.ID, &a.Email, &a.Role, &a.VerifiedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *postgresAuthRepository) GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error) {
	var a Account
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT id, email, role, verified_at, created_at, password_hash FROM users WHERE email = $1`, email).
		Scan(&a.ID, &a.Email, &a.Role, &a.VerifiedAt, &a.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, "", ErrAccountNotFound
		}
		return Account{}, "", err
	}
	return a, hash, nil
}

func (r *postgresAuthRepository) GetPasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	if err := r.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrAccountNotFound
		}
		return "", err
	}
	return hash, nil
}

func (r *postgresAuthRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *postgresAuthRepository) MarkVerified(ctx context.Context, email string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET verified_at = $1 WHERE email = $2`, at, email)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *postgresAuthRepository) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `INSERT INTO sessions (user_id, expires_at) VALUES ($1, $2) RETURNING id`, userID, expiresAt).Scan(&id)
	return id, err
}

func (r *postgresAuthRepository) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	var s SessionRecord
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, expires_at, revoked_at FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, err
	}
	return s, nil
}

func (r *postgresAuthRepository) RevokeSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (r *postgresAuthRepository) RevokeOtherSessions(ctx context.Context, userID, keepID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked_at = NOW() WHERE user_id = $1 AND id <> $2 AND revoked_at IS NULL`, userID, keepID)
	return err
}

func (r *postgresAuthRepository) CreateCode(ctx context.Context, email, code string, expiresAt time.Time) (VerificationCode, error) {
	var vc VerificationCode
	err := r.pool.QueryRow(ctx, `INSERT INTO verification_codes (email, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, email, code, expires_at, used_at, created_at`, email, code, expiresAt).
		Scan(&vc.ID, &vc.Email, &vc.Code, &vc.ExpiresAt, &vc.UsedAt, &vc.CreatedAt)
	return vc, err
}

func (r *postgresAuthRepository) CountCodesSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM verification_codes WHERE email = $1 AND created_at >= $2`, email, since).Scan(&n)
	return n, err
}

func (r *postgresAuthRepository) GetLatestCode(ctx context.Context, email string) (VerificationCode, error) {
	var vc VerificationCode
	err := r.pool.QueryRow(ctx, `SELECT id, email, code, expires_at, used_at, created_at
		FROM verification_codes
		WHERE email = $1 AND used_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`, email).
		Scan(&vc.ID, &vc.Email, &vc.Code, &vc.ExpiresAt, &vc.UsedAt, &vc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerificationCode{}, ErrCodeNotFound
		}
		return VerificationCode{}, err
	}
	return vc, nil
}

func (r *postgresAuthRepository) MarkCodeUsed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE verification_codes SET used_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *postgresAuthRepository) DeleteExpiredCodes(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < NOW()`)
	return err
}
