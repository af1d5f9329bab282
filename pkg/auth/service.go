package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"atelier/pkg/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("role must be artist or collector")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidExhibits    = errors.New("invalid exhibit history")
	ErrWeakPassword       = errors.New("password must be at least 8 characters long and contain both letters and numbers")
	ErrNoSession          = errors.New("no active session")
	ErrTooManyCodes       = errors.New("too many verification requests, try again later")
	ErrCodeExpired        = errors.New("verification code has expired")
	ErrCodeMismatch       = errors.New("invalid verification code")
)

const (
	codeTTL          = 10 * time.Minute
	maxCodesPerHour  = 3
	verificationSize = 6
)

type AuthService interface {
	SignUp(ctx context.Context, email, password string, role Role, meta SignUpMetadata) (Account, Session, error)
	SignIn(ctx context.Context, email, password string) (Account, Session, error)
	SignOut(ctx context.Context, s Session) error
	// Session resolves a bearer token to a live session or ErrNoSession.
	Session(ctx context.Context, token string) (Session, error)
	ChangePassword(ctx context.Context, s Session, oldPassword, newPassword string) error
	RequestVerification(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string) error
}

type authService struct {
	accounts AccountRepository
	codes    VerificationRepository
	tokens   *TokenIssuer
	mailer   EmailSender
	now      func() time.Time
}

// NewAuthService builds the identity provider. mailer may be nil, in which case
// verification codes are logged instead of sent.
func NewAuthService(accounts AccountRepository, codes VerificationRepository, tokens *TokenIssuer, mailer EmailSender) AuthService {
	return &authService{accounts: accounts, codes: codes, tokens: tokens, mailer: mailer, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isEmailValid(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func isPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter := false
	hasDigit := false
	for _, c := range password {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
			hasLetter = true
		case '0' <= c && c <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func (s *authService) SignUp(ctx context.Context, email, password string, role Role, meta SignUpMetadata) (Account, Session, error) {
	email = normalizeEmail(email)
	if !isEmailValid(email) {
		return Account{}, Session{}, ErrInvalidEmail
	}
	if !role.Valid() {
		return Account{}, Session{}, ErrInvalidRole
	}
	if !isPasswordStrong(password) {
		return Account{}, Session{}, ErrWeakPassword
	}
	minExhibits := 0
	if role == RoleArtist {
		minExhibits = MinExhibits
	}
	if err := ValidateExhibits(meta.ExhibitHistory, minExhibits); err != nil {
		return Account{}, Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, Session{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.CreateAccount(ctx, email, string(hash), role, meta)
	if err != nil {
		return Account{}, Session{}, err
	}

	session, err := s.openSession(ctx, account)
	if err != nil {
		return Account{}, Session{}, err
	}

	if err := s.RequestVerification(ctx, email); err != nil {
		logger.Warn("verification email not sent", map[string]any{"email": email, "error": err.Error()})
	}
	return account, session, nil
}

func (s *authService) SignIn(ctx context.Context, email, password string) (Account, Session, error) {
	account, hash, err := s.accounts.GetAccountAuthByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, Session{}, ErrInvalidCredentials
		}
		return Account{}, Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Account{}, Session{}, ErrInvalidCredentials
	}

	session, err := s.openSession(ctx, account)
	if err != nil {
		return Account{}, Session{}, err
	}
	return account, session, nil
}

func (s *authService) openSession(ctx context.Context, account Account) (Session, error) {
	expiresAt := s.now().Add(s.tokens.TTL())
	id, err := s.accounts.CreateSession(ctx, account.ID, expiresAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	session := Session{
		ID:        id,
		UserID:    account.ID,
		Email:     account.Email,
		Role:      account.Role,
		ExpiresAt: expiresAt,
	}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return Session{}, err
	}
	session.Token = token
	return session, nil
}

func (s *authService) SignOut(ctx context.Context, session Session) error {
	if session.ID == "" {
		return ErrNoSession
	}
	return s.accounts.RevokeSession(ctx, session.ID)
}

func (s *authService) Session(ctx context.Context, token string) (Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, ErrNoSession
	}

	rec, err := s.accounts.GetSession(ctx, session.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	if rec.RevokedAt != nil || !s.now().Before(rec.ExpiresAt) || rec.UserID != session.UserID {
		return Session{}, ErrNoSession
	}
	return session, nil
}

func (s *authService) ChangePassword(ctx context.Context, session Session, oldPassword, newPassword string) error {
	if !isPasswordStrong(newPassword) {
		return ErrWeakPassword
	}
	hash, err := s.accounts.GetPasswordHash(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, session.UserID, string(newHash)); err != nil {
		return err
	}
	return s.accounts.RevokeOtherSessions(ctx, session.UserID, session.ID)
}

func (s *authService) RequestVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	count, err := s.codes.CountCodesSince(ctx, email, s.now().Add(-time.Hour))
	if err != nil {
		return fmt.Errorf("failed to check code count: %w", err)
	}
	if count >= maxCodesPerHour {
		return ErrTooManyCodes
	}

	code, err := generateCode(verificationSize)
	if err != nil {
		return err
	}
	if _, err := s.codes.CreateCode(ctx, email, code, s.now().Add(codeTTL)); err != nil {
		return fmt.Errorf("failed to create verification code: %w", err)
	}

	if s.mailer == nil {
		logger.Info("verification code issued", map[string]any{"email": email, "code": code})
	} else {
		subject, plain, html := verificationEmail(code)
		if err := s.mailer.SendEmail(subject, email, plain, html); err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
	}

	_ = s.codes.DeleteExpiredCodes(ctx)
	return nil
}

func (s *authService) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	vc, err := s.codes.GetLatestCode(ctx, email)
	if err != nil {
		return err
	}
	if s.now().After(vc.ExpiresAt) {
		return ErrCodeExpired
	}
	if vc.Code != code {
		return ErrCodeMismatch
	}
	if err := s.codes.MarkCodeUsed(ctx, vc.ID); err != nil {
		return fmt.Errorf("failed to mark code as used: %w", err)
	}
	return s.accounts.MarkVerified(ctx, email, s.now())
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}
