package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) CreateAccount(ctx context.Context, email, passwordHash string, role Role, meta SignUpMetadata) (Account, error) {
	args := m.Called(ctx, email, passwordHash, role, meta)
	a, _ := args.Get(0).(Account)
	return a, args.Error(1)
}

func (m *mockAccountRepo) GetAccountByID(ctx context.Context, id string) (Account, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(Account)
	return a, args.Error(1)
}

func (m *mockAccountRepo) GetAccountAuthByEmail(ctx context.Context, email string) (Account, string, error) {
	args := m.Called(ctx, email)
	a, _ := args.Get(0).(Account)
	return a, args.String(1), args.Error(2)
}

func (m *mockAccountRepo) GetPasswordHash(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *mockAccountRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func (m *mockAccountRepo) MarkVerified(ctx context.Context, email string, at time.Time) error {
	return m.Called(ctx, email, at).Error(0)
}

func (m *mockAccountRepo) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	args := m.Called(ctx, userID, expiresAt)
	return args.String(0), args.Error(1)
}

func (m *mockAccountRepo) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(SessionRecord)
	return s, args.Error(1)
}

func (m *mockAccountRepo) RevokeSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAccountRepo) RevokeOtherSessions(ctx context.Context, userID, keepID string) error {
	return m.Called(ctx, userID, keepID).Error(0)
}

type mockCodeRepo struct {
	mock.Mock
}

func (m *mockCodeRepo) CreateCode(ctx context.Context, email, code string, expiresAt time.Time) (VerificationCode, error) {
	args := m.Called(ctx, email, code, expiresAt)
	vc, _ := args.Get(0).(VerificationCode)
	return vc, args.Error(1)
}

func (m *mockCodeRepo) CountCodesSince(ctx context.Context, email string, since time.Time) (int, error) {
	args := m.Called(ctx, email, since)
	return args.Int(0), args.Error(1)
}

func (m *mockCodeRepo) GetLatestCode(ctx context.Context, email string) (VerificationCode, error) {
	args := m.Called(ctx, email)
	vc, _ := args.Get(0).(VerificationCode)
	return vc, args.Error(1)
}

func (m *mockCodeRepo) MarkCodeUsed(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCodeRepo) DeleteExpiredCodes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendEmail(subject, toEmail, plain, html string) error {
	return m.Called(subject, toEmail, plain, html).Error(0)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(accounts *mockAccountRepo, codes *mockCodeRepo, mailer EmailSender) *authService {
	tokens := NewTokenIssuer("test-secret", time.Hour)
	tokens.now = func() time.Time { return fixedNow }
	svc := NewAuthService(accounts, codes, tokens, mailer).(*authService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestAuthService_SignUp_Success(t *testing.T) {
	accounts := new(mockAccountRepo)
	codes := new(mockCodeRepo)
	mailer := new(mockMailer)
	svc := newTestService(accounts, codes, mailer)

	meta := SignUpMetadata{FullName: "Ada Painter", Statement: "light", ExhibitHistory: fiveExhibits()}
	accounts.On("CreateAccount", mock.Anything, "ada@example.com", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("canvas123")) == nil
	}), RoleArtist, meta).Return(Account{ID: "u-1", Email: "ada@example.com", Role: RoleArtist}, nil)
	accounts.On("CreateSession", mock.Anything, "u-1", fixedNow.Add(time.Hour)).Return("s-1", nil)
	codes.On("CountCodesSince", mock.Anything, "ada@example.com", fixedNow.Add(-time.Hour)).Return(0, nil)
	codes.On("CreateCode", mock.Anything, "ada@example.com", mock.AnythingOfType("string"), fixedNow.Add(codeTTL)).Return(VerificationCode{ID: 1}, nil)
	codes.On("DeleteExpiredCodes", mock.Anything).Return(nil)
	mailer.On("SendEmail", mock.Anything, "ada@example.com", mock.Anything, mock.Anything).Return(nil)

	account, session, err := svc.SignUp(context.Background(), " Ada@Example.com ", "canvas123", RoleArtist, meta)
	require.NoError(t, err)
	require.Equal(t, "u-1", account.ID)
	require.Equal(t, "s-1", session.ID)
	require.Equal(t, RoleArtist, session.Role)
	require.NotEmpty(t, session.Token)

	parsed, err := svc.tokens.Parse(session.Token)
	require.NoError(t, err)
	require.Equal(t, "u-1", parsed.UserID)

	accounts.AssertExpectations(t)
	codes.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestAuthService_SignUp_Validation(t *testing.T) {
	svc := newTestService(new(mockAccountRepo), new(mockCodeRepo), nil)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "not-an-email", "canvas123", RoleArtist, SignUpMetadata{})
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, _, err = svc.SignUp(ctx, "a@example.com", "canvas123", Role("founder"), SignUpMetadata{})
	require.ErrorIs(t, err, ErrInvalidRole)

	_, _, err = svc.SignUp(ctx, "a@example.com", "short", RoleCollector, SignUpMetadata{})
	require.ErrorIs(t, err, ErrWeakPassword)

	_, _, err = svc.SignUp(ctx, "a@example.com", "lettersonly", RoleCollector, SignUpMetadata{})
	require.ErrorIs(t, err, ErrWeakPassword)
}

func fiveExhibits() []Exhibit {
	history := make([]Exhibit, 0, MinExhibits)
	for _, city := range []string{"Lisbon", "Porto", "Madrid", "Seville", "Valencia"} {
		history = append(history, Exhibit{Title: "Tides", Gallery: "Galeria " + city, Location: city})
	}
	return history
}

func TestAuthService_SignUp_ArtistExhibits(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)
	ctx := context.Background()

	_, _, err := svc.SignUp(ctx, "a@example.com", "canvas123", RoleArtist, SignUpMetadata{FullName: "Ada", ExhibitHistory: fiveExhibits()[:4]})
	require.ErrorIs(t, err, ErrInvalidExhibits)

	incomplete := fiveExhibits()
	incomplete[2].Gallery = "  "
	_, _, err = svc.SignUp(ctx, "a@example.com", "canvas123", RoleArtist, SignUpMetadata{FullName: "Ada", ExhibitHistory: incomplete})
	require.ErrorIs(t, err, ErrInvalidExhibits)
	require.Contains(t, err.Error(), "exhibit 3")

	accounts.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateExhibits(t *testing.T) {
	require.NoError(t, ValidateExhibits(nil, 0))
	require.NoError(t, ValidateExhibits(fiveExhibits(), MinExhibits))
	require.ErrorIs(t, ValidateExhibits([]Exhibit{{Title: "Tides"}}, 0), ErrInvalidExhibits)
	require.ErrorIs(t, ValidateExhibits(fiveExhibits()[:1], MinExhibits), ErrInvalidExhibits)
}

func TestAuthService_SignUp_EmailTaken(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)

	accounts.On("CreateAccount", mock.Anything, "a@example.com", mock.Anything, RoleCollector, SignUpMetadata{}).Return(Account{}, ErrEmailTaken)

	_, _, err := svc.SignUp(context.Background(), "a@example.com", "canvas123", RoleCollector, SignUpMetadata{})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_SignIn(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("canvas123"), bcrypt.MinCost)
	require.NoError(t, err)
	account := Account{ID: "u-2", Email: "c@example.com", Role: RoleCollector}
	accounts.On("GetAccountAuthByEmail", mock.Anything, "c@example.com").Return(account, string(hash), nil)
	accounts.On("CreateSession", mock.Anything, "u-2", mock.Anything).Return("s-2", nil)

	_, session, err := svc.SignIn(context.Background(), "c@example.com", "canvas123")
	require.NoError(t, err)
	require.Equal(t, "s-2", session.ID)

	_, _, err = svc.SignIn(context.Background(), "c@example.com", "wrong-password1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_SignIn_UnknownEmail(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)
	accounts.On("GetAccountAuthByEmail", mock.Anything, "nobody@example.com").Return(Account{}, "", ErrAccountNotFound)

	_, _, err := svc.SignIn(context.Background(), "nobody@example.com", "canvas123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_Session(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)

	token, err := svc.tokens.Issue(Session{ID: "s-3", UserID: "u-3", Role: RoleCollector, ExpiresAt: fixedNow.Add(time.Hour)})
	require.NoError(t, err)

	accounts.On("GetSession", mock.Anything, "s-3").Return(SessionRecord{ID: "s-3", UserID: "u-3", ExpiresAt: fixedNow.Add(time.Hour)}, nil).Once()
	session, err := svc.Session(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "u-3", session.UserID)

	revoked := fixedNow
	accounts.On("GetSession", mock.Anything, "s-3").Return(SessionRecord{ID: "s-3", UserID: "u-3", ExpiresAt: fixedNow.Add(time.Hour), RevokedAt: &revoked}, nil).Once()
	_, err = svc.Session(context.Background(), token)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = svc.Session(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestAuthService_ChangePassword(t *testing.T) {
	accounts := new(mockAccountRepo)
	svc := newTestService(accounts, new(mockCodeRepo), nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("canvas123"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts.On("GetPasswordHash", mock.Anything, "u-4").Return(string(hash), nil)
	accounts.On("UpdatePasswordHash", mock.Anything, "u-4", mock.AnythingOfType("string")).Return(nil)
	accounts.On("RevokeOtherSessions", mock.Anything, "u-4", "s-4").Return(nil)

	session := Session{ID: "s-4", UserID: "u-4"}
	require.ErrorIs(t, svc.ChangePassword(context.Background(), session, "wrong1234", "easel5678"), ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(context.Background(), session, "canvas123", "easel5678"))
	accounts.AssertCalled(t, "RevokeOtherSessions", mock.Anything, "u-4", "s-4")
}

func TestAuthService_RequestVerification_RateLimited(t *testing.T) {
	codes := new(mockCodeRepo)
	svc := newTestService(new(mockAccountRepo), codes, nil)
	codes.On("CountCodesSince", mock.Anything, "a@example.com", mock.Anything).Return(maxCodesPerHour, nil)

	err := svc.RequestVerification(context.Background(), "a@example.com")
	require.ErrorIs(t, err, ErrTooManyCodes)
	codes.AssertNotCalled(t, "CreateCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_Verify(t *testing.T) {
	accounts := new(mockAccountRepo)
	codes := new(mockCodeRepo)
	svc := newTestService(accounts, codes, nil)

	codes.On("GetLatestCode", mock.Anything, "a@example.com").Return(VerificationCode{ID: 7, Code: "123456", ExpiresAt: fixedNow.Add(time.Minute)}, nil)
	codes.On("MarkCodeUsed", mock.Anything, int64(7)).Return(nil)
	accounts.On("MarkVerified", mock.Anything, "a@example.com", fixedNow).Return(nil)

	require.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", "000000"), ErrCodeMismatch)
	require.NoError(t, svc.Verify(context.Background(), "a@example.com", "123456"))
}

func TestAuthService_Verify_Expired(t *testing.T) {
	codes := new(mockCodeRepo)
	svc := newTestService(new(mockAccountRepo), codes, nil)
	codes.On("GetLatestCode", mock.Anything, "a@example.com").Return(VerificationCode{ID: 8, Code: "123456", ExpiresAt: fixedNow.Add(-time.Second)}, nil)

	require.ErrorIs(t, svc.Verify(context.Background(), "a@example.com", "123456"), ErrCodeExpired)
}
