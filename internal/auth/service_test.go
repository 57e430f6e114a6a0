package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lemarcheluxe/backend/internal/database"
	"github.com/lemarcheluxe/backend/internal/models"
	"github.com/lemarcheluxe/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type memoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (r *memoryRevoker) RevokeToken(ctx context.Context, id string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[id] = ttl
	return nil
}

func (r *memoryRevoker) IsTokenRevoked(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[id]
	return ok, nil
}

type sentMail struct {
	kind, to, token string
}

type recordingMailer struct {
	sent []sentMail
}

func (m *recordingMailer) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	m.sent = append(m.sent, sentMail{kind: "reset", to: to, token: token})
	return nil
}

func (m *recordingMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	m.sent = append(m.sent, sentMail{kind: "welcome", to: to})
	return nil
}

type AuthTestSuite struct {
	suite.Suite
	db       *gorm.DB
	ctx      context.Context
	profiles repository.ProfileRepository
	service  *Service
	revoker  *memoryRevoker
	mailer   *recordingMailer
}

func (s *AuthTestSuite) SetupTest() {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(s.T(), err)
	require.NoError(s.T(), database.Migrate(db))

	s.db = db
	s.ctx = context.Background()
	s.profiles = repository.NewProfileRepository(db)
	s.revoker = &memoryRevoker{revoked: map[string]time.Duration{}}
	s.mailer = &recordingMailer{}
	s.service = NewService(s.profiles, repository.NewPasswordResetRepository(db), []byte("test-secret"), time.Hour)
	s.service.SetRevoker(s.revoker)
	s.service.SetMailer(s.mailer)
}

func (s *AuthTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (s *AuthTestSuite) signUp(email string) *AuthResponse {
	resp, err := s.service.SignUp(s.ctx, SignUpRequest{Email: email, Password: "secret123", FullName: "Amina K."})
	require.NoError(s.T(), err)
	return resp
}

func (s *AuthTestSuite) TestSignUpAndSignIn() {
	resp := s.signUp("Amina@Example.com")
	assert.NotEmpty(s.T(), resp.Token)
	assert.Equal(s.T(), "amina@example.com", resp.User.Email)
	require.Len(s.T(), s.mailer.sent, 1)
	assert.Equal(s.T(), "welcome", s.mailer.sent[0].kind)

	signedIn, err := s.service.SignIn(s.ctx, SignInRequest{Email: "amina@example.com", Password: "secret123"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), resp.User.ID, signedIn.User.ID)

	_, err = s.service.SignIn(s.ctx, SignInRequest{Email: "amina@example.com", Password: "wrong"})
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)

	_, err = s.service.SignIn(s.ctx, SignInRequest{Email: "nobody@example.com", Password: "secret123"})
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *AuthTestSuite) TestSignUpRejectsDuplicatesAndWeakPasswords() {
	s.signUp("amina@example.com")

	_, err := s.service.SignUp(s.ctx, SignUpRequest{Email: "amina@example.com", Password: "secret123"})
	assert.ErrorIs(s.T(), err, ErrEmailTaken)

	_, err = s.service.SignUp(s.ctx, SignUpRequest{Email: "other@example.com", Password: "123"})
	assert.ErrorIs(s.T(), err, ErrWeakPassword)
}

func (s *AuthTestSuite) TestValidateToken() {
	resp := s.signUp("amina@example.com")

	profile, err := s.service.ValidateToken(s.ctx, resp.Token)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), resp.User.ID, profile.ID)

	_, err = s.service.ValidateToken(s.ctx, "not-a-token")
	assert.ErrorIs(s.T(), err, ErrInvalidToken)

	other := NewService(s.profiles, nil, []byte("other-secret"), time.Hour)
	_, err = other.ValidateToken(s.ctx, resp.Token)
	assert.ErrorIs(s.T(), err, ErrInvalidToken)
}

func (s *AuthTestSuite) TestExpiredToken() {
	s.service.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	resp := s.signUp("amina@example.com")
	s.service.now = func() time.Time { return time.Now().UTC() }

	_, err := s.service.ValidateToken(s.ctx, resp.Token)
	assert.ErrorIs(s.T(), err, ErrInvalidToken)
}

func (s *AuthTestSuite) TestSignOutRevokesToken() {
	resp := s.signUp("amina@example.com")

	require.NoError(s.T(), s.service.SignOut(s.ctx, resp.Token))
	assert.Len(s.T(), s.revoker.revoked, 1)

	_, err := s.service.ValidateToken(s.ctx, resp.Token)
	assert.ErrorIs(s.T(), err, ErrTokenRevoked)

	fresh, err := s.service.SignIn(s.ctx, SignInRequest{Email: "amina@example.com", Password: "secret123"})
	require.NoError(s.T(), err)
	_, err = s.service.ValidateToken(s.ctx, fresh.Token)
	assert.NoError(s.T(), err)
}

func (s *AuthTestSuite) TestPasswordReset() {
	s.signUp("amina@example.com")

	require.NoError(s.T(), s.service.RequestPasswordReset(s.ctx, "AMINA@example.com"))
	require.Len(s.T(), s.mailer.sent, 2)
	reset := s.mailer.sent[1]
	assert.Equal(s.T(), "reset", reset.kind)
	assert.Len(s.T(), reset.token, 64)

	assert.ErrorIs(s.T(), s.service.ResetPassword(s.ctx, reset.token, "abc"), ErrWeakPassword)
	require.NoError(s.T(), s.service.ResetPassword(s.ctx, reset.token, "newsecret"))
	assert.ErrorIs(s.T(), s.service.ResetPassword(s.ctx, reset.token, "another1"), ErrInvalidResetToken)

	_, err := s.service.SignIn(s.ctx, SignInRequest{Email: "amina@example.com", Password: "newsecret"})
	assert.NoError(s.T(), err)
	_, err = s.service.SignIn(s.ctx, SignInRequest{Email: "amina@example.com", Password: "secret123"})
	assert.ErrorIs(s.T(), err, ErrInvalidCredentials)
}

func (s *AuthTestSuite) TestPasswordResetExpires() {
	s.signUp("amina@example.com")
	s.service.now = func() time.Time { return time.Now().UTC().Add(-2 * ResetTokenTTL) }
	require.NoError(s.T(), s.service.RequestPasswordReset(s.ctx, "amina@example.com"))
	s.service.now = func() time.Time { return time.Now().UTC() }

	token := s.mailer.sent[len(s.mailer.sent)-1].token
	assert.ErrorIs(s.T(), s.service.ResetPassword(s.ctx, token, "newsecret"), ErrInvalidResetToken)
}

func (s *AuthTestSuite) TestPasswordResetUnknownEmailIsSilent() {
	require.NoError(s.T(), s.service.RequestPasswordReset(s.ctx, "ghost@example.com"))
	assert.Empty(s.T(), s.mailer.sent)
}

func (s *AuthTestSuite) withGoogle(info *GoogleUserInfo) {
	s.service.SetGoogleConfig(&oauth2.Config{
		ClientID:    "client",
		RedirectURL: "http://localhost:8787/api/v1/auth/google/callback",
		Endpoint:    oauth2.Endpoint{AuthURL: "https://accounts.google.com/o/oauth2/auth"},
		Scopes:      []string{"email", "profile"},
	})
	s.service.userInfo = func(ctx context.Context, cfg *oauth2.Config, code string) (*GoogleUserInfo, error) {
		if code != "good-code" {
			return nil, errors.New("bad code")
		}
		return info, nil
	}
}

func (s *AuthTestSuite) TestGoogleNotConfigured() {
	_, _, err := s.service.GoogleAuthURL()
	assert.ErrorIs(s.T(), err, ErrOAuthNotConfigured)
	_, err = s.service.HandleGoogleCallback(s.ctx, "code")
	assert.ErrorIs(s.T(), err, ErrOAuthNotConfigured)
}

func (s *AuthTestSuite) TestGoogleCreatesAccount() {
	s.withGoogle(&GoogleUserInfo{ID: "g-1", Email: "karim@example.com", VerifiedEmail: true, Name: "Karim", Picture: "https://img/k.png"})

	url, state, err := s.service.GoogleAuthURL()
	require.NoError(s.T(), err)
	assert.Contains(s.T(), url, "state="+state)

	resp, err := s.service.HandleGoogleCallback(s.ctx, "good-code")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "karim@example.com", resp.User.Email)
	assert.Equal(s.T(), "https://img/k.png", resp.User.AvatarURL)

	again, err := s.service.HandleGoogleCallback(s.ctx, "good-code")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), resp.User.ID, again.User.ID)

	_, err = s.service.HandleGoogleCallback(s.ctx, "bad-code")
	assert.Error(s.T(), err)
}

func (s *AuthTestSuite) TestGoogleLinksExistingEmail() {
	existing := s.signUp("amina@example.com")
	s.withGoogle(&GoogleUserInfo{ID: "g-2", Email: "amina@example.com", VerifiedEmail: true, Name: "Amina"})

	resp, err := s.service.HandleGoogleCallback(s.ctx, "good-code")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), existing.User.ID, resp.User.ID)

	linked, err := s.profiles.GetProfileByGoogleID(s.ctx, "g-2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), existing.User.ID, linked.ID)
}

func (s *AuthTestSuite) TestGoogleRejectsUnverifiedEmail() {
	s.withGoogle(&GoogleUserInfo{ID: "g-3", Email: "x@example.com", VerifiedEmail: false})
	_, err := s.service.HandleGoogleCallback(s.ctx, "good-code")
	assert.ErrorIs(s.T(), err, ErrOAuthEmailUnverified)
}

func (s *AuthTestSuite) TestSignUpRejectsGoogleOnlyEmail() {
	googleID := "g-4"
	p := &models.Profile{Email: "leila@example.com", GoogleID: &googleID}
	require.NoError(s.T(), s.profiles.CreateProfile(s.ctx, p))

	_, err := s.service.SignUp(s.ctx, SignUpRequest{Email: "Leila@example.com", Password: "intruder1"})
	assert.ErrorIs(s.T(), err, ErrEmailTaken)

	stored, err := s.profiles.GetProfile(s.ctx, p.ID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), stored.PasswordHash)

	_, err = s.service.SignIn(s.ctx, SignInRequest{Email: "leila@example.com", Password: "intruder1"})
	assert.ErrorIs(s.T(), err, ErrNoPassword)
}

func (s *AuthTestSuite) TestGoogleOnlyAccountSetsPasswordThroughReset() {
	googleID := "g-5"
	p := &models.Profile{Email: "leila@example.com", GoogleID: &googleID}
	require.NoError(s.T(), s.profiles.CreateProfile(s.ctx, p))

	require.NoError(s.T(), s.service.RequestPasswordReset(s.ctx, "leila@example.com"))
	require.Len(s.T(), s.mailer.sent, 1)
	assert.Equal(s.T(), "leila@example.com", s.mailer.sent[0].to)

	require.NoError(s.T(), s.service.ResetPassword(s.ctx, s.mailer.sent[0].token, "secret123"))
	resp, err := s.service.SignIn(s.ctx, SignInRequest{Email: "leila@example.com", Password: "secret123"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), p.ID, resp.User.ID)
}

func (s *AuthTestSuite) TestSignOutWithoutSharedRevoker() {
	svc := NewService(s.profiles, repository.NewPasswordResetRepository(s.db), []byte("test-secret"), time.Hour)
	resp, err := svc.SignUp(s.ctx, SignUpRequest{Email: "nadia@example.com", Password: "secret123"})
	require.NoError(s.T(), err)

	require.NoError(s.T(), svc.SignOut(s.ctx, resp.Token))
	_, err = svc.ValidateToken(s.ctx, resp.Token)
	assert.ErrorIs(s.T(), err, ErrTokenRevoked)
}

func TestLocalRevokerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewLocalRevoker()
	r.now = func() time.Time { return now }

	require.NoError(t, r.RevokeToken(ctx, "jti-1", time.Hour))
	require.NoError(t, r.RevokeToken(ctx, "jti-expired", 0))

	revoked, err := r.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = r.IsTokenRevoked(ctx, "jti-expired")
	assert.False(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = r.IsTokenRevoked(ctx, "jti-1")
	assert.False(t, revoked)
	assert.Empty(t, r.revoked)
}

func TestAuthTestSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}
