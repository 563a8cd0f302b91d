package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"Kinship/internal/model"
	"Kinship/internal/repository"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/federated"
	"Kinship/pkg/token"
)

type fakeProvider struct {
	profile *federated.Profile
	err     error
	codes   []string
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*federated.Profile, error) {
	p.codes = append(p.codes, code)
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

func sequentialIDs() func() (int64, error) {
	var n int64 = 1000
	return func() (int64, error) { return atomic.AddInt64(&n, 1), nil }
}

func newIdentity(provider federated.Provider) (*IdentityService, *repository.MemoryUserRepository) {
	users := repository.NewMemoryUserRepository()
	svc := NewIdentityService(users, provider, IdentityOptions{
		PasswordMinLength: 8,
		BcryptCost:        bcrypt.MinCost,
		NextID:            sequentialIDs(),
	})
	return svc, users
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _ := newIdentity(nil)
	ctx := context.Background()

	id, err := svc.SignUpWithPassword(ctx, "acme", " Ada@Example.com", "correct horse", " Ada ")
	require.NoError(t, err)
	assert.True(t, id.IsNewUser)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.Equal(t, "Ada", id.DisplayName)
	assert.Equal(t, "acme", id.TenantID)
	assert.NotEmpty(t, id.UserID)

	got, err := svc.SignInWithPassword(ctx, "acme", "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, id.UserID, got.UserID)
	assert.False(t, got.IsNewUser)

	_, err = svc.SignInWithPassword(ctx, "acme", "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidCredentials)

	_, err = svc.SignInWithPassword(ctx, "acme", "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidCredentials)

	// 租户隔离
	_, err = svc.SignInWithPassword(ctx, "other", "ada@example.com", "correct horse")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidCredentials)
}

func TestSignUpRejections(t *testing.T) {
	svc, _ := newIdentity(nil)
	ctx := context.Background()

	_, err := svc.SignUpWithPassword(ctx, "acme", "not-an-email", "correct horse", "")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidEmail)

	_, err = svc.SignUpWithPassword(ctx, "acme", "a@b.co", "short", "")
	assert.ErrorIs(t, err, pkgerrors.AuthWeakPassword)

	long := make([]byte, 73)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.SignUpWithPassword(ctx, "acme", "a@b.co", string(long), "")
	assert.ErrorIs(t, err, pkgerrors.AuthWeakPassword)

	_, err = svc.SignUpWithPassword(ctx, "acme", "a@b.co", "correct horse", "")
	require.NoError(t, err)
	_, err = svc.SignUpWithPassword(ctx, "acme", "A@B.co", "another pass", "")
	assert.ErrorIs(t, err, pkgerrors.AuthEmailInUse)

	_, err = svc.SignUpWithPassword(ctx, "other", "a@b.co", "correct horse", "")
	assert.NoError(t, err, "same email in another tenant is allowed")
}

func TestFederatedSignIn(t *testing.T) {
	provider := &fakeProvider{profile: &federated.Profile{
		Subject:       "sub-1",
		Email:         "Grace@Example.com",
		EmailVerified: true,
		Name:          "Grace",
		Picture:       "https://img.example.com/g.png",
	}}
	svc, _ := newIdentity(provider)
	ctx := context.Background()

	id, err := svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Code: "code-1"})
	require.NoError(t, err)
	assert.True(t, id.IsNewUser)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Grace", id.DisplayName)
	assert.Equal(t, "https://img.example.com/g.png", id.AvatarURL)

	again, err := svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Code: "code-2"})
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, id.UserID, again.UserID)
	assert.Equal(t, []string{"code-1", "code-2"}, provider.codes)

	// 仅第三方账号不能用密码登录
	_, err = svc.SignInWithPassword(ctx, "acme", "grace@example.com", "")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidCredentials)
}

func TestFederatedLinksExistingAccount(t *testing.T) {
	provider := &fakeProvider{profile: &federated.Profile{Subject: "sub-9", Email: "ada@example.com", EmailVerified: true, Name: "Ada L"}}
	svc, users := newIdentity(provider)
	ctx := context.Background()

	created, err := svc.SignUpWithPassword(ctx, "acme", "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)

	id, err := svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, created.UserID, id.UserID)
	assert.False(t, id.IsNewUser)
	assert.Equal(t, "Ada", id.DisplayName, "existing display name is kept")

	u, err := users.GetByFederatedSubject(ctx, "acme", "sub-9")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestFederatedPopupOutcomes(t *testing.T) {
	provider := &fakeProvider{err: errBoom}
	svc, _ := newIdentity(provider)
	ctx := context.Background()

	_, err := svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Error: "popup_closed_by_user"})
	assert.ErrorIs(t, err, pkgerrors.AuthPopupClosed)

	_, err = svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{})
	assert.ErrorIs(t, err, pkgerrors.AuthPopupClosed)

	_, err = svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Error: "popup_blocked"})
	assert.ErrorIs(t, err, pkgerrors.AuthPopupBlocked)

	_, err = svc.SignInWithFederatedProvider(ctx, "acme", FederatedRequest{Code: "c"})
	assert.ErrorIs(t, err, pkgerrors.IdentityUnavailable)
	assert.ErrorIs(t, err, errBoom)

	assert.Len(t, provider.codes, 1, "provider is only called with a code")
}

func TestProfileUpdatesAndActivation(t *testing.T) {
	svc, _ := newIdentity(nil)
	ctx := context.Background()

	id, err := svc.SignUpWithPassword(ctx, "acme", "a@b.co", "correct horse", "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkEmailVerified(ctx, id.UserID))
	require.NoError(t, svc.UpdateProfile(ctx, id.UserID, "Ada", "https://cdn/x.png"))
	require.NoError(t, svc.UpdateProfile(ctx, id.UserID, "Ada L", ""))

	u, err := svc.Activate(ctx, id.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, u.Status)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, "Ada L", u.DisplayName)
	assert.Equal(t, "https://cdn/x.png", u.AvatarURL)

	_, err = svc.GetUser(ctx, "abc")
	assert.ErrorIs(t, err, pkgerrors.InvalidUserID)
	_, err = svc.GetUser(ctx, "99999")
	assert.ErrorIs(t, err, pkgerrors.OnboardingAccountMissing)
}

type memoryRefreshStore struct {
	tokens map[string]string
}

func (m *memoryRefreshStore) Save(ctx context.Context, tenantID, userID, tok string) error {
	if m.tokens == nil {
		m.tokens = make(map[string]string)
	}
	m.tokens[tenantID+":"+userID] = tok
	return nil
}

func (m *memoryRefreshStore) Matches(ctx context.Context, tenantID, userID, tok string) bool {
	return m.tokens[tenantID+":"+userID] == tok
}

func TestAuthServiceIssuesAndRotates(t *testing.T) {
	identity, _ := newIdentity(nil)
	now := fixedNow()
	signer := &token.Signer{
		Secret:         []byte("test-secret"),
		AccessTimeout:  30 * time.Minute,
		RefreshTimeout: 24 * time.Hour,
		Now:            func() time.Time { return now },
	}
	store := &memoryRefreshStore{}
	svc := NewAuthService(identity, signer, store)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, "acme", "a@b.co", "correct horse", "Ada")
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, res.RefreshToken, store.tokens["acme:"+res.Identity.UserID])

	_, err = svc.Refresh(ctx, res.AccessToken)
	assert.ErrorIs(t, err, pkgerrors.Unauthorized, "access tokens cannot refresh")

	now = now.Add(time.Second)
	pair, err := svc.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	_, err = svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, pkgerrors.Unauthorized, "rotated token is no longer accepted")

	_, err = svc.SignIn(ctx, "acme", "a@b.co", "nope-nope")
	assert.ErrorIs(t, err, pkgerrors.AuthInvalidCredentials)
}
