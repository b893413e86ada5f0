package login_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/identity"
	apperrors "github.com/bdevloed/graph-login-service/internal/errors"
	"github.com/bdevloed/graph-login-service/login"
	"github.com/bdevloed/graph-login-service/login/enginefakes"
	"github.com/bdevloed/graph-login-service/tenants"
)

const (
	testToken      = "urn:session:abc"
	testGroupURI   = "http://data.example.com/id/groups/1"
	testGroupID    = "group-uuid-1"
	testAuthCode   = "code-123"
	testGroupClaim = "g1"
)

type testFixture struct {
	verifier *enginefakes.FakeVerifier
	tenants  *enginefakes.FakeTenantResolver
	identity *enginefakes.FakeReconciler
	sessions *enginefakes.FakeSessionManager
	auditor  *enginefakes.FakeAuditor
	service  *login.Service
}

func testClaims() claims.Set {
	return claims.Set{
		SubjectID:       "u1",
		AccountID:       "a1",
		GroupID:         testGroupClaim,
		ApplicationName: "app",
		IssuedAt:        1000,
		ExpiresAt:       2000,
		Active:          true,
	}
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	verifier := &enginefakes.FakeVerifier{Claims: testClaims()}
	resolver := &enginefakes.FakeTenantResolver{
		Groups: map[string]tenants.Group{
			testGroupClaim: {URI: testGroupURI, ID: testGroupID},
		},
	}
	reconciler := &enginefakes.FakeReconciler{}
	sessionManager := enginefakes.NewFakeSessionManager()
	sessionManager.SetGroup(testGroupURI, testGroupID)
	auditor := &enginefakes.FakeAuditor{}

	service, err := login.NewService(login.Components{
		Verifier: verifier,
		Tenants:  resolver,
		Identity: reconciler,
		Sessions: sessionManager,
	}, login.WithAuditor(auditor))
	require.NoError(t, err)

	return &testFixture{
		verifier: verifier,
		tenants:  resolver,
		identity: reconciler,
		sessions: sessionManager,
		auditor:  auditor,
		service:  service,
	}
}

func TestNewServiceRequiresAllComponents(t *testing.T) {
	f := setupTestFixture(t)

	_, err := login.NewService(login.Components{
		Tenants:  f.tenants,
		Identity: f.identity,
		Sessions: f.sessions,
	})
	require.Error(t, err)

	_, err = login.NewService(login.Components{
		Verifier: f.verifier,
		Identity: f.identity,
		Sessions: f.sessions,
	})
	require.Error(t, err)
}

func TestLoginIssuesSession(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionID)
	require.NotEmpty(t, result.Account.ID)
	require.Equal(t, testGroupID, result.Group.ID)
	require.Equal(t, []string{"app"}, result.Roles)
	require.Equal(t, 1, f.sessions.SessionCount())
}

func TestLoginRoundTrip(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)

	account, err := f.sessions.AccountForToken(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, result.Account.URI, account.URI)
}

func TestLoginWithMissingInputsTouchesNothing(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(context.Background(), "", testAuthCode)
	require.ErrorIs(t, err, apperrors.ErrMissingSessionToken)

	_, err = f.service.Login(context.Background(), testToken, "")
	require.ErrorIs(t, err, apperrors.ErrMissingAuthorizationCode)

	require.Zero(t, f.verifier.Calls(), "verifier must not run on missing input")
	require.Zero(t, f.tenants.Calls())
	require.Zero(t, f.sessions.SessionCount())
}

func TestLoginRejectsFailedVerification(t *testing.T) {
	f := setupTestFixture(t)
	f.verifier.Err = errors.New("token is not active")

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.ErrorIs(t, err, apperrors.ErrVerificationRejected)
	require.Zero(t, f.tenants.Calls(), "tenant resolution must not run after a rejected code")
	require.Zero(t, f.sessions.SessionCount())
}

func TestLoginTenantGating(t *testing.T) {
	f := setupTestFixture(t)
	f.verifier.Claims = claims.Set{
		SubjectID: "u1",
		AccountID: "a1",
		GroupID:   "unknown-group",
		Active:    true,
	}

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.ErrorIs(t, err, apperrors.ErrNoTenant)

	require.Zero(t, f.identity.CreatedAccounts(), "no identity may be created without a tenant")
	require.Zero(t, f.sessions.SessionCount(), "no session may be created without a tenant")

	entries := f.auditor.Entries()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0], "unknown-group")
	require.Contains(t, entries[0], testToken)
}

func TestLoginIdempotentIdentityReconciliation(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)

	require.Equal(t, first.Account, second.Account, "same claims must yield the same account")
	require.Equal(t, 1, f.identity.CreatedAccounts())
}

func TestLoginSingleSessionPerToken(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)

	require.NotEqual(t, first.SessionID, second.SessionID)
	require.Equal(t, 1, f.sessions.SessionCount(), "re-login must supersede the prior session")
	require.Equal(t, second.SessionID, f.sessions.SessionIDForToken(testToken))
}

func TestLoginDistinctTokensShareOneAccount(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.service.Login(context.Background(), "urn:session:one", testAuthCode)
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), "urn:session:two", testAuthCode)
	require.NoError(t, err)

	require.NotEqual(t, first.SessionID, second.SessionID)
	require.Equal(t, first.Account, second.Account)
	require.Equal(t, 2, f.sessions.SessionCount())
	require.Equal(t, 1, f.identity.CreatedAccounts())
}

// cancellingReconciler cancels the caller's context mid-flow, reproducing a
// client that disconnects after the purge but before the session insert.
type cancellingReconciler struct {
	inner  *enginefakes.FakeReconciler
	cancel context.CancelFunc
}

func (r *cancellingReconciler) EnsureAccount(ctx context.Context, cs claims.Set, groupID string) (identity.AccountRef, error) {
	r.cancel()
	return r.inner.EnsureAccount(ctx, cs, groupID)
}

// contextRecordingSessions captures the context state Create observes.
type contextRecordingSessions struct {
	*enginefakes.FakeSessionManager
	createCtxErr error
}

func (m *contextRecordingSessions) Create(ctx context.Context, accountURI, token, groupURI string, cs claims.Set) (string, error) {
	m.createCtxErr = ctx.Err()
	return m.FakeSessionManager.Create(ctx, accountURI, token, groupURI, cs)
}

func TestLoginCompletesAfterCallerDisconnect(t *testing.T) {
	f := setupTestFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionManager := &contextRecordingSessions{FakeSessionManager: f.sessions}
	service, err := login.NewService(login.Components{
		Verifier: f.verifier,
		Tenants:  f.tenants,
		Identity: &cancellingReconciler{inner: f.identity, cancel: cancel},
		Sessions: sessionManager,
	})
	require.NoError(t, err)

	result, err := service.Login(ctx, testToken, testAuthCode)
	require.NoError(t, err)
	require.NoError(t, sessionManager.createCtxErr)
	require.Equal(t, result.SessionID, f.sessions.SessionIDForToken(testToken))
	require.Equal(t, 1, f.sessions.SessionCount())
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.sessions.Err = errors.New("store down")

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrVerificationRejected)
	require.NotErrorIs(t, err, apperrors.ErrNoTenant)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), testToken))
	require.Zero(t, f.sessions.SessionCount())

	account, err := f.sessions.AccountForToken(context.Background(), testToken)
	require.NoError(t, err)
	require.Nil(t, account, "lookup after logout must return nothing")
}

func TestLogoutUnknownToken(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.Logout(context.Background(), "urn:session:never-seen")
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestLogoutMissingToken(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.Logout(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrMissingSessionToken)
}

func TestLogoutLeavesAccountIntact(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(context.Background(), testToken))

	// A later login reuses the account; nothing but the session was removed.
	result, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)
	require.Equal(t, 1, f.identity.CreatedAccounts())
	require.NotEmpty(t, result.SessionID)
}

func TestCurrentSession(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.NoError(t, err)

	session, err := f.service.CurrentSession(context.Background(), testToken)
	require.NoError(t, err)
	require.Equal(t, result.SessionID, session.ID)
	require.Equal(t, testGroupID, session.GroupID)
	require.Equal(t, []string{"app"}, session.Roles)
}

func TestCurrentSessionUnknownToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.CurrentSession(context.Background(), testToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

func TestAuditFailureDoesNotMaskRejection(t *testing.T) {
	f := setupTestFixture(t)
	f.verifier.Claims = claims.Set{SubjectID: "u1", GroupID: "unknown-group", Active: true}
	f.auditor.Err = errors.New("logs graph down")

	_, err := f.service.Login(context.Background(), testToken, testAuthCode)
	require.ErrorIs(t, err, apperrors.ErrNoTenant)
}
