// Package login implements the identity and session reconciliation engine:
// it drives the login and logout protocols over the tenant resolver, the
// identity reconciler and the session lifecycle manager.
package login

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/identity"
	apperrors "github.com/bdevloed/graph-login-service/internal/errors"
	"github.com/bdevloed/graph-login-service/sessions"
	"github.com/bdevloed/graph-login-service/tenants"
)

// noTenantLogClass categorizes no-tenant rejections in the audit graph.
const noTenantLogClass = "http://mu.semte.ch/vocabularies/ext/log-classes/no-tenant-for-identity"

// Verifier exchanges an opaque authorization code for a verified claim set.
type Verifier interface {
	Introspect(ctx context.Context, authorizationCode string) (claims.Set, error)
}

// TenantResolver maps the group claim to a tenant; (nil, nil) means no
// tenant is known for the identity.
type TenantResolver interface {
	Resolve(ctx context.Context, cs claims.Set) (*tenants.Group, error)
}

// AccountReconciler ensures the Person/Account pair for a claim set exists
// within a tenant's graphs.
type AccountReconciler interface {
	EnsureAccount(ctx context.Context, cs claims.Set, groupID string) (identity.AccountRef, error)
}

// SessionManager handles Session records bound to session tokens.
type SessionManager interface {
	Purge(ctx context.Context, token string) error
	Create(ctx context.Context, accountURI, token, groupURI string, cs claims.Set) (string, error)
	AccountForToken(ctx context.Context, token string) (*identity.AccountRef, error)
	CurrentSession(ctx context.Context, accountURI string) (*sessions.Session, error)
}

// Auditor records rejected login attempts.
type Auditor interface {
	RecordRejection(ctx context.Context, class, message, sessionToken, reference string) error
}

// Components holds the engine's collaborators.
type Components struct {
	Verifier Verifier
	Tenants  TenantResolver
	Identity AccountReconciler
	Sessions SessionManager
}

// Service composes the collaborators into the login and logout protocols.
type Service struct {
	components     Components
	auditor        Auditor
	logger         zerolog.Logger
	debugLogClaims bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAuditor enables audit records for rejected logins.
func WithAuditor(auditor Auditor) ServiceOption {
	return func(s *Service) {
		s.auditor = auditor
	}
}

// WithDebugClaimLogging logs received claim sets. Only for debugging; claim
// sets carry identity data.
func WithDebugClaimLogging(enabled bool) ServiceOption {
	return func(s *Service) {
		s.debugLogClaims = enabled
	}
}

// NewService initializes the engine with its required collaborators.
func NewService(components Components, options ...ServiceOption) (*Service, error) {
	if components.Verifier == nil {
		return nil, errors.New("[NewService] Verifier is required")
	}
	if components.Tenants == nil {
		return nil, errors.New("[NewService] TenantResolver is required")
	}
	if components.Identity == nil {
		return nil, errors.New("[NewService] AccountReconciler is required")
	}
	if components.Sessions == nil {
		return nil, errors.New("[NewService] SessionManager is required")
	}

	s := &Service{
		components: components,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Result carries the identifiers the transport layer needs to shape a
// successful login response.
type Result struct {
	SessionID string
	Account   identity.AccountRef
	Group     tenants.Group
	Roles     []string
}

// Login runs the login protocol for a session token and authorization code:
// verify the code, purge any prior session for the token, resolve the
// tenant, reconcile the identity and issue the session.
//
// Expected rejections surface as the sentinel errors in internal/errors;
// anything else is a store fault.
func (s *Service) Login(ctx context.Context, sessionToken, authorizationCode string) (*Result, error) {
	if sessionToken == "" {
		return nil, apperrors.ErrMissingSessionToken
	}
	if authorizationCode == "" {
		return nil, apperrors.ErrMissingAuthorizationCode
	}

	cs, err := s.components.Verifier.Introspect(ctx, authorizationCode)
	if err != nil {
		s.logger.Info().Err(err).Msg("failed to introspect authorization code")
		return nil, errors.Wrapf(apperrors.ErrVerificationRejected, "introspection failed: %v", err)
	}

	if s.debugLogClaims {
		s.logger.Debug().Interface("claims", cs).Msg("received claim set")
	}

	// From here on the flow mutates the store. A caller disconnect must not
	// abort between the purge and the session insert, or the token loses its
	// prior session without gaining the new one; the store client bounds
	// each request with its own timeout.
	ctx = context.WithoutCancel(ctx)

	// Idempotent: covers re-login with the same token and leftover state.
	if err := s.components.Sessions.Purge(ctx, sessionToken); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] purging prior session")
	}

	group, err := s.components.Tenants.Resolve(ctx, cs)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] resolving tenant")
	}
	if group == nil {
		s.logger.Info().Str("groupClaim", cs.GroupID).Msg("login denied, no tenant found for identity")
		s.recordNoTenant(ctx, sessionToken, cs.GroupID)
		return nil, apperrors.ErrNoTenant
	}

	account, err := s.components.Identity.EnsureAccount(ctx, cs, group.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] reconciling identity")
	}

	sessionID, err := s.components.Sessions.Create(ctx, account.URI, sessionToken, group.URI, cs)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] creating session")
	}

	return &Result{
		SessionID: sessionID,
		Account:   account,
		Group:     *group,
		Roles:     []string{cs.ApplicationName},
	}, nil
}

// Logout tears down the session bound to the token. Person and Account
// records are left untouched.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return apperrors.ErrMissingSessionToken
	}

	account, err := s.components.Sessions.AccountForToken(ctx, sessionToken)
	if err != nil {
		return errors.Wrap(err, "[Service.Logout] resolving account")
	}
	if account == nil {
		return apperrors.ErrInvalidSession
	}

	if err := s.components.Sessions.Purge(ctx, sessionToken); err != nil {
		return errors.Wrap(err, "[Service.Logout] purging session")
	}
	return nil
}

// CurrentSession returns the session summary for the token's account, for
// introspection outside the login and logout paths.
func (s *Service) CurrentSession(ctx context.Context, sessionToken string) (*sessions.Session, error) {
	if sessionToken == "" {
		return nil, apperrors.ErrMissingSessionToken
	}

	account, err := s.components.Sessions.AccountForToken(ctx, sessionToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CurrentSession] resolving account")
	}
	if account == nil {
		return nil, apperrors.ErrInvalidSession
	}

	session, err := s.components.Sessions.CurrentSession(ctx, account.URI)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CurrentSession] querying session")
	}
	if session == nil {
		return nil, apperrors.ErrInvalidSession
	}
	return session, nil
}

func (s *Service) recordNoTenant(ctx context.Context, sessionToken, groupClaim string) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.RecordRejection(ctx, noTenantLogClass,
		"Application is not allowed to login, no tenant found", sessionToken, groupClaim)
	if err != nil {
		// The rejection itself must still reach the caller.
		s.logger.Warn().Err(err).Msg("failed to record login rejection")
	}
}
