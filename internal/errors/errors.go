package errors

import "errors"

// Caller-visible outcomes of the login and logout protocols. The transport
// layer maps these onto response statuses; anything outside this set is a
// server fault.
var (
	// Input errors - no store or provider access is attempted
	ErrMissingSessionToken      = errors.New("session token is missing")
	ErrMissingAuthorizationCode = errors.New("authorization code is missing")

	// The claims exchange failed or the token is not active
	ErrVerificationRejected = errors.New("authorization code verification rejected")

	// The claim set resolves to no known group; the caller must clear any
	// previously granted authorization scope
	ErrNoTenant = errors.New("no tenant found for identity")

	// Logout targeting a token with no session
	ErrInvalidSession = errors.New("invalid session")
)
