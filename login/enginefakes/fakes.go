// Package enginefakes provides in-memory fakes of the engine collaborators
// for tests of the login service and the HTTP transport.
package enginefakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/identity"
	"github.com/bdevloed/graph-login-service/sessions"
	"github.com/bdevloed/graph-login-service/tenants"
)

// FakeVerifier returns a canned claim set or error.
type FakeVerifier struct {
	mu     sync.Mutex
	Claims claims.Set
	Err    error
	calls  int
}

func (f *FakeVerifier) Introspect(_ context.Context, _ string) (claims.Set, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return claims.Set{}, f.Err
	}
	return f.Claims, nil
}

// Calls reports how often Introspect was invoked.
func (f *FakeVerifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeTenantResolver resolves group claims against a fixed map.
type FakeTenantResolver struct {
	mu     sync.Mutex
	Groups map[string]tenants.Group // group claim -> group
	Err    error
	calls  int
}

func (f *FakeTenantResolver) Resolve(_ context.Context, cs claims.Set) (*tenants.Group, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if cs.GroupID == "" {
		return nil, nil
	}
	group, ok := f.Groups[cs.GroupID]
	if !ok {
		return nil, nil
	}
	return &group, nil
}

// Calls reports how often Resolve was invoked.
func (f *FakeTenantResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FakeReconciler mints accounts per (group, subject, account claim) key and
// reuses them on subsequent calls, mirroring the idempotent upsert.
type FakeReconciler struct {
	mu       sync.Mutex
	Err      error
	accounts map[string]identity.AccountRef
	created  int
}

func (f *FakeReconciler) EnsureAccount(_ context.Context, cs claims.Set, groupID string) (identity.AccountRef, error) {
	if f.Err != nil {
		return identity.AccountRef{}, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accounts == nil {
		f.accounts = make(map[string]identity.AccountRef)
	}
	key := groupID + "/" + cs.SubjectID + "/" + cs.AccountID
	if account, ok := f.accounts[key]; ok {
		return account, nil
	}
	f.created++
	account := identity.AccountRef{
		URI: fmt.Sprintf("http://data.example.com/id/account/acc-%d", f.created),
		ID:  fmt.Sprintf("acc-%d", f.created),
	}
	f.accounts[key] = account
	return account, nil
}

// CreatedAccounts reports how many distinct accounts were minted.
func (f *FakeReconciler) CreatedAccounts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

type sessionRecord struct {
	id         string
	accountURI string
	accountID  string
	groupURI   string
	groupID    string
	roles      []string
}

// FakeSessionManager keeps session records in a map keyed by token,
// reproducing the single-record-per-token behavior of the session graph.
type FakeSessionManager struct {
	mu       sync.Mutex
	Err      error
	byToken  map[string]*sessionRecord
	groupIDs map[string]string // group URI -> group id, fed by Create callers via SetGroup
	accounts map[string]string // account URI -> account id
	sequence int
}

// NewFakeSessionManager creates an empty fake.
func NewFakeSessionManager() *FakeSessionManager {
	return &FakeSessionManager{
		byToken:  make(map[string]*sessionRecord),
		groupIDs: make(map[string]string),
		accounts: make(map[string]string),
	}
}

// SetGroup registers the group id behind a group URI, and SetAccount the
// account id behind an account URI; lookups need them the way the real
// manager needs the organization and account graphs.
func (f *FakeSessionManager) SetGroup(groupURI, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupIDs[groupURI] = groupID
}

func (f *FakeSessionManager) SetAccount(accountURI, accountID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[accountURI] = accountID
}

func (f *FakeSessionManager) Purge(_ context.Context, token string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byToken, token)
	return nil
}

func (f *FakeSessionManager) Create(_ context.Context, accountURI, token, groupURI string, cs claims.Set) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	record := &sessionRecord{
		id:         fmt.Sprintf("session-%d", f.sequence),
		accountURI: accountURI,
		accountID:  f.accounts[accountURI],
		groupURI:   groupURI,
		groupID:    f.groupIDs[groupURI],
		roles:      []string{cs.ApplicationName},
	}
	f.byToken[token] = record
	return record.id, nil
}

func (f *FakeSessionManager) AccountForToken(_ context.Context, token string) (*identity.AccountRef, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.byToken[token]
	if !ok {
		return nil, nil
	}
	return &identity.AccountRef{URI: record.accountURI, ID: record.accountID}, nil
}

func (f *FakeSessionManager) CurrentSession(_ context.Context, accountURI string) (*sessions.Session, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, record := range f.byToken {
		if record.accountURI == accountURI {
			return &sessions.Session{
				URI:      token,
				ID:       record.id,
				GroupURI: record.groupURI,
				GroupID:  record.groupID,
				Roles:    record.roles,
			}, nil
		}
	}
	return nil, nil
}

// SessionCount reports how many sessions exist.
func (f *FakeSessionManager) SessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byToken)
}

// SessionIDForToken returns the session id bound to a token, or "".
func (f *FakeSessionManager) SessionIDForToken(token string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.byToken[token]; ok {
		return record.id
	}
	return ""
}

// FakeAuditor records rejections in memory.
type FakeAuditor struct {
	mu      sync.Mutex
	Err     error
	entries []string
}

func (f *FakeAuditor) RecordRejection(_ context.Context, class, message, sessionToken, reference string) error {
	if f.Err != nil {
		return errors.Wrap(f.Err, "record rejection")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, class+"|"+message+"|"+sessionToken+"|"+reference)
	return nil
}

// Entries returns the recorded rejections.
func (f *FakeAuditor) Entries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries...)
}
