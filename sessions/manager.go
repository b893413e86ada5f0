// Package sessions manages Session records in the dedicated session graph.
// A session is named by the caller-supplied session token URI; at most one
// record exists per token, enforced by purging before every insert.
package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bdevloed/graph-login-service/claims"
	"github.com/bdevloed/graph-login-service/identity"
	"github.com/bdevloed/graph-login-service/internal/config"
	"github.com/bdevloed/graph-login-service/sparql"
)

// Session is a summary of an account's current session, including any role
// markers aggregated into a list.
type Session struct {
	URI      string
	ID       string
	GroupURI string
	GroupID  string
	Roles    []string
}

// Settings carries the graph locations the manager operates on.
type Settings struct {
	SessionGraph         string
	OrganizationGraph    string
	OrganizationType     string
	AccountGraphTemplate config.GraphTemplate
}

// Manager creates, looks up and deletes Session records.
type Manager struct {
	store    sparql.Store
	settings Settings

	newID   func() string
	nowTime func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNewID overrides id minting (primarily for testing).
func WithNewID(newID func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithNowTime overrides the clock (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a Manager.
func NewManager(store sparql.Store, settings Settings, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] store is required")
	}
	if settings.SessionGraph == "" {
		return nil, errors.New("[NewManager] session graph is required")
	}
	if settings.OrganizationGraph == "" {
		return nil, errors.New("[NewManager] organization graph is required")
	}
	if settings.OrganizationType == "" {
		return nil, errors.New("[NewManager] organization type is required")
	}
	if settings.AccountGraphTemplate == "" {
		return nil, errors.New("[NewManager] account graph template is required")
	}

	m := &Manager{
		store:    store,
		settings: settings,
		newID:    func() string { return uuid.New().String() },
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Purge deletes every statement in the session graph whose subject is the
// token URI. Purging a token with no session is a no-op.
func (m *Manager) Purge(ctx context.Context, token string) error {
	update := fmt.Sprintf(`DELETE WHERE {
  GRAPH %s {
    %s ?p ?o .
  }
}`,
		sparql.EscapeURI(m.settings.SessionGraph),
		sparql.EscapeURI(token))

	if err := m.store.Update(ctx, update); err != nil {
		return errors.Wrap(err, "[Manager.Purge] deleting session statements")
	}
	return nil
}

// Create writes a new session record under the token URI and returns its
// internal id. It does not check for an existing record; callers purge
// first.
func (m *Manager) Create(ctx context.Context, accountURI, token, groupURI string, cs claims.Set) (string, error) {
	sessionID := m.newID()

	update := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX session: <http://mu.semte.ch/vocabularies/session/>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>
PREFIX dcterms: <http://purl.org/dc/terms/>

INSERT DATA {
  GRAPH %s {
    %s mu:uuid %s ;
       session:account %s ;
       ext:sessionGroup %s ;
       dcterms:modified %s ;
       ext:exp %s ;
       ext:iat %s ;
       ext:applicationName %s .
  }
}`,
		sparql.EscapeURI(m.settings.SessionGraph),
		sparql.EscapeURI(token),
		sparql.EscapeString(sessionID),
		sparql.EscapeURI(accountURI),
		sparql.EscapeURI(groupURI),
		sparql.EscapeDateTime(m.nowTime()),
		sparql.EscapeInt(cs.ExpiresAt),
		sparql.EscapeInt(cs.IssuedAt),
		sparql.EscapeString(cs.ApplicationName))

	if err := m.store.Update(ctx, update); err != nil {
		return "", errors.Wrap(err, "[Manager.Create] inserting session")
	}
	return sessionID, nil
}

// AccountForToken resolves the Account behind a session token. The lookup is
// two-step: first the tenant group bound to the session, then the Account in
// that tenant's account graph. It returns nil when either step finds
// nothing, covering unknown tokens and tenants whose account was removed.
func (m *Manager) AccountForToken(ctx context.Context, token string) (*identity.AccountRef, error) {
	groupID, err := m.groupIDForToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, nil
	}

	query := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX session: <http://mu.semte.ch/vocabularies/session/>
PREFIX foaf: <http://xmlns.com/foaf/0.1/>

SELECT ?account ?accountId
WHERE {
  GRAPH %s {
    %s session:account ?account .
  }
  GRAPH %s {
    ?account a foaf:OnlineAccount ;
             mu:uuid ?accountId .
  }
}`,
		sparql.EscapeURI(m.settings.SessionGraph),
		sparql.EscapeURI(token),
		sparql.EscapeURI(m.settings.AccountGraphTemplate.ForGroup(groupID)))

	results, err := m.store.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.AccountForToken] querying account")
	}
	if results.Empty() {
		return nil, nil
	}

	row := results.First()
	return &identity.AccountRef{URI: row.Value("account"), ID: row.Value("accountId")}, nil
}

func (m *Manager) groupIDForToken(ctx context.Context, token string) (string, error) {
	query := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>

SELECT DISTINCT ?groupId
WHERE {
  GRAPH %s {
    %s ext:sessionGroup ?group .
  }
  GRAPH %s {
    ?group a %s ;
           mu:uuid ?groupId .
  }
}`,
		sparql.EscapeURI(m.settings.SessionGraph),
		sparql.EscapeURI(token),
		sparql.EscapeURI(m.settings.OrganizationGraph),
		sparql.EscapeURI(m.settings.OrganizationType))

	results, err := m.store.Query(ctx, query)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.groupIDForToken] querying session group")
	}
	if results.Empty() {
		return "", nil
	}
	return results.First().Value("groupId"), nil
}

// CurrentSession finds the session bound to an account, aggregating its role
// markers. It returns nil when the account has no session.
func (m *Manager) CurrentSession(ctx context.Context, accountURI string) (*Session, error) {
	query := fmt.Sprintf(`PREFIX mu: <http://mu.semte.ch/vocabularies/core/>
PREFIX session: <http://mu.semte.ch/vocabularies/session/>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>

SELECT ?session ?sessionId ?group ?groupId (GROUP_CONCAT(?role; SEPARATOR = ",") AS ?roles)
WHERE {
  GRAPH %s {
    ?session session:account %s ;
             mu:uuid ?sessionId ;
             ext:sessionGroup ?group .
    OPTIONAL { ?session ext:sessionRole ?role . }
  }
  GRAPH %s {
    ?group mu:uuid ?groupId .
  }
}
GROUP BY ?session ?sessionId ?group ?groupId`,
		sparql.EscapeURI(m.settings.SessionGraph),
		sparql.EscapeURI(accountURI),
		sparql.EscapeURI(m.settings.OrganizationGraph))

	results, err := m.store.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.CurrentSession] querying session")
	}
	if results.Empty() {
		return nil, nil
	}

	row := results.First()
	var roles []string
	if concatenated := row.Value("roles"); concatenated != "" {
		roles = strings.Split(concatenated, ",")
	}
	return &Session{
		URI:      row.Value("session"),
		ID:       row.Value("sessionId"),
		GroupURI: row.Value("group"),
		GroupID:  row.Value("groupId"),
		Roles:    roles,
	}, nil
}
